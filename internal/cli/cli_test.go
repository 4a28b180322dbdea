package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/ingestion"
	"github.com/legalrag/backend/internal/query"
	"github.com/legalrag/backend/internal/storage/models"
)

type fakeIngester struct {
	ingested    []domain.SourceReference
	kinds       []domain.DocumentKind
	deleted     []domain.SourceReference
	regenerated []domain.SourceReference
	reindexed   []domain.LegislationDocument
}

func (f *fakeIngester) Ingest(_ context.Context, ref domain.SourceReference, kind domain.DocumentKind) (*ingestion.IngestResult, error) {
	f.ingested = append(f.ingested, ref)
	f.kinds = append(f.kinds, kind)
	return &ingestion.IngestResult{Kind: kind, Citation: "Labour Act [Chapter 28:01]", Sectioning: "style", Sections: make([]domain.DocumentSection, 2), Chunks: 4}, nil
}

func (f *fakeIngester) Reindex(_ context.Context, _ domain.SourceReference, doc domain.LegislationDocument) (*ingestion.IngestResult, error) {
	f.reindexed = append(f.reindexed, doc)
	return &ingestion.IngestResult{Kind: domain.KindLegislation, Citation: doc.Citation, Chunks: 1}, nil
}

func (f *fakeIngester) Regenerate(_ context.Context, ref domain.SourceReference) (*ingestion.IngestResult, error) {
	f.regenerated = append(f.regenerated, ref)
	return &ingestion.IngestResult{Kind: domain.KindRuling, Citation: ref.Citation, Chunks: 2}, nil
}

func (f *fakeIngester) Delete(_ context.Context, ref domain.SourceReference) error {
	f.deleted = append(f.deleted, ref)
	return nil
}

type fakeAsker struct {
	requests []query.Request
}

func (f *fakeAsker) Ask(_ context.Context, req query.Request) (query.Result, []domain.SourceReference, error) {
	f.requests = append(f.requests, req)
	req.OnStage(query.StageValidating, 0)
	sources := []domain.SourceReference{{Citation: "X HH 1/20", Collection: "rulings", SourceID: "5"}}
	return query.Result{
		ID: "q-1",
		Answer: []domain.Section{
			domain.Header("Condonation"),
			domain.Paragraph("Good cause must be shown."),
			domain.List("delay", "prospects"),
		},
		Citations: sources,
	}, sources, nil
}

func (f *fakeAsker) Collections(context.Context) []string { return []string{"legislation", "rulings"} }

type fakeDocuments struct{}

func (fakeDocuments) GetDocument(_ context.Context, collection, sourceID string) (*models.Document, error) {
	if collection == "rulings" && sourceID == "5" {
		return &models.Document{Collection: "rulings", CollectionID: "1", SourceID: "5", Filename: "a.pdf", Citation: "X HH 1/20", Kind: domain.KindRuling}, nil
	}
	return nil, domain.ErrNotFound
}

func (fakeDocuments) ListDocuments(_ context.Context, collection string) ([]models.Document, error) {
	if collection != "rulings" {
		return nil, nil
	}
	return []models.Document{{Collection: "rulings", SourceID: "5", Filename: "a.pdf", Citation: "X HH 1/20", Kind: domain.KindRuling, Chunks: 3}}, nil
}

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }

type fakeFiles struct {
	saved map[string]int
}

func (f *fakeFiles) Save(ref domain.SourceReference, data []byte) (string, error) {
	f.saved[ref.Filename] = len(data)
	return ref.Filename, nil
}

func setupTestServices() (*fakeIngester, *fakeAsker, *fakeFiles, func()) {
	ing := &fakeIngester{}
	ask := &fakeAsker{}
	fs := &fakeFiles{saved: map[string]int{}}

	ingester, asker, documents, files, embedder = ing, ask, fakeDocuments{}, fs, constEmbedder{}
	return ing, ask, fs, func() {
		ingester, asker, documents, files, embedder = nil, nil, nil, nil, nil
		collection, collectionID, kind = "", "", string(domain.KindRuling)
		askMulti, askK, askScope, askJSON, evalJSON = false, 0, 0, false, false
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0)
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}

	for _, want := range []string{"ingest", "documents", "delete", "regenerate", "reindex", "ask", "collections", "eval"} {
		assert.Contains(t, names, want)
	}
}

func TestIngestCmd_RequiresExactlyOneArg(t *testing.T) {
	_, _, _, cleanup := setupTestServices()
	defer cleanup()

	_, err := run(t, "ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestIngestCmd_StoresAndIngests(t *testing.T) {
	ing, _, fs, cleanup := setupTestServices()
	defer cleanup()

	path := filepath.Join(t.TempDir(), "labour-act.html")
	require.NoError(t, os.WriteFile(path, []byte("<h1>Part I</h1>"), 0o644))

	out, err := run(t, "ingest", path, "--collection", "legislation", "--collection-id", "2", "--kind", "legislation")
	require.NoError(t, err)

	require.Len(t, ing.ingested, 1)
	assert.Equal(t, "legislation", ing.ingested[0].Collection)
	assert.Equal(t, "2", ing.ingested[0].CollectionID)
	assert.Equal(t, "labour-act.html", ing.ingested[0].Filename)
	assert.NotEmpty(t, ing.ingested[0].SourceID)
	assert.Equal(t, domain.KindLegislation, ing.kinds[0])
	assert.Equal(t, 15, fs.saved["labour-act.html"])

	assert.Contains(t, out, "Labour Act [Chapter 28:01]")
	assert.Contains(t, out, "Sections: 2 (style)")
}

func TestIngestCmd_RejectsUnsupportedFormat(t *testing.T) {
	ing, _, _, cleanup := setupTestServices()
	defer cleanup()

	_, err := run(t, "ingest", "notes.txt", "--collection", "rulings", "--collection-id", "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	assert.Empty(t, ing.ingested)
}

func TestDocumentsCmd(t *testing.T) {
	_, _, _, cleanup := setupTestServices()
	defer cleanup()

	out, err := run(t, "documents", "rulings")
	require.NoError(t, err)
	assert.Contains(t, out, "X HH 1/20")
	assert.Contains(t, out, "Total: 1 documents")

	out, err = run(t, "documents", "legislation")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents found")
}

func TestDeleteCmd(t *testing.T) {
	ing, _, _, cleanup := setupTestServices()
	defer cleanup()

	out, err := run(t, "delete", "5", "--collection", "rulings")
	require.NoError(t, err)
	require.Len(t, ing.deleted, 1)
	assert.Equal(t, "a.pdf", ing.deleted[0].Filename)
	assert.Contains(t, out, "Deleted 5")

	_, err = run(t, "delete", "9", "--collection", "rulings")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegenerateCmd(t *testing.T) {
	ing, _, _, cleanup := setupTestServices()
	defer cleanup()

	_, err := run(t, "regenerate", "5", "--collection", "rulings")
	require.NoError(t, err)
	require.Len(t, ing.regenerated, 1)
	assert.Equal(t, "X HH 1/20", ing.regenerated[0].Citation)
}

func TestReindexCmd(t *testing.T) {
	ing, _, _, cleanup := setupTestServices()
	defer cleanup()

	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"citation":"Labour Act","sections":[{"title":"Part I","lines":["one"]}]}`), 0o644))

	_, err := run(t, "reindex", "5", path, "--collection", "rulings")
	require.NoError(t, err)
	require.Len(t, ing.reindexed, 1)
	assert.Equal(t, "Part I", ing.reindexed[0].Sections[0].Title)
}

func TestAskCmd(t *testing.T) {
	_, ask, _, cleanup := setupTestServices()
	defer cleanup()

	out, err := run(t, "ask", "What is the test for condonation?", "--multi", "-k", "4")
	require.NoError(t, err)

	require.Len(t, ask.requests, 1)
	assert.Equal(t, query.ModeMulti, ask.requests[0].Mode)
	assert.Equal(t, 4, ask.requests[0].K)
	assert.Contains(t, out, "CONDONATION")
	assert.Contains(t, out, "  - prospects")
	assert.Contains(t, out, "X HH 1/20 [rulings/5]")
}

func TestCollectionsCmd(t *testing.T) {
	_, _, _, cleanup := setupTestServices()
	defer cleanup()

	out, err := run(t, "collections")
	require.NoError(t, err)
	assert.Equal(t, "legislation\nrulings\n", out)
}

func TestEvalCmd(t *testing.T) {
	_, ask, _, cleanup := setupTestServices()
	defer cleanup()

	path := filepath.Join(t.TempDir(), "dataset.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"items":[{"prompt":"What is condonation?","expected_answer":"good cause","expected_citations":["X HH 1/20"]}]}`), 0o644))

	out, err := run(t, "eval", path)
	require.NoError(t, err)
	require.Len(t, ask.requests, 1)
	assert.Contains(t, out, "Total Queries: 1 (failed: 0)")
	assert.Contains(t, out, "Fully Relevant: 1")
	assert.Contains(t, out, "Citation Recall:   1.000")
}
