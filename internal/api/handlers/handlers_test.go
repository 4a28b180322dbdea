package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/ingestion"
	"github.com/legalrag/backend/internal/kg/neo4j"
	"github.com/legalrag/backend/internal/query"
	"github.com/legalrag/backend/internal/storage/models"
	"github.com/legalrag/backend/internal/vector/memory"
)

type fakeEngine struct {
	asked   []query.Request
	askErr  error
	verdict query.Validation
	name    string
	nameErr error
	colls   []string
}

func (f *fakeEngine) Ask(_ context.Context, req query.Request) (query.Result, []domain.SourceReference, error) {
	f.asked = append(f.asked, req)
	if req.OnStage != nil {
		req.OnStage(query.StageValidating, 0)
	}
	if f.askErr != nil {
		return query.Result{ID: "q-err", Answer: domain.ApologyAnswer().Answer}, nil, f.askErr
	}
	return query.Result{
		ID:        "q-1",
		Answer:    []domain.Section{domain.Paragraph("The test is good cause.")},
		Phrases:   []domain.SearchPhrase{{Phrase: "condonation", Collection: "rulings"}},
		Citations: []domain.SourceReference{{Citation: "X HH 1/20", Collection: "rulings", SourceID: "5"}},
	}, nil, nil
}

func (f *fakeEngine) Validate(context.Context, string, []domain.Turn) (query.Validation, error) {
	return f.verdict, nil
}

func (f *fakeEngine) Naming(context.Context, string) (string, error) {
	return f.name, f.nameErr
}

func (f *fakeEngine) Collections(context.Context) []string { return f.colls }

type fakeIngester struct {
	ingested []domain.SourceReference
	deleted  []domain.SourceReference
	reindex  []domain.LegislationDocument
	err      error
}

func (f *fakeIngester) Ingest(_ context.Context, ref domain.SourceReference, kind domain.DocumentKind) (*ingestion.IngestResult, error) {
	f.ingested = append(f.ingested, ref)
	if f.err != nil {
		return nil, f.err
	}
	return &ingestion.IngestResult{Kind: kind, Citation: "X HH 1/20", Chunks: 3}, nil
}

func (f *fakeIngester) Reindex(_ context.Context, ref domain.SourceReference, doc domain.LegislationDocument) (*ingestion.IngestResult, error) {
	f.reindex = append(f.reindex, doc)
	if doc.Citation == "" {
		return nil, domain.ErrIncompleteMetadata
	}
	return &ingestion.IngestResult{Kind: domain.KindLegislation, Citation: doc.Citation}, nil
}

func (f *fakeIngester) Regenerate(_ context.Context, ref domain.SourceReference) (*ingestion.IngestResult, error) {
	return &ingestion.IngestResult{Kind: domain.KindRuling, Citation: ref.Citation}, nil
}

func (f *fakeIngester) Delete(_ context.Context, ref domain.SourceReference) error {
	f.deleted = append(f.deleted, ref)
	return nil
}

type fakeDocs struct {
	docs map[string]*models.Document
}

func (f *fakeDocs) GetDocument(_ context.Context, collection, sourceID string) (*models.Document, error) {
	if d, ok := f.docs[collection+"/"+sourceID]; ok {
		return d, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDocs) ListDocuments(_ context.Context, collection string) ([]models.Document, error) {
	var out []models.Document
	for _, d := range f.docs {
		if d.Collection == collection {
			out = append(out, *d)
		}
	}
	return out, nil
}

type fakeFiles struct {
	saved map[string][]byte
}

func (f *fakeFiles) Save(ref domain.SourceReference, data []byte) (string, error) {
	f.saved[ref.Filename] = data
	return "/tmp/" + ref.Filename, nil
}

type fakeNeighbours struct{}

func (fakeNeighbours) Neighbours(context.Context, string) ([]neo4j.Neighbour, error) {
	return []neo4j.Neighbour{{Label: neo4j.LabelRuling, Key: "Mary v Gideon HH 87/12", Relation: neo4j.RelCites, Outgoing: true}}, nil
}

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }

type testServer struct {
	app      *fiber.App
	engine   *fakeEngine
	ingester *fakeIngester
	docs     *fakeDocs
	files    *fakeFiles
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	idx := memory.New(constEmbedder{}, "rulings")
	require.NoError(t, idx.Insert(context.Background(), "rulings", "condonation text",
		map[string]string{domain.MetaCitation: "X HH 1/20", domain.MetaSourceID: "5"}, []float32{1, 0}))

	s := &testServer{
		app:      fiber.New(),
		engine:   &fakeEngine{verdict: query.Validation{Result: "complete"}, name: "Condonation test", colls: []string{"legislation", "rulings"}},
		ingester: &fakeIngester{},
		docs: &fakeDocs{docs: map[string]*models.Document{
			"rulings/5": {Collection: "rulings", CollectionID: "1", SourceID: "5", Filename: "a.pdf", Kind: domain.KindRuling, Citation: "X HH 1/20"},
		}},
		files: &fakeFiles{saved: map[string][]byte{}},
	}

	q := NewQueryHandler(s.engine, idx, nil)
	d := NewDocumentHandler(s.ingester, s.docs, s.files).WithGraph(fakeNeighbours{})
	Register(s.app.Group("/api/v1"), q, d)
	return s
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestHandleQuery(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/api/v1/query", `{"prompt":"  What is the test for condonation?  ","mode":"multi","k":3}`)
	require.Equal(t, 200, status)
	assert.Equal(t, "q-1", body["id"])
	assert.Len(t, body["answer"], 1)
	assert.Len(t, body["citations"], 1)

	require.Len(t, s.engine.asked, 1)
	assert.Equal(t, query.ModeMulti, s.engine.asked[0].Mode)
	assert.Equal(t, "What is the test for condonation?", s.engine.asked[0].Prompt)
	assert.Equal(t, 3, s.engine.asked[0].K)
}

func TestHandleQueryApologisesOnFailure(t *testing.T) {
	s := newTestServer(t)
	s.engine.askErr = domain.NewSchemaError("synthesize_single", errors.New("missing answer"))

	status, body := s.do(t, "POST", "/api/v1/query", `{"prompt":"What is the test?"}`)
	require.Equal(t, 200, status)

	answer := body["answer"].([]any)
	require.Len(t, answer, 1)
	section := answer[0].(map[string]any)
	assert.Equal(t, "paragraph", section["type"])
	assert.Equal(t, domain.ApologyText, section["data"])
}

func TestHandleQueryRejectsBadRequests(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, "POST", "/api/v1/query", `{"prompt":""}`)
	assert.Equal(t, 400, status)
	status, _ = s.do(t, "POST", "/api/v1/query", `{"prompt":"x","mode":"deep"}`)
	assert.Equal(t, 400, status)
	assert.Empty(t, s.engine.asked)
}

func TestValidateAndNaming(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/api/v1/validate", `{"prompt":"What is the test?"}`)
	require.Equal(t, 200, status)
	assert.Equal(t, "complete", body["result"])

	status, body = s.do(t, "POST", "/api/v1/naming", `{"prompt":"What is the test?"}`)
	require.Equal(t, 200, status)
	assert.Equal(t, "Condonation test", body["name"])

	s.engine.nameErr = domain.NewSchemaError("naming", errors.New("no name"))
	status, _ = s.do(t, "POST", "/api/v1/naming", `{"prompt":"What is the test?"}`)
	assert.Equal(t, 502, status)
}

func TestCollectionsAndRawSearch(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "GET", "/api/v1/collections", "")
	require.Equal(t, 200, status)
	assert.Equal(t, []any{"legislation", "rulings"}, body["collections"])

	status, body = s.do(t, "POST", "/api/v1/search", `{"collection":"rulings","query":"condonation"}`)
	require.Equal(t, 200, status)
	assert.Len(t, body["results"], 1)

	status, _ = s.do(t, "POST", "/api/v1/search", `{"collection":"missing","query":"condonation"}`)
	assert.Equal(t, 404, status)

	status, _ = s.do(t, "POST", "/api/v1/search", `{"collection":"bad name!","query":"condonation"}`)
	assert.Equal(t, 400, status)
}

func TestQueryHistoryWithoutStore(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "GET", "/api/v1/query/history", "")
	require.Equal(t, 200, status)
	assert.Empty(t, body["history"])
}

func uploadRequest(t *testing.T, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadDocuments(t *testing.T) {
	s := newTestServer(t)

	req := uploadRequest(t,
		map[string]string{"collection": "rulings", "collection_id": "1", "kind": "ruling"},
		map[string]string{"ruling.pdf": "%PDF-1.4"},
	)
	status, body := s.send(t, req)
	require.Equal(t, 200, status)

	files := body["files"].([]any)
	require.Len(t, files, 1)
	out := files[0].(map[string]any)
	assert.Equal(t, "ruling.pdf", out["filename"])
	assert.NotEmpty(t, out["file_id"])
	assert.Equal(t, []byte("%PDF-1.4"), s.files.saved["ruling.pdf"])
	require.Len(t, s.ingester.ingested, 1)
	assert.Equal(t, "1", s.ingester.ingested[0].CollectionID)
}

func TestUploadRejectsUnsupportedFormat(t *testing.T) {
	s := newTestServer(t)

	req := uploadRequest(t,
		map[string]string{"collection": "rulings", "collection_id": "1", "kind": "ruling"},
		map[string]string{"notes.txt": "hello"},
	)
	status, _ := s.send(t, req)
	assert.Equal(t, 415, status)
	assert.Empty(t, s.ingester.ingested)
}

func TestUploadRejectsBadForm(t *testing.T) {
	s := newTestServer(t)

	req := uploadRequest(t,
		map[string]string{"collection": "rulings", "collection_id": "1", "kind": "memo"},
		map[string]string{"a.pdf": "x"},
	)
	status, _ := s.send(t, req)
	assert.Equal(t, 400, status)
}

func TestGetDocument(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "GET", "/api/v1/documents/rulings/5", "")
	require.Equal(t, 200, status)
	assert.Equal(t, "X HH 1/20", body["citation"])
	assert.Equal(t, "rulings", body["table"])
	assert.Len(t, body["neighbours"], 1)

	status, _ = s.do(t, "GET", "/api/v1/documents/rulings/404", "")
	assert.Equal(t, 404, status)

	status, body = s.do(t, "GET", "/api/v1/documents/rulings", "")
	require.Equal(t, 200, status)
	assert.Len(t, body["documents"], 1)
}

func TestDeleteDocument(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, "DELETE", "/api/v1/documents/rulings/5", "")
	require.Equal(t, 200, status)
	require.Len(t, s.ingester.deleted, 1)
	assert.Equal(t, "a.pdf", s.ingester.deleted[0].Filename)
	assert.Equal(t, "X HH 1/20", s.ingester.deleted[0].Citation)

	status, _ = s.do(t, "DELETE", "/api/v1/documents/rulings/77", "")
	require.Equal(t, 200, status)
	assert.Equal(t, "77", s.ingester.deleted[1].SourceID)
}

func TestReindexDocument(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, "PUT", "/api/v1/documents/rulings/5/sections",
		`{"document":{"citation":"Labour Act","sections":[{"title":"Part I","lines":["one"]}]}}`)
	require.Equal(t, 200, status)
	require.Len(t, s.ingester.reindex, 1)
	assert.Equal(t, "Part I", s.ingester.reindex[0].Sections[0].Title)

	status, _ = s.do(t, "PUT", "/api/v1/documents/rulings/5/sections", `{"document":{}}`)
	assert.Equal(t, 422, status)

	status, _ = s.do(t, "PUT", "/api/v1/documents/rulings/9/sections", `{"document":{"citation":"A"}}`)
	assert.Equal(t, 404, status)

	status, _ = s.do(t, "PUT", "/api/v1/documents/rulings/9/sections",
		`{"collection_id":"1","filename":"b.html","document":{"citation":"A"}}`)
	assert.Equal(t, 200, status)
}

func TestRegenerateDocument(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/api/v1/documents/rulings/5/regenerate", "")
	require.Equal(t, 200, status)
	assert.Equal(t, "success", body["result"])

	status, _ = s.do(t, "POST", "/api/v1/documents/rulings/9/regenerate", "")
	assert.Equal(t, 404, status)
}
