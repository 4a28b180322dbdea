package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legalrag/backend/internal/domain"
)

func TestForFilename(t *testing.T) {
	cases := map[string]string{
		"ruling.pdf":    "pdf",
		"Act.DOCX":      "docx",
		"act.html":      "html",
		"statute.htm":   "html",
		"dir/x.pdf":     "pdf",
		"archive.pdf.x": "",
		"notes.txt":     "",
	}
	for name, want := range cases {
		p, err := ForFilename(name)
		if want == "" {
			assert.ErrorIs(t, err, domain.ErrUnsupportedFormat, name)
			continue
		}
		require.NoError(t, err, name)
		assert.Equal(t, want, p.Format(), name)
	}
}

func TestHTMLParse(t *testing.T) {
	src := `<html><body><div>
		<p>Zimbabwe</p>
		<p>Labour Act</p>
		<p>[Chapter 28:01]</p>
		<h1 style="margin-left: 48px">Part I</h1>
		<p style="margin-left:0.5in">Section&nbsp;1 text</p>
		<p style="margin-left: 36pt">Section 2 text</p>
	</div></body></html>`

	frags, err := HTML{}.Parse([]byte(src))
	require.NoError(t, err)
	require.Len(t, frags, 6)

	assert.Equal(t, "Zimbabwe", frags[0].Text)
	assert.Equal(t, "p", frags[0].Style)
	assert.Equal(t, "h1", frags[3].Style)
	assert.InDelta(t, 0.5, frags[3].Indent, 1e-9)
	assert.Equal(t, "Section 1 text", frags[4].Text)
	assert.InDelta(t, 0.5, frags[4].Indent, 1e-9)
	assert.InDelta(t, 0.5, frags[5].Indent, 1e-9)
}

func TestHTMLNestedDivsNotDuplicated(t *testing.T) {
	src := `<div><p>a</p><div><p>b</p></div></div>`
	frags, err := HTML{}.Parse([]byte(src))
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Equal(t, "a", frags[0].Text)
	assert.Equal(t, "b", frags[1].Text)
}

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDOCXParse(t *testing.T) {
	data := buildDOCX(t, `
<w:p><w:r><w:t>Zimbabwe</w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Part </w:t></w:r><w:r><w:t>I</w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="Normal"/><w:ind w:left="720"/></w:pPr><w:r><w:t>Body text</w:t></w:r></w:p>`)

	frags, err := DOCX{}.Parse(data)
	require.NoError(t, err)
	require.Len(t, frags, 3)

	assert.Equal(t, domain.Fragment{Text: "Zimbabwe"}, frags[0])
	assert.Equal(t, "Part I", frags[1].Text)
	assert.Equal(t, "h1", frags[1].Style)
	assert.Equal(t, "Normal", frags[2].Style)
	assert.InDelta(t, 0.5, frags[2].Indent, 1e-9)
}

func TestDOCXWithoutDocumentXML(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = DOCX{}.Parse(buf.Bytes())
	assert.Error(t, err)
}

func TestPDFRejectsGarbage(t *testing.T) {
	_, err := PDF{}.Parse([]byte("not a pdf"))
	assert.Error(t, err)
}

func TestStoreSaveLoad(t *testing.T) {
	store := NewStore(t.TempDir())
	ref := domain.SourceReference{Collection: "legislation", CollectionID: "2", SourceID: "9", Filename: "act.html"}

	path, err := store.Save(ref, []byte(`<div><h1>Part I</h1><p>text</p></div>`))
	require.NoError(t, err)
	assert.Equal(t, store.Path(ref), path)
	assert.Contains(t, path, "legislation-2")
	assert.Contains(t, path, "9-act.html")

	frags, err := store.Load(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "Part Itext", JoinText(frags))
	assert.Equal(t, "Part I\ntext", JoinLines(frags))

	require.NoError(t, store.Remove(ref))
	require.NoError(t, store.Remove(ref))
	_, err = store.Load(context.Background(), ref)
	assert.Error(t, err)
}

func TestStoreRejectsUnsupported(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Load(context.Background(), domain.SourceReference{Filename: "a.txt"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestJoinLines(t *testing.T) {
	frags := []domain.Fragment{{Text: "Section 93 Definitions"}, {Text: "In this Act\n"}, {Text: "\"employee\" means"}}
	assert.Equal(t, "Section 93 Definitions\nIn this Act\n\"employee\" means", JoinLines(frags))
	assert.Equal(t, "", JoinLines(nil))
}
