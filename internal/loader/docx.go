package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/legalrag/backend/internal/domain"
)

// DOCX yields one fragment per body paragraph with its style and left
// indent. Heading N styles become hN.
type DOCX struct{}

func (DOCX) Format() string { return "docx" }

const twipsPerInch = 1440

var headingStyle = regexp.MustCompile(`(?i)^heading\s*([1-9])$`)

type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Props struct {
		Style struct {
			Val string `xml:"val,attr"`
		} `xml:"pStyle"`
		Ind struct {
			Left  string `xml:"left,attr"`
			Start string `xml:"start,attr"`
		} `xml:"ind"`
	} `xml:"pPr"`
	Runs []run `xml:"r"`
}

type run struct {
	Text []string   `xml:"t"`
	Tabs []struct{} `xml:"tab"`
}

func (DOCX) Parse(data []byte) ([]domain.Fragment, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var body []byte
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		body, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		break
	}
	if body == nil {
		return nil, errors.New("word/document.xml not found")
	}

	var doc documentXML
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, err
	}

	frags := make([]domain.Fragment, 0, len(doc.Body.Paragraphs))
	for _, p := range doc.Body.Paragraphs {
		var text strings.Builder
		for _, r := range p.Runs {
			for range r.Tabs {
				text.WriteString("\t")
			}
			for _, t := range r.Text {
				text.WriteString(t)
			}
		}
		frags = append(frags, domain.Fragment{
			Text:   text.String(),
			Style:  docxStyle(p.Props.Style.Val),
			Indent: twipsToInches(p.Props.Ind.Left, p.Props.Ind.Start),
		})
	}
	return frags, nil
}

func docxStyle(val string) string {
	if m := headingStyle.FindStringSubmatch(strings.TrimSpace(val)); m != nil {
		return "h" + m[1]
	}
	return val
}

func twipsToInches(values ...string) float64 {
	for _, v := range values {
		if v == "" {
			continue
		}
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n / twipsPerInch
		}
	}
	return 0
}
