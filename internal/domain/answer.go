package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type SectionType string

const (
	SectionHeader    SectionType = "header"
	SectionParagraph SectionType = "paragraph"
	SectionList      SectionType = "list"
	SectionTable     SectionType = "table"
)

type Column struct {
	Title     string `json:"title"`
	DataIndex string `json:"dataIndex"`
	Key       string `json:"key"`
}

type Table struct {
	Columns []Column         `json:"columns"`
	Rows    []map[string]any `json:"values"`
}

// Section is one block of a structured answer. Exactly one payload field
// is meaningful, selected by Type: Text for header and paragraph, Items
// for list, Table for table.
type Section struct {
	Type  SectionType
	Text  string
	Items []string
	Table *Table
}

func Header(text string) Section { return Section{Type: SectionHeader, Text: text} }
func Paragraph(text string) Section { return Section{Type: SectionParagraph, Text: text} }
func List(items ...string) Section { return Section{Type: SectionList, Items: items} }
func TableSection(t Table) Section { return Section{Type: SectionTable, Table: &t} }

type wireSection struct {
	Type SectionType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (s Section) MarshalJSON() ([]byte, error) {
	var data any
	switch s.Type {
	case SectionHeader, SectionParagraph:
		data = s.Text
	case SectionList:
		items := s.Items
		if items == nil {
			items = []string{}
		}
		data = items
	case SectionTable:
		if s.Table == nil {
			return nil, fmt.Errorf("table section without table")
		}
		data = s.Table
	default:
		return nil, fmt.Errorf("unknown section type %q", s.Type)
	}
	return json.Marshal(struct {
		Type SectionType `json:"type"`
		Data any         `json:"data"`
	}{s.Type, data})
}

func (s *Section) UnmarshalJSON(b []byte) error {
	var w wireSection
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if len(w.Data) == 0 || bytes.Equal(w.Data, []byte("null")) {
		return fmt.Errorf("section %q has no data", w.Type)
	}

	out := Section{Type: w.Type}
	switch w.Type {
	case SectionHeader, SectionParagraph:
		if err := strictDecode(w.Data, &out.Text); err != nil {
			return fmt.Errorf("%s data: %w", w.Type, err)
		}
	case SectionList:
		if err := strictDecode(w.Data, &out.Items); err != nil {
			return fmt.Errorf("list data: %w", err)
		}
	case SectionTable:
		var t Table
		if err := strictDecode(w.Data, &t); err != nil {
			return fmt.Errorf("table data: %w", err)
		}
		if len(t.Columns) == 0 {
			return errors.New("table data: no columns")
		}
		if t.Rows == nil {
			t.Rows = []map[string]any{}
		}
		out.Table = &t
	default:
		return fmt.Errorf("unknown section type %q", w.Type)
	}

	*s = out
	return nil
}

func strictDecode(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// StructuredAnswer is the synthesizer's output shape.
type StructuredAnswer struct {
	Answer []Section `json:"answer"`
}

// ParseStructuredAnswer decodes oracle output. A missing answer key, a
// non-array answer or any malformed section is a schema violation.
func ParseStructuredAnswer(stage, raw string) (StructuredAnswer, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return StructuredAnswer{}, NewSchemaError(stage, err)
	}
	body, ok := envelope["answer"]
	if !ok {
		return StructuredAnswer{}, NewSchemaError(stage, errors.New(`missing "answer"`))
	}

	var sections []Section
	if err := json.Unmarshal(body, &sections); err != nil {
		return StructuredAnswer{}, NewSchemaError(stage, err)
	}
	if sections == nil {
		return StructuredAnswer{}, NewSchemaError(stage, errors.New(`"answer" is not an array`))
	}
	return StructuredAnswer{Answer: sections}, nil
}

// ApologyText is shown to users in place of any internal failure.
const ApologyText = "Error generating content, please try again. If the error persist create a new workspace."

func ApologyAnswer() StructuredAnswer {
	return StructuredAnswer{Answer: []Section{Paragraph(ApologyText)}}
}

// MessageAnswer wraps a single message, e.g. a validator clarification.
func MessageAnswer(msg string) StructuredAnswer {
	return StructuredAnswer{Answer: []Section{Paragraph(msg)}}
}
