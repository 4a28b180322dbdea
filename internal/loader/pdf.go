package loader

import (
	"bytes"

	"github.com/ledongthuc/pdf"

	"github.com/legalrag/backend/internal/domain"
)

// PDF yields one fragment per page. PDFs carry no usable style data.
type PDF struct{}

func (PDF) Format() string { return "pdf" }

func (PDF) Parse(data []byte) ([]domain.Fragment, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var frags []domain.Fragment
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, err
		}
		frags = append(frags, domain.Fragment{Text: text})
	}
	return frags, nil
}
