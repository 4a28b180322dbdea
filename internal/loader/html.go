package loader

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/legalrag/backend/internal/domain"
)

// HTML yields the immediate element children of every div, using the tag
// name as the style and the inline margin-left as the indent.
type HTML struct{}

func (HTML) Format() string { return "html" }

var marginLeft = regexp.MustCompile(`(?i)margin-left\s*:\s*(-?[0-9]*\.?[0-9]+)\s*(px|pt|in)?`)

func (HTML) Parse(data []byte) ([]domain.Fragment, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	containers := doc.Find("div")
	if containers.Length() == 0 {
		containers = doc.Find("body")
	}

	var frags []domain.Fragment
	containers.Each(func(_ int, div *goquery.Selection) {
		div.Children().Each(func(_ int, child *goquery.Selection) {
			tag := goquery.NodeName(child)
			if tag == "div" {
				return
			}
			style, _ := child.Attr("style")
			frags = append(frags, domain.Fragment{
				Text:   strings.ReplaceAll(child.Text(), "\u00a0", " "),
				Style:  tag,
				Indent: cssInches(style),
			})
		})
	})
	return frags, nil
}

func cssInches(style string) float64 {
	m := marginLeft.FindStringSubmatch(style)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch strings.ToLower(m[2]) {
	case "in":
		return v
	case "pt":
		return v / 72
	default:
		return v / 96
	}
}

