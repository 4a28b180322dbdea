// Package chunker splits text into token-bounded, overlapping segments.
//
// A token is a run of non-space characters together with the whitespace
// that follows it; leading whitespace belongs to the first token. Joining
// every token therefore gives back the input byte for byte.
package chunker

import (
	"regexp"
	"sort"
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/legalrag/backend/pkg/logger"
)

var tokenPattern = regexp.MustCompile(`\S+\s*`)

// Segment is one chunk. The first Overlap bytes of Text repeat the tail of
// the previous segment.
type Segment struct {
	Text    string
	Overlap int
	Tokens  int
}

// Fresh returns the part of the segment not shared with its predecessor.
func (s Segment) Fresh() string {
	return s.Text[s.Overlap:]
}

type Chunker struct {
	sentenceAware bool
}

// New returns a chunker. A sentence-aware chunker prefers to end a segment
// on a sentence boundary when one falls in the second half of the window.
func New(sentenceAware bool) *Chunker {
	return &Chunker{sentenceAware: sentenceAware}
}

// Split is Segments without overlap bookkeeping.
func (c *Chunker) Split(text string, maxTokens, overlapTokens int) []string {
	segs := c.Segments(text, maxTokens, overlapTokens)
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.Text
	}
	return out
}

// Segments splits text into windows of at most maxTokens tokens, each
// starting overlapTokens tokens before the previous one ended.
func (c *Chunker) Segments(text string, maxTokens, overlapTokens int) []Segment {
	if text == "" {
		return nil
	}
	if maxTokens < 1 {
		maxTokens = 1
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if overlapTokens >= maxTokens {
		overlapTokens = maxTokens - 1
	}

	spans := tokenize(text)
	n := len(spans)
	if n <= maxTokens {
		return []Segment{{Text: text, Tokens: n}}
	}

	var boundaries []int
	if c.sentenceAware {
		boundaries = sentenceEnds(text, spans)
	}

	var segs []Segment
	start, prevEnd := 0, 0
	for {
		end := start + maxTokens
		if end >= n {
			end = n
		} else if b := lastBoundary(boundaries, start+maxTokens/2, end); b > 0 {
			end = b
		}

		seg := Segment{
			Text:   text[spans[start][0]:spans[end-1][1]],
			Tokens: end - start,
		}
		if len(segs) > 0 && start < prevEnd {
			seg.Overlap = spans[prevEnd-1][1] - spans[start][0]
		}
		segs = append(segs, seg)

		if end == n {
			return segs
		}
		prevEnd = end
		next := end - overlapTokens
		if next <= start {
			next = start + 1
		}
		start = next
	}
}

// CountTokens counts tokens the way Segments does.
func CountTokens(text string) int {
	return len(tokenPattern.FindAllStringIndex(text, -1))
}

// tokenize returns [start,end) byte spans covering text exactly.
func tokenize(text string) [][2]int {
	idx := tokenPattern.FindAllStringIndex(text, -1)
	if len(idx) == 0 {
		return [][2]int{{0, len(text)}}
	}
	spans := make([][2]int, len(idx))
	for i, m := range idx {
		spans[i] = [2]int{m[0], m[1]}
	}
	spans[0][0] = 0
	return spans
}

// sentenceEnds returns, sorted, the exclusive token index at which each
// sentence ends.
func sentenceEnds(text string, spans [][2]int) []int {
	doc, err := prose.NewDocument(text,
		prose.WithTokenization(false),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		logger.Debug("Sentence segmentation failed, using fixed windows", zap.Error(err))
		return nil
	}

	var ends []int
	cursor := 0
	for _, s := range doc.Sentences() {
		at := strings.Index(text[cursor:], s.Text)
		if at < 0 {
			continue
		}
		last := cursor + at + len(s.Text) - 1
		cursor = last + 1
		tok := sort.Search(len(spans), func(i int) bool { return spans[i][1] > last })
		if tok < len(spans) {
			ends = append(ends, tok+1)
		}
	}
	return ends
}

// lastBoundary returns the largest boundary b with lo < b <= hi, or 0.
func lastBoundary(boundaries []int, lo, hi int) int {
	i := sort.SearchInts(boundaries, hi+1)
	if i == 0 {
		return 0
	}
	if b := boundaries[i-1]; b > lo {
		return b
	}
	return 0
}
