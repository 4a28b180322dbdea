package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/legalrag/backend/internal/chunker"
	"github.com/legalrag/backend/internal/domain"
)

type recordedCall struct {
	policy    string
	user      string
	maxTokens int
	messages  int
}

// scriptedOracle answers by policy prompt. Handlers receive the last
// user message.
type scriptedOracle struct {
	mu    sync.Mutex
	calls []recordedCall

	validate   func(user string) (string, error)
	phrases    func(user string) (string, error)
	single     func(user string) (string, error)
	multi      func(user string) (string, error)
	research   func(user string) (string, error)
	naming     func(user string) (string, error)
	embeddings map[string][]float32
}

func (o *scriptedOracle) record(msgs []domain.Message, maxTokens int) (string, string) {
	policy, user := msgs[0].Content, msgs[len(msgs)-1].Content
	o.mu.Lock()
	o.calls = append(o.calls, recordedCall{policy: policy, user: user, maxTokens: maxTokens, messages: len(msgs)})
	o.mu.Unlock()
	return policy, user
}

func (o *scriptedOracle) CompleteJSON(_ context.Context, msgs []domain.Message, maxTokens int) (string, error) {
	policy, user := o.record(msgs, maxTokens)
	var h func(string) (string, error)
	switch policy {
	case validatorPolicy:
		h = o.validate
	case phraserPolicy:
		h = o.phrases
	case singleStepPolicy:
		h = o.single
	case multiStepPolicy:
		h = o.multi
	case namerPolicy:
		h = o.naming
	}
	if h == nil {
		return "", fmt.Errorf("no script for policy %.30q", policy)
	}
	return h(user)
}

func (o *scriptedOracle) CompleteText(_ context.Context, msgs []domain.Message, maxTokens int) (string, error) {
	_, user := o.record(msgs, maxTokens)
	if o.research == nil {
		return "", errors.New("no research script")
	}
	return o.research(user)
}

func (o *scriptedOracle) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := o.embeddings[text]; ok {
		return v, nil
	}
	return []float32{1, 0}, nil
}

func (o *scriptedOracle) callsFor(policy string) []recordedCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []recordedCall
	for _, c := range o.calls {
		if c.policy == policy {
			out = append(out, c)
		}
	}
	return out
}

func fixed(s string) func(string) (string, error) {
	return func(string) (string, error) { return s, nil }
}

// stubIndex returns canned matches per collection; a missing collection
// fails like an index would.
type stubIndex struct {
	mu       sync.Mutex
	matches  map[string][]domain.Match
	searched []string
	delay    func(query string)
}

func (s *stubIndex) Search(ctx context.Context, collection, query string, k int) ([]domain.Match, error) {
	if s.delay != nil {
		s.delay(query)
	}
	s.mu.Lock()
	s.searched = append(s.searched, collection+"/"+query)
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, ok := s.matches[collection]
	if !ok {
		return nil, fmt.Errorf("%w %q", domain.ErrUnknownCollection, collection)
	}
	if k < len(m) {
		m = m[:k]
	}
	return m, nil
}

func (s *stubIndex) Insert(context.Context, string, string, map[string]string, []float32) error {
	return nil
}

func (s *stubIndex) Delete(context.Context, string, string, string) error { return nil }

func (s *stubIndex) ListCollections(context.Context) ([]string, error) {
	return []string{"rulings", "legislation"}, nil
}

type mapLoader struct {
	docs map[string]string
	err  error
}

func (l *mapLoader) Load(_ context.Context, ref domain.SourceReference) ([]domain.Fragment, error) {
	if l.err != nil {
		return nil, l.err
	}
	text, ok := l.docs[ref.SourceID]
	if !ok {
		return nil, fmt.Errorf("no document %s", ref.SourceID)
	}
	var frags []domain.Fragment
	for _, line := range strings.SplitAfter(text, "\n") {
		frags = append(frags, domain.Fragment{Text: line})
	}
	return frags, nil
}

// fragLoader returns fragments as given, the way the DOCX and HTML readers
// emit paragraphs without trailing newlines.
type fragLoader struct {
	frags []domain.Fragment
}

func (l *fragLoader) Load(context.Context, domain.SourceReference) ([]domain.Fragment, error) {
	return l.frags, nil
}

func match(citation, sourceID, text string) domain.Match {
	return domain.Match{
		Text: text,
		Metadata: map[string]string{
			domain.MetaCitation:     citation,
			domain.MetaCollectionID: "1",
			domain.MetaSourceID:     sourceID,
			domain.MetaFilename:     sourceID + ".pdf",
		},
	}
}

func newTestEngine(o domain.Oracle, idx domain.SimilarityIndex, l domain.DocumentLoader, opts Options) *Engine {
	if opts.K == 0 {
		opts.K = 3
	}
	if opts.Scope == 0 {
		opts.Scope = 2
	}
	if opts.MultiScope == 0 {
		opts.MultiScope = 2
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = 4
	}
	return NewEngine(o, idx, l, chunker.New(false), []string{"rulings", "legislation"}, opts)
}

const (
	completeVerdict = `{"result":"complete","message":""}`
	twoPhrases      = `{"phrases":[{"phrase":"condonation late noting of appeal labour","table":"rulings"},{"phrase":"Labour Act time limits appeal","table":"legislation"}]}`
	simpleAnswer    = `{"answer":[{"type":"header","data":"Condonation"},{"type":"paragraph","data":"Good cause must be shown."}]}`
)
