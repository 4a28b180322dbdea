package domain

import "strings"

// SearchPhrase is one similarity search bound to a collection.
type SearchPhrase struct {
	Phrase     string `json:"phrase" validate:"required"`
	Collection string `json:"table" validate:"required"`
}

// SourceReference identifies a source document. Two hits with equal
// references came from the same document.
type SourceReference struct {
	Citation     string `json:"citation"`
	Collection   string `json:"table"`
	CollectionID string `json:"table_id"`
	SourceID     string `json:"file_id"`
	Filename     string `json:"filename"`
}

// RetrievedHit is one similarity-index match.
type RetrievedHit struct {
	SourceReference
	DocumentExcerpt string `json:"document"`
}

// Excerpt pairs a citation with matched passage text; it is the payload
// single-step synthesis folds into its prompt.
type Excerpt struct {
	Citation string `json:"citation"`
	Content  string `json:"content"`
}

// ResearchResult is the per-source extraction used by multi-step synthesis.
type ResearchResult struct {
	Citation       string `json:"citation"`
	ResearchAnswer string `json:"research_answer"`
}

// NoRelevantContent is what the researcher returns for a source with
// nothing to say about the question.
const NoRelevantContent = "None"

// Turn is one exchange of conversation history.
type Turn struct {
	User   string `json:"user"`
	System string `json:"system"`
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Conversation builds the message list for an oracle call: the policy
// prompt, the history in order, then the new user content.
func Conversation(policy string, history []Turn, user string) []Message {
	msgs := make([]Message, 0, len(history)*2+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: policy})
	for _, t := range history {
		msgs = append(msgs,
			Message{Role: RoleUser, Content: t.User},
			Message{Role: RoleAssistant, Content: t.System},
		)
	}
	return append(msgs, Message{Role: RoleUser, Content: user})
}

// Fragment is one unit of loaded document text. Style and Indent are
// empty for formats that carry no layout.
type Fragment struct {
	Text   string  `json:"text"`
	Style  string  `json:"style,omitempty"`
	Indent float64 `json:"indent,omitempty"`
}

// DocumentSection groups document lines under a heading.
type DocumentSection struct {
	Title string   `json:"title"`
	Lines []string `json:"lines"`
}

// Text joins the section's lines with single spaces.
func (s DocumentSection) Text() string {
	return strings.Join(s.Lines, " ")
}

// Match is one similarity-index search result.
type Match struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Score    float32           `json:"score"`
}

// Metadata keys stored alongside every indexed chunk.
const (
	MetaCitation     = "citation"
	MetaCollectionID = "table_id"
	MetaSourceID     = "file_id"
	MetaFilename     = "filename"
)

// Hit converts a match from collection into a RetrievedHit.
func (m Match) Hit(collection string) RetrievedHit {
	return RetrievedHit{
		SourceReference: SourceReference{
			Citation:     m.Metadata[MetaCitation],
			Collection:   collection,
			CollectionID: m.Metadata[MetaCollectionID],
			SourceID:     m.Metadata[MetaSourceID],
			Filename:     m.Metadata[MetaFilename],
		},
		DocumentExcerpt: m.Text,
	}
}
