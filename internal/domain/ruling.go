package domain

// DocumentKind distinguishes the two ingestion paths.
type DocumentKind string

const (
	KindRuling      DocumentKind = "ruling"
	KindLegislation DocumentKind = "legislation"
)

type Party struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// CaseLawRef is a precedent relied on by a ruling and how the court treated it.
type CaseLawRef struct {
	Citation string `json:"citation" validate:"required"`
	Desc     string `json:"desc"`
	Result   string `json:"result"`
}

type LegislationRef struct {
	Citation    string `json:"citation" validate:"required"`
	Legislation string `json:"legislation"`
	Section     string `json:"section"`
	Desc        string `json:"desc"`
	Result      string `json:"result"`
}

// Precedent is a new rule established by a ruling.
type Precedent struct {
	Precedent string `json:"precedent"`
	Desc      string `json:"desc"`
}

// RulingMetadata is the structured analysis extracted from a court ruling.
type RulingMetadata struct {
	Name         string           `json:"name"`
	Citation     string           `json:"citation" validate:"required"`
	Court        string           `json:"court"`
	Date         string           `json:"date"`
	CaseNumber   string           `json:"case_number"`
	Judges       []string         `json:"judges"`
	Summary      string           `json:"summary" validate:"required"`
	Keywords     []string         `json:"keywords"`
	Jurisdiction string           `json:"jurisdiction"`
	Parties      []Party          `json:"parties"`
	CaseLaw      []CaseLawRef     `json:"case_law" validate:"dive"`
	Legislation  []LegislationRef `json:"legislation" validate:"dive"`
	SetPrecedent []Precedent      `json:"set_precedent"`
}

// LegislationDocument is the sectioned form of a statute.
type LegislationDocument struct {
	Citation     string            `json:"citation"`
	Jurisdiction string            `json:"jurisdiction"`
	Sections     []DocumentSection `json:"sections"`
}
