package ner

import "context"

// EntityLabel is the span type returned by the oracle
type EntityLabel string

const (
	LabelOrganization EntityLabel = "ORG"
	LabelPerson       EntityLabel = "PERSON"
	LabelMoney        EntityLabel = "MONEY"
)

// Entity is one extracted span
type Entity struct {
	Text  string      `json:"text"`
	Lemma string      `json:"lemma,omitempty"`
	Label EntityLabel `json:"label"`
	Start int         `json:"start"`
	End   int         `json:"end"`
}

// Provider defines the interface for the named-entity oracle.
// The model behind it is out of scope; the pipeline only consumes spans.
type Provider interface {
	// ExtractEntities returns typed entity spans for the given text
	ExtractEntities(ctx context.Context, text string) ([]Entity, error)

	// Name returns the backing model identifier
	Name() string
}
