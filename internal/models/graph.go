package models

import (
	"graphetl/internal/schema"
)

// NodeType describes one node label in the output graph together with its
// harmonized field set and the sources that contribute instances.
type NodeType struct {
	Label   string         `json:"label"`
	Fields  []schema.Field `json:"fields"`
	Sources []string       `json:"sources"`
}

// RelationshipType describes one relationship type in the output graph.
type RelationshipType struct {
	Type       string         `json:"type"`
	StartLabel string         `json:"start_label"`
	EndLabel   string         `json:"end_label"`
	Fields     []schema.Field `json:"fields"`
	Sources    []string       `json:"sources"`
}

// Record is one extracted row on its way into staging. For node records URI
// carries the node identity; for relationship records StartURI/EndURI carry
// the endpoints and URI stays empty. Values holds the property columns;
// missing values are absent keys (or nil), never empty strings.
type Record struct {
	URI      string
	StartURI string
	EndURI   string
	Values   map[string]interface{}
}
