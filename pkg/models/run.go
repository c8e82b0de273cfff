package models

import "github.com/google/uuid"

// GraphNode is an entity type in the derived knowledge-graph schema.
type GraphNode struct {
	EntityType string     `json:"entity_type"`
	Role       EntityRole `json:"role"`
	KeyCount   int        `json:"key_count"`
}

// GraphEdge is a relationship type between two node labels, aggregated over fact tables.
type GraphEdge struct {
	Type         string     `json:"type"`
	SourceEntity string     `json:"source_entity"`
	TargetEntity string     `json:"target_entity"`
	FactTables   []string   `json:"fact_tables"`
	Confidence   Confidence `json:"confidence"`
}

// GraphSchema is the graph-side output plus the relational load order.
type GraphSchema struct {
	Nodes     []GraphNode `json:"nodes"`
	Edges     []GraphEdge `json:"edges"`
	LoadOrder []string    `json:"load_order"`
}

// EntitySummary is the serialisable view of a reference entity.
type EntitySummary struct {
	EntityType     string   `json:"entity_type"`
	KeyCount       int      `json:"key_count"`
	VariationCount int      `json:"variation_count"`
	FactTables     []string `json:"fact_tables"`
}

// RunResult is everything a pipeline run hands to the code generator.
type RunResult struct {
	RunID            uuid.UUID                `json:"run_id"`
	InputFingerprint string                   `json:"-"`
	Tables           []*TableSpec             `json:"tables"`
	Entities         []EntitySummary          `json:"entities"`
	Conflicts        []Conflict               `json:"conflicts"`
	Similarities     []SimilarityGroup        `json:"similarities"`
	SyntheticKeys    []SyntheticKeyAssignment `json:"synthetic_keys"`
	Relationships    []CandidateRelationship  `json:"relationships"`
	Graph            GraphSchema              `json:"graph"`
	Audit            AuditReport              `json:"audit"`
}

// Table returns a table spec by name.
func (r *RunResult) Table(name string) (*TableSpec, bool) {
	for _, t := range r.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}
