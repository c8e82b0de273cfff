package models

import "slices"

// RelationshipType is a named category of semantic graph edge (an archetype).
type RelationshipType string

const (
	RelationshipTrades   RelationshipType = "TRADES"
	RelationshipProduces RelationshipType = "PRODUCES"
	RelationshipSupplies RelationshipType = "SUPPLIES"
	RelationshipConsumes RelationshipType = "CONSUMES"
	RelationshipUtilizes RelationshipType = "UTILIZES"
	RelationshipEmits    RelationshipType = "EMITS"
	RelationshipEmploys  RelationshipType = "EMPLOYS"
	RelationshipInvests  RelationshipType = "INVESTS"
	RelationshipMeasures RelationshipType = "MEASURES"
	RelationshipImpacts  RelationshipType = "IMPACTS"
)

// RelationshipTypes lists the archetypes in catalogue order. Ties in scoring
// resolve to the earlier entry.
var RelationshipTypes = []RelationshipType{
	RelationshipTrades,
	RelationshipProduces,
	RelationshipSupplies,
	RelationshipConsumes,
	RelationshipUtilizes,
	RelationshipEmits,
	RelationshipEmploys,
	RelationshipInvests,
	RelationshipMeasures,
	RelationshipImpacts,
}

// IsValidRelationshipType checks if the type is in the catalogue.
func IsValidRelationshipType(t RelationshipType) bool {
	return slices.Contains(RelationshipTypes, t)
}

// Confidence is a coarse confidence level.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Weight returns the numeric weight used when averaging confidence levels.
func (c Confidence) Weight() float64 {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	default:
		return 1
	}
}

// RelationshipTypeScore is the scoring outcome for one reference item in one fact table.
type RelationshipTypeScore struct {
	Type       RelationshipType   `json:"type"`
	Score      float64            `json:"score"`
	Confidence Confidence         `json:"confidence"`
	Properties map[string]string  `json:"properties,omitempty"`
	Evidence   []string           `json:"evidence,omitempty"`
	ItemKey    string             `json:"item_key"`
	Item       string             `json:"item"`
	AllScores  map[string]float64 `json:"all_scores,omitempty"`
}

// CandidateRelationship is one graph edge proposed for a fact table: all items
// sharing a winning archetype grouped together.
type CandidateRelationship struct {
	FactTable    string                  `json:"fact_table"`
	Type         string                  `json:"type"`
	SourceEntity string                  `json:"source_entity"`
	TargetEntity string                  `json:"target_entity"`
	ViaEntity    string                  `json:"via_entity,omitempty"`
	Confidence   Confidence              `json:"confidence"`
	Properties   map[string]string       `json:"properties,omitempty"`
	Items        []RelationshipTypeScore `json:"items,omitempty"`
	Special      bool                    `json:"special,omitempty"` // Emitted by a fixed rule, not scored
}
