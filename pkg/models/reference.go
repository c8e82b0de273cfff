package models

// ============================================================================
// Naming Conventions (pluggable configuration data)
// ============================================================================

// EntityRole describes how an entity participates in graph relationships.
type EntityRole string

const (
	// EntityRoleEndpoint entities become graph nodes at either end of an edge (areas, items).
	EntityRoleEndpoint EntityRole = "endpoint"
	// EntityRoleSecondary entities are scored to pick the edge type (elements, indicators).
	EntityRoleSecondary EntityRole = "secondary"
	// EntityRoleIgnored entities never count toward relationship structure (years, flags).
	EntityRoleIgnored EntityRole = "ignored"
)

// ValueFormatting normalises natural key values as they are read.
type ValueFormatting struct {
	Trim                   bool `yaml:"trim" json:"trim"`
	StripLeadingApostrophe bool `yaml:"strip_leading_apostrophe" json:"strip_leading_apostrophe"`
	Uppercase              bool `yaml:"uppercase" json:"uppercase"`
	ZeroPadWidth           int  `yaml:"zero_pad_width" json:"zero_pad_width,omitempty"`
}

// EntityDefinition configures one logical lookup concept.
type EntityDefinition struct {
	EntityType       string          `yaml:"entity_type" json:"entity_type"`
	PrimaryKeyNames  []string        `yaml:"primary_key_names" json:"primary_key_names"`
	DescriptionNames []string        `yaml:"description_names" json:"description_names"`
	SecondaryNames   []string        `yaml:"secondary_names" json:"secondary_names,omitempty"`
	Formatting       ValueFormatting `yaml:"formatting" json:"formatting"`
	Role             EntityRole      `yaml:"role" json:"role"`
}

// SpecialRelationship is a fixed relationship emitted for a fact table that binds
// both entity types, bypassing archetype scoring.
type SpecialRelationship struct {
	SourceEntity string `yaml:"source_entity" json:"source_entity"`
	TargetEntity string `yaml:"target_entity" json:"target_entity"`
	Type         string `yaml:"type" json:"type"`
}

// NamingConventions is the full pluggable naming configuration.
type NamingConventions struct {
	Entities             []EntityDefinition    `yaml:"entities" json:"entities"`
	SpecialRelationships []SpecialRelationship `yaml:"special_relationships" json:"special_relationships,omitempty"`
	// StringColumnTokens force String inference when any name token matches.
	StringColumnTokens []string `yaml:"string_column_tokens" json:"string_column_tokens"`
	// FactFilePattern is the regex for the normalized dataset naming convention.
	FactFilePattern string `yaml:"fact_file_pattern" json:"fact_file_pattern"`
}

// Entity returns the definition for an entity type.
func (n *NamingConventions) Entity(entityType string) (*EntityDefinition, bool) {
	for i := range n.Entities {
		if n.Entities[i].EntityType == entityType {
			return &n.Entities[i], true
		}
	}
	return nil, false
}

// ============================================================================
// Reference Entities
// ============================================================================

// ReferenceVariation is one distinct (description, source) pairing observed for a natural key.
type ReferenceVariation struct {
	Description   string            `json:"description"`
	SourceDataset string            `json:"source_dataset"`
	Secondary     map[string]string `json:"secondary,omitempty"`
	RawRow        map[string]string `json:"raw_row,omitempty"`
	// Backfilled variations came from a dedicated lookup file rather than fact data.
	Backfilled bool `json:"backfilled,omitempty"`
}

// ReferenceEntity holds every variation observed for each natural key of an entity type.
// Keys preserves first-appearance order, which drives deterministic key assignment.
type ReferenceEntity struct {
	EntityType string                          `json:"entity_type"`
	Keys       []string                        `json:"keys"`
	Variations map[string][]ReferenceVariation `json:"variations"`
	// FactTables lists the fact tables that reference this entity, in discovery order.
	FactTables []string `json:"fact_tables,omitempty"`
}

// NewReferenceEntity creates an empty entity.
func NewReferenceEntity(entityType string) *ReferenceEntity {
	return &ReferenceEntity{
		EntityType: entityType,
		Variations: make(map[string][]ReferenceVariation),
	}
}

// Has reports whether any variation has been recorded for a natural key.
func (e *ReferenceEntity) Has(naturalKey string) bool {
	_, ok := e.Variations[naturalKey]
	return ok
}

// Append records a variation, tracking first appearance of the key.
func (e *ReferenceEntity) Append(naturalKey string, v ReferenceVariation) {
	if _, ok := e.Variations[naturalKey]; !ok {
		e.Keys = append(e.Keys, naturalKey)
	}
	e.Variations[naturalKey] = append(e.Variations[naturalKey], v)
}

// VariationCount returns the total number of variations across all keys.
func (e *ReferenceEntity) VariationCount() int {
	n := 0
	for _, vs := range e.Variations {
		n += len(vs)
	}
	return n
}
