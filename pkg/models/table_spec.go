// Package models holds the data types shared across the ingest pipeline.
package models

// TableRole classifies a source file as a lookup table or a fact table.
type TableRole string

const (
	TableRoleReference TableRole = "reference"
	TableRoleFact      TableRole = "fact"
)

// MatchKind records how a foreign key column was matched to an entity.
type MatchKind string

const (
	MatchKindExact MatchKind = "exact"
	MatchKindFuzzy MatchKind = "fuzzy"
)

// ForeignKeyBinding binds a fact table column to a reference entity's natural key.
// Created by the foreign key mapper, consumed by the synthetic key resolver.
type ForeignKeyBinding struct {
	FactColumn          string    `json:"fact_column"`
	EntityType          string    `json:"entity_type"`
	MatchedEntityColumn string    `json:"matched_entity_column"`
	MatchKind           MatchKind `json:"match_kind"`
	// DescriptionColumn is the fact column carrying the entity's description, used to
	// disambiguate conflicting natural keys. Empty when the table has none.
	DescriptionColumn string `json:"description_column,omitempty"`
	ResolvedSurrogate bool   `json:"resolved_surrogate"`
}

// TableSpec describes one source file after profiling and classification.
// Columns keep source order; ColumnIndex maps csv names to positions.
type TableSpec struct {
	Name             string              `json:"name"`
	SourceIdentity   string              `json:"source_identity"`
	SourceFilePath   string              `json:"source_file_path"`
	Role             TableRole           `json:"role"`
	Columns          []ColumnProfile     `json:"columns"`
	PrimaryKeyColumn string              `json:"primary_key_column,omitempty"`
	ForeignKeys      []ForeignKeyBinding `json:"foreign_keys,omitempty"`
	ExcludedColumns  []string            `json:"excluded_columns,omitempty"`
	RowCount         int64               `json:"row_count"`
	// ReferenceScore is the first-column score computed by the table classifier.
	ReferenceScore int    `json:"reference_score"`
	EntityType     string `json:"entity_type,omitempty"` // Set for reference tables matched to a configured entity
}

// Column returns the profile for a csv column name.
func (t *TableSpec) Column(name string) (ColumnProfile, bool) {
	for _, c := range t.Columns {
		if c.CSVName == name {
			return c, true
		}
	}
	return ColumnProfile{}, false
}

// ColumnNames returns csv column names in source order.
func (t *TableSpec) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.CSVName
	}
	return names
}

// IsExcluded reports whether a column was dropped as a redundant description.
func (t *TableSpec) IsExcluded(name string) bool {
	for _, c := range t.ExcludedColumns {
		if c == name {
			return true
		}
	}
	return false
}

// ForeignKeyFor returns the binding for an entity type, if any.
func (t *TableSpec) ForeignKeyFor(entityType string) (*ForeignKeyBinding, bool) {
	for i := range t.ForeignKeys {
		if t.ForeignKeys[i].EntityType == entityType {
			return &t.ForeignKeys[i], true
		}
	}
	return nil, false
}

// OutputColumns returns the columns that survive into the relational schema:
// every source column except the excluded redundant descriptions.
func (t *TableSpec) OutputColumns() []ColumnProfile {
	out := make([]ColumnProfile, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !t.IsExcluded(c.CSVName) {
			out = append(out, c)
		}
	}
	return out
}
