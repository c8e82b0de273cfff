package models

import "sort"

// WarningKind is the recoverable error taxonomy attached to a run.
type WarningKind string

const (
	WarningUnreadableInput     WarningKind = "unreadable_input"
	WarningUnmatchedForeignKey WarningKind = "unmatched_foreign_key"
	WarningUnmatchedVariation  WarningKind = "unmatched_variation"
	WarningAmbiguousConflict   WarningKind = "ambiguous_conflict"
	WarningSuspiciousHeader    WarningKind = "suspicious_header"
	WarningCacheIgnored        WarningKind = "cache_ignored"
)

// Warning is a structured data-quality caveat surfaced to downstream generation.
type Warning struct {
	Kind   WarningKind `json:"kind"`
	Source string      `json:"source"`
	Column string      `json:"column,omitempty"`
	Detail string      `json:"detail"`
}

// UnmatchedVariation counts fact rows whose description matched none of the
// recorded variations for a conflicting natural key. Such rows stay bound to
// the canonical variation.
type UnmatchedVariation struct {
	FactTable   string  `json:"fact_table"`
	EntityType  string  `json:"entity_type"`
	NaturalKey  string  `json:"natural_key"`
	Description string  `json:"description"`
	RowCount    int64   `json:"row_count"`
	SampleRows  []int64 `json:"sample_rows,omitempty"`
}

// AuditReport is the user-visible record of everything the run recovered from.
type AuditReport struct {
	SkippedFiles        []string                 `json:"skipped_files"`
	CachedFiles         []string                 `json:"cached_files,omitempty"`
	UnmatchedColumns    []Warning                `json:"unmatched_columns"`
	UnmatchedVariations []UnmatchedVariation     `json:"unmatched_variations"`
	SyntheticKeys       []SyntheticKeyAssignment `json:"synthetic_keys"`
	Warnings            []Warning                `json:"warnings"`
}

// Sort orders every list so serialized reports are stable.
func (a *AuditReport) Sort() {
	sort.Strings(a.SkippedFiles)
	sort.Strings(a.CachedFiles)
	sortWarnings(a.UnmatchedColumns)
	sortWarnings(a.Warnings)
	sort.SliceStable(a.UnmatchedVariations, func(i, j int) bool {
		x, y := a.UnmatchedVariations[i], a.UnmatchedVariations[j]
		if x.FactTable != y.FactTable {
			return x.FactTable < y.FactTable
		}
		if x.EntityType != y.EntityType {
			return x.EntityType < y.EntityType
		}
		if x.NaturalKey != y.NaturalKey {
			return x.NaturalKey < y.NaturalKey
		}
		return x.Description < y.Description
	})
}

func sortWarnings(ws []Warning) {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].Source != ws[j].Source {
			return ws[i].Source < ws[j].Source
		}
		if ws[i].Kind != ws[j].Kind {
			return ws[i].Kind < ws[j].Kind
		}
		if ws[i].Column != ws[j].Column {
			return ws[i].Column < ws[j].Column
		}
		return ws[i].Detail < ws[j].Detail
	})
}
