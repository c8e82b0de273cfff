package models

import "strings"

// ============================================================================
// Column Types
// ============================================================================

// ColumnType is the semantic type inferred for a source column.
type ColumnType string

const (
	ColumnTypeInteger ColumnType = "Integer"
	ColumnTypeFloat   ColumnType = "Float"
	ColumnTypeBoolean ColumnType = "Boolean"
	ColumnTypeDate    ColumnType = "Date"
	ColumnTypeString  ColumnType = "String"
)

// IsNumeric returns true for Integer and Float columns.
func (t ColumnType) IsNumeric() bool {
	return t == ColumnTypeInteger || t == ColumnTypeFloat
}

// MaxProfileSampleValues is the default number of distinct sample values kept on a profile.
const MaxProfileSampleValues = 5

// ============================================================================
// Column Profile
// ============================================================================

// ColumnProfile holds the inferred type and statistics for one source column.
// A profile is a pure function of the column name and the sampled values; it is
// never mutated after the profiler returns it.
type ColumnProfile struct {
	CSVName      string      `json:"csv_name"`
	SQLName      string      `json:"sql_name"`
	InferredType ColumnType  `json:"inferred_type"`
	Nullable     bool        `json:"nullable"`
	NullCount    int         `json:"null_count"`
	NonNullCount int         `json:"non_null_count"`
	UniqueCount  int         `json:"unique_count"`
	SampleValues []string    `json:"sample_values"`
	TypeReason   string      `json:"type_reason,omitempty"` // Which precedence rule decided the type
	Aggregation  Aggregation `json:"default_aggregation,omitempty"`
}

// ============================================================================
// Aggregations
// ============================================================================

// Aggregation is the closed set of aggregate functions the generated query layer
// may apply to a measure column.
type Aggregation string

const (
	AggregationNone  Aggregation = ""
	AggregationSum   Aggregation = "sum"
	AggregationAvg   Aggregation = "avg"
	AggregationMin   Aggregation = "min"
	AggregationMax   Aggregation = "max"
	AggregationCount Aggregation = "count"
)

// ParseAggregation maps a loosely written aggregation name to the closed enum.
// Returns false when the name is not recognised so callers can fall back explicitly.
func ParseAggregation(name string) (Aggregation, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sum", "total":
		return AggregationSum, true
	case "avg", "average", "mean":
		return AggregationAvg, true
	case "min", "minimum":
		return AggregationMin, true
	case "max", "maximum":
		return AggregationMax, true
	case "count", "n":
		return AggregationCount, true
	default:
		return AggregationNone, false
	}
}

// SQLFunction returns the SQL aggregate function for the aggregation.
func (a Aggregation) SQLFunction() string {
	switch a {
	case AggregationSum:
		return "SUM"
	case AggregationAvg:
		return "AVG"
	case AggregationMin:
		return "MIN"
	case AggregationMax:
		return "MAX"
	case AggregationCount:
		return "COUNT"
	case AggregationNone:
		return ""
	}
	return ""
}
