package services

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// nullTokens are normalised to null before profiling.
var nullTokens = map[string]bool{
	"":     true,
	"nan":  true,
	"null": true,
	"none": true,
	"na":   true,
	"n/a":  true,
	"#n/a": true,
	"<na>": true,
	"nat":  true,
}

// booleanTokens is the fixed boolean vocabulary. 0/1 are deliberately absent:
// they read as Integer.
var booleanTokens = map[string]bool{
	"true": true, "false": true,
	"yes": true, "no": true,
	"t": true, "f": true,
	"y": true, "n": true,
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
	regexp.MustCompile(`^\d{4}-\d{2}$`),
	regexp.MustCompile(`^\d{4}-\d{4}$`),
	regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`),
}

// Type reasons recorded on the profile.
const (
	reasonNoValues     = "no non-null values"
	reasonNameOverride = "name override"
	reasonBoolean      = "boolean vocabulary"
	reasonGuard        = "identifier-shaped value"
	reasonInteger      = "32-bit integer"
	reasonFloat        = "decimal values"
	reasonYear         = "4-digit years"
	reasonDatePattern  = "date pattern"
	reasonFallback     = "mixed values"
)

// IsNullToken reports whether a raw cell value counts as null.
func IsNullToken(v string) bool {
	return nullTokens[strings.ToLower(strings.TrimSpace(v))]
}

// ColumnProfiler infers a semantic type and statistics for one column.
type ColumnProfiler interface {
	// Profile builds the full profile from raw sample values.
	Profile(name string, values []string) models.ColumnProfile

	// InferType applies the precedence rules and returns the type and the rule that decided it.
	// values must already have nulls removed.
	InferType(name string, values []string) (models.ColumnType, string)
}

type columnProfiler struct {
	stringTokens map[string]bool
	maxSamples   int
	logger       *zap.Logger
}

// NewColumnProfiler creates a profiler. Columns whose name contains any of
// stringTokens are always String.
func NewColumnProfiler(stringTokens []string, maxSamples int, logger *zap.Logger) ColumnProfiler {
	set := make(map[string]bool, len(stringTokens)*2)
	for _, t := range stringTokens {
		t = strings.ToLower(strings.TrimSpace(t))
		set[t] = true
		for _, nt := range nameTokens(t) {
			set[nt] = true
		}
	}
	if maxSamples < 1 {
		maxSamples = models.MaxProfileSampleValues
	}
	return &columnProfiler{
		stringTokens: set,
		maxSamples:   maxSamples,
		logger:       logger.Named("column-profiler"),
	}
}

func (p *columnProfiler) Profile(name string, values []string) models.ColumnProfile {
	profile := models.ColumnProfile{CSVName: name}

	nonNull := make([]string, 0, len(values))
	seen := make(map[string]bool)
	for _, raw := range values {
		if IsNullToken(raw) {
			profile.NullCount++
			continue
		}
		v := strings.TrimSpace(raw)
		nonNull = append(nonNull, v)
		if !seen[v] {
			seen[v] = true
			if len(profile.SampleValues) < p.maxSamples {
				profile.SampleValues = append(profile.SampleValues, v)
			}
		}
	}
	profile.NonNullCount = len(nonNull)
	profile.UniqueCount = len(seen)
	profile.Nullable = profile.NullCount > 0 || profile.NonNullCount == 0

	profile.InferredType, profile.TypeReason = p.InferType(name, nonNull)
	profile.Aggregation = defaultAggregation(name, profile.InferredType)
	if profile.SampleValues == nil {
		profile.SampleValues = []string{}
	}

	p.logger.Debug("Profiled column",
		zap.String("column", name),
		zap.String("type", string(profile.InferredType)),
		zap.String("reason", profile.TypeReason),
		zap.Int("non_null", profile.NonNullCount))

	return profile
}

func (p *columnProfiler) InferType(name string, values []string) (models.ColumnType, string) {
	if len(values) == 0 {
		return models.ColumnTypeString, reasonNoValues
	}

	if p.hasStringName(name) {
		return models.ColumnTypeString, reasonNameOverride
	}

	allBoolean := true
	for _, v := range values {
		if !isBooleanToken(v) {
			allBoolean = false
			if isIdentifierShaped(v) {
				return models.ColumnTypeString, reasonGuard
			}
		}
	}
	if allBoolean {
		return models.ColumnTypeBoolean, reasonBoolean
	}

	if allOf(values, isInt32) {
		return models.ColumnTypeInteger, reasonInteger
	}

	if allOf(values, isFloat) && anyOf(values, func(v string) bool { return strings.Contains(v, ".") }) {
		return models.ColumnTypeFloat, reasonFloat
	}

	if allOf(values, isYear) {
		return models.ColumnTypeDate, reasonYear
	}
	if allOf(values, matchesDatePattern) {
		return models.ColumnTypeDate, reasonDatePattern
	}

	return models.ColumnTypeString, reasonFallback
}

func (p *columnProfiler) hasStringName(name string) bool {
	for _, t := range nameTokens(name) {
		if p.stringTokens[t] {
			return true
		}
	}
	return p.stringTokens[normalizeName(name)]
}

func isBooleanToken(v string) bool {
	return booleanTokens[strings.ToLower(v)]
}

// isIdentifierShaped is the guard applied before numeric and date rules.
func isIdentifierShaped(v string) bool {
	s := strings.ReplaceAll(v, ",", "")
	allDigits := s != ""
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' || r == '-':
			allDigits = false
		default:
			// Letters, mixed alphanumerics and any other symbol.
			return true
		}
	}
	return allDigits && len(s) > 10
}

func isInt32(v string) bool {
	s := strings.ReplaceAll(v, ",", "")
	digits := strings.TrimPrefix(s, "-")
	if len(digits) > 1 && digits[0] == '0' {
		return false
	}
	_, err := strconv.ParseInt(s, 10, 32)
	return err == nil
}

func isFloat(v string) bool {
	_, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
	return err == nil
}

func isYear(v string) bool {
	if len(v) != 4 {
		return false
	}
	n, err := strconv.Atoi(v)
	return err == nil && n >= 1900 && n <= 2100
}

func matchesDatePattern(v string) bool {
	for _, re := range datePatterns {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}

// defaultAggregation picks the aggregation downstream code should use for a
// measure column. A name token such as "average" wins over the numeric default.
func defaultAggregation(name string, t models.ColumnType) models.Aggregation {
	if !t.IsNumeric() {
		return models.AggregationNone
	}
	for _, tok := range nameTokens(name) {
		if agg, ok := models.ParseAggregation(tok); ok {
			return agg
		}
	}
	return models.AggregationSum
}

func allOf(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

func anyOf(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if pred(v) {
			return true
		}
	}
	return false
}
