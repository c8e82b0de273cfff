package services

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// referenceScoreThreshold is the score a table must exceed to be a reference table.
const referenceScoreThreshold = 1

// TableClassification is the outcome of classifying one file.
type TableClassification struct {
	Role             models.TableRole `json:"role"`
	PrimaryKeyColumn string           `json:"primary_key_column,omitempty"`
	Score            int              `json:"score"`
	Signals          []string         `json:"signals,omitempty"`
	FactByName       bool             `json:"fact_by_name,omitempty"`
}

// TableClassifier decides whether a file is a reference (lookup) table or a fact table.
type TableClassifier interface {
	Classify(identity string, columns []string, sample [][]string) TableClassification
}

type tableClassifier struct {
	factPattern *regexp.Regexp
	keyNames    map[string]bool
	profiler    ColumnProfiler
	logger      *zap.Logger
}

// NewTableClassifier creates a classifier for the given naming conventions.
func NewTableClassifier(conventions *models.NamingConventions, profiler ColumnProfiler, logger *zap.Logger) (TableClassifier, error) {
	pattern, err := regexp.Compile(conventions.FactFilePattern)
	if err != nil {
		return nil, fmt.Errorf("compile fact file pattern: %w", err)
	}
	keyNames := make(map[string]bool)
	for _, e := range conventions.Entities {
		for _, n := range e.PrimaryKeyNames {
			keyNames[normalizeName(n)] = true
		}
	}
	return &tableClassifier{
		factPattern: pattern,
		keyNames:    keyNames,
		profiler:    profiler,
		logger:      logger.Named("table-classifier"),
	}, nil
}

func (c *tableClassifier) Classify(identity string, columns []string, sample [][]string) TableClassification {
	if c.factPattern.MatchString(filepath.Base(identity)) {
		return TableClassification{Role: models.TableRoleFact, FactByName: true}
	}
	if len(columns) == 0 {
		return TableClassification{Role: models.TableRoleFact}
	}

	first := columns[0]
	var values []string
	for _, row := range sample {
		if len(row) == 0 || IsNullToken(row[0]) {
			continue
		}
		values = append(values, strings.TrimSpace(row[0]))
	}

	result := TableClassification{Role: models.TableRoleFact}
	add := func(signal string) {
		result.Score++
		result.Signals = append(result.Signals, signal)
	}

	if len(values) > 0 {
		v := values[0]
		n := utf8.RuneCountInString(v)
		if n < 5 {
			add("short value")
		}
		if n < 10 && strings.IndexFunc(v, unicode.IsDigit) >= 0 {
			add("short value with digit")
		}
		if isAllDigits(v) {
			add("numeric value")
		}
	}
	if strings.Contains(strings.ToLower(first), "code") {
		add("name contains code")
	}
	if c.keyNames[normalizeName(first)] || looksLikeForeignKeyName(first) {
		add("key-shaped name")
	}
	if len(values) > 0 {
		if t, _ := c.profiler.InferType(first, values); t == models.ColumnTypeInteger {
			add("integer values")
		}
	}
	if len(columns) < 4 {
		add("few columns")
	}

	if result.Score > referenceScoreThreshold {
		result.Role = models.TableRoleReference
		result.PrimaryKeyColumn = first
	}

	c.logger.Debug("Classified table",
		zap.String("source", identity),
		zap.String("role", string(result.Role)),
		zap.Int("score", result.Score),
		zap.Strings("signals", result.Signals))

	return result
}

func isAllDigits(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
