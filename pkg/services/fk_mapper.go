package services

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// EntityColumns describes where one configured entity appears in a table.
type EntityColumns struct {
	EntityType        string           `json:"entity_type"`
	KeyColumn         string           `json:"key_column"`
	MatchKind         models.MatchKind `json:"match_kind"`
	DescriptionColumn string           `json:"description_column,omitempty"`
	SecondaryColumns  []string         `json:"secondary_columns,omitempty"`
	// RedundantColumns are denormalised copies of the entity's descriptive data.
	RedundantColumns []string `json:"redundant_columns,omitempty"`
}

// ColumnMatch is the result of matching a table's columns against every entity.
type ColumnMatch struct {
	Entities  []EntityColumns `json:"entities"`
	Unmatched []string        `json:"unmatched,omitempty"`
}

// Entity returns the match for an entity type.
func (m ColumnMatch) Entity(entityType string) (EntityColumns, bool) {
	for _, e := range m.Entities {
		if e.EntityType == entityType {
			return e, true
		}
	}
	return EntityColumns{}, false
}

// ForeignKeyMapper binds table columns to configured reference entities.
type ForeignKeyMapper interface {
	// Match finds key, description and redundant columns for every entity present in columns.
	Match(columns []string) ColumnMatch

	// MapTable fills ForeignKeys and ExcludedColumns on a fact table, or EntityType on a
	// reference table, and returns warnings for key-shaped columns left unbound.
	MapTable(spec *models.TableSpec) []models.Warning
}

type entityNames struct {
	def         models.EntityDefinition
	keyNames    map[string]bool
	keyTokens   [][]string
	descNames   map[string]bool
	descTokens  [][]string
	secondNames map[string]bool
	otherTokens [][]string // description and secondary names
}

type fkMapper struct {
	entities     []entityNames
	descriptions map[string]bool // exact description names of every entity
	logger       *zap.Logger
}

// NewForeignKeyMapper creates a mapper for the given naming conventions.
func NewForeignKeyMapper(conventions *models.NamingConventions, logger *zap.Logger) ForeignKeyMapper {
	m := &fkMapper{
		descriptions: make(map[string]bool),
		logger:       logger.Named("fk-mapper"),
	}
	for _, def := range conventions.Entities {
		en := entityNames{
			def:         def,
			keyNames:    make(map[string]bool),
			descNames:   make(map[string]bool),
			secondNames: make(map[string]bool),
		}
		for _, n := range def.PrimaryKeyNames {
			en.keyNames[normalizeName(n)] = true
			en.keyTokens = append(en.keyTokens, nameTokens(n))
		}
		for _, n := range def.DescriptionNames {
			en.descNames[normalizeName(n)] = true
			en.descTokens = append(en.descTokens, nameTokens(n))
			en.otherTokens = append(en.otherTokens, nameTokens(n))
			m.descriptions[normalizeName(n)] = true
		}
		for _, n := range def.SecondaryNames {
			en.secondNames[normalizeName(n)] = true
			en.otherTokens = append(en.otherTokens, nameTokens(n))
		}
		m.entities = append(m.entities, en)
	}
	return m
}

func (m *fkMapper) Match(columns []string) ColumnMatch {
	tokens := make([]map[string]bool, len(columns))
	for i, c := range columns {
		tokens[i] = tokenSet(nameTokens(c))
	}

	claimed := make(map[int]bool)
	keyIndex := make(map[int]int) // entity index -> column index
	kinds := make(map[int]models.MatchKind)

	// Exact key names for every entity before any fuzzy match.
	for ei, en := range m.entities {
		for ci, c := range columns {
			if !claimed[ci] && en.keyNames[normalizeName(c)] {
				claimed[ci] = true
				keyIndex[ei] = ci
				kinds[ei] = models.MatchKindExact
				break
			}
		}
	}

	// Fuzzy: every token of a key name must be present; fewest extra tokens wins.
	for ei, en := range m.entities {
		if _, ok := keyIndex[ei]; ok {
			continue
		}
		best, bestExtra := -1, 0
		for ci, c := range columns {
			if claimed[ci] || m.descriptions[normalizeName(c)] {
				continue
			}
			for _, kt := range en.keyTokens {
				if ok, extra := containsAllTokens(tokens[ci], kt); ok && (best < 0 || extra < bestExtra) {
					best, bestExtra = ci, extra
				}
			}
		}
		if best >= 0 {
			claimed[best] = true
			keyIndex[ei] = best
			kinds[ei] = models.MatchKindFuzzy
		}
	}

	var result ColumnMatch
	redundant := make(map[int]bool)
	for ei, en := range m.entities {
		ki, ok := keyIndex[ei]
		if !ok {
			continue
		}
		ec := EntityColumns{
			EntityType: en.def.EntityType,
			KeyColumn:  columns[ki],
			MatchKind:  kinds[ei],
		}

		descIdx, descExtra := -1, 0
		for ci, c := range columns {
			if claimed[ci] {
				continue
			}
			name := normalizeName(c)
			switch {
			case en.descNames[name]:
				if descIdx < 0 || descExtra > 0 {
					descIdx, descExtra = ci, 0
				}
				ec.RedundantColumns = append(ec.RedundantColumns, c)
				redundant[ci] = true
			case en.secondNames[name]:
				ec.SecondaryColumns = append(ec.SecondaryColumns, c)
				ec.RedundantColumns = append(ec.RedundantColumns, c)
				redundant[ci] = true
			default:
				matchedDesc := false
				for _, dt := range en.descTokens {
					if ok, extra := containsAllTokens(tokens[ci], dt); ok {
						matchedDesc = true
						if !looksLikeForeignKeyName(c) && (descIdx < 0 || extra < descExtra) {
							descIdx, descExtra = ci, extra
						}
					}
				}
				matched := matchedDesc
				for _, ot := range en.otherTokens {
					if ok, _ := containsAllTokens(tokens[ci], ot); ok {
						matched = true
					}
				}
				if matched {
					ec.RedundantColumns = append(ec.RedundantColumns, c)
					redundant[ci] = true
				}
			}
		}
		if descIdx >= 0 {
			ec.DescriptionColumn = columns[descIdx]
		}
		result.Entities = append(result.Entities, ec)
	}

	for ci, c := range columns {
		if !claimed[ci] && !redundant[ci] && looksLikeForeignKeyName(c) {
			result.Unmatched = append(result.Unmatched, c)
		}
	}
	return result
}

func (m *fkMapper) MapTable(spec *models.TableSpec) []models.Warning {
	match := m.Match(spec.ColumnNames())

	if spec.Role == models.TableRoleReference {
		for _, ec := range match.Entities {
			if ec.KeyColumn == spec.PrimaryKeyColumn {
				spec.EntityType = ec.EntityType
				break
			}
		}
		return nil
	}

	spec.ForeignKeys = spec.ForeignKeys[:0]
	excluded := make(map[string]bool)
	keys := make(map[string]bool)
	for _, ec := range match.Entities {
		spec.ForeignKeys = append(spec.ForeignKeys, models.ForeignKeyBinding{
			FactColumn:          ec.KeyColumn,
			EntityType:          ec.EntityType,
			MatchedEntityColumn: m.entityKeyName(ec.EntityType),
			MatchKind:           ec.MatchKind,
			DescriptionColumn:   ec.DescriptionColumn,
		})
		keys[ec.KeyColumn] = true
		for _, c := range ec.RedundantColumns {
			excluded[c] = true
		}
	}

	spec.ExcludedColumns = nil
	for i := range spec.Columns {
		col := &spec.Columns[i]
		switch {
		case keys[col.CSVName]:
			col.Aggregation = models.AggregationNone
		case excluded[col.CSVName]:
			spec.ExcludedColumns = append(spec.ExcludedColumns, col.CSVName)
		}
	}

	warnings := make([]models.Warning, 0, len(match.Unmatched))
	for _, c := range match.Unmatched {
		warnings = append(warnings, models.Warning{
			Kind:   models.WarningUnmatchedForeignKey,
			Source: spec.SourceIdentity,
			Column: c,
			Detail: fmt.Sprintf("column %q looks like a reference but matches no configured entity", c),
		})
	}

	m.logger.Debug("Mapped foreign keys",
		zap.String("table", spec.Name),
		zap.Int("foreign_keys", len(spec.ForeignKeys)),
		zap.Int("excluded", len(spec.ExcludedColumns)),
		zap.Int("unmatched", len(match.Unmatched)))

	return warnings
}

// entityKeyName is the canonical primary-key column name of an entity.
func (m *fkMapper) entityKeyName(entityType string) string {
	for _, en := range m.entities {
		if en.def.EntityType == entityType && len(en.def.PrimaryKeyNames) > 0 {
			return en.def.PrimaryKeyNames[0]
		}
	}
	return ""
}

// sortedKeys is a small helper for deterministic iteration over string sets.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
