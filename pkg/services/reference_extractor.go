package services

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// EntityObservation is one distinct variation seen in a single file.
type EntityObservation struct {
	NaturalKey string                    `json:"natural_key"`
	Variation  models.ReferenceVariation `json:"variation"`
}

// EntityObservations are the observations of one entity type in one file, in
// first-appearance order.
type EntityObservations struct {
	EntityType string              `json:"entity_type"`
	Items      []EntityObservation `json:"items"`
}

// ExtractedFile is the extractor input for one analysed file.
type ExtractedFile struct {
	Identity     string
	Table        string
	Role         models.TableRole
	Observations []EntityObservations
}

// ReferenceExtractor consolidates reference rows for every configured entity.
type ReferenceExtractor interface {
	// NewCollector returns a collector for one file. Only entities present in match are collected.
	NewCollector(identity string, match ColumnMatch) *ObservationCollector

	// Merge unions fact-file observations in the given order, then backfills
	// keys that no fact file uses from reference files.
	Merge(files []ExtractedFile) []*models.ReferenceEntity
}

type referenceExtractor struct {
	conventions *models.NamingConventions
	logger      *zap.Logger
}

func NewReferenceExtractor(conventions *models.NamingConventions, logger *zap.Logger) ReferenceExtractor {
	return &referenceExtractor{
		conventions: conventions,
		logger:      logger.Named("reference-extractor"),
	}
}

// ============================================================================
// Per-file collection
// ============================================================================

type entityCollector struct {
	columns    EntityColumns
	formatting models.ValueFormatting
	seen       map[string]bool
	items      []EntityObservation
}

// ObservationCollector records distinct (key, description, secondary) tuples
// for one file. It is not safe for concurrent use.
type ObservationCollector struct {
	identity   string
	collectors []*entityCollector
}

func (e *referenceExtractor) NewCollector(identity string, match ColumnMatch) *ObservationCollector {
	oc := &ObservationCollector{identity: identity}
	for _, ec := range match.Entities {
		def, ok := e.conventions.Entity(ec.EntityType)
		if !ok {
			continue
		}
		oc.collectors = append(oc.collectors, &entityCollector{
			columns:    ec,
			formatting: def.Formatting,
			seen:       make(map[string]bool),
		})
	}
	return oc
}

// Add records the row's values for every matched entity.
func (oc *ObservationCollector) Add(row models.Row) {
	for _, c := range oc.collectors {
		raw := row.Get(c.columns.KeyColumn)
		if IsNullToken(raw) {
			continue
		}
		key := FormatKey(c.formatting, raw)
		if key == "" {
			continue
		}

		desc := ""
		if c.columns.DescriptionColumn != "" {
			desc = row.Get(c.columns.DescriptionColumn)
		}

		var secondary map[string]string
		for _, col := range c.columns.SecondaryColumns {
			if secondary == nil {
				secondary = make(map[string]string, len(c.columns.SecondaryColumns))
			}
			secondary[col] = row.Get(col)
		}

		dedup := variationKey(key, desc, c.columns.SecondaryColumns, secondary)
		if c.seen[dedup] {
			continue
		}
		c.seen[dedup] = true

		rawRow := map[string]string{c.columns.KeyColumn: raw}
		if c.columns.DescriptionColumn != "" {
			rawRow[c.columns.DescriptionColumn] = desc
		}
		for col, v := range secondary {
			rawRow[col] = v
		}

		c.items = append(c.items, EntityObservation{
			NaturalKey: key,
			Variation: models.ReferenceVariation{
				Description:   desc,
				SourceDataset: oc.identity,
				Secondary:     secondary,
				RawRow:        rawRow,
			},
		})
	}
}

// Result returns the collected observations per entity.
func (oc *ObservationCollector) Result() []EntityObservations {
	out := make([]EntityObservations, 0, len(oc.collectors))
	for _, c := range oc.collectors {
		out = append(out, EntityObservations{EntityType: c.columns.EntityType, Items: c.items})
	}
	return out
}

// variationKey is the dedup identity of a variation. Case and surrounding
// whitespace of the description are ignored; stored values keep them.
func variationKey(key, desc string, secondaryCols []string, secondary map[string]string) string {
	var b strings.Builder
	b.WriteString(key)
	b.WriteByte(0)
	b.WriteString(strings.ToLower(strings.TrimSpace(desc)))
	for _, col := range secondaryCols {
		b.WriteByte(0)
		b.WriteString(strings.ToLower(strings.TrimSpace(secondary[col])))
	}
	return b.String()
}

// FormatKey applies an entity's value formatting rules to a raw natural key.
func FormatKey(f models.ValueFormatting, raw string) string {
	v := raw
	if f.Trim {
		v = strings.TrimSpace(v)
	}
	if f.StripLeadingApostrophe {
		v = strings.TrimPrefix(v, "'")
	}
	if f.Uppercase {
		v = strings.ToUpper(v)
	}
	if f.ZeroPadWidth > 0 && len(v) < f.ZeroPadWidth && isAllDigits(v) {
		v = strings.Repeat("0", f.ZeroPadWidth-len(v)) + v
	}
	return v
}

// ============================================================================
// Merge
// ============================================================================

func (e *referenceExtractor) Merge(files []ExtractedFile) []*models.ReferenceEntity {
	entities := make(map[string]*models.ReferenceEntity)
	seen := make(map[string]map[string]bool)
	factKeys := make(map[string]map[string]bool)

	get := func(entityType string) *models.ReferenceEntity {
		if ent, ok := entities[entityType]; ok {
			return ent
		}
		ent := models.NewReferenceEntity(entityType)
		entities[entityType] = ent
		seen[entityType] = make(map[string]bool)
		factKeys[entityType] = make(map[string]bool)
		return ent
	}

	add := func(entityType string, obs EntityObservation, secondaryCols []string) bool {
		ent := get(entityType)
		dedup := variationKey(obs.NaturalKey, obs.Variation.Description, secondaryCols, obs.Variation.Secondary)
		if seen[entityType][dedup] {
			return false
		}
		seen[entityType][dedup] = true
		ent.Append(obs.NaturalKey, obs.Variation)
		return true
	}

	for _, f := range files {
		if f.Role != models.TableRoleFact {
			continue
		}
		for _, eo := range f.Observations {
			ent := get(eo.EntityType)
			ent.FactTables = appendUnique(ent.FactTables, f.Table)
			for _, obs := range eo.Items {
				add(eo.EntityType, obs, secondaryColumnsOf(obs.Variation))
				factKeys[eo.EntityType][obs.NaturalKey] = true
			}
		}
	}

	backfilled := 0
	for _, f := range files {
		if f.Role != models.TableRoleReference {
			continue
		}
		for _, eo := range f.Observations {
			get(eo.EntityType)
			for _, obs := range eo.Items {
				if factKeys[eo.EntityType][obs.NaturalKey] {
					continue
				}
				obs.Variation.Backfilled = true
				if add(eo.EntityType, obs, secondaryColumnsOf(obs.Variation)) {
					backfilled++
				}
			}
		}
	}

	var out []*models.ReferenceEntity
	for _, def := range e.conventions.Entities {
		if ent, ok := entities[def.EntityType]; ok && len(ent.Keys) > 0 {
			out = append(out, ent)
		}
	}

	e.logger.Info("Merged reference entities",
		zap.Int("entities", len(out)),
		zap.Int("backfilled_variations", backfilled))
	for _, ent := range out {
		e.logger.Debug("Reference entity",
			zap.String("entity_type", ent.EntityType),
			zap.Int("keys", len(ent.Keys)),
			zap.Int("variations", ent.VariationCount()),
			zap.String("fact_tables", fmt.Sprint(ent.FactTables)))
	}

	return out
}

// secondaryColumnsOf returns the secondary column names of a variation in a stable order.
func secondaryColumnsOf(v models.ReferenceVariation) []string {
	return sortedKeys(v.Secondary)
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}
