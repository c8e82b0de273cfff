package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-ingest/pkg/config"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// TableScoringInput is one fact table with the reference items it uses.
type TableScoringInput struct {
	Table        *models.TableSpec
	Observations []EntityObservations
}

// RelationshipScorer classifies fact-table reference items into relationship archetypes.
type RelationshipScorer interface {
	// ScoreItem scores one item description in the context of a table name.
	ScoreItem(tableName, itemKey, description string) models.RelationshipTypeScore

	// ScoreTable produces the candidate relationships of one fact table.
	ScoreTable(in TableScoringInput) []models.CandidateRelationship

	// ScoreAll scores tables concurrently and returns candidates in input order.
	ScoreAll(ctx context.Context, inputs []TableScoringInput) ([]models.CandidateRelationship, error)
}

type relationshipScorer struct {
	cfg         config.ScoringConfig
	conventions *models.NamingConventions
	logger      *zap.Logger
}

func NewRelationshipScorer(cfg config.ScoringConfig, conventions *models.NamingConventions, logger *zap.Logger) RelationshipScorer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &relationshipScorer{
		cfg:         cfg,
		conventions: conventions,
		logger:      logger.Named("relationship-scorer"),
	}
}

func (s *relationshipScorer) ScoreItem(tableName, itemKey, description string) models.RelationshipTypeScore {
	table := strings.ToLower(tableName)
	words := tokenSet(append(strings.Fields(NormalizeDescription(description)), nameTokens(tableName)...))

	scores := make([]float64, len(archetypes))
	evidence := make([][]string, len(archetypes))
	for i, a := range archetypes {
		var score float64
		for _, p := range a.TablePatterns {
			if p.MatchString(table) {
				score += s.cfg.TableWeight
				evidence[i] = append(evidence[i], "table:"+p.String())
			}
		}
		for _, p := range a.ItemPatterns {
			if p.MatchString(description) {
				score += s.cfg.ItemWeight
				evidence[i] = append(evidence[i], "item:"+p.String())
			}
		}
		for _, w := range a.WeakWords {
			if words[w] {
				score += s.cfg.WeakWeight
				evidence[i] = append(evidence[i], "weak:"+w)
			}
		}
		for _, b := range a.Boosters {
			if b.table.MatchString(table) && b.item.MatchString(description) {
				score *= s.cfg.BoosterMultiplier
				evidence[i] = append(evidence[i], "booster")
				break
			}
		}
		scores[i] = score
	}

	generic := genericItem.MatchString(description)
	if generic {
		for i, a := range archetypes {
			if a.Type == models.RelationshipMeasures {
				scores[i] += s.cfg.GenericBoost
				evidence[i] = append(evidence[i], "generic")
			} else {
				scores[i] *= s.cfg.GenericDamping
			}
		}
	}

	best := -1
	for i, sc := range scores {
		if sc > 0 && (best < 0 || sc > scores[best]) {
			best = i
		}
	}

	result := models.RelationshipTypeScore{
		ItemKey:   itemKey,
		Item:      description,
		AllScores: make(map[string]float64),
	}
	for i, sc := range scores {
		if sc > 0 {
			result.AllScores[string(archetypes[i].Type)] = sc
		}
	}

	if best < 0 {
		result.Type = models.RelationshipMeasures
		result.Confidence = models.ConfidenceLow
		result.Evidence = []string{"fallback"}
		result.Properties = itemProperties(result.Type, description, generic)
		return result
	}

	var runnerUp float64
	for i, sc := range scores {
		if i != best && sc > runnerUp {
			runnerUp = sc
		}
	}

	result.Type = archetypes[best].Type
	result.Score = scores[best]
	result.Evidence = evidence[best]
	result.Confidence = s.confidence(scores[best], runnerUp)
	result.Properties = itemProperties(result.Type, description, generic)
	return result
}

func (s *relationshipScorer) confidence(top, runnerUp float64) models.Confidence {
	if top >= s.cfg.HighScore && (runnerUp == 0 || top >= s.cfg.HighRatio*runnerUp) {
		return models.ConfidenceHigh
	}
	if top >= s.cfg.MediumScore && (runnerUp == 0 || top >= s.cfg.MediumRatio*runnerUp) {
		return models.ConfidenceMedium
	}
	return models.ConfidenceLow
}

// groupConfidence thresholds the mean of per-item confidence weights.
func groupConfidence(items []models.RelationshipTypeScore) models.Confidence {
	if len(items) == 0 {
		return models.ConfidenceLow
	}
	var sum float64
	for _, it := range items {
		sum += it.Confidence.Weight()
	}
	mean := sum / float64(len(items))
	switch {
	case mean >= 2.5:
		return models.ConfidenceHigh
	case mean >= 1.5:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

type usableKey struct {
	entityType string
	role       models.EntityRole
}

func (s *relationshipScorer) ScoreTable(in TableScoringInput) []models.CandidateRelationship {
	spec := in.Table

	var usable []usableKey
	for _, fk := range spec.ForeignKeys {
		def, ok := s.conventions.Entity(fk.EntityType)
		if !ok || def.Role == models.EntityRoleIgnored {
			continue
		}
		usable = append(usable, usableKey{entityType: fk.EntityType, role: def.Role})
	}
	if len(usable) < 2 {
		return nil
	}

	has := func(entityType string) bool {
		for _, u := range usable {
			if u.entityType == entityType {
				return true
			}
		}
		return false
	}
	for _, sr := range s.conventions.SpecialRelationships {
		if has(sr.SourceEntity) && has(sr.TargetEntity) {
			return []models.CandidateRelationship{{
				FactTable:    spec.Name,
				Type:         sr.Type,
				SourceEntity: sr.SourceEntity,
				TargetEntity: sr.TargetEntity,
				Confidence:   models.ConfidenceHigh,
				Special:      true,
			}}
		}
	}

	var endpoints, secondaries []string
	for _, u := range usable {
		if u.role == models.EntityRoleEndpoint {
			endpoints = append(endpoints, u.entityType)
		} else {
			secondaries = append(secondaries, u.entityType)
		}
	}

	var source, target string
	switch {
	case len(endpoints) >= 2:
		source, target = endpoints[0], endpoints[1]
	case len(endpoints) == 1:
		source, target = endpoints[0], secondaries[0]
	default:
		source, target = secondaries[0], secondaries[1]
	}

	secondarySet := make(map[string]bool, len(secondaries))
	for _, e := range secondaries {
		secondarySet[e] = true
	}

	type scoredItem struct {
		score models.RelationshipTypeScore
		via   string
	}
	var items []scoredItem
	for _, eo := range in.Observations {
		if !secondarySet[eo.EntityType] {
			continue
		}
		seen := make(map[string]bool)
		for _, obs := range eo.Items {
			id := obs.NaturalKey + "\x00" + obs.Variation.Description
			if seen[id] || IsTrivialDescription(obs.Variation.Description) {
				continue
			}
			seen[id] = true
			items = append(items, scoredItem{
				score: s.ScoreItem(spec.Name, obs.NaturalKey, obs.Variation.Description),
				via:   eo.EntityType,
			})
		}
	}
	if len(items) == 0 {
		s.logger.Debug("No reference items to score", zap.String("table", spec.Name))
		return nil
	}

	var out []models.CandidateRelationship
	for _, a := range archetypes {
		var group []models.RelationshipTypeScore
		via := ""
		for _, it := range items {
			if it.score.Type != a.Type {
				continue
			}
			if via == "" {
				via = it.via
			}
			group = append(group, it.score)
		}
		if len(group) == 0 {
			continue
		}
		out = append(out, models.CandidateRelationship{
			FactTable:    spec.Name,
			Type:         string(a.Type),
			SourceEntity: source,
			TargetEntity: target,
			ViaEntity:    via,
			Confidence:   groupConfidence(group),
			Properties:   mergeProperties(a.Type, group),
			Items:        group,
		})
	}
	return out
}

func (s *relationshipScorer) ScoreAll(ctx context.Context, inputs []TableScoringInput) ([]models.CandidateRelationship, error) {
	results := make([][]models.CandidateRelationship, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.ScoreTable(inputs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("score relationships: %w", err)
	}

	var out []models.CandidateRelationship
	for _, r := range results {
		out = append(out, r...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FactTable != out[j].FactTable {
			return out[i].FactTable < out[j].FactTable
		}
		return false
	})

	s.logger.Info("Scored relationships",
		zap.Int("tables", len(inputs)),
		zap.Int("relationships", len(out)))

	return out, nil
}
