package services

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// ConflictReport holds the detector output for a set of entities.
type ConflictReport struct {
	Conflicts    []models.Conflict
	Similarities []models.SimilarityGroup
}

// ConflictDetector finds natural keys that map to more than one real-world entity.
type ConflictDetector interface {
	// Detect walks entities in the given order and keys in first-appearance order.
	Detect(entities []*models.ReferenceEntity) ConflictReport
}

type conflictDetector struct {
	matcher DescriptionMatcher
	logger  *zap.Logger
}

func NewConflictDetector(matcher DescriptionMatcher, logger *zap.Logger) ConflictDetector {
	return &conflictDetector{
		matcher: matcher,
		logger:  logger.Named("conflict-detector"),
	}
}

func (d *conflictDetector) Detect(entities []*models.ReferenceEntity) ConflictReport {
	var report ConflictReport

	for _, entity := range entities {
		conflicts, similar := 0, 0
		for _, key := range entity.Keys {
			var variations []models.ReferenceVariation
			var normalized []string
			for _, v := range entity.Variations[key] {
				n := NormalizeDescription(v.Description)
				if n == "" {
					continue
				}
				variations = append(variations, v)
				normalized = append(normalized, n)
			}
			if len(variations) < 2 {
				continue
			}

			if d.allSimilar(normalized) {
				if !distinctDescriptions(variations) {
					// Same description, different secondary values.
					continue
				}
				report.Similarities = append(report.Similarities, similarityGroup(entity.EntityType, key, variations))
				similar++
				continue
			}

			report.Conflicts = append(report.Conflicts, d.cluster(entity.EntityType, key, variations, normalized))
			conflicts++
		}

		if conflicts > 0 || similar > 0 {
			d.logger.Info("Detected description variations",
				zap.String("entity_type", entity.EntityType),
				zap.Int("conflicts", conflicts),
				zap.Int("similarities", similar))
		}
	}

	return report
}

func (d *conflictDetector) allSimilar(normalized []string) bool {
	for i := 0; i < len(normalized); i++ {
		for j := i + 1; j < len(normalized); j++ {
			if !d.matcher.SimilarNormalized(normalized[i], normalized[j]) {
				return false
			}
		}
	}
	return true
}

// cluster groups near-duplicate variations against the first member of each
// existing cluster. The cluster of variation 0 keeps the natural key.
func (d *conflictDetector) cluster(entityType, key string, variations []models.ReferenceVariation, normalized []string) models.Conflict {
	conflict := models.Conflict{
		EntityType:   entityType,
		NaturalKey:   key,
		Variations:   variations,
		AssignedKeys: make(map[int]string, len(variations)),
		Clusters:     make([]int, len(variations)),
	}

	var heads []int // index of the first member of each cluster
	for i := range variations {
		assigned := -1
		for c, head := range heads {
			if d.matcher.SimilarNormalized(normalized[head], normalized[i]) {
				assigned = c
				break
			}
		}
		if assigned < 0 {
			assigned = len(heads)
			heads = append(heads, i)
		}
		conflict.Clusters[i] = assigned
		if assigned == 0 {
			conflict.AssignedKeys[i] = key
		}
	}
	return conflict
}

func similarityGroup(entityType, key string, variations []models.ReferenceVariation) models.SimilarityGroup {
	g := models.SimilarityGroup{
		EntityType:           entityType,
		NaturalKey:           key,
		CanonicalDescription: variations[0].Description,
	}
	seenSource := make(map[string]bool)
	for _, v := range variations {
		g.Descriptions = append(g.Descriptions, v.Description)
		if !seenSource[v.SourceDataset] {
			seenSource[v.SourceDataset] = true
			g.Sources = append(g.Sources, v.SourceDataset)
		}
	}
	return g
}

func distinctDescriptions(variations []models.ReferenceVariation) bool {
	for _, v := range variations[1:] {
		if v.Description != variations[0].Description {
			return true
		}
	}
	return false
}
