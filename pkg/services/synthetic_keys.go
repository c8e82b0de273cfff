package services

import (
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// Default synthetic key range: far above plausible natural codes and below the int32 maximum.
const (
	DefaultSyntheticKeySeed    int64 = 1_000_000_000
	DefaultSyntheticKeyCeiling int64 = math.MaxInt32
)

// SequenceGenerator mints synthetic keys for one run. It is strictly sequential
// and never returns a value equal to an observed natural key.
type SequenceGenerator struct {
	next     int64
	ceiling  int64
	reserved map[int64]bool
	issued   int
}

// NewSequenceGenerator creates a generator over [seed, ceiling]. Numeric natural
// keys in observed are skipped.
func NewSequenceGenerator(seed, ceiling int64, observed []string) (*SequenceGenerator, error) {
	if seed <= 0 || ceiling < seed {
		return nil, fmt.Errorf("invalid synthetic key range [%d, %d]", seed, ceiling)
	}
	reserved := make(map[int64]bool)
	for _, k := range observed {
		if n, err := strconv.ParseInt(k, 10, 64); err == nil && n >= seed && n <= ceiling {
			reserved[n] = true
		}
	}
	return &SequenceGenerator{next: seed, ceiling: ceiling, reserved: reserved}, nil
}

// Next returns the next key, or ErrSyntheticKeysExhausted once the ceiling is passed.
func (g *SequenceGenerator) Next() (int64, error) {
	for g.next <= g.ceiling && g.reserved[g.next] {
		g.next++
	}
	if g.next > g.ceiling {
		return 0, fmt.Errorf("%w: ceiling %d reached after %d keys", apperrors.ErrSyntheticKeysExhausted, g.ceiling, g.issued)
	}
	key := g.next
	g.next++
	g.issued++
	return key, nil
}

// Issued is the number of keys minted so far.
func (g *SequenceGenerator) Issued() int {
	return g.issued
}

// SyntheticKeyResolver assigns surrogate keys to conflicting variations.
type SyntheticKeyResolver interface {
	// Resolve fills AssignedKeys on every conflict in order and returns one
	// assignment per variation that received a surrogate.
	Resolve(conflicts []models.Conflict, gen *SequenceGenerator) ([]models.SyntheticKeyAssignment, error)
}

type syntheticKeyResolver struct {
	logger *zap.Logger
}

func NewSyntheticKeyResolver(logger *zap.Logger) SyntheticKeyResolver {
	return &syntheticKeyResolver{logger: logger.Named("synthetic-keys")}
}

func (r *syntheticKeyResolver) Resolve(conflicts []models.Conflict, gen *SequenceGenerator) ([]models.SyntheticKeyAssignment, error) {
	var assignments []models.SyntheticKeyAssignment

	for ci := range conflicts {
		c := &conflicts[ci]
		if c.AssignedKeys == nil {
			c.AssignedKeys = make(map[int]string, len(c.Variations))
		}
		if len(c.Clusters) != len(c.Variations) {
			c.Clusters = make([]int, len(c.Variations))
			for i := range c.Clusters {
				c.Clusters[i] = i
			}
		}

		clusterKeys := map[int]string{0: c.NaturalKey}
		for i, v := range c.Variations {
			cluster := c.Clusters[i]
			key, ok := clusterKeys[cluster]
			if !ok {
				n, err := gen.Next()
				if err != nil {
					return nil, fmt.Errorf("resolve %s %q: %w", c.EntityType, c.NaturalKey, err)
				}
				key = strconv.FormatInt(n, 10)
				clusterKeys[cluster] = key
			}
			c.AssignedKeys[i] = key
			if cluster == 0 {
				continue
			}
			assignments = append(assignments, models.SyntheticKeyAssignment{
				EntityType:    c.EntityType,
				NaturalKey:    c.NaturalKey,
				SyntheticKey:  key,
				Description:   v.Description,
				SourceDataset: v.SourceDataset,
			})
		}
	}

	r.logger.Info("Resolved conflicts",
		zap.Int("conflicts", len(conflicts)),
		zap.Int("synthetic_keys", gen.Issued()))

	return assignments, nil
}
