package services

import (
	"fmt"
	"sort"

	"github.com/yourbasic/graph"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// entityNodePrefix distinguishes consolidated entity tables from source tables in the load order.
const entityNodePrefix = "entity:"

// GraphSchemaBuilder derives the knowledge-graph schema and table load order.
type GraphSchemaBuilder interface {
	Build(tables []*models.TableSpec, entities []*models.ReferenceEntity, synthetic []models.SyntheticKeyAssignment, relationships []models.CandidateRelationship) (models.GraphSchema, error)
}

type graphSchemaBuilder struct {
	conventions *models.NamingConventions
	logger      *zap.Logger
}

func NewGraphSchemaBuilder(conventions *models.NamingConventions, logger *zap.Logger) GraphSchemaBuilder {
	return &graphSchemaBuilder{
		conventions: conventions,
		logger:      logger.Named("graph-schema"),
	}
}

func (b *graphSchemaBuilder) Build(
	tables []*models.TableSpec,
	entities []*models.ReferenceEntity,
	synthetic []models.SyntheticKeyAssignment,
	relationships []models.CandidateRelationship,
) (models.GraphSchema, error) {
	var schema models.GraphSchema

	extraKeys := make(map[string]map[string]bool)
	for _, a := range synthetic {
		if extraKeys[a.EntityType] == nil {
			extraKeys[a.EntityType] = make(map[string]bool)
		}
		extraKeys[a.EntityType][a.SyntheticKey] = true
	}
	for _, e := range entities {
		role := models.EntityRoleSecondary
		if def, ok := b.conventions.Entity(e.EntityType); ok {
			role = def.Role
		}
		schema.Nodes = append(schema.Nodes, models.GraphNode{
			EntityType: e.EntityType,
			Role:       role,
			KeyCount:   len(e.Keys) + len(extraKeys[e.EntityType]),
		})
	}
	sort.Slice(schema.Nodes, func(i, j int) bool { return schema.Nodes[i].EntityType < schema.Nodes[j].EntityType })

	schema.Edges = mergeEdges(relationships)

	order, err := b.loadOrder(tables, entities)
	if err != nil {
		return schema, err
	}
	schema.LoadOrder = order

	b.logger.Info("Built graph schema",
		zap.Int("nodes", len(schema.Nodes)),
		zap.Int("edges", len(schema.Edges)),
		zap.Int("tables", len(schema.LoadOrder)))

	return schema, nil
}

// mergeEdges collapses per-table relationships into one edge per (type, source, target).
func mergeEdges(relationships []models.CandidateRelationship) []models.GraphEdge {
	type edgeKey struct{ typ, source, target string }
	byKey := make(map[edgeKey]*models.GraphEdge)
	for _, r := range relationships {
		k := edgeKey{r.Type, r.SourceEntity, r.TargetEntity}
		e, ok := byKey[k]
		if !ok {
			e = &models.GraphEdge{Type: r.Type, SourceEntity: r.SourceEntity, TargetEntity: r.TargetEntity, Confidence: r.Confidence}
			byKey[k] = e
		}
		e.FactTables = appendUnique(e.FactTables, r.FactTable)
		if r.Confidence.Weight() > e.Confidence.Weight() {
			e.Confidence = r.Confidence
		}
	}

	edges := make([]models.GraphEdge, 0, len(byKey))
	for _, e := range byKey {
		sort.Strings(e.FactTables)
		edges = append(edges, *e)
	}
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.SourceEntity != b.SourceEntity {
			return a.SourceEntity < b.SourceEntity
		}
		if a.TargetEntity != b.TargetEntity {
			return a.TargetEntity < b.TargetEntity
		}
		return a.Type < b.Type
	})
	return edges
}

// loadOrder sorts tables so that every table is loaded after the tables it references:
// reference files feed entity tables, entity tables are referenced by fact tables.
func (b *graphSchemaBuilder) loadOrder(tables []*models.TableSpec, entities []*models.ReferenceEntity) ([]string, error) {
	var names []string
	for _, e := range entities {
		names = append(names, entityNodePrefix+e.EntityType)
	}
	for _, t := range tables {
		names = append(names, t.Name)
	}
	sort.Strings(names)

	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}

	g := graph.New(len(names))
	for _, t := range tables {
		switch t.Role {
		case models.TableRoleReference:
			if ei, ok := index[entityNodePrefix+t.EntityType]; ok && t.EntityType != "" {
				g.Add(index[t.Name], ei)
			}
		case models.TableRoleFact:
			for _, fk := range t.ForeignKeys {
				if ei, ok := index[entityNodePrefix+fk.EntityType]; ok {
					g.Add(ei, index[t.Name])
				}
			}
		}
	}

	order, ok := graph.TopSort(graph.Sort(g))
	if !ok {
		return nil, fmt.Errorf("table dependency graph has a cycle")
	}

	out := make([]string, len(order))
	for i, v := range order {
		out[i] = names[v]
	}
	return out, nil
}
