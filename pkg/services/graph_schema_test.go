package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/config"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

func positions(order []string) map[string]int {
	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	return pos
}

func TestGraphSchemaBuilder_Build(t *testing.T) {
	b := NewGraphSchemaBuilder(config.DefaultConventions(), zap.NewNop())

	area := entityWith("area", [3]string{"1", "Algeria", "p.csv"}, [3]string{"2", "Albania", "p.csv"})
	item := entityWith("item", [3]string{"15", "Wheat", "p.csv"})
	tables := []*models.TableSpec{
		{Name: "production", Role: models.TableRoleFact, ForeignKeys: []models.ForeignKeyBinding{{EntityType: "area"}, {EntityType: "item"}}},
		{Name: "trade", Role: models.TableRoleFact, ForeignKeys: []models.ForeignKeyBinding{{EntityType: "area"}}},
		{Name: "area_codes", Role: models.TableRoleReference, EntityType: "area"},
		{Name: "misc_lookup", Role: models.TableRoleReference},
	}
	synthetic := []models.SyntheticKeyAssignment{{EntityType: "area", NaturalKey: "1", SyntheticKey: "1000000000"}}
	rels := []models.CandidateRelationship{
		{FactTable: "trade", Type: "TRADES", SourceEntity: "area", TargetEntity: "item", Confidence: models.ConfidenceMedium},
		{FactTable: "production", Type: "PRODUCES", SourceEntity: "area", TargetEntity: "item", Confidence: models.ConfidenceHigh},
		{FactTable: "trade_2", Type: "TRADES", SourceEntity: "area", TargetEntity: "item", Confidence: models.ConfidenceHigh},
	}

	schema, err := b.Build(tables, []*models.ReferenceEntity{area, item}, synthetic, rels)
	require.NoError(t, err)

	require.Len(t, schema.Nodes, 2)
	assert.Equal(t, models.GraphNode{EntityType: "area", Role: models.EntityRoleEndpoint, KeyCount: 3}, schema.Nodes[0])

	require.Len(t, schema.Edges, 2)
	assert.Equal(t, "PRODUCES", schema.Edges[0].Type)
	assert.Equal(t, "TRADES", schema.Edges[1].Type)
	assert.Equal(t, []string{"trade", "trade_2"}, schema.Edges[1].FactTables)
	assert.Equal(t, models.ConfidenceHigh, schema.Edges[1].Confidence)

	require.Len(t, schema.LoadOrder, 6)
	pos := positions(schema.LoadOrder)
	assert.Less(t, pos["area_codes"], pos["entity:area"])
	assert.Less(t, pos["entity:area"], pos["production"])
	assert.Less(t, pos["entity:item"], pos["production"])
	assert.Less(t, pos["entity:area"], pos["trade"])
}

func TestGraphSchemaBuilder_Deterministic(t *testing.T) {
	b := NewGraphSchemaBuilder(config.DefaultConventions(), zap.NewNop())
	area := entityWith("area", [3]string{"1", "Algeria", "p.csv"})
	tables := []*models.TableSpec{
		{Name: "b", Role: models.TableRoleFact, ForeignKeys: []models.ForeignKeyBinding{{EntityType: "area"}}},
		{Name: "a", Role: models.TableRoleFact, ForeignKeys: []models.ForeignKeyBinding{{EntityType: "area"}}},
	}

	first, err := b.Build(tables, []*models.ReferenceEntity{area}, nil, nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := b.Build(tables, []*models.ReferenceEntity{area}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, first.LoadOrder, again.LoadOrder)
	}
}
