package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToSQLName(t *testing.T) {
	tests := []struct {
		header   string
		position int
		expected string
	}{
		{"Area Code", 0, "area_code"},
		{"Area Code (M49)", 1, "area_code_m49"},
		{"  Item  ", 2, "item"},
		{"2019", 3, "col_2019"},
		{"Value", 4, "value_"},
		{"Year", 5, "year_"},
		{"%%%", 6, "column_7"},
		{"Élément", 7, "l_ment"},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToSQLName(tt.header, tt.position))
		})
	}
}

func TestToSQLNames_Deduplicates(t *testing.T) {
	names := ToSQLNames([]string{"Area Code", "Area-Code", "area code", "Area"})
	assert.Equal(t, []string{"area_code", "area_code_2", "area_code_3", "area"}, names)
}

func TestToTableName(t *testing.T) {
	assert.Equal(t, "trade_detailedtradematrix_e_all_data_normalized",
		ToTableName("Trade/Trade_DetailedTradeMatrix_E_All_Data_(Normalized).csv"))
	assert.Equal(t, "t_2020_prices", ToTableName("2020 Prices.csv"))
	assert.Equal(t, "table", ToTableName("___.csv"))
}
