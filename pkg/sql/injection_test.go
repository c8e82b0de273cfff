package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckHeaderForInjection(t *testing.T) {
	tests := []struct {
		name            string
		header          string
		expectInjection bool
	}{
		{name: "plain header", header: "Area Code", expectInjection: false},
		{name: "parenthetical header", header: "Area Code (M49)", expectInjection: false},
		{name: "unit header", header: "Unit", expectInjection: false},
		{name: "classic tautology", header: "1' OR '1'='1", expectInjection: true},
		{name: "stacked drop", header: "x'; DROP TABLE area--", expectInjection: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckHeaderForInjection(4, tt.header)
			if !tt.expectInjection {
				assert.Nil(t, result)
				return
			}
			require.NotNil(t, result)
			assert.Equal(t, tt.header, result.Header)
			assert.Equal(t, 4, result.Position)
			assert.NotEmpty(t, result.Fingerprint)
		})
	}
}

func TestCheckHeaders(t *testing.T) {
	results := CheckHeaders([]string{"Area", "1' OR '1'='1", "Value"})
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Position)
}
