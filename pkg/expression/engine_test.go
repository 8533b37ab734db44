package expression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_EvaluateBool(t *testing.T) {
	e := NewEngine()
	e.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	entity := map[string]interface{}{
		"kind":        "fundraise",
		"name":        "Series A",
		"status":      "open",
		"probability": 40.0,
		"attributes":  map[string]interface{}{"deal_value": 2500000, "region": "EU"},
	}

	tests := []struct {
		name      string
		condition string
		expected  bool
		wantErr   bool
	}{
		{name: "Empty Is True", condition: "  ", expected: true},
		{name: "Kind Match", condition: "kind == 'fundraise'", expected: true},
		{name: "Attribute Threshold", condition: "attributes.deal_value > 1000000", expected: true},
		{name: "Attribute String", condition: "attributes.region in ['US', 'CA']", expected: false},
		{name: "Missing Attribute Coalesced", condition: "(attributes.board_seat ?? false) == true", expected: false},
		{name: "Undefined Variable Is Nil", condition: "owner == nil", expected: true},
		{name: "Today Function", condition: "TODAY() == '2026-03-01'", expected: true},
		{name: "Days Until", condition: "DAYS_UNTIL('2026-03-11') == 10", expected: true},
		{name: "Not Boolean", condition: "probability + 1", wantErr: true},
		{name: "Syntax Error", condition: "kind ==", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.EvaluateBool(tt.condition, entity)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEngine_ValidateCachesProgram(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Validate("status != 'lost'"))
	assert.Len(t, e.programCache, 1)

	require.NoError(t, e.Validate(""))
	assert.Len(t, e.programCache, 1)

	assert.Error(t, e.Validate("status !="))
}
