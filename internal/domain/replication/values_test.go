package replication

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommands(t *testing.T) {
	raw := []any{
		map[string]any{"op": "add", "values": map[string]any{"name": "Red"}},
		map[string]any{"op": "update", "id": float64(4), "values": map[string]any{"name": "Blue"}},
		map[string]any{"op": "remove", "id": float64(9)},
		map[string]any{"op": "set", "ids": []any{float64(1), float64(2)}},
		[]any{float64(0), float64(0), map[string]any{"name": "Green"}},
		[]any{float64(2), float64(7), false},
		map[string]any{"op": "combo", "items": []any{1}},
		"garbage",
	}

	cmds := DecodeCommands(raw)
	require.Len(t, cmds, 8)

	assert.Equal(t, AddLine{Values: Values{"name": "Red"}}, cmds[0])
	assert.Equal(t, UpdateLine{ID: 4, Values: Values{"name": "Blue"}}, cmds[1])
	assert.Equal(t, RemoveLine{ID: 9}, cmds[2])
	assert.Equal(t, LinkLines{IDs: []int64{1, 2}}, cmds[3])
	assert.Equal(t, AddLine{Values: Values{"name": "Green"}}, cmds[4])
	assert.Equal(t, RemoveLine{ID: 7}, cmds[5])
	assert.IsType(t, UnknownCommand{}, cmds[6])
	assert.IsType(t, UnknownCommand{}, cmds[7])
}

func TestToInt64(t *testing.T) {
	tests := []struct {
		name  string
		in    any
		want  int64
		valid bool
	}{
		{"int", 3, 3, true},
		{"int64", int64(5), 5, true},
		{"local id", LocalID(8), 8, true},
		{"integral float", float64(12), 12, true},
		{"fractional float", 1.5, 0, false},
		{"negative integral float", float64(-7), -7, true},
		{"float above int64 range", 1e19, 0, false},
		{"float at 2^63", float64(1 << 63), 0, false},
		{"float below int64 range", -1e19, 0, false},
		{"smallest int64 as float", float64(-(1 << 63)), -(1 << 63), true},
		{"positive infinity", math.Inf(1), 0, false},
		{"not a number", math.NaN(), 0, false},
		{"numeric string", " 42 ", 42, true},
		{"bool", true, 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToInt64(tt.in)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValues_Has(t *testing.T) {
	v := Values{"name": "  ", "active": false, "parent_id": nil, "qty": 0, "code": "A1"}

	assert.False(t, v.Has("name"))
	assert.False(t, v.Has("active"))
	assert.False(t, v.Has("parent_id"))
	assert.False(t, v.Has("missing"))
	assert.True(t, v.Has("qty"))
	assert.True(t, v.Has("code"))
}
