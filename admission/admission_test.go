package admission

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wfunc/roundtable/models"
)

func validStats() map[string]int {
	return map[string]int{"STR": 15, "DEX": 14, "CON": 13, "INT": 12, "WIS": 10, "CHA": 8}
}

func TestCheckStatAllocation(t *testing.T) {
	gate := NewGate(DefaultRules(), false)

	tests := []struct {
		name    string
		mutate  func(map[string]int)
		wantMsg string
	}{
		{name: "valid", mutate: func(map[string]int) {}},
		{name: "missing", mutate: func(s map[string]int) { delete(s, "CON") }, wantMsg: "Missing stat: CON"},
		{name: "too high", mutate: func(s map[string]int) { s["STR"] = 16 }, wantMsg: "STR exceeds maximum: 16 (max: 15)"},
		{name: "too low", mutate: func(s map[string]int) { s["CHA"] = 7 }, wantMsg: "CHA below minimum: 7 (min: 8)"},
		{name: "unknown", mutate: func(s map[string]int) { s["LUCK"] = 10 }, wantMsg: "Unknown stat: LUCK"},
		{
			name:    "over budget",
			mutate:  func(s map[string]int) { s["WIS"] = 15; s["CHA"] = 15 },
			wantMsg: "Total points exceeded: 43/27",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := validStats()
			tt.mutate(stats)
			err := gate.CheckStatAllocation(stats)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrRejected)
			assert.True(t, strings.HasPrefix(err.Error(), tt.wantMsg), "got %q", err.Error())
		})
	}
}

func TestCheckStatAllocation_ExactBudget(t *testing.T) {
	gate := NewGate(DefaultRules(), false)
	// 9+9+9+0+0+0 = 27
	stats := map[string]int{"STR": 15, "DEX": 15, "CON": 15, "INT": 8, "WIS": 8, "CHA": 8}
	assert.NoError(t, gate.CheckStatAllocation(stats))
	assert.Equal(t, 27, PointsUsed(stats))
}

func TestCheckStatAllocation_InvalidValueOutsideCostTable(t *testing.T) {
	rules := DefaultRules()
	rules.StatMin = 6
	gate := NewGate(rules, false)

	stats := validStats()
	stats["INT"] = 7
	err := gate.CheckStatAllocation(stats)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "INT has invalid value: 7")
}

func TestModifier(t *testing.T) {
	cases := map[int]int{1: -5, 7: -2, 8: -1, 9: -1, 10: 0, 11: 0, 12: 1, 15: 2, 18: 4, 20: 5}
	for value, want := range cases {
		if got := Modifier(value); got != want {
			t.Errorf("Modifier(%d): expected %d, got %d", value, want, got)
		}
	}
}

func TestCheckAction(t *testing.T) {
	alive := models.Participant{ID: 1, HP: 5}
	other := uint(2)

	gate := NewGate(DefaultRules(), false)
	assert.NoError(t, gate.CheckAction(alive, "I search the room", models.Snapshot{}))

	err := gate.CheckAction(alive, "   ", models.Snapshot{})
	assert.ErrorIs(t, err, ErrRejected)

	err = gate.CheckAction(models.Participant{ID: 1, HP: 0}, "attack", models.Snapshot{})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, "You are unconscious and cannot act!", err.Error())

	snap := models.Snapshot{Session: models.Session{CurrentTurn: &other}}
	assert.NoError(t, gate.CheckAction(alive, "attack", snap), "turn order is not enforced by default")

	strict := NewGate(DefaultRules(), true)
	err = strict.CheckAction(alive, "attack", snap)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, "It's not your turn!", err.Error())

	mine := alive.ID
	assert.NoError(t, strict.CheckAction(alive, "attack", models.Snapshot{Session: models.Session{CurrentTurn: &mine}}))
	assert.NoError(t, strict.CheckAction(alive, "attack", models.Snapshot{}), "no current turn means anyone may act")
}

func TestCheckInventory(t *testing.T) {
	gate := NewGate(DefaultRules(), false)
	// STR 10 → capacity 150 lbs
	p := models.Participant{
		Stats:     models.Stats{"STR": 10},
		Inventory: models.Inventory{Items: []models.Item{{Name: "Chain mail", Weight: 55}, {Name: "Pack", Weight: 75}}},
	}

	assert.NoError(t, gate.CheckInventory(p, 5, false))

	err := gate.CheckInventory(p, 30, false)
	assert.ErrorIs(t, err, ErrRejected)
	assert.False(t, errors.Is(err, ErrNearCapacity))
	assert.Contains(t, err.Error(), "Inventory full: 160.0/150.0 lbs")

	assert.NoError(t, gate.CheckInventory(p, 5, false), "non-strict checks ignore the encumbrance threshold")
	err = gate.CheckInventory(p, 10, true)
	assert.ErrorIs(t, err, ErrNearCapacity)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestCheckInventory_DefaultStrength(t *testing.T) {
	gate := NewGate(DefaultRules(), false)
	assert.Equal(t, 150.0, gate.Capacity(models.Participant{}))
}

func TestCheckHPDelta(t *testing.T) {
	gate := NewGate(DefaultRules(), false)
	p := models.Participant{HP: 10, MaxHP: 20, Stats: models.Stats{"CON": 12}}

	assert.NoError(t, gate.CheckHPDelta(p, 10, true))
	err := gate.CheckHPDelta(p, 11, true)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, "Healing exceeds max HP: 21/20", err.Error())

	assert.NoError(t, gate.CheckHPDelta(p, 22, false), "exactly -CON is still alive")
	err = gate.CheckHPDelta(p, 23, false)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, "Damage would cause death: HP would go to -13 (death at -12)", err.Error())
}

func TestCheckMovement(t *testing.T) {
	gate := NewGate(DefaultRules(), false)
	assert.NoError(t, gate.CheckMovement(30))
	err := gate.CheckMovement(45)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "Use dash action to move 60ft total.")
}
