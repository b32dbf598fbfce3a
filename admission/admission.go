// admission/admission.go
package admission

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/wfunc/roundtable/config"
	"github.com/wfunc/roundtable/models"
)

var (
	// ErrRejected is wrapped by every rule violation.
	ErrRejected = errors.New("rejected")
	// ErrNearCapacity marks a strict inventory check that crossed the
	// encumbrance threshold without exceeding capacity.
	ErrNearCapacity = errors.New("near carrying capacity")
)

// Rejection carries the user-facing reason for a failed check.
type Rejection struct {
	Reason string
	cause  error
}

func (r *Rejection) Error() string { return r.Reason }

func (r *Rejection) Unwrap() []error {
	if r.cause != nil {
		return []error{ErrRejected, r.cause}
	}
	return []error{ErrRejected}
}

func reject(format string, args ...interface{}) error {
	return &Rejection{Reason: fmt.Sprintf(format, args...)}
}

// pointCosts 5e point-buy 花费表
var pointCosts = map[int]int{
	8: 0, 9: 1, 10: 2, 11: 3, 12: 4, 13: 5, 14: 7, 15: 9, 16: 12, 17: 15, 18: 19,
}

// Gate applies the character and action rules. It holds no state besides its
// configuration and is safe for concurrent use.
type Gate struct {
	rules            config.RulesConfig
	enforceTurnOrder bool
}

// DefaultRules are the rules used when no configuration is given.
func DefaultRules() config.RulesConfig {
	return config.RulesConfig{
		PointBuyMax:          27,
		StatMin:              8,
		StatMax:              15,
		CarryingCapacity:     15,
		EncumbranceThreshold: 0.9,
		DefaultHP:            20,
		MovementSpeed:        30,
	}
}

func NewGate(rules config.RulesConfig, enforceTurnOrder bool) *Gate {
	return &Gate{rules: rules, enforceTurnOrder: enforceTurnOrder}
}

func (g *Gate) Rules() config.RulesConfig { return g.rules }

// CheckStatAllocation validates a point-buy stat block.
func (g *Gate) CheckStatAllocation(stats map[string]int) error {
	for _, name := range models.StatNames {
		if _, ok := stats[name]; !ok {
			return reject("Missing stat: %s", name)
		}
	}

	known := make(map[string]bool, len(models.StatNames))
	for _, name := range models.StatNames {
		known[name] = true
	}
	var extra []string
	for name := range stats {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return reject("Unknown stat: %s", strings.Join(extra, ", "))
	}

	for _, name := range models.StatNames {
		value := stats[name]
		if value > g.rules.StatMax {
			return reject("%s exceeds maximum: %d (max: %d)", name, value, g.rules.StatMax)
		}
		if value < g.rules.StatMin {
			return reject("%s below minimum: %d (min: %d)", name, value, g.rules.StatMin)
		}
	}

	total := 0
	for _, name := range models.StatNames {
		value := stats[name]
		cost, ok := pointCosts[value]
		if !ok {
			return reject("%s has invalid value: %d (valid range: %d-%d)", name, value, g.rules.StatMin, g.rules.StatMax)
		}
		total += cost
	}

	if total > g.rules.PointBuyMax {
		return reject("Total points exceeded: %d/%d. Please redistribute your stat points.", total, g.rules.PointBuyMax)
	}
	return nil
}

// PointsUsed sums the point-buy cost of the block, ignoring values with no cost.
func PointsUsed(stats map[string]int) int {
	total := 0
	for _, name := range models.StatNames {
		total += pointCosts[stats[name]]
	}
	return total
}

// Modifier is the ability modifier for a score, rounded toward negative infinity.
func Modifier(value int) int {
	d := value - 10
	if d < 0 {
		return (d - 1) / 2
	}
	return d / 2
}

// CheckAction decides whether p may submit text against the snapshot.
func (g *Gate) CheckAction(p models.Participant, text string, snap models.Snapshot) error {
	if strings.TrimSpace(text) == "" {
		return reject("Action text cannot be empty")
	}
	if p.HP <= 0 {
		return reject("You are unconscious and cannot act!")
	}
	if g.enforceTurnOrder {
		if turn := snap.Session.CurrentTurn; turn != nil && *turn != p.ID {
			return reject("It's not your turn!")
		}
	}
	return nil
}

// Capacity is the carrying capacity in pounds.
func (g *Gate) Capacity(p models.Participant) float64 {
	return g.rules.CarryingCapacity * float64(p.Stats.Get(models.StatSTR, 10))
}

// CheckInventory checks that adding addedWeight keeps p within capacity.
// With strict set, crossing the encumbrance threshold is also rejected and
// the error matches ErrNearCapacity.
func (g *Gate) CheckInventory(p models.Participant, addedWeight float64, strict bool) error {
	capacity := g.Capacity(p)
	total := p.Inventory.Weight() + addedWeight

	if total > capacity {
		return reject("Inventory full: %.1f/%.1f lbs. Drop items first to add this item.", total, capacity)
	}
	if strict && total > capacity*g.rules.EncumbranceThreshold {
		return &Rejection{
			Reason: fmt.Sprintf("Warning: Adding this item would exceed %.0f%% capacity (%.1f/%.1f lbs). Consider dropping items.",
				g.rules.EncumbranceThreshold*100, total, capacity),
			cause: ErrNearCapacity,
		}
	}
	return nil
}

// CheckHPDelta validates a heal (delta added) or damage (delta subtracted).
func (g *Gate) CheckHPDelta(p models.Participant, delta int, healing bool) error {
	if healing {
		if p.HP+delta > p.MaxHP {
			return reject("Healing exceeds max HP: %d/%d", p.HP+delta, p.MaxHP)
		}
		return nil
	}
	deathAt := -p.Stats.Get(models.StatCON, 10)
	if next := p.HP - delta; next < deathAt {
		return reject("Damage would cause death: HP would go to %d (death at %d)", next, deathAt)
	}
	return nil
}

// CheckMovement rejects moves longer than the base speed.
func (g *Gate) CheckMovement(distance int) error {
	speed := g.rules.MovementSpeed
	if distance > speed {
		return reject("Movement exceeds your speed: %dft (max: %dft). Use dash action to move %dft total.", distance, speed, speed*2)
	}
	return nil
}
