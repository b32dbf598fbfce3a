// dice/dice.go
package dice

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
)

var ErrInvalidNotation = errors.New("invalid dice notation")

var notation = regexp.MustCompile(`^(\d*)d(\d+)([+-]\d+)?$`)

// MaxModifier bounds the flat modifier so totals stay small.
const MaxModifier = 1000

// Roller draws dice. IntN returns a value in [0, n).
type Roller struct {
	IntN func(n int) int
}

// Default uses the global math/rand source.
var Default = Roller{IntN: rand.IntN}

// Result of a roll.
type Result struct {
	Rolls       []int
	Modifier    int
	Total       int
	Explanation string
}

func Roll(s string) (Result, error) { return Default.Roll(s) }

func AbilityCheck(modifier int) Result { return Default.AbilityCheck(modifier) }

// Roll parses "NdS[+/-M]" (N defaults to 1) and rolls it.
func (r Roller) Roll(s string) (Result, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	m := notation.FindStringSubmatch(s)
	if m == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidNotation, s)
	}

	count, sides, mod := 1, 0, 0
	var err error
	if m[1] != "" {
		if count, err = strconv.Atoi(m[1]); err != nil {
			return Result{}, fmt.Errorf("%w: number of dice must be between 1 and 100, got: %s", ErrInvalidNotation, m[1])
		}
	}
	if sides, err = strconv.Atoi(m[2]); err != nil {
		return Result{}, fmt.Errorf("%w: die size must be between 2 and 100, got: %s", ErrInvalidNotation, m[2])
	}
	if m[3] != "" {
		mod, err = strconv.Atoi(m[3])
		if err != nil || mod < -MaxModifier || mod > MaxModifier {
			return Result{}, fmt.Errorf("%w: modifier must be between -%d and %d, got: %s", ErrInvalidNotation, MaxModifier, MaxModifier, m[3])
		}
	}

	if count < 1 || count > 100 {
		return Result{}, fmt.Errorf("%w: number of dice must be between 1 and 100, got: %d", ErrInvalidNotation, count)
	}
	if sides < 2 || sides > 100 {
		return Result{}, fmt.Errorf("%w: die size must be between 2 and 100, got: %d", ErrInvalidNotation, sides)
	}

	res := Result{Rolls: make([]int, count), Modifier: mod, Total: mod}
	parts := make([]string, count)
	for i := range res.Rolls {
		res.Rolls[i] = r.IntN(sides) + 1
		res.Total += res.Rolls[i]
		parts[i] = strconv.Itoa(res.Rolls[i])
	}
	res.Explanation = "[" + strings.Join(parts, ", ") + "]" + signed(mod) + fmt.Sprintf(" = **%d**", res.Total)
	return res, nil
}

// AbilityCheck rolls a d20 plus modifier.
func (r Roller) AbilityCheck(modifier int) Result {
	roll := r.IntN(20) + 1
	res := Result{Rolls: []int{roll}, Modifier: modifier, Total: roll + modifier}
	res.Explanation = fmt.Sprintf("d20: **%d**", roll) + signed(modifier) + fmt.Sprintf(" = **%d**", res.Total)
	return res
}

func signed(mod int) string {
	switch {
	case mod > 0:
		return fmt.Sprintf(" +%d", mod)
	case mod < 0:
		return fmt.Sprintf(" %d", mod)
	}
	return ""
}
