package dice

import (
	"errors"
	"testing"
)

// fixed returns the given faces in order (1-based).
func fixed(faces ...int) Roller {
	i := 0
	return Roller{IntN: func(n int) int {
		f := faces[i%len(faces)]
		i++
		return f - 1
	}}
}

func TestRoll(t *testing.T) {
	tests := []struct {
		in          string
		faces       []int
		total       int
		explanation string
	}{
		{"2d6+3", []int{3, 5}, 11, "[3, 5] +3 = **11**"},
		{"d20", []int{17}, 17, "[17] = **17**"},
		{" 1D4-1 ", []int{1}, 0, "[1] -1 = **0**"},
		{"3d8", []int{8, 1, 4}, 13, "[8, 1, 4] = **13**"},
		{"1d6+1000", []int{6}, 1006, "[6] +1000 = **1006**"},
	}
	for _, tt := range tests {
		res, err := fixed(tt.faces...).Roll(tt.in)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tt.in, err)
		}
		if res.Total != tt.total {
			t.Errorf("%q: Expected total %d, got %d", tt.in, tt.total, res.Total)
		}
		if res.Explanation != tt.explanation {
			t.Errorf("%q: Expected %q, got %q", tt.in, tt.explanation, res.Explanation)
		}
	}
}

func TestRoll_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "2d", "0d6", "101d6", "1d1", "1d101", "2d6+x",
		"1d6+99999999999999999999", "99999999999999999999d6", "1d99999999999999999999", "1d6+1001", "1d6-1001"} {
		if _, err := Roll(in); !errors.Is(err, ErrInvalidNotation) {
			t.Errorf("%q: Expected ErrInvalidNotation, got %v", in, err)
		}
	}
}

func TestRoll_Range(t *testing.T) {
	for i := 0; i < 200; i++ {
		res, err := Roll("4d6")
		if err != nil {
			t.Fatal(err)
		}
		if res.Total < 4 || res.Total > 24 {
			t.Fatalf("Expected total in [4, 24], got %d", res.Total)
		}
	}
}

func TestAbilityCheck(t *testing.T) {
	res := fixed(12).AbilityCheck(3)
	if res.Total != 15 || res.Explanation != "d20: **12** +3 = **15**" {
		t.Errorf("Expected 15 with explanation, got %d %q", res.Total, res.Explanation)
	}
	res = fixed(1).AbilityCheck(-1)
	if res.Explanation != "d20: **1** -1 = **0**" {
		t.Errorf("Expected negative modifier rendering, got %q", res.Explanation)
	}
}
