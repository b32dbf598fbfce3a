package models

import "testing"

func TestGameStatus_ValueScan(t *testing.T) {
	for _, status := range []GameStatus{StatusWaiting, StatusActive, StatusPaused, StatusEnded} {
		v, err := status.Value()
		if err != nil {
			t.Fatalf("Value(%v) returned error: %v", status, err)
		}

		var scanned GameStatus
		if err := scanned.Scan(v); err != nil {
			t.Fatalf("Scan(%v) returned error: %v", v, err)
		}
		if scanned != status {
			t.Errorf("Expected %v after scan, got %v", status, scanned)
		}
	}

	var s GameStatus
	if err := s.Scan([]byte("PAUSED")); err != nil || s != StatusPaused {
		t.Errorf("Expected byte scan to yield paused, got %v (err %v)", s, err)
	}
	if err := s.Scan("lost"); err == nil {
		t.Error("Expected an error scanning an unknown status")
	}
	if _, err := GameStatus(0).Value(); err == nil {
		t.Error("Expected an error for the zero status")
	}
}

func TestGameStatus_OpenAndTerminal(t *testing.T) {
	if !StatusPaused.Open() || StatusEnded.Open() {
		t.Error("Paused should occupy a channel and ended should not")
	}
	if !StatusEnded.Terminal() || StatusActive.Terminal() {
		t.Error("Only ended is terminal")
	}
}

func TestStats_StringCanonicalOrder(t *testing.T) {
	stats := Stats{"CHA": 13, "STR": 15, "DEX": 12}
	if got := stats.String(); got != "STR:15, DEX:12, CHA:13" {
		t.Errorf("Unexpected stats string: %s", got)
	}
	if stats.Get(StatCON, 10) != 10 {
		t.Error("Expected default for a missing stat")
	}
}

func TestInventory_Weight(t *testing.T) {
	inv := Inventory{Items: []Item{{Name: "rope", Weight: 10}, {Name: "torch", Weight: 1.5}}}
	if inv.Weight() != 11.5 {
		t.Errorf("Expected 11.5 lbs, got %v", inv.Weight())
	}
}

func TestSnapshot_Member(t *testing.T) {
	snap := Snapshot{Roster: []Participant{{ID: 1, Name: "Thorne"}}}
	if p, ok := snap.Member(1); !ok || p.Name != "Thorne" {
		t.Error("Expected to find Thorne in the roster")
	}
	if _, ok := snap.Member(2); ok {
		t.Error("Did not expect participant 2 in the roster")
	}
}
