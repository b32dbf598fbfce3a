package scheduler

import (
	"testing"
	"time"

	"github.com/wfunc/roundtable/models"
)

func actions(now time.Time, participants ...uint) []models.Action {
	out := make([]models.Action, len(participants))
	for i, p := range participants {
		out[i] = models.Action{ID: uint(i + 1), ParticipantID: p, CreatedAt: now.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func TestShouldResolve(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := New(1, 300*time.Second)

	tests := []struct {
		name    string
		sched   Scheduler
		pending []models.Action
		roster  int
		force   bool
		now     time.Time
		want    bool
	}{
		{name: "force with empty queue", sched: s, roster: 3, force: true, now: now, want: true},
		{name: "empty queue", sched: s, roster: 3, now: now, want: false},
		{name: "single member roster", sched: s, pending: actions(now, 1), roster: 1, now: now, want: true},
		{name: "waiting for others", sched: s, pending: actions(now, 1), roster: 3, now: now.Add(time.Minute), want: false},
		{name: "same participant twice is not quorum", sched: s, pending: actions(now, 1, 1), roster: 2, now: now, want: false},
		{name: "quorum", sched: s, pending: actions(now, 1, 2, 3), roster: 3, now: now, want: true},
		{name: "timeout boundary", sched: s, pending: actions(now, 1), roster: 3, now: now.Add(300 * time.Second), want: true},
		{name: "just before timeout", sched: s, pending: actions(now, 1), roster: 3, now: now.Add(299 * time.Second), want: false},
		{name: "below minimum even at quorum", sched: New(2, time.Minute), pending: actions(now, 1), roster: 1, now: now.Add(time.Hour), want: false},
		{name: "roster shrank", sched: s, pending: actions(now, 1, 2), roster: 1, now: now, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.sched.ShouldResolve(tt.pending, tt.roster, tt.force, tt.now)
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNextDeadline(t *testing.T) {
	now := time.Now()
	s := New(1, 90*time.Second)

	if _, ok := s.NextDeadline(nil); ok {
		t.Fatal("Expected no deadline for an empty queue")
	}

	deadline, ok := s.NextDeadline(actions(now, 1, 2))
	if !ok {
		t.Fatal("Expected a deadline")
	}
	if !deadline.Equal(now.Add(90 * time.Second)) {
		t.Errorf("Expected deadline from the oldest action, got %v", deadline)
	}
}

func TestNew_ClampsMinimum(t *testing.T) {
	if s := New(0, time.Second); s.MinPlayersForRound != 1 {
		t.Errorf("Expected minimum clamped to 1, got %d", s.MinPlayersForRound)
	}
}
