// scheduler/scheduler.go
package scheduler

import (
	"time"

	"github.com/wfunc/roundtable/models"
)

// Scheduler decides when a game's pending actions form a round. It is a pure
// function of its inputs.
type Scheduler struct {
	MinPlayersForRound int
	RoundTimeout       time.Duration
}

func New(minPlayers int, timeout time.Duration) Scheduler {
	if minPlayers < 1 {
		minPlayers = 1
	}
	return Scheduler{MinPlayersForRound: minPlayers, RoundTimeout: timeout}
}

// ShouldResolve applies, in order: force, empty queue, minimum action count,
// quorum of the current roster, and the timeout on the oldest pending action.
// pending must be ordered oldest first.
func (s Scheduler) ShouldResolve(pending []models.Action, rosterSize int, force bool, now time.Time) bool {
	if force {
		return true
	}
	if len(pending) == 0 {
		return false
	}
	if len(pending) < s.MinPlayersForRound {
		return false
	}
	if distinctParticipants(pending) >= rosterSize {
		return true
	}
	if deadline, ok := s.NextDeadline(pending); ok && !now.Before(deadline) {
		return true
	}
	return false
}

// NextDeadline is the moment the timeout rule fires for the queue.
func (s Scheduler) NextDeadline(pending []models.Action) (time.Time, bool) {
	if len(pending) == 0 {
		return time.Time{}, false
	}
	return pending[0].CreatedAt.Add(s.RoundTimeout), true
}

func distinctParticipants(pending []models.Action) int {
	seen := make(map[uint]struct{}, len(pending))
	for _, a := range pending {
		seen[a.ParticipantID] = struct{}{}
	}
	return len(seen)
}
