package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/wfunc/roundtable/models"
)

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// Guard may veto an otherwise legal transition.
type Guard func(game models.Game) bool

// 游戏状态机
type Machine struct {
	guards map[models.GameStatus]map[models.GameStatus]Guard // from -> to -> guard
	mutex  sync.RWMutex
}

func NewMachine() *Machine {
	return &Machine{guards: make(map[models.GameStatus]map[models.GameStatus]Guard)}
}

// Allowed reports whether the lifecycle permits moving from one status to
// another. The switch covers every status.
func Allowed(from, to models.GameStatus) bool {
	switch from {
	case models.StatusWaiting:
		return to == models.StatusActive
	case models.StatusActive:
		return to == models.StatusPaused || to == models.StatusEnded
	case models.StatusPaused:
		return to == models.StatusActive || to == models.StatusEnded
	case models.StatusEnded:
		return false
	default:
		return false
	}
}

// AddGuard attaches a condition to a legal transition.
func (m *Machine) AddGuard(from, to models.GameStatus, guard Guard) error {
	if !Allowed(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, from, to)
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.guards[from]; !exists {
		m.guards[from] = make(map[models.GameStatus]Guard)
	}
	m.guards[from][to] = guard
	return nil
}

// Transition returns game with its status moved to `to`, or
// ErrTransitionNotAllowed.
func (m *Machine) Transition(game models.Game, to models.GameStatus) (models.Game, error) {
	if !Allowed(game.Status, to) {
		return game, fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, game.Status, to)
	}

	m.mutex.RLock()
	guard := m.guards[game.Status][to]
	m.mutex.RUnlock()

	// 检查是否有转换条件
	if guard != nil && !guard(game) {
		return game, fmt.Errorf("%w: %s -> %s blocked", ErrTransitionNotAllowed, game.Status, to)
	}

	game.Status = to
	return game, nil
}
