// engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/wfunc/roundtable/admission"
	"github.com/wfunc/roundtable/logger"
	"github.com/wfunc/roundtable/models"
	"github.com/wfunc/roundtable/monitor"
	"github.com/wfunc/roundtable/narrator"
	"github.com/wfunc/roundtable/persistence"
	"github.com/wfunc/roundtable/scheduler"
	"github.com/wfunc/roundtable/timer"
)

// Store is the slice of persistence the engine needs.
type Store interface {
	GetGame(ctx context.Context, gameID uint) (models.Game, error)
	GetOrCreateSession(ctx context.Context, gameID uint) (models.Session, error)
	ListRoster(ctx context.Context, gameID uint) ([]models.Participant, error)
	ListPendingActions(ctx context.Context, gameID uint) ([]models.Action, error)
	RecentLogs(ctx context.Context, gameID uint, limit int) ([]models.LogEntry, error)
	GetPlayer(ctx context.Context, playerID uint) (models.Participant, error)
	InsertAction(ctx context.Context, action models.Action) (models.Action, error)
	AddToRoster(ctx context.Context, gameID, playerID uint) (bool, error)
	ListActiveGames(ctx context.Context) ([]models.Game, error)
	CommitRound(ctx context.Context, commit persistence.RoundCommit) (models.Session, error)
}

// Announcer is told about every committed round that produced a narrative.
type Announcer interface {
	AnnounceRound(game models.Game, round int, narrative string)
}

// Result describes a resolveRound call. Resolved is false when the game was
// not active or the scheduler declined; Narrative is empty when a forced
// round had no pending actions.
type Result struct {
	Resolved  bool
	Round     int
	NextRound int
	Narrative string
}

// Engine orchestrates rounds for every game. Resolutions of one game are
// serialized by a per-game token; different games proceed independently.
type Engine struct {
	store     Store
	gate      *admission.Gate
	scheduler scheduler.Scheduler

	narrator         narrator.Narrator
	narratorTimeout  time.Duration
	announcer        Announcer
	monitor          *monitor.Monitor
	timers           *timer.Manager
	recentLogLimit   int
	resolveOnEnqueue bool
	now              func() time.Time

	tokens sync.Map // gameID -> struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

type Option func(*Engine)

// WithNarrator sets the narrator. Without one every round uses the fallback.
func WithNarrator(n narrator.Narrator, timeout time.Duration) Option {
	return func(e *Engine) {
		e.narrator = n
		if timeout > 0 {
			e.narratorTimeout = timeout
		}
	}
}

func WithAnnouncer(a Announcer) Option {
	return func(e *Engine) { e.announcer = a }
}

func WithMonitor(m *monitor.Monitor) Option {
	return func(e *Engine) { e.monitor = m }
}

// WithDeadlineTimers arms a one-shot timer per game so timed-out rounds
// resolve without waiting for the next sweep.
func WithDeadlineTimers(m *timer.Manager) Option {
	return func(e *Engine) { e.timers = m }
}

func WithRecentLogLimit(n int) Option {
	return func(e *Engine) { e.recentLogLimit = n }
}

// WithResolveOnEnqueue makes every accepted action trigger a background
// resolution attempt.
func WithResolveOnEnqueue(enabled bool) Option {
	return func(e *Engine) { e.resolveOnEnqueue = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(store Store, gate *admission.Gate, sched scheduler.Scheduler, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		gate:            gate,
		scheduler:       sched,
		narratorTimeout: 60 * time.Second,
		recentLogLimit:  5,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// tryAcquire is a single atomic test-and-set on the game's token.
func (e *Engine) tryAcquire(gameID uint) bool {
	_, held := e.tokens.LoadOrStore(gameID, struct{}{})
	return !held
}

func (e *Engine) release(gameID uint) {
	e.tokens.Delete(gameID)
}

func storeErr(err error, format string, args ...interface{}) error {
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, fmt.Sprintf(format, args...), err)
}

// Snapshot loads the typed read view of a game.
func (e *Engine) Snapshot(ctx context.Context, gameID uint) (models.Snapshot, error) {
	var snap models.Snapshot
	var err error

	if snap.Game, err = e.store.GetGame(ctx, gameID); err != nil {
		return snap, storeErr(err, "game %d", gameID)
	}
	if snap.Session, err = e.store.GetOrCreateSession(ctx, gameID); err != nil {
		return snap, storeErr(err, "session for game %d", gameID)
	}
	if snap.Roster, err = e.store.ListRoster(ctx, gameID); err != nil {
		return snap, storeErr(err, "roster for game %d", gameID)
	}
	if snap.Pending, err = e.store.ListPendingActions(ctx, gameID); err != nil {
		return snap, storeErr(err, "pending actions for game %d", gameID)
	}
	if snap.RecentLogs, err = e.store.RecentLogs(ctx, gameID, e.recentLogLimit); err != nil {
		return snap, storeErr(err, "recent logs for game %d", gameID)
	}
	return snap, nil
}

// EnqueueAction admits and stores a participant's action for the game's next
// round.
func (e *Engine) EnqueueAction(ctx context.Context, gameID, participantID uint, text string) (models.Action, error) {
	snap, err := e.Snapshot(ctx, gameID)
	if err != nil {
		return models.Action{}, err
	}
	if snap.Game.Status != models.StatusActive {
		return models.Action{}, fmt.Errorf("%w: game %d is %s", ErrNotFound, gameID, snap.Game.Status)
	}

	participant, inRoster := snap.Member(participantID)
	if !inRoster {
		if participant, err = e.store.GetPlayer(ctx, participantID); err != nil {
			return models.Action{}, storeErr(err, "participant %d", participantID)
		}
	}

	if err := e.gate.CheckAction(participant, text, snap); err != nil {
		e.monitor.IncActionsRejected()
		return models.Action{}, err
	}

	if !inRoster {
		// 首次行动自动加入游戏
		if _, err := e.store.AddToRoster(ctx, gameID, participantID); err != nil {
			return models.Action{}, storeErr(err, "add participant %d to game %d", participantID, gameID)
		}
		logger.Log.Infof("participant %d joined game %d", participantID, gameID)
	}

	action, err := e.store.InsertAction(ctx, models.Action{
		GameID:        gameID,
		ParticipantID: participantID,
		Text:          text,
		CreatedAt:     e.now(),
	})
	if err != nil {
		return models.Action{}, storeErr(err, "insert action for game %d", gameID)
	}
	e.monitor.IncActionsEnqueued()

	pending := append(snap.Pending, action)
	e.armDeadline(gameID, pending)

	if e.resolveOnEnqueue {
		e.resolveAsync(gameID, "enqueue")
	}
	return action, nil
}

// ResolveRound attempts one round for the game. It never waits for another
// resolution: if one is in flight it returns ErrBusy at once.
func (e *Engine) ResolveRound(ctx context.Context, gameID uint, force bool) (Result, error) {
	if !e.tryAcquire(gameID) {
		e.monitor.IncBusy()
		logger.Log.Debugf("round already being processed for game %d", gameID)
		return Result{}, ErrBusy
	}
	defer e.release(gameID)

	snap, err := e.Snapshot(ctx, gameID)
	if err != nil {
		return Result{}, err
	}
	if snap.Game.Status != models.StatusActive {
		logger.Log.Debugf("game %d is %s, not resolving", gameID, snap.Game.Status)
		return Result{}, nil
	}
	if !e.scheduler.ShouldResolve(snap.Pending, len(snap.Roster), force, e.now()) {
		e.armDeadline(gameID, snap.Pending)
		return Result{}, nil
	}

	lines, err := e.actionLines(ctx, snap)
	if err != nil {
		return Result{}, err
	}

	// 无法归属的行动照常消费, 但不生成叙述
	var narrative string
	outcome := monitor.OutcomeEmpty
	if len(lines) > 0 {
		narrative, outcome = e.narrate(ctx, snap, lines)
	} else if len(snap.Pending) > 0 {
		logger.Log.Warnf("game %d round %d has %d action(s) but no known participants", gameID, snap.Session.RoundNumber, len(snap.Pending))
	}

	round := snap.Session.RoundNumber
	commit := persistence.RoundCommit{
		GameID:    gameID,
		Round:     round,
		ActionIDs: make([]uint, len(snap.Pending)),
	}
	for i, a := range snap.Pending {
		commit.ActionIDs[i] = a.ID
	}
	if narrative != "" {
		commit.NarrativeLog = narrator.RoundHeader(round, narrative)
	}

	session, err := e.store.CommitRound(ctx, commit)
	if err != nil {
		e.monitor.ObserveRound(monitor.OutcomeFailed)
		logger.Log.Errorf("commit round %d for game %d failed: %v", round, gameID, err)
		return Result{}, fmt.Errorf("%w: commit round %d of game %d: %w", ErrPersistence, round, gameID, err)
	}
	e.monitor.ObserveRound(outcome)
	logger.Log.Infof("game %d resolved round %d with %d action(s)", gameID, round, len(commit.ActionIDs))

	if e.announcer != nil && narrative != "" {
		e.announcer.AnnounceRound(snap.Game, round, narrative)
	}
	e.rearm(ctx, gameID)

	return Result{Resolved: true, Round: round, NextRound: session.RoundNumber, Narrative: narrative}, nil
}

// actionLines pairs pending actions with participant names in queue order.
// Participants outside the cached roster are looked up directly; actions of
// participants that no longer exist are consumed without narration.
func (e *Engine) actionLines(ctx context.Context, snap models.Snapshot) ([]models.ActionLine, error) {
	lines := make([]models.ActionLine, 0, len(snap.Pending))
	for _, a := range snap.Pending {
		p, ok := snap.Member(a.ParticipantID)
		if !ok {
			var err error
			p, err = e.store.GetPlayer(ctx, a.ParticipantID)
			if errors.Is(err, persistence.ErrRecordNotFound) {
				logger.Log.Warnf("player %d not found for action %d", a.ParticipantID, a.ID)
				continue
			}
			if err != nil {
				return nil, storeErr(err, "participant %d", a.ParticipantID)
			}
		}
		lines = append(lines, models.ActionLine{ParticipantName: p.Name, Text: a.Text})
	}
	return lines, nil
}

// narrate never fails: any narrator problem yields the fallback text.
func (e *Engine) narrate(ctx context.Context, snap models.Snapshot, lines []models.ActionLine) (string, string) {
	if e.narrator == nil {
		return narrator.Fallback(lines), monitor.OutcomeFallback
	}

	ctx, cancel := context.WithTimeout(ctx, e.narratorTimeout)
	defer cancel()

	start := time.Now()
	text, err := e.narrator.Generate(ctx, snap, lines)
	if err == nil && text == "" {
		err = narrator.ErrTooShort
	}
	if err != nil {
		reason := "unavailable"
		switch {
		case errors.Is(err, narrator.ErrTooShort):
			reason = "too_short"
		case errors.Is(err, context.DeadlineExceeded):
			reason = "timeout"
		}
		e.monitor.ObserveNarrator(time.Since(start), reason)
		logger.Log.Warnf("narrator failed for game %d, using fallback: %v", snap.Game.ID, err)
		return narrator.Fallback(lines), monitor.OutcomeFallback
	}
	e.monitor.ObserveNarrator(time.Since(start), "")
	return text, monitor.OutcomeNarrated
}

// ResolveAllActiveGames attempts a round for every ACTIVE game. A busy game
// is skipped; other failures are collected and returned once every game has
// been tried.
func (e *Engine) ResolveAllActiveGames(ctx context.Context) error {
	games, err := e.store.ListActiveGames(ctx)
	if err != nil {
		return fmt.Errorf("%w: list active games: %w", ErrPersistence, err)
	}
	e.monitor.SetActiveGames(len(games))

	var errs error
	for _, game := range games {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		if err := e.resolveSafely(ctx, game.ID); err != nil {
			logger.Log.Errorf("error processing game %d: %v", game.ID, err)
			errs = multierr.Append(errs, fmt.Errorf("game %d: %w", game.ID, err))
		}
	}
	return errs
}

func (e *Engine) resolveSafely(ctx context.Context, gameID uint) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	_, err = e.ResolveRound(ctx, gameID, false)
	if errors.Is(err, ErrBusy) {
		return nil
	}
	return err
}

func (e *Engine) resolveAsync(gameID uint, source string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		logger.Log.Debugf("engine closed, skipping %s resolution for game %d", source, gameID)
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.narratorTimeout+30*time.Second)
		defer cancel()
		if err := e.resolveSafely(ctx, gameID); err != nil {
			logger.Log.Errorf("%s resolution for game %d failed: %v", source, gameID, err)
		}
	}()
}

// armDeadline schedules a resolution attempt for when the oldest pending
// action times out. Deadlines already in the past are left to the sweeper.
func (e *Engine) armDeadline(gameID uint, pending []models.Action) {
	if e.timers == nil {
		return
	}
	deadline, ok := e.scheduler.NextDeadline(pending)
	if !ok || !deadline.After(e.now()) {
		return
	}
	e.timers.Schedule(gameID, deadline, func() {
		e.resolveAsync(gameID, "deadline")
	})
}

// rearm drops the game's deadline after a commit and arms a new one for any
// actions that arrived while the round was resolving.
func (e *Engine) rearm(ctx context.Context, gameID uint) {
	if e.timers == nil {
		return
	}
	e.timers.Cancel(gameID)
	pending, err := e.store.ListPendingActions(ctx, gameID)
	if err != nil {
		logger.Log.Warnf("reload pending actions for game %d: %v", gameID, err)
		return
	}
	e.armDeadline(gameID, pending)
}

// Wait blocks until background resolutions started by the engine finish.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close stops the engine from starting background resolutions and waits for
// the ones in flight. Direct ResolveRound calls keep working.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
}
