// persistence/interface.go
package persistence

import (
	"context"
	"errors"

	"github.com/wfunc/roundtable/models"
)

// Store 游戏状态存储接口
type Store interface {
	GetGame(ctx context.Context, gameID uint) (models.Game, error)
	// FindGameByChannel returns the newest game in the channel whose status is
	// one of statuses (any status when none are given).
	FindGameByChannel(ctx context.Context, channelID string, statuses ...models.GameStatus) (models.Game, error)
	// CreateGame inserts the game, its session and an optional system log in
	// one transaction. It fails with ErrConflict when the channel already has
	// an open game.
	CreateGame(ctx context.Context, game models.Game, systemLog string) (models.Game, error)
	// SetGameStatus moves the game from one status to another only if it is
	// still in from; the optional log is written in the same transaction.
	SetGameStatus(ctx context.Context, gameID uint, from, to models.GameStatus, systemLog string) error
	UpdateLocation(ctx context.Context, gameID uint, location string) error
	ListActiveGames(ctx context.Context) ([]models.Game, error)

	GetOrCreateSession(ctx context.Context, gameID uint) (models.Session, error)
	UpdateSession(ctx context.Context, gameID uint, update SessionUpdate) (models.Session, error)
	AddEncounter(ctx context.Context, gameID uint, encounter models.Encounter, combatLog string) (models.Session, error)

	ListRoster(ctx context.Context, gameID uint) ([]models.Participant, error)
	AddToRoster(ctx context.Context, gameID, playerID uint) (bool, error)

	GetPlayer(ctx context.Context, playerID uint) (models.Participant, error)
	GetPlayerByPlatformUser(ctx context.Context, platformUserID string) (models.Participant, error)
	CreatePlayer(ctx context.Context, player models.Participant) (models.Participant, error)
	// UpdatePlayer runs fn against a locked copy of the player and saves the
	// result; returning an error from fn aborts without writing.
	UpdatePlayer(ctx context.Context, playerID uint, fn func(*models.Participant) error) (models.Participant, error)

	InsertAction(ctx context.Context, action models.Action) (models.Action, error)
	// ListPendingActions is ordered by creation time ascending.
	ListPendingActions(ctx context.Context, gameID uint) ([]models.Action, error)
	MarkProcessed(ctx context.Context, gameID uint, actionIDs []uint) error

	AppendLog(ctx context.Context, gameID uint, message string, kind models.LogKind) (models.LogEntry, error)
	// RecentLogs returns up to limit entries, newest first.
	RecentLogs(ctx context.Context, gameID uint, limit int) ([]models.LogEntry, error)

	// CommitRound applies a resolved round atomically.
	CommitRound(ctx context.Context, commit RoundCommit) (models.Session, error)

	Close() error
}

// SessionUpdate lists the session fields to change; nil fields are left alone.
type SessionUpdate struct {
	RoundNumber *int
	CurrentTurn *uint
	ClearTurn   bool
	Encounters  []models.Encounter
}

// RoundCommit is the single state transition written when a round resolves.
type RoundCommit struct {
	GameID uint
	// Round is the round number being resolved; the commit fails with
	// ErrStaleRound if the session has already moved past it.
	Round     int
	ActionIDs []uint
	// NarrativeLog is appended as a narrative entry when non-empty.
	NarrativeLog string
}

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrConflict       = errors.New("conflicting record")
	ErrStaleRound     = errors.New("round state changed during resolution")
	ErrRoundRegressed = errors.New("round number cannot decrease")
)
