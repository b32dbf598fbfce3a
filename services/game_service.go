// services/game_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wfunc/roundtable/logger"
	"github.com/wfunc/roundtable/models"
	"github.com/wfunc/roundtable/narrator"
	"github.com/wfunc/roundtable/persistence"
	"github.com/wfunc/roundtable/state"
)

const (
	defaultCampaign = "Campaign"
	defaultLocation = "Starting Location"
)

// StartRequest describes a new game opened by a DM.
type StartRequest struct {
	GuildID   string
	ChannelID string
	CreatedBy string
	Campaign  string
	Location  string
}

// GameService owns the game lifecycle around the round engine.
type GameService struct {
	store       persistence.Store
	machine     *state.Machine
	opener      narrator.Opener
	openTimeout time.Duration
	recentLogs  int
	now         func() time.Time
}

func NewGameService(store persistence.Store, machine *state.Machine, opener narrator.Opener, openTimeout time.Duration) *GameService {
	if machine == nil {
		machine = state.NewMachine()
	}
	if openTimeout <= 0 {
		openTimeout = 60 * time.Second
	}
	return &GameService{
		store:       store,
		machine:     machine,
		opener:      opener,
		openTimeout: openTimeout,
		recentLogs:  5,
		now:         time.Now,
	}
}

// StartGame creates an active game with its first session and logs the
// opening scene. The opening narrative is returned alongside the game.
func (s *GameService) StartGame(ctx context.Context, req StartRequest) (models.Game, string, error) {
	if req.ChannelID == "" || req.CreatedBy == "" {
		return models.Game{}, "", fmt.Errorf("%w: channel and creator are required", ErrInvalidArgument)
	}
	campaign := strings.TrimSpace(req.Campaign)
	if campaign == "" {
		campaign = defaultCampaign
	}
	location := strings.TrimSpace(req.Location)
	if location == "" {
		location = defaultLocation
	}

	game := models.Game{
		GuildID:      req.GuildID,
		ChannelID:    req.ChannelID,
		Name:         "Game in #" + req.ChannelID,
		Status:       models.StatusWaiting,
		Location:     location,
		CampaignName: campaign,
		CreatedBy:    req.CreatedBy,
	}
	game, err := s.machine.Transition(game, models.StatusActive)
	if err != nil {
		return models.Game{}, "", err
	}

	game, err = s.store.CreateGame(ctx, game, "Game started by DM. Campaign: "+campaign)
	if errors.Is(err, persistence.ErrConflict) {
		return models.Game{}, "", ErrGameExists
	}
	if err != nil {
		return models.Game{}, "", err
	}

	opening := s.opening(ctx, campaign, location)
	if _, err := s.store.AppendLog(ctx, game.ID, opening, models.LogNarrative); err != nil {
		return game, opening, err
	}
	logger.Log.Infof("Game %d started in channel %s by %s", game.ID, game.ChannelID, game.CreatedBy)
	return game, opening, nil
}

func (s *GameService) opening(ctx context.Context, campaign, location string) string {
	if s.opener == nil {
		return narrator.OpeningFallback(campaign, location)
	}
	ctx, cancel := context.WithTimeout(ctx, s.openTimeout)
	defer cancel()

	text, err := s.opener.Open(ctx, campaign, location)
	if err != nil || strings.TrimSpace(text) == "" {
		logger.Log.Warnf("Opening narrative unavailable, using fallback: %v", err)
		return narrator.OpeningFallback(campaign, location)
	}
	return text
}

func (s *GameService) PauseGame(ctx context.Context, channelID string) (models.Game, error) {
	return s.transition(ctx, channelID, models.StatusPaused, "", models.StatusActive)
}

func (s *GameService) ResumeGame(ctx context.Context, channelID string) (models.Game, error) {
	return s.transition(ctx, channelID, models.StatusActive, "", models.StatusPaused)
}

func (s *GameService) EndGame(ctx context.Context, channelID string) (models.Game, error) {
	return s.transition(ctx, channelID, models.StatusEnded, "Game ended by DM.", models.StatusActive, models.StatusPaused)
}

// transition finds the channel's game in one of from and moves it to to.
func (s *GameService) transition(ctx context.Context, channelID string, to models.GameStatus, systemLog string, from ...models.GameStatus) (models.Game, error) {
	game, err := s.findGame(ctx, channelID, from...)
	if err != nil {
		return models.Game{}, err
	}
	prev := game.Status
	next, err := s.machine.Transition(game, to)
	if err != nil {
		return game, err
	}
	err = s.store.SetGameStatus(ctx, game.ID, prev, to, systemLog)
	if errors.Is(err, persistence.ErrConflict) || errors.Is(err, persistence.ErrRecordNotFound) {
		// 状态已被其他请求修改
		return game, ErrNoGame
	}
	if err != nil {
		return game, err
	}
	logger.Log.Infof("Game %d: %s -> %s", game.ID, prev, to)
	return next, nil
}

func (s *GameService) SetLocation(ctx context.Context, channelID, location string) (models.Game, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return models.Game{}, fmt.Errorf("%w: location required", ErrInvalidArgument)
	}
	game, err := s.ActiveGameInChannel(ctx, channelID)
	if err != nil {
		return models.Game{}, err
	}
	if err := s.store.UpdateLocation(ctx, game.ID, location); err != nil {
		return game, err
	}
	game.Location = location
	return game, nil
}

func (s *GameService) AddEncounter(ctx context.Context, channelID, addedBy, description string) (models.Session, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return models.Session{}, fmt.Errorf("%w: encounter description required", ErrInvalidArgument)
	}
	game, err := s.ActiveGameInChannel(ctx, channelID)
	if err != nil {
		return models.Session{}, err
	}
	enc := models.Encounter{Description: description, AddedBy: addedBy, AddedAt: s.now()}
	return s.store.AddEncounter(ctx, game.ID, enc, "**Encounter added:** "+description)
}

func (s *GameService) ActiveGameInChannel(ctx context.Context, channelID string) (models.Game, error) {
	return s.findGame(ctx, channelID, models.StatusActive)
}

// GetState returns the snapshot of the channel's open game.
func (s *GameService) GetState(ctx context.Context, channelID string) (models.Snapshot, error) {
	game, err := s.findGame(ctx, channelID, models.StatusWaiting, models.StatusActive, models.StatusPaused)
	if err != nil {
		return models.Snapshot{}, err
	}
	snap := models.Snapshot{Game: game}
	if snap.Session, err = s.store.GetOrCreateSession(ctx, game.ID); err != nil {
		return snap, err
	}
	if snap.Roster, err = s.store.ListRoster(ctx, game.ID); err != nil {
		return snap, err
	}
	if snap.Pending, err = s.store.ListPendingActions(ctx, game.ID); err != nil {
		return snap, err
	}
	if snap.RecentLogs, err = s.store.RecentLogs(ctx, game.ID, s.recentLogs); err != nil {
		return snap, err
	}
	return snap, nil
}

func (s *GameService) findGame(ctx context.Context, channelID string, statuses ...models.GameStatus) (models.Game, error) {
	game, err := s.store.FindGameByChannel(ctx, channelID, statuses...)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return models.Game{}, ErrNoGame
	}
	return game, err
}
