package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/roundtable/admission"
	"github.com/wfunc/roundtable/models"
	"github.com/wfunc/roundtable/narrator"
	"github.com/wfunc/roundtable/persistence"
	"github.com/wfunc/roundtable/state"
)

// MockOpener returns Text or Err for every opening.
type MockOpener struct {
	Text string
	Err  error
}

func (o *MockOpener) Open(ctx context.Context, campaign, location string) (string, error) {
	return o.Text, o.Err
}

func newStore(t *testing.T) *persistence.GormStore {
	t.Helper()
	store, err := persistence.OpenSQLite(filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var validStats = models.Stats{"STR": 15, "DEX": 14, "CON": 13, "INT": 12, "WIS": 10, "CHA": 8}

func TestStartGame(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc := NewGameService(store, state.NewMachine(), &MockOpener{Text: "Mist curls over Phandalin."}, time.Second)

	game, opening, err := svc.StartGame(ctx, StartRequest{GuildID: "g", ChannelID: "tavern", CreatedBy: "dm", Campaign: "Lost Mine"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, game.Status)
	assert.Equal(t, "Starting Location", game.Location)
	assert.Equal(t, "Mist curls over Phandalin.", opening)

	logs, err := store.RecentLogs(ctx, game.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.LogNarrative, logs[0].Kind)
	assert.Equal(t, "Game started by DM. Campaign: Lost Mine", logs[1].Message)

	sess, err := store.GetOrCreateSession(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.RoundNumber)

	_, _, err = svc.StartGame(ctx, StartRequest{ChannelID: "tavern", CreatedBy: "dm"})
	assert.ErrorIs(t, err, ErrGameExists)
}

func TestStartGame_OpeningFallback(t *testing.T) {
	store := newStore(t)
	svc := NewGameService(store, nil, &MockOpener{Err: narrator.ErrUnavailable}, time.Second)

	_, opening, err := svc.StartGame(context.Background(), StartRequest{ChannelID: "c", CreatedBy: "dm", Location: "Neverwinter"})
	require.NoError(t, err)
	assert.Equal(t, narrator.OpeningFallback("Campaign", "Neverwinter"), opening)
}

func TestGameLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc := NewGameService(store, nil, nil, 0)

	_, err := svc.PauseGame(ctx, "c")
	assert.ErrorIs(t, err, ErrNoGame)

	game, _, err := svc.StartGame(ctx, StartRequest{ChannelID: "c", CreatedBy: "dm"})
	require.NoError(t, err)

	paused, err := svc.PauseGame(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, paused.Status)

	_, err = svc.PauseGame(ctx, "c")
	assert.ErrorIs(t, err, ErrNoGame, "a paused game cannot be paused again")
	_, err = svc.ActiveGameInChannel(ctx, "c")
	assert.ErrorIs(t, err, ErrNoGame)

	resumed, err := svc.ResumeGame(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, resumed.Status)

	ended, err := svc.EndGame(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, models.StatusEnded, ended.Status)

	stored, err := store.GetGame(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEnded, stored.Status)

	_, err = svc.ResumeGame(ctx, "c")
	assert.ErrorIs(t, err, ErrNoGame)

	// the channel is free again
	_, _, err = svc.StartGame(ctx, StartRequest{ChannelID: "c", CreatedBy: "dm"})
	assert.NoError(t, err)
}

func TestGuardBlocksTransition(t *testing.T) {
	ctx := context.Background()
	machine := state.NewMachine()
	require.NoError(t, machine.AddGuard(models.StatusActive, models.StatusPaused, func(models.Game) bool { return false }))
	svc := NewGameService(newStore(t), machine, nil, 0)

	_, _, err := svc.StartGame(ctx, StartRequest{ChannelID: "c", CreatedBy: "dm"})
	require.NoError(t, err)
	_, err = svc.PauseGame(ctx, "c")
	assert.ErrorIs(t, err, state.ErrTransitionNotAllowed)
}

func TestLocationEncounterAndState(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc := NewGameService(store, nil, nil, 0)
	game, _, err := svc.StartGame(ctx, StartRequest{ChannelID: "c", CreatedBy: "dm"})
	require.NoError(t, err)

	_, err = svc.SetLocation(ctx, "c", "  ")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	updated, err := svc.SetLocation(ctx, "c", "Deep Forest")
	require.NoError(t, err)
	assert.Equal(t, "Deep Forest", updated.Location)

	_, err = svc.AddEncounter(ctx, "c", "dm", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	sess, err := svc.AddEncounter(ctx, "c", "dm", "3 goblins appear")
	require.NoError(t, err)
	require.Len(t, sess.Encounters, 1)
	assert.Equal(t, "3 goblins appear", sess.Encounters[0].Description)

	snap, err := svc.GetState(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, game.ID, snap.Game.ID)
	assert.Equal(t, "Deep Forest", snap.Game.Location)
	require.NotEmpty(t, snap.RecentLogs)
	assert.Equal(t, "**Encounter added:** 3 goblins appear", snap.RecentLogs[0].Message)
	assert.Equal(t, models.LogCombat, snap.RecentLogs[0].Kind)

	_, err = svc.GetState(ctx, "elsewhere")
	assert.ErrorIs(t, err, ErrNoGame)
}

func TestCreateCharacter(t *testing.T) {
	ctx := context.Background()
	svc := NewPlayerService(newStore(t), admission.NewGate(admission.DefaultRules(), false))

	p, err := svc.CreateCharacter(ctx, CharacterRequest{PlatformUserID: "u1", Name: "Thorne", Class: "Paladin", Stats: validStats})
	require.NoError(t, err)
	assert.Equal(t, 20, p.HP)
	assert.Equal(t, 20, p.MaxHP)
	assert.Empty(t, p.Inventory.Items)

	_, err = svc.CreateCharacter(ctx, CharacterRequest{PlatformUserID: "u1", Name: "Again", Class: "Rogue", Stats: validStats})
	assert.ErrorIs(t, err, ErrCharacterExists)

	_, err = svc.CreateCharacter(ctx, CharacterRequest{PlatformUserID: "u2", Class: "Rogue", Stats: validStats})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	over := models.Stats{"STR": 15, "DEX": 15, "CON": 15, "INT": 15, "WIS": 10, "CHA": 10}
	_, err = svc.CreateCharacter(ctx, CharacterRequest{PlatformUserID: "u2", Name: "Mira", Class: "Wizard", Stats: over})
	assert.ErrorIs(t, err, admission.ErrRejected)

	found, err := svc.GetByPlatformUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)

	_, err = svc.GetByPlatformUser(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNoCharacter)

	v, err := svc.ValidatePlayer(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 27, v.PointsUsed)
	assert.Equal(t, 27, v.Budget)
	assert.NoError(t, v.Err)
}

func TestInventoryAndHP(t *testing.T) {
	ctx := context.Background()
	svc := NewPlayerService(newStore(t), admission.NewGate(admission.DefaultRules(), false))
	p, err := svc.CreateCharacter(ctx, CharacterRequest{PlatformUserID: "u1", Name: "Thorne", Class: "Fighter", Stats: validStats})
	require.NoError(t, err)

	// capacity is 15 * 15 = 225 lbs, warning above 202.5
	p, err = svc.AddItem(ctx, p.ID, models.Item{Name: "Plate armor", Weight: 65})
	require.NoError(t, err)
	require.Len(t, p.Inventory.Items, 1)

	_, err = svc.AddItem(ctx, p.ID, models.Item{Name: "Anvil", Weight: 140})
	assert.ErrorIs(t, err, admission.ErrNearCapacity)
	_, err = svc.AddItem(ctx, p.ID, models.Item{Name: "Boulder", Weight: 500})
	assert.ErrorIs(t, err, admission.ErrRejected)
	assert.False(t, errors.Is(err, admission.ErrNearCapacity))

	p, err = svc.DropItem(ctx, p.ID, "plate ARMOR")
	require.NoError(t, err)
	assert.Empty(t, p.Inventory.Items)
	_, err = svc.DropItem(ctx, p.ID, "Plate armor")
	assert.ErrorIs(t, err, ErrItemNotFound)

	p, err = svc.ApplyHP(ctx, p.ID, 25, false)
	require.NoError(t, err)
	assert.Equal(t, -5, p.HP)

	_, err = svc.ApplyHP(ctx, p.ID, 20, false)
	assert.ErrorIs(t, err, admission.ErrRejected, "CON 13 means death below -13")

	_, err = svc.ApplyHP(ctx, p.ID, 30, true)
	assert.ErrorIs(t, err, admission.ErrRejected)
	p, err = svc.ApplyHP(ctx, p.ID, 25, true)
	require.NoError(t, err)
	assert.Equal(t, 20, p.HP)

	_, err = svc.ApplyHP(ctx, 9999, 1, true)
	assert.ErrorIs(t, err, ErrNoCharacter)
}
