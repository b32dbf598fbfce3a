package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/roundtable/models"
	"github.com/wfunc/roundtable/persistence"
)

// MockStore is an in-memory Store. CommitRound applies all-or-nothing like
// the real store.
type MockStore struct {
	mu       sync.Mutex
	nextID   uint
	games    map[uint]models.Game
	sessions map[uint]models.Session
	players  map[uint]models.Participant
	roster   map[uint][]uint
	actions  []models.Action
	logs     []models.LogEntry

	commitErr error
	commits   int
}

func NewMockStore() *MockStore {
	return &MockStore{
		nextID:   100,
		games:    make(map[uint]models.Game),
		sessions: make(map[uint]models.Session),
		players:  make(map[uint]models.Participant),
		roster:   make(map[uint][]uint),
	}
}

func (s *MockStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *MockStore) AddGame(status models.GameStatus) models.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := models.Game{ID: s.id(), Status: status, CampaignName: "Lost Mine", Location: "Phandalin", ChannelID: "chan"}
	s.games[g.ID] = g
	return g
}

func (s *MockStore) SetStatus(gameID uint, status models.GameStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.games[gameID]
	g.Status = status
	s.games[gameID] = g
}

func (s *MockStore) AddPlayer(name string, hp int) models.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := models.Participant{ID: s.id(), Name: name, Class: "Fighter", HP: hp, MaxHP: 20, Stats: models.Stats{"STR": 12, "CON": 12}}
	s.players[p.ID] = p
	return p
}

func (s *MockStore) DeletePlayer(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players, id)
}

func (s *MockStore) Join(gameID, playerID uint) {
	s.AddToRoster(context.Background(), gameID, playerID)
}

func (s *MockStore) AddActionAt(gameID, playerID uint, text string, at time.Time) models.Action {
	a, _ := s.InsertAction(context.Background(), models.Action{GameID: gameID, ParticipantID: playerID, Text: text, CreatedAt: at})
	return a
}

func (s *MockStore) SetCommitErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

func (s *MockStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *MockStore) Logs(gameID uint) []models.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LogEntry
	for _, l := range s.logs {
		if l.GameID == gameID {
			out = append(out, l)
		}
	}
	return out
}

func (s *MockStore) GetGame(ctx context.Context, gameID uint) (models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return models.Game{}, persistence.ErrRecordNotFound
	}
	return g, nil
}

func (s *MockStore) GetOrCreateSession(ctx context.Context, gameID uint) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[gameID]; !ok {
		return models.Session{}, persistence.ErrRecordNotFound
	}
	sess, ok := s.sessions[gameID]
	if !ok {
		sess = models.Session{GameID: gameID, RoundNumber: 1}
		s.sessions[gameID] = sess
	}
	return sess, nil
}

func (s *MockStore) ListRoster(ctx context.Context, gameID uint) ([]models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Participant
	for _, id := range s.roster[gameID] {
		if p, ok := s.players[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MockStore) ListPendingActions(ctx context.Context, gameID uint) ([]models.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Action
	for _, a := range s.actions {
		if a.GameID == gameID && !a.Processed {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MockStore) RecentLogs(ctx context.Context, gameID uint, limit int) ([]models.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LogEntry
	for i := len(s.logs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.logs[i].GameID == gameID {
			out = append(out, s.logs[i])
		}
	}
	return out, nil
}

func (s *MockStore) GetPlayer(ctx context.Context, playerID uint) (models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return models.Participant{}, persistence.ErrRecordNotFound
	}
	return p, nil
}

func (s *MockStore) InsertAction(ctx context.Context, action models.Action) (models.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	action.ID = s.id()
	s.actions = append(s.actions, action)
	return action, nil
}

func (s *MockStore) AddToRoster(ctx context.Context, gameID, playerID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.roster[gameID] {
		if id == playerID {
			return false, nil
		}
	}
	s.roster[gameID] = append(s.roster[gameID], playerID)
	return true, nil
}

func (s *MockStore) ListActiveGames(ctx context.Context) ([]models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Game
	for _, g := range s.games {
		if g.Status == models.StatusActive {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MockStore) CommitRound(ctx context.Context, commit persistence.RoundCommit) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return models.Session{}, s.commitErr
	}

	sess := s.sessions[commit.GameID]
	if sess.RoundNumber != commit.Round {
		return models.Session{}, persistence.ErrStaleRound
	}
	idx := make(map[uint]int, len(s.actions))
	for i, a := range s.actions {
		idx[a.ID] = i
	}
	for _, id := range commit.ActionIDs {
		i, ok := idx[id]
		if !ok || s.actions[i].Processed {
			return models.Session{}, persistence.ErrStaleRound
		}
	}

	for _, id := range commit.ActionIDs {
		s.actions[idx[id]].Processed = true
	}
	sess.RoundNumber++
	sess.CurrentTurn = nil
	s.sessions[commit.GameID] = sess
	if commit.NarrativeLog != "" {
		s.logs = append(s.logs, models.LogEntry{ID: s.id(), GameID: commit.GameID, Message: commit.NarrativeLog, Kind: models.LogNarrative})
	}
	s.commits++
	return sess, nil
}

// MockNarrator returns Text/Err. When Block is set it waits for it (or the
// context) before answering and signals Entered first.
type MockNarrator struct {
	Text    string
	Err     error
	Block   chan struct{}
	Entered chan struct{}

	mu    sync.Mutex
	calls int
	last  []models.ActionLine
}

func (n *MockNarrator) Generate(ctx context.Context, snap models.Snapshot, actions []models.ActionLine) (string, error) {
	n.mu.Lock()
	n.calls++
	n.last = actions
	n.mu.Unlock()

	if n.Entered != nil {
		n.Entered <- struct{}{}
	}
	if n.Block != nil {
		select {
		case <-n.Block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return n.Text, n.Err
}

func (n *MockNarrator) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

// MockAnnouncer records announced rounds.
type MockAnnouncer struct {
	mu     sync.Mutex
	rounds []int
}

func (a *MockAnnouncer) AnnounceRound(game models.Game, round int, narrative string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rounds = append(a.rounds, round)
}

func (a *MockAnnouncer) Rounds() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.rounds...)
}
