// models/models.go
package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// GameStatus is the lifecycle state of a game.
type GameStatus int

const (
	StatusWaiting GameStatus = iota + 1
	StatusActive
	StatusPaused
	StatusEnded
)

var statusNames = map[GameStatus]string{
	StatusWaiting: "waiting",
	StatusActive:  "active",
	StatusPaused:  "paused",
	StatusEnded:   "ended",
}

func (s GameStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether no further transitions are possible.
func (s GameStatus) Terminal() bool {
	return s == StatusEnded
}

// Open reports whether the game still occupies its channel.
func (s GameStatus) Open() bool {
	return s == StatusWaiting || s == StatusActive || s == StatusPaused
}

// ParseGameStatus is the inverse of String.
func ParseGameStatus(name string) (GameStatus, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for status, n := range statusNames {
		if n == name {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown game status %q", name)
}

// Value stores the status by name.
func (s GameStatus) Value() (driver.Value, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, fmt.Errorf("invalid game status %d", int(s))
	}
	return s.String(), nil
}

// Scan reads a status stored by Value.
func (s *GameStatus) Scan(src interface{}) error {
	var name string
	switch v := src.(type) {
	case string:
		name = v
	case []byte:
		name = string(v)
	default:
		return fmt.Errorf("cannot scan %T into GameStatus", src)
	}
	status, err := ParseGameStatus(name)
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// LogKind tags a game log entry.
type LogKind string

const (
	LogNarrative LogKind = "narrative"
	LogCombat    LogKind = "combat"
	LogSystem    LogKind = "system"
)

// Stat names, in the order they are validated and displayed.
const (
	StatSTR = "STR"
	StatDEX = "DEX"
	StatCON = "CON"
	StatINT = "INT"
	StatWIS = "WIS"
	StatCHA = "CHA"
)

var StatNames = []string{StatSTR, StatDEX, StatCON, StatINT, StatWIS, StatCHA}

// Stats is a character's ability score block.
type Stats map[string]int

// Get returns the named score or def when it is absent.
func (s Stats) Get(name string, def int) int {
	if v, ok := s[name]; ok {
		return v
	}
	return def
}

// String renders the block as "STR:15, DEX:12, ..." in canonical order.
func (s Stats) String() string {
	parts := make([]string, 0, len(s))
	for _, name := range StatNames {
		if v, ok := s[name]; ok {
			parts = append(parts, fmt.Sprintf("%s:%d", name, v))
		}
	}
	return strings.Join(parts, ", ")
}

type Item struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

type Inventory struct {
	Items []Item `json:"items"`
}

// Weight is the total carried weight in pounds.
func (inv Inventory) Weight() float64 {
	var total float64
	for _, item := range inv.Items {
		total += item.Weight
	}
	return total
}

// Participant is a player character.
type Participant struct {
	ID             uint      `json:"id"`
	PlatformUserID string    `json:"platform_user_id"`
	Name           string    `json:"name"`
	Class          string    `json:"class"`
	Backstory      string    `json:"backstory,omitempty"`
	Stats          Stats     `json:"stats"`
	HP             int       `json:"hp"`
	MaxHP          int       `json:"max_hp"`
	Inventory      Inventory `json:"inventory"`
	CreatedAt      time.Time `json:"created_at"`
}

type Game struct {
	ID           uint       `json:"id"`
	GuildID      string     `json:"guild_id"`
	ChannelID    string     `json:"channel_id"`
	Name         string     `json:"name"`
	Status       GameStatus `json:"status"`
	Location     string     `json:"location"`
	CampaignName string     `json:"campaign_name"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Encounter is opaque to the round engine; it is only passed to the narrator.
type Encounter struct {
	Description string    `json:"description"`
	AddedBy     string    `json:"added_by"`
	AddedAt     time.Time `json:"added_at"`
}

// Session is the per-game round state.
type Session struct {
	GameID      uint        `json:"game_id"`
	RoundNumber int         `json:"round_number"`
	CurrentTurn *uint       `json:"current_turn,omitempty"`
	Encounters  []Encounter `json:"encounters"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Action is a participant's free-text move waiting for (or consumed by) a round.
type Action struct {
	ID            uint      `json:"id"`
	GameID        uint      `json:"game_id"`
	ParticipantID uint      `json:"participant_id"`
	Text          string    `json:"text"`
	CreatedAt     time.Time `json:"created_at"`
	Processed     bool      `json:"processed"`
}

type LogEntry struct {
	ID        uint      `json:"id"`
	GameID    uint      `json:"game_id"`
	Message   string    `json:"message"`
	Kind      LogKind   `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// ActionLine is one (participant, action) pair handed to the narrator.
type ActionLine struct {
	ParticipantName string `json:"participant"`
	Text            string `json:"text"`
}

// Snapshot is the read view of a game used by the scheduler, the admission
// gate and the narrator.
type Snapshot struct {
	Game       Game          `json:"game"`
	Session    Session       `json:"session"`
	Roster     []Participant `json:"roster"`
	Pending    []Action      `json:"pending"`
	RecentLogs []LogEntry    `json:"recent_logs"`
}

// Member returns the roster entry for a participant.
func (s Snapshot) Member(participantID uint) (Participant, bool) {
	for _, p := range s.Roster {
		if p.ID == participantID {
			return p, true
		}
	}
	return Participant{}, false
}
