// models/gorm_models.go
package models

import (
	"time"
)

// GormGame 游戏/战役表
type GormGame struct {
	ID           uint       `gorm:"primaryKey"`
	GuildID      string     `gorm:"size:255;index;not null"`
	ChannelID    string     `gorm:"size:255;index;not null"`
	Name         string     `gorm:"size:255"`
	Status       GameStatus `gorm:"type:varchar(16);index;not null"`
	Location     string     `gorm:"size:255"`
	CampaignName string     `gorm:"size:255"`
	CreatedBy    string     `gorm:"size:255;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (GormGame) TableName() string { return "games" }

func (g GormGame) ToDomain() Game {
	return Game{
		ID:           g.ID,
		GuildID:      g.GuildID,
		ChannelID:    g.ChannelID,
		Name:         g.Name,
		Status:       g.Status,
		Location:     g.Location,
		CampaignName: g.CampaignName,
		CreatedBy:    g.CreatedBy,
		CreatedAt:    g.CreatedAt,
	}
}

// GormSession 回合状态表, one row per game
type GormSession struct {
	ID          uint        `gorm:"primaryKey"`
	GameID      uint        `gorm:"uniqueIndex;not null"`
	RoundNumber int         `gorm:"not null;default:1"`
	CurrentTurn *uint
	Encounters  []Encounter `gorm:"type:jsonb;serializer:json"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (GormSession) TableName() string { return "game_sessions" }

func (s GormSession) ToDomain() Session {
	encounters := s.Encounters
	if encounters == nil {
		encounters = []Encounter{}
	}
	return Session{
		GameID:      s.GameID,
		RoundNumber: s.RoundNumber,
		CurrentTurn: s.CurrentTurn,
		Encounters:  encounters,
		UpdatedAt:   s.UpdatedAt,
	}
}

// GormPlayer 玩家角色表
type GormPlayer struct {
	ID             uint      `gorm:"primaryKey"`
	PlatformUserID string    `gorm:"size:255;uniqueIndex;not null"`
	Name           string    `gorm:"size:255;not null"`
	Class          string    `gorm:"size:100;not null"`
	Backstory      string    `gorm:"type:text"`
	Stats          Stats     `gorm:"type:jsonb;serializer:json;not null"`
	HP             int       `gorm:"not null;default:20"`
	MaxHP          int       `gorm:"not null;default:20"`
	Inventory      Inventory `gorm:"type:jsonb;serializer:json;not null"`
	CreatedAt      time.Time
}

func (GormPlayer) TableName() string { return "players" }

func (p GormPlayer) ToDomain() Participant {
	return Participant{
		ID:             p.ID,
		PlatformUserID: p.PlatformUserID,
		Name:           p.Name,
		Class:          p.Class,
		Backstory:      p.Backstory,
		Stats:          p.Stats,
		HP:             p.HP,
		MaxHP:          p.MaxHP,
		Inventory:      p.Inventory,
		CreatedAt:      p.CreatedAt,
	}
}

// GormPlayerFromDomain builds a row for insert or save.
func GormPlayerFromDomain(p Participant) GormPlayer {
	return GormPlayer{
		ID:             p.ID,
		PlatformUserID: p.PlatformUserID,
		Name:           p.Name,
		Class:          p.Class,
		Backstory:      p.Backstory,
		Stats:          p.Stats,
		HP:             p.HP,
		MaxHP:          p.MaxHP,
		Inventory:      p.Inventory,
		CreatedAt:      p.CreatedAt,
	}
}

// GormGamePlayer 游戏名单
type GormGamePlayer struct {
	ID        uint `gorm:"primaryKey"`
	GameID    uint `gorm:"uniqueIndex:idx_game_player;not null"`
	PlayerID  uint `gorm:"uniqueIndex:idx_game_player;not null"`
	CreatedAt time.Time
}

func (GormGamePlayer) TableName() string { return "game_players" }

// GormAction 玩家行动表
type GormAction struct {
	ID        uint      `gorm:"primaryKey"`
	GameID    uint      `gorm:"index:idx_actions_pending,priority:1;not null"`
	PlayerID  uint      `gorm:"index;not null"`
	Text      string    `gorm:"type:text;not null"`
	Processed bool      `gorm:"index:idx_actions_pending,priority:2;not null;default:false"`
	CreatedAt time.Time `gorm:"index"`
}

func (GormAction) TableName() string { return "actions" }

func (a GormAction) ToDomain() Action {
	return Action{
		ID:            a.ID,
		GameID:        a.GameID,
		ParticipantID: a.PlayerID,
		Text:          a.Text,
		CreatedAt:     a.CreatedAt,
		Processed:     a.Processed,
	}
}

// GormGameLog 游戏日志, append-only
type GormGameLog struct {
	ID        uint      `gorm:"primaryKey"`
	GameID    uint      `gorm:"index;not null"`
	Message   string    `gorm:"type:text;not null"`
	Kind      LogKind   `gorm:"size:16;not null"`
	CreatedAt time.Time `gorm:"index"`
}

func (GormGameLog) TableName() string { return "game_logs" }

func (l GormGameLog) ToDomain() LogEntry {
	return LogEntry{
		ID:        l.ID,
		GameID:    l.GameID,
		Message:   l.Message,
		Kind:      l.Kind,
		CreatedAt: l.CreatedAt,
	}
}
