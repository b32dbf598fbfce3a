// persistence/gorm_store.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/roundtable/config"
	"github.com/wfunc/roundtable/logger"
	"github.com/wfunc/roundtable/models"
)

// GormStore 使用GORM的存储实现 (PostgreSQL 或 SQLite)
type GormStore struct {
	db      *gorm.DB
	dialect string
}

// zapWriter routes GORM's logger through the process logger.
type zapWriter struct{}

func (zapWriter) Printf(format string, args ...interface{}) {
	logger.Log.Warnf(format, args...)
}

// Open connects using the configured driver.
func Open(cfg config.DatabaseConfig) (*GormStore, error) {
	switch cfg.Driver {
	case "postgres":
		return NewGormStore(postgres.Open(cfg.Postgres.DSN()))
	case "sqlite":
		return OpenSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenSQLite opens (creating if needed) a SQLite database file.
func OpenSQLite(path string) (*GormStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	return NewGormStore(sqlite.Open(path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"))
}

// NewGormStore 创建GORM数据库连接并迁移表结构
func NewGormStore(dialector gorm.Dialector) (*GormStore, error) {
	// 配置GORM日志
	gormLogger := gormlogger.New(
		zapWriter{},
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	dialect := db.Dialector.Name()
	// 设置连接池; SQLite allows a single writer
	if dialect == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormStore{db: db, dialect: dialect}, nil
}

// autoMigrate 自动迁移表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormGame{},
		&models.GormSession{},
		&models.GormPlayer{},
		&models.GormGamePlayer{},
		&models.GormAction{},
		&models.GormGameLog{},
	)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}

// idsIn builds an id filter. Postgres gets a single array parameter.
func (s *GormStore) idsIn(ids []uint) (string, interface{}) {
	if s.dialect == "postgres" {
		arr := make([]int64, len(ids))
		for i, id := range ids {
			arr[i] = int64(id)
		}
		return "id = ANY(?)", pq.Array(arr)
	}
	return "id IN ?", ids
}

// forUpdate adds row locking where the dialect supports it.
func (s *GormStore) forUpdate(tx *gorm.DB) *gorm.DB {
	if s.dialect == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func (s *GormStore) GetGame(ctx context.Context, gameID uint) (models.Game, error) {
	var row models.GormGame
	if err := s.db.WithContext(ctx).First(&row, gameID).Error; err != nil {
		return models.Game{}, notFound(err)
	}
	return row.ToDomain(), nil
}

func (s *GormStore) FindGameByChannel(ctx context.Context, channelID string, statuses ...models.GameStatus) (models.Game, error) {
	var row models.GormGame
	q := s.db.WithContext(ctx).Where("channel_id = ?", channelID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Order("id DESC").First(&row).Error; err != nil {
		return models.Game{}, notFound(err)
	}
	return row.ToDomain(), nil
}

func (s *GormStore) CreateGame(ctx context.Context, game models.Game, systemLog string) (models.Game, error) {
	row := models.GormGame{
		GuildID:      game.GuildID,
		ChannelID:    game.ChannelID,
		Name:         game.Name,
		Status:       game.Status,
		Location:     game.Location,
		CampaignName: game.CampaignName,
		CreatedBy:    game.CreatedBy,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open int64
		if err := tx.Model(&models.GormGame{}).
			Where("channel_id = ? AND status IN ?", game.ChannelID,
				[]models.GameStatus{models.StatusWaiting, models.StatusActive, models.StatusPaused}).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return ErrConflict
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		session := models.GormSession{GameID: row.ID, RoundNumber: 1, Encounters: []models.Encounter{}}
		if err := tx.Create(&session).Error; err != nil {
			return err
		}
		if systemLog == "" {
			return nil
		}
		return tx.Create(&models.GormGameLog{GameID: row.ID, Message: systemLog, Kind: models.LogSystem}).Error
	})
	if err != nil {
		return models.Game{}, err
	}
	return row.ToDomain(), nil
}

func (s *GormStore) SetGameStatus(ctx context.Context, gameID uint, from, to models.GameStatus, systemLog string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.GormGame{}).
			Where("id = ? AND status = ?", gameID, from).
			Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.GormGame{}).Where("id = ?", gameID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrRecordNotFound
			}
			return ErrConflict
		}
		if systemLog == "" {
			return nil
		}
		return tx.Create(&models.GormGameLog{GameID: gameID, Message: systemLog, Kind: models.LogSystem}).Error
	})
}

func (s *GormStore) UpdateLocation(ctx context.Context, gameID uint, location string) error {
	res := s.db.WithContext(ctx).Model(&models.GormGame{}).Where("id = ?", gameID).
		Updates(map[string]interface{}{"location": location, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *GormStore) ListActiveGames(ctx context.Context) ([]models.Game, error) {
	var rows []models.GormGame
	if err := s.db.WithContext(ctx).Where("status = ?", models.StatusActive).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	games := make([]models.Game, len(rows))
	for i, row := range rows {
		games[i] = row.ToDomain()
	}
	return games, nil
}

func (s *GormStore) GetOrCreateSession(ctx context.Context, gameID uint) (models.Session, error) {
	var row models.GormSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.sessionTx(tx, gameID, &row)
	})
	if err != nil {
		return models.Session{}, notFound(err)
	}
	return row.ToDomain(), nil
}

// sessionTx loads the game's session into row, creating it if absent.
func (s *GormStore) sessionTx(tx *gorm.DB, gameID uint, row *models.GormSession) error {
	var game models.GormGame
	if err := tx.Select("id").First(&game, gameID).Error; err != nil {
		return err
	}
	err := s.forUpdate(tx).Where("game_id = ?", gameID).First(row).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	*row = models.GormSession{GameID: gameID, RoundNumber: 1, Encounters: []models.Encounter{}}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return err
	}
	return s.forUpdate(tx).Where("game_id = ?", gameID).First(row).Error
}

func (s *GormStore) UpdateSession(ctx context.Context, gameID uint, update SessionUpdate) (models.Session, error) {
	var row models.GormSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.sessionTx(tx, gameID, &row); err != nil {
			return err
		}
		if update.RoundNumber != nil {
			if *update.RoundNumber < row.RoundNumber {
				return ErrRoundRegressed
			}
			row.RoundNumber = *update.RoundNumber
		}
		if update.ClearTurn {
			row.CurrentTurn = nil
		} else if update.CurrentTurn != nil {
			turn := *update.CurrentTurn
			row.CurrentTurn = &turn
		}
		if update.Encounters != nil {
			row.Encounters = update.Encounters
		}
		return tx.Save(&row).Error
	})
	if err != nil {
		return models.Session{}, notFound(err)
	}
	return row.ToDomain(), nil
}

func (s *GormStore) AddEncounter(ctx context.Context, gameID uint, encounter models.Encounter, combatLog string) (models.Session, error) {
	var row models.GormSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.sessionTx(tx, gameID, &row); err != nil {
			return err
		}
		row.Encounters = append(row.Encounters, encounter)
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		if combatLog == "" {
			return nil
		}
		return tx.Create(&models.GormGameLog{GameID: gameID, Message: combatLog, Kind: models.LogCombat}).Error
	})
	if err != nil {
		return models.Session{}, notFound(err)
	}
	return row.ToDomain(), nil
}

func (s *GormStore) ListRoster(ctx context.Context, gameID uint) ([]models.Participant, error) {
	var rows []models.GormPlayer
	err := s.db.WithContext(ctx).
		Joins("JOIN game_players ON game_players.player_id = players.id").
		Where("game_players.game_id = ?", gameID).
		Order("game_players.id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	roster := make([]models.Participant, len(rows))
	for i, row := range rows {
		roster[i] = row.ToDomain()
	}
	return roster, nil
}

func (s *GormStore) AddToRoster(ctx context.Context, gameID, playerID uint) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.GormGamePlayer{GameID: gameID, PlayerID: playerID})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) GetPlayer(ctx context.Context, playerID uint) (models.Participant, error) {
	var row models.GormPlayer
	if err := s.db.WithContext(ctx).First(&row, playerID).Error; err != nil {
		return models.Participant{}, notFound(err)
	}
	return row.ToDomain(), nil
}

func (s *GormStore) GetPlayerByPlatformUser(ctx context.Context, platformUserID string) (models.Participant, error) {
	var row models.GormPlayer
	if err := s.db.WithContext(ctx).Where("platform_user_id = ?", platformUserID).First(&row).Error; err != nil {
		return models.Participant{}, notFound(err)
	}
	return row.ToDomain(), nil
}

func (s *GormStore) CreatePlayer(ctx context.Context, player models.Participant) (models.Participant, error) {
	row := models.GormPlayerFromDomain(player)
	row.ID = 0
	if row.Inventory.Items == nil {
		row.Inventory.Items = []models.Item{}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.GormPlayer{}).Where("platform_user_id = ?", player.PlatformUserID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrConflict
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return models.Participant{}, err
	}
	return row.ToDomain(), nil
}

func (s *GormStore) UpdatePlayer(ctx context.Context, playerID uint, fn func(*models.Participant) error) (models.Participant, error) {
	var updated models.Participant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.GormPlayer
		if err := s.forUpdate(tx).First(&row, playerID).Error; err != nil {
			return err
		}
		p := row.ToDomain()
		if err := fn(&p); err != nil {
			return err
		}
		p.ID = row.ID
		p.PlatformUserID = row.PlatformUserID
		next := models.GormPlayerFromDomain(p)
		if err := tx.Save(&next).Error; err != nil {
			return err
		}
		updated = next.ToDomain()
		return nil
	})
	if err != nil {
		return models.Participant{}, notFound(err)
	}
	return updated, nil
}

func (s *GormStore) InsertAction(ctx context.Context, action models.Action) (models.Action, error) {
	row := models.GormAction{
		GameID:    action.GameID,
		PlayerID:  action.ParticipantID,
		Text:      action.Text,
		CreatedAt: action.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Action{}, err
	}
	return row.ToDomain(), nil
}

func (s *GormStore) ListPendingActions(ctx context.Context, gameID uint) ([]models.Action, error) {
	var rows []models.GormAction
	err := s.db.WithContext(ctx).
		Where("game_id = ? AND processed = ?", gameID, false).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	actions := make([]models.Action, len(rows))
	for i, row := range rows {
		actions[i] = row.ToDomain()
	}
	return actions, nil
}

func (s *GormStore) MarkProcessed(ctx context.Context, gameID uint, actionIDs []uint) error {
	if len(actionIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.markProcessedTx(tx, gameID, actionIDs)
	})
}

// markProcessedTx flips only still-pending rows and fails with ErrStaleRound
// if any requested action was missing or already processed.
func (s *GormStore) markProcessedTx(tx *gorm.DB, gameID uint, actionIDs []uint) error {
	clauseSQL, arg := s.idsIn(actionIDs)
	res := tx.Model(&models.GormAction{}).
		Where("game_id = ? AND processed = ?", gameID, false).
		Where(clauseSQL, arg).
		Update("processed", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != int64(len(actionIDs)) {
		return fmt.Errorf("%w: marked %d of %d actions", ErrStaleRound, res.RowsAffected, len(actionIDs))
	}
	return nil
}

func (s *GormStore) AppendLog(ctx context.Context, gameID uint, message string, kind models.LogKind) (models.LogEntry, error) {
	row := models.GormGameLog{GameID: gameID, Message: message, Kind: kind}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.LogEntry{}, err
	}
	return row.ToDomain(), nil
}

func (s *GormStore) RecentLogs(ctx context.Context, gameID uint, limit int) ([]models.LogEntry, error) {
	var rows []models.GormGameLog
	q := s.db.WithContext(ctx).Where("game_id = ?", gameID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	logs := make([]models.LogEntry, len(rows))
	for i, row := range rows {
		logs[i] = row.ToDomain()
	}
	return logs, nil
}

// CommitRound 在一个事务中提交回合: actions processed, round+1, turn cleared, narrative logged
func (s *GormStore) CommitRound(ctx context.Context, commit RoundCommit) (models.Session, error) {
	var session models.GormSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(commit.ActionIDs) > 0 {
			if err := s.markProcessedTx(tx, commit.GameID, commit.ActionIDs); err != nil {
				return err
			}
		}

		res := tx.Model(&models.GormSession{}).
			Where("game_id = ? AND round_number = ?", commit.GameID, commit.Round).
			Updates(map[string]interface{}{
				"round_number": gorm.Expr("round_number + ?", 1),
				"current_turn": nil,
				"updated_at":   time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: session for game %d is no longer at round %d", ErrStaleRound, commit.GameID, commit.Round)
		}

		if commit.NarrativeLog != "" {
			entry := models.GormGameLog{GameID: commit.GameID, Message: commit.NarrativeLog, Kind: models.LogNarrative}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		}
		return tx.Where("game_id = ?", commit.GameID).First(&session).Error
	})
	if err != nil {
		return models.Session{}, err
	}
	return session.ToDomain(), nil
}

// Close 关闭数据库连接
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
