package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Narrator NarratorConfig `mapstructure:"narrator"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress   string `mapstructure:"http_address"`
	RPCAddress    string `mapstructure:"rpc_address"`
	HealthAddress string `mapstructure:"health_address"`
	// HeartbeatInterval drops websocket clients silent for two intervals.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN renders the libpq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// GameConfig controls round scheduling and the background sweep.
type GameConfig struct {
	RoundTimeoutSeconds int           `mapstructure:"round_timeout_seconds"`
	MinPlayersForRound  int           `mapstructure:"min_players_for_round"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	SweepCooldown       time.Duration `mapstructure:"sweep_cooldown"`
	EnforceTurnOrder    bool          `mapstructure:"enforce_turn_order"`
	RecentLogLimit      int           `mapstructure:"recent_log_limit"`
	DeadlineTimers      bool          `mapstructure:"deadline_timers"`
	ResolveOnEnqueue    bool          `mapstructure:"resolve_on_enqueue"`
}

// RoundTimeout returns RoundTimeoutSeconds as a duration.
func (g GameConfig) RoundTimeout() time.Duration {
	return time.Duration(g.RoundTimeoutSeconds) * time.Second
}

// RulesConfig holds the point-buy and encumbrance constants.
type RulesConfig struct {
	PointBuyMax          int     `mapstructure:"point_buy_max"`
	StatMin              int     `mapstructure:"stat_min"`
	StatMax              int     `mapstructure:"stat_max"`
	CarryingCapacity     float64 `mapstructure:"carrying_capacity"`
	EncumbranceThreshold float64 `mapstructure:"encumbrance_threshold"`
	DefaultHP            int     `mapstructure:"default_hp"`
	MovementSpeed        int     `mapstructure:"movement_speed"`
}

type NarratorConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	URL         string        `mapstructure:"url"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float64       `mapstructure:"temperature"`
	TopP        float64       `mapstructure:"top_p"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	MinLength   int           `mapstructure:"min_length"`
}

type MonitorConfig struct {
	Namespace string `mapstructure:"namespace"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// legacyEnv maps config keys to the bare environment names older
// deployments used.
var legacyEnv = map[string]string{
	"game.round_timeout_seconds": "ROUND_TIMEOUT_SECONDS",
	"game.min_players_for_round": "MIN_PLAYERS_FOR_ROUND",
	"narrator.url":               "OLLAMA_URL",
	"narrator.model":             "OLLAMA_MODEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.health_address", ":8082")
	v.SetDefault("server.heartbeat_interval", 30*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "roundtable")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.sqlite.path", "data/game.db")

	v.SetDefault("game.round_timeout_seconds", 300)
	v.SetDefault("game.min_players_for_round", 1)
	v.SetDefault("game.sweep_interval", 30*time.Second)
	v.SetDefault("game.sweep_cooldown", 5*time.Second)
	v.SetDefault("game.enforce_turn_order", false)
	v.SetDefault("game.recent_log_limit", 5)
	v.SetDefault("game.deadline_timers", true)
	v.SetDefault("game.resolve_on_enqueue", true)

	v.SetDefault("rules.point_buy_max", 27)
	v.SetDefault("rules.stat_min", 8)
	v.SetDefault("rules.stat_max", 15)
	v.SetDefault("rules.carrying_capacity", 15)
	v.SetDefault("rules.encumbrance_threshold", 0.9)
	v.SetDefault("rules.default_hp", 20)
	v.SetDefault("rules.movement_speed", 30)

	v.SetDefault("narrator.enabled", true)
	v.SetDefault("narrator.url", "http://localhost:11434")
	v.SetDefault("narrator.model", "llama3.2")
	v.SetDefault("narrator.timeout", 60*time.Second)
	v.SetDefault("narrator.temperature", 0.8)
	v.SetDefault("narrator.top_p", 0.9)
	v.SetDefault("narrator.max_tokens", 500)
	v.SetDefault("narrator.min_length", 15)

	v.SetDefault("monitor.namespace", "roundtable")
	v.SetDefault("log.level", "info")
}

// RegisterFlags adds the command-line overrides understood by LoadConfig.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", ".", "directory containing config.yaml and .env")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("http-address", "", "HTTP listen address")
	flags.String("db-driver", "", "database driver (postgres or sqlite)")
}

var flagKeys = map[string]string{
	"log-level":    "log.level",
	"http-address": "server.http_address",
	"db-driver":    "database.driver",
}

// LoadConfig reads <path>/.env (optional), <path>/config.yaml (optional),
// the environment and any changed flags, in increasing precedence.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("ROUNDTABLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := "ROUNDTABLE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, err
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	if c.Game.MinPlayersForRound < 1 {
		return fmt.Errorf("config: game.min_players_for_round must be at least 1")
	}
	if c.Game.RoundTimeoutSeconds <= 0 {
		return fmt.Errorf("config: game.round_timeout_seconds must be positive")
	}
	if c.Game.SweepInterval <= 0 {
		return fmt.Errorf("config: game.sweep_interval must be positive")
	}
	if c.Rules.StatMin > c.Rules.StatMax {
		return fmt.Errorf("config: rules.stat_min exceeds rules.stat_max")
	}
	return nil
}
