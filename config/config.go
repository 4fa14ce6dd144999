package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Game     GameConfig     `mapstructure:"game"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	HTTPAddress string `mapstructure:"http_address"`
	RPCAddress  string `mapstructure:"rpc_address"`
}

// DatabaseConfig selects the room state store. Driver is one of memory, sqlite, postgres.
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ArchiveConfig points at the postgres database that keeps finished game records.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

type GameConfig struct {
	TurnTimeLimit time.Duration `mapstructure:"turn_time_limit"`
	GracePeriod   time.Duration `mapstructure:"grace_period"`
	MinPlayers    int           `mapstructure:"min_players"`
	MaxPlayers    int           `mapstructure:"max_players"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.sqlite.path", "data/bullscows.db")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "bullscows")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.dsn", "")

	v.SetDefault("game.turn_time_limit", 60*time.Second)
	v.SetDefault("game.grace_period", 5*time.Second)
	v.SetDefault("game.min_players", 2)
	v.SetDefault("game.max_players", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("metrics.namespace", "bullscows")
}

// LoadConfig reads config.yaml from path when present. Every key can be
// overridden from the environment, e.g. BULLSCOWS_DATABASE_DRIVER=postgres.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("bullscows")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return errors.New("database.driver must be one of memory, sqlite, postgres")
	}
	if c.Game.TurnTimeLimit <= 0 {
		return errors.New("game.turn_time_limit must be positive")
	}
	if c.Game.GracePeriod < 0 {
		return errors.New("game.grace_period must not be negative")
	}
	if c.Game.MinPlayers < 2 || c.Game.MaxPlayers < c.Game.MinPlayers {
		return errors.New("game.min_players must be >= 2 and <= game.max_players")
	}
	if c.Archive.Enabled && c.Archive.DSN == "" {
		return errors.New("archive.dsn is required when archive.enabled is set")
	}
	return nil
}
