package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Quiz     QuizConfig     `yaml:"quiz"`
	Game     GameConfig     `yaml:"game"`
}

type ServerConfig struct {
	Port string `yaml:"port" env:"QUIZ_SERVER_PORT"`
	// EventBuffer is the per-subscriber queue length of session events.
	EventBuffer int `yaml:"eventBuffer" env:"QUIZ_SERVER_EVENT_BUFFER"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"QUIZ_REDIS_ADDR"`
	Password string `yaml:"password" env:"QUIZ_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"QUIZ_REDIS_DB"`
	TTL      string `yaml:"ttl" env:"QUIZ_REDIS_TTL"`
	// PubSub routes session events through Redis instead of the in-process hub.
	PubSub   bool   `yaml:"pubsub" env:"QUIZ_REDIS_PUBSUB"`
	GrantTTL string `yaml:"grantTtl" env:"QUIZ_REDIS_GRANT_TTL"`
}

type PostgresConfig struct {
	URL string `yaml:"url" env:"QUIZ_POSTGRES_URL"`
}

type QuizConfig struct {
	TTL string `yaml:"ttl" env:"QUIZ_CACHE_TTL"`
}

type GameConfig struct {
	Countdown             string          `yaml:"countdown" env:"QUIZ_GAME_COUNTDOWN"`
	RevealWhenAllAnswered bool            `yaml:"revealWhenAllAnswered" env:"QUIZ_GAME_REVEAL_WHEN_ALL_ANSWERED"`
	MaxPlayers            int             `yaml:"maxPlayers" env:"QUIZ_GAME_MAX_PLAYERS"`
	Retention             string          `yaml:"retention" env:"QUIZ_GAME_RETENTION"`
	Modifiers             ModifiersConfig `yaml:"modifiers"`
}

// ModifiersConfig is the number of uses each player starts with.
type ModifiersConfig struct {
	FiftyFifty   int `yaml:"fiftyFifty" env:"QUIZ_GAME_FIFTY_FIFTY"`
	DoublePoints int `yaml:"doublePoints" env:"QUIZ_GAME_DOUBLE_POINTS"`
}

// Default returns the configuration used for keys that neither the file nor the environment set.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Server.EventBuffer = 32
	cfg.Redis.TTL = "2h"
	cfg.Redis.GrantTTL = "168h"
	cfg.Quiz.TTL = "10m"
	cfg.Game.Countdown = "3s"
	cfg.Game.Retention = "10m"
	cfg.Game.Modifiers = ModifiersConfig{FiftyFifty: 1, DoublePoints: 1}
	return cfg
}

// Load reads YAML config from path on top of Default, then applies environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
