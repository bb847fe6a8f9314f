package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/lastround/go/internal/engine"
	"github.com/mcdev12/lastround/go/internal/ranked"
	"github.com/mcdev12/lastround/go/internal/results"
	"github.com/mcdev12/lastround/go/internal/room"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON         bool          `env:"LOG_JSON" envDefault:"false"`
	RulesFile       string        `env:"RULES_FILE"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MigrateOnStart  bool          `env:"DB_MIGRATE" envDefault:"true"`

	AuthSecret string `env:"AUTH_JWT_SECRET"`
	AuthIssuer string `env:"AUTH_JWT_ISSUER" envDefault:"lastround"`

	TurnTimeout  time.Duration `env:"TURN_TIMEOUT" envDefault:"30s"`
	BotThinkTime time.Duration `env:"BOT_THINK_TIME" envDefault:"900ms"`
	ActionRate   float64       `env:"ACTION_RATE" envDefault:"8"`
	ActionBurst  int           `env:"ACTION_BURST" envDefault:"16"`

	RankedTick time.Duration `env:"RANKED_TICK" envDefault:"1s"`

	NATSURL            string        `env:"NATS_URL"`
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"5s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	OutboxClaimLease   time.Duration `env:"OUTBOX_CLAIM_LEASE" envDefault:"2m"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) roomConfig() room.Config {
	rc := room.DefaultConfig()
	rc.TurnTimeout = c.TurnTimeout
	rc.BotThinkTime = c.BotThinkTime
	rc.ActionRate = rate.Limit(c.ActionRate)
	rc.ActionBurst = c.ActionBurst
	return rc
}

func (c Config) rankedConfig() ranked.Config {
	rc := ranked.DefaultConfig()
	rc.TickInterval = c.RankedTick
	return rc
}

func (c Config) relayConfig() results.RelayConfig {
	rc := results.DefaultRelayConfig()
	rc.PollInterval = c.OutboxPollInterval
	rc.BatchSize = c.OutboxBatchSize
	rc.ClaimLease = c.OutboxClaimLease
	return rc
}

func setupLogging(cfg Config) {
	if !cfg.LogJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// RulesConfig is the optional YAML file of per-tier rule overrides.
type RulesConfig struct {
	Tiers map[engine.Tier]engine.Rules `yaml:"tiers"`
}

func loadRules(path string) (*engine.RuleBook, error) {
	if path == "" {
		return engine.NewRuleBook(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return parseRules(data)
}

func parseRules(data []byte) (*engine.RuleBook, error) {
	var cfg RulesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	book, err := engine.NewRuleBook(cfg.Tiers)
	if err != nil {
		return nil, fmt.Errorf("invalid rules file: %w", err)
	}
	return book, nil
}
