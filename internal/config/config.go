// Package config loads the game server configuration from the environment,
// optionally seeded from a .env file, and fills in defaults that depend on
// the run mode.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Run modes.
const (
	ModeInteractive = "interactive"
	ModeStress      = "stress"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full server configuration. Zero values for the
// mode-dependent fields are replaced by ApplyDefaults.
type Config struct {
	Mode             string        `env:"GAME_MODE" envDefault:"interactive"`
	GameName         string        `env:"GAME_NAME"`
	ListenAddr       string        `env:"GAME_LISTEN"`
	BusAddr          string        `env:"GAME_BUS_ADDR" envDefault:"localhost:61616"`
	Topic            string        `env:"GAME_TOPIC" envDefault:"Monsters"`
	ResultsBackend   string        `env:"GAME_RESULTS_BACKEND" envDefault:"csv"`
	ResultsPath      string        `env:"GAME_RESULTS_PATH" envDefault:"stress_results.csv"`
	AdminAddr        string        `env:"GAME_ADMIN_ADDR"`
	WinThreshold     int           `env:"GAME_WIN_THRESHOLD"`
	SpawnInterval    time.Duration `env:"GAME_SPAWN_INTERVAL" envDefault:"1s"`
	FieldWidth       int           `env:"GAME_FIELD_WIDTH" envDefault:"9"`
	FieldHeight      int           `env:"GAME_FIELD_HEIGHT" envDefault:"9"`
	ExpectedClients  int           `env:"GAME_EXPECTED_CLIENTS"`
	RoundLimit       int           `env:"GAME_ROUND_LIMIT"`
	HandshakeTimeout time.Duration `env:"GAME_HANDSHAKE_TIMEOUT" envDefault:"30s"`
	PublishTimeout   time.Duration `env:"GAME_PUBLISH_TIMEOUT" envDefault:"500ms"`
	MetricsEnabled   *bool         `env:"GAME_METRICS"`

	// Set by Load when the variable is present, so an explicit 0 survives
	// the stress defaults.
	expectedSet   bool
	roundLimitSet bool
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (Config, error) {
	return LoadMode("", envFiles...)
}

// LoadMode is Load with a run mode that takes precedence over GAME_MODE.
// An empty mode keeps the environment's value.
func LoadMode(mode string, envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if mode != "" {
		cfg.Mode = mode
	}
	_, cfg.expectedSet = os.LookupEnv("GAME_EXPECTED_CLIENTS")
	_, cfg.roundLimitSet = os.LookupEnv("GAME_ROUND_LIMIT")

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the defaults for mode without reading the environment.
func Default(mode string) Config {
	cfg := Config{
		Mode:             mode,
		BusAddr:          "localhost:61616",
		Topic:            "Monsters",
		ResultsBackend:   "csv",
		ResultsPath:      "stress_results.csv",
		SpawnInterval:    time.Second,
		FieldWidth:       9,
		FieldHeight:      9,
		HandshakeTimeout: 30 * time.Second,
		PublishTimeout:   500 * time.Millisecond,
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills the mode-dependent fields left at their zero value.
// Expected clients and round limit read from the environment are kept even
// when zero.
func (c *Config) ApplyDefaults() {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = ModeInteractive
	}
	stress := c.Mode == ModeStress

	if c.GameName == "" {
		c.GameName = pick(stress, "THE STRESS TEST", "MONSTERS")
	}
	if c.ListenAddr == "" {
		c.ListenAddr = pick(stress, ":5000", ":50000")
	}
	if c.WinThreshold == 0 {
		c.WinThreshold = pickInt(stress, 20, 5)
	}
	if c.ExpectedClients == 0 && stress && !c.expectedSet {
		c.ExpectedClients = 500
	}
	if c.RoundLimit == 0 && stress && !c.roundLimitSet {
		c.RoundLimit = 1
	}
	if c.MetricsEnabled == nil {
		enabled := stress
		c.MetricsEnabled = &enabled
	}
}

// Metrics reports whether latency metrics are collected and persisted.
func (c Config) Metrics() bool {
	return c.MetricsEnabled != nil && *c.MetricsEnabled
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var problems []string
	if c.Mode != ModeInteractive && c.Mode != ModeStress {
		problems = append(problems, fmt.Sprintf("unknown mode %q", c.Mode))
	}
	if c.WinThreshold <= 0 {
		problems = append(problems, "win threshold must be > 0")
	}
	if c.FieldWidth <= 0 || c.FieldHeight <= 0 {
		problems = append(problems, "field bounds must be > 0")
	}
	if c.SpawnInterval < 0 {
		problems = append(problems, "spawn interval must be >= 0")
	}
	if c.ExpectedClients < 0 {
		problems = append(problems, "expected clients must be >= 0")
	}
	if c.RoundLimit < 0 {
		problems = append(problems, "round limit must be >= 0")
	}
	if c.ResultsBackend != "csv" && c.ResultsBackend != "sqlite" {
		problems = append(problems, fmt.Sprintf("unknown results backend %q", c.ResultsBackend))
	}
	if c.Topic == "" {
		problems = append(problems, "topic must not be empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

func pickInt(cond bool, a, b int) int {
	if cond {
		return a
	}
	return b
}
