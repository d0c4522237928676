// Package config provides Viper-based configuration loading for the skirmish
// simulator.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// SimulationConfig holds battle timing and weapon constants.
type SimulationConfig struct {
	// TickInterval is the wall-clock time between ticks. Zero runs ticks
	// back to back.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// MaxTicks ends a battle as a draw once reached. A scenario may override it.
	MaxTicks int `mapstructure:"max_ticks"`
	// ReloadTicks is the weapon cooldown set after firing.
	ReloadTicks uint32 `mapstructure:"reload_ticks"`
	// ProjectileSpeed is the distance a projectile covers per tick.
	ProjectileSpeed float64 `mapstructure:"projectile_speed"`
	// ArrivalTolerance is the distance at which a projectile counts as having
	// reached its destination. Zero requires exact arrival.
	ArrivalTolerance float64 `mapstructure:"arrival_tolerance"`
	// ScriptInstructionLimit caps the Lua opcodes per script entry. Zero uses
	// the scripting default.
	ScriptInstructionLimit int `mapstructure:"script_instruction_limit"`
}

// StorageConfig selects where battle results are recorded.
type StorageConfig struct {
	// Driver is one of "none", "sqlite", "postgres".
	Driver string `mapstructure:"driver"`
	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `mapstructure:"sqlite_path"`
}

// ReplayConfig controls the replay frame stream.
type ReplayConfig struct {
	// Path is the replay file to write. Empty disables replay output.
	Path string `mapstructure:"path"`
}

// SpectatorConfig holds the websocket spectator feed settings.
type SpectatorConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	// WriteTimeout bounds a single frame write to one client.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s SpectatorConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Config is the top-level application configuration.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Replay     ReplayConfig     `mapstructure:"replay"`
	Spectator  SpectatorConfig  `mapstructure:"spectator"`
}

// Validate checks all configuration invariants. Database settings are only
// checked when the postgres driver is selected.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSimulation(c.Simulation); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateStorage(c.Storage); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Storage.Driver == DriverPostgres {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.Spectator.Enabled {
		if err := validateSpectator(c.Spectator); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSimulation(s SimulationConfig) error {
	var errs []string
	if s.TickInterval < 0 {
		errs = append(errs, "simulation.tick_interval must not be negative")
	}
	if s.MaxTicks < 1 {
		errs = append(errs, fmt.Sprintf("simulation.max_ticks must be >= 1, got %d", s.MaxTicks))
	}
	if s.ProjectileSpeed <= 0 {
		errs = append(errs, fmt.Sprintf("simulation.projectile_speed must be > 0, got %v", s.ProjectileSpeed))
	}
	if s.ArrivalTolerance < 0 {
		errs = append(errs, fmt.Sprintf("simulation.arrival_tolerance must be >= 0, got %v", s.ArrivalTolerance))
	}
	if s.ScriptInstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("simulation.script_instruction_limit must be >= 0, got %d", s.ScriptInstructionLimit))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateStorage(s StorageConfig) error {
	switch s.Driver {
	case DriverNone, DriverPostgres:
		return nil
	case DriverSQLite:
		if s.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path must not be empty for the sqlite driver")
		}
		return nil
	default:
		return fmt.Errorf("storage.driver must be one of [none, sqlite, postgres], got %q", s.Driver)
	}
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSpectator(s SpectatorConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("spectator.port must be 1-65535, got %d", s.Port))
	}
	if s.WriteTimeout < 0 {
		errs = append(errs, "spectator.write_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with SKIRMISH_ prefix
	v.SetEnvPrefix("SKIRMISH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults registers the default value of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("simulation.tick_interval", "100ms")
	v.SetDefault("simulation.max_ticks", 1000)
	v.SetDefault("simulation.reload_ticks", 10)
	v.SetDefault("simulation.projectile_speed", 10.0)
	v.SetDefault("simulation.arrival_tolerance", 0.0)
	v.SetDefault("simulation.script_instruction_limit", 0)

	v.SetDefault("storage.driver", DriverNone)
	v.SetDefault("storage.sqlite_path", "skirmish.db")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "skirmish")
	v.SetDefault("database.password", "skirmish")
	v.SetDefault("database.name", "skirmish")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("replay.path", "")

	v.SetDefault("spectator.enabled", false)
	v.SetDefault("spectator.host", "127.0.0.1")
	v.SetDefault("spectator.port", 8090)
	v.SetDefault("spectator.write_timeout", "2s")
}
