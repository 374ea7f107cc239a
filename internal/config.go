package internal

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/dagaz/internal/freebusy"
	"github.com/starford/dagaz/internal/models"
	"github.com/starford/dagaz/internal/planner"
	"github.com/starford/dagaz/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Gemini   GeminiConfig      `yaml:"gemini"`
	Storage  StorageConfig     `yaml:"storage"`
	Auth     AuthConfig        `yaml:"auth"`
	FreeBusy FreeBusyConfig    `yaml:"freebusy"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Gemini.Validate(); err != nil {
		return fmt.Errorf("gemini: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.FreeBusy.Validate(); err != nil {
		return fmt.Errorf("freebusy: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// GeminiConfig configures the generation backend. An empty APIKey leaves the
// server running with planning disabled.
type GeminiConfig struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Validate validates the Gemini configuration.
func (c *GeminiConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Temperature, validation.Min(float32(0)), validation.Max(float32(2))),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	)
}

// StorageConfig selects where entity collections are persisted.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(storage.DriverFS, storage.DriverSQLite)),
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
//
// DefaultUser owns requests that carry no X-User-ID header.
type AuthConfig struct {
	Mode        string `yaml:"mode"`
	Token       string `yaml:"token"`
	DefaultUser string `yaml:"default_user"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
		validation.Field(&c.DefaultUser, validation.Required, validation.By(validUser)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// FreeBusyConfig bounds the free-slot search.
type FreeBusyConfig struct {
	DayStart    string `yaml:"day_start"`
	DayEnd      string `yaml:"day_end"`
	HorizonDays int    `yaml:"horizon_days"`
	Timezone    string `yaml:"timezone"`
}

// Validate validates the free/busy configuration.
func (c *FreeBusyConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DayStart, validation.Required, validation.Date(models.TimeLayout)),
		validation.Field(&c.DayEnd, validation.Required, validation.Date(models.TimeLayout)),
		validation.Field(&c.HorizonDays, validation.Required, validation.Min(1), validation.Max(366)),
		validation.Field(&c.Timezone, validation.By(validTimezone)),
	)
}

// Options converts the configuration into search options.
func (c *FreeBusyConfig) Options() freebusy.Options {
	loc := time.Local
	if c.Timezone != "" {
		if l, err := time.LoadLocation(c.Timezone); err == nil {
			loc = l
		}
	}
	return freebusy.Options{
		DayStart:    c.DayStart,
		DayEnd:      c.DayEnd,
		HorizonDays: c.HorizonDays,
		Location:    loc,
	}
}

func validUser(v any) error {
	s, _ := v.(string)
	return storage.ValidUser(s)
}

func validTimezone(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	_, err := time.LoadLocation(s)
	return err
}

// NewDefaultConfig returns a new Config with sensible default values. The
// Gemini key is taken from GEMINI_API_KEY so a missing config file still
// yields a working server.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Gemini: GeminiConfig{
			APIKey:      os.Getenv("GEMINI_API_KEY"),
			Model:       planner.DefaultGeminiModel,
			Temperature: planner.DefaultGeminiTemperature,
			Timeout:     planner.DefaultTimeout,
		},
		Storage: StorageConfig{
			Driver: storage.DriverFS,
			Path:   "./data",
		},
		Auth: AuthConfig{
			Mode:        AuthModeDisabled,
			DefaultUser: "local",
		},
		FreeBusy: FreeBusyConfig{
			DayStart:    freebusy.DefaultDayStart,
			DayEnd:      freebusy.DefaultDayEnd,
			HorizonDays: freebusy.DefaultHorizonDays,
		},
	}
}
