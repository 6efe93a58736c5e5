package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Storage      StorageConfig      `json:"storage" yaml:"storage"`
	Channels     ChannelsConfig     `json:"channels" yaml:"channels"`
	Scheduler    SchedulerConfig    `json:"scheduler" yaml:"scheduler"`
	Conversation ConversationConfig `json:"conversation" yaml:"conversation"`
	Gateway      GatewayConfig      `json:"gateway" yaml:"gateway"`
	Log          LogConfig          `json:"log" yaml:"log"`
	mu           sync.RWMutex
}

type StorageConfig struct {
	DataDir       string `json:"data_dir" yaml:"data_dir" env:"PLANBOT_STORAGE_DATA_DIR" validate:"required"`
	LedgerBackend string `json:"ledger_backend" yaml:"ledger_backend" env:"PLANBOT_STORAGE_LEDGER_BACKEND" validate:"oneof=json sqlite"`
}

type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord" yaml:"discord"`
}

type DiscordConfig struct {
	Token     string              `json:"token" yaml:"token" env:"PLANBOT_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" yaml:"allow_from" env:"PLANBOT_CHANNELS_DISCORD_ALLOW_FROM"`
}

// DayAheadConfig is one marker-scoped evening digest.
type DayAheadConfig struct {
	Cron   string `json:"cron" yaml:"cron" env:"CRON" validate:"required,cron"`
	Marker string `json:"marker" yaml:"marker" env:"MARKER" validate:"required"`
	Title  string `json:"title" yaml:"title" env:"TITLE"`
}

type SchedulerConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" env:"PLANBOT_SCHEDULER_ENABLED"`
	Timezone string `json:"timezone" yaml:"timezone" env:"PLANBOT_SCHEDULER_TIMEZONE"`

	HourlyPollSeconds   int `json:"hourly_poll_seconds" yaml:"hourly_poll_seconds" env:"PLANBOT_SCHEDULER_HOURLY_POLL_SECONDS" validate:"min=1"`
	HourlyWindowMinutes int `json:"hourly_window_minutes" yaml:"hourly_window_minutes" env:"PLANBOT_SCHEDULER_HOURLY_WINDOW_MINUTES" validate:"min=1"`
	// FireWindowMinutes is how long after a cron minute a clock cadence may
	// still fire.
	FireWindowMinutes int `json:"fire_window_minutes" yaml:"fire_window_minutes" env:"PLANBOT_SCHEDULER_FIRE_WINDOW_MINUTES" validate:"min=1,max=59"`

	DigestCron       string           `json:"digest_cron" yaml:"digest_cron" env:"PLANBOT_SCHEDULER_DIGEST_CRON" validate:"required,cron"`
	DayAhead         []DayAheadConfig `json:"day_ahead" yaml:"day_ahead" envPrefix:"PLANBOT_SCHEDULER_DAY_AHEAD_" validate:"dive"`
	LookaheadCron    string           `json:"lookahead_cron" yaml:"lookahead_cron" env:"PLANBOT_SCHEDULER_LOOKAHEAD_CRON" validate:"required,cron"`
	LookaheadDays    []int            `json:"lookahead_days" yaml:"lookahead_days" env:"PLANBOT_SCHEDULER_LOOKAHEAD_DAYS" validate:"dive,min=1"`
	LookaheadMarkers []string         `json:"lookahead_markers" yaml:"lookahead_markers" env:"PLANBOT_SCHEDULER_LOOKAHEAD_MARKERS" validate:"dive,required"`
	RetentionDays    int              `json:"retention_days" yaml:"retention_days" env:"PLANBOT_SCHEDULER_RETENTION_DAYS" validate:"min=1"`
}

type ConversationConfig struct {
	DaysPerPage int `json:"days_per_page" yaml:"days_per_page" env:"PLANBOT_CONVERSATION_DAYS_PER_PAGE" validate:"min=1,max=31"`
}

type GatewayConfig struct {
	Host string `json:"host" yaml:"host" env:"PLANBOT_GATEWAY_HOST"`
	Port int    `json:"port" yaml:"port" env:"PLANBOT_GATEWAY_PORT" validate:"min=0,max=65535"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" env:"PLANBOT_LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" env:"PLANBOT_LOG_FORMAT" validate:"oneof=json console"`
}

func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:       "~/.planbot/data",
			LedgerBackend: "json",
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				Token:     "",
				AllowFrom: FlexibleStringSlice{},
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:             true,
			Timezone:            "",
			HourlyPollSeconds:   60,
			HourlyWindowMinutes: 60,
			FireWindowMinutes:   2,
			DigestCron:          "0 8 * * *",
			DayAhead: []DayAheadConfig{
				{Cron: "0 17 * * *", Marker: "event", Title: "Event reminders"},
				{Cron: "0 18 * * *", Marker: "control", Title: "Control reminders"},
				{Cron: "0 21 * * *", Marker: "pers", Title: "Personal reminders"},
			},
			LookaheadCron:    "0 9 * * *",
			LookaheadDays:    []int{14, 7, 3},
			LookaheadMarkers: []string{"event", "pers", "control"},
			RetentionDays:    7,
		},
		Conversation: ConversationConfig{
			DaysPerPage: 4,
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 18791,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads path over the defaults, applies PLANBOT_* environment
// overrides, and validates the result. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func decode(path string, data []byte, cfg *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, cfg)
	}
	return json.Unmarshal(data, cfg)
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
			return gronx.New().IsValid(fl.Field().String())
		})
	})
	return validate
}

// Validate checks field constraints and that the timezone resolves.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := loadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid config: scheduler.timezone: %w", err)
	}
	return nil
}

// DataPath is the storage directory with ~ expanded.
func (c *Config) DataPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Storage.DataDir)
}

// Location resolves scheduler.timezone; empty means the process local zone.
func (c *Config) Location() (*time.Location, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return loadLocation(c.Scheduler.Timezone)
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// AllowFrom returns a copy of the Discord allow-list.
func (c *Config) AllowFrom() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.Channels.Discord.AllowFrom...)
}

// SetAllowFrom swaps the Discord allow-list, used by the reload watcher.
func (c *Config) SetAllowFrom(list []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Channels.Discord.AllowFrom = append(FlexibleStringSlice(nil), list...)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
