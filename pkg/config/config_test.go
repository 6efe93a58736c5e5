package config

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig_Valid verifies the shipped defaults pass validation
func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

// TestDefaultConfig_Scheduler verifies the reminder cadences
func TestDefaultConfig_Scheduler(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Scheduler.Enabled {
		t.Error("Scheduler should be enabled by default")
	}
	if cfg.Scheduler.DigestCron != "0 8 * * *" {
		t.Errorf("DigestCron = %q, want %q", cfg.Scheduler.DigestCron, "0 8 * * *")
	}
	if len(cfg.Scheduler.DayAhead) != 3 {
		t.Fatalf("expected 3 day-ahead digests, got %d", len(cfg.Scheduler.DayAhead))
	}
	markers := []string{"event", "control", "pers"}
	for i, d := range cfg.Scheduler.DayAhead {
		if d.Marker != markers[i] {
			t.Errorf("DayAhead[%d].Marker = %q, want %q", i, d.Marker, markers[i])
		}
	}
	if cfg.Scheduler.FireWindowMinutes != 2 {
		t.Errorf("FireWindowMinutes = %d, want 2", cfg.Scheduler.FireWindowMinutes)
	}
	if cfg.Scheduler.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d, want 7", cfg.Scheduler.RetentionDays)
	}
}

// TestDefaultConfig_Conversation verifies pagination default
func TestDefaultConfig_Conversation(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Conversation.DaysPerPage != 4 {
		t.Errorf("DaysPerPage = %d, want 4", cfg.Conversation.DaysPerPage)
	}
}

// TestDefaultConfig_Channels verifies Discord config defaults
func TestDefaultConfig_Channels(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Channels.Discord.Token != "" {
		t.Error("Discord token should be empty by default")
	}
}

func TestSaveConfig_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file permission bits are not enforced on Windows")
	}

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg := DefaultConfig()
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}

	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("config file has permission %04o, want 0600", perm)
	}
}

func TestLoadConfig_EnvOverridesWithoutFile(t *testing.T) {
	t.Setenv("PLANBOT_STORAGE_LEDGER_BACKEND", "sqlite")
	t.Setenv("PLANBOT_CHANNELS_DISCORD_ALLOW_FROM", "111,222")
	path := filepath.Join(t.TempDir(), "missing-config.json")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got := cfg.Storage.LedgerBackend; got != "sqlite" {
		t.Fatalf("expected env override backend, got %q", got)
	}
	if got := cfg.AllowFrom(); len(got) != 2 || got[1] != "222" {
		t.Fatalf("expected allow list from env, got %v", got)
	}
}

func TestLoadConfig_JSONAllowFromNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"channels":{"discord":{"token":"x","allow_from":[123,"@alice"]}}}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	got := cfg.AllowFrom()
	if len(got) != 2 || got[0] != "123" || got[1] != "@alice" {
		t.Fatalf("unexpected allow list %v", got)
	}
	if cfg.Conversation.DaysPerPage != 4 {
		t.Fatalf("unset fields should keep defaults, got %d", cfg.Conversation.DaysPerPage)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
storage:
  data_dir: /tmp/planbot
  ledger_backend: sqlite
scheduler:
  enabled: false
  timezone: UTC
conversation:
  days_per_page: 2
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.DataPath() != "/tmp/planbot" || cfg.Storage.LedgerBackend != "sqlite" {
		t.Fatalf("storage not loaded: %+v", cfg.Storage)
	}
	if cfg.Scheduler.Enabled {
		t.Fatal("scheduler.enabled should be false")
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "UTC" {
		t.Fatalf("expected UTC location, got %v (%v)", loc, err)
	}
	if cfg.Scheduler.DigestCron != "0 8 * * *" {
		t.Fatalf("unset cron should keep default, got %q", cfg.Scheduler.DigestCron)
	}
}

func TestLoadConfig_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"backend":  `{"storage":{"data_dir":"x","ledger_backend":"redis"}}`,
		"cron":     `{"scheduler":{"digest_cron":"every morning"}}`,
		"page":     `{"conversation":{"days_per_page":0}}`,
		"timezone": `{"scheduler":{"timezone":"Mars/Olympus"}}`,
		"level":    `{"log":{"level":"loud"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(body), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := LoadConfig(path)
			if err == nil || !strings.Contains(err.Error(), "invalid config") {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSaveLoadRoundTripYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	cfg := DefaultConfig()
	cfg.Channels.Discord.AllowFrom = FlexibleStringSlice{"42"}
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got := loaded.AllowFrom(); len(got) != 1 || got[0] != "42" {
		t.Fatalf("allow list lost in round trip: %v", got)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := SaveConfig(path, DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 1)
	go func() {
		_ = Watch(ctx, path, func(c *Config) {
			select {
			case reloaded <- c:
			default:
			}
		})
	}()
	time.Sleep(100 * time.Millisecond)

	next := DefaultConfig()
	next.Channels.Discord.AllowFrom = FlexibleStringSlice{"999"}
	if err := SaveConfig(path, next); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-reloaded:
		if got := c.AllowFrom(); len(got) != 1 || got[0] != "999" {
			t.Fatalf("reloaded allow list = %v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}
