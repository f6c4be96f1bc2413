package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func TestApplyFileConfigOverrides(t *testing.T) {
	cfg := defaultConfig()
	off := false
	applyFileConfig(&cfg, fileConfig{
		Host:             "http://reef:9000",
		Entity:           "pinchy",
		PollSeconds:      11,
		ReconnectSeconds: 3,
		RecordLimit:      50,
		TimeoutSeconds:   20,
		Accent:           "#ffffff",
		EventLog:         "/tmp/rockpool.jsonl",
		AltScreen:        &off,
	})

	if cfg.baseURL != "http://reef:9000" || cfg.entityID != "pinchy" {
		t.Fatalf("host/entity not applied: %+v", cfg)
	}
	if cfg.pollInterval != 11*time.Second || cfg.reconnectDelay != 3*time.Second {
		t.Fatalf("intervals not applied: %+v", cfg)
	}
	if cfg.recordLimit != 50 || cfg.requestTimeout != 20*time.Second {
		t.Fatalf("limits not applied: %+v", cfg)
	}
	if cfg.accent != "#ffffff" || cfg.eventLogPath != "/tmp/rockpool.jsonl" {
		t.Fatalf("cosmetics not applied: %+v", cfg)
	}
	if cfg.altScreen {
		t.Fatalf("alt_screen=false not applied")
	}
}

func TestApplyFileConfigZeroValuesKeepDefaults(t *testing.T) {
	cfg := defaultConfig()
	applyFileConfig(&cfg, fileConfig{})
	if cfg != defaultConfig() {
		t.Fatalf("an empty file must change nothing: %+v", cfg)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	cfg := defaultConfig()
	applyFileConfig(&cfg, fileConfig{Host: "http://from-file:1", PollSeconds: 11})

	t.Setenv("ROCKPOOL_HOST", "http://from-env:2")
	t.Setenv("ROCKPOOL_POLL_SECONDS", "9")
	applyEnvConfig(&cfg)

	if cfg.baseURL != "http://from-env:2" {
		t.Fatalf("env host must win over file, got %q", cfg.baseURL)
	}
	if cfg.pollInterval != 9*time.Second {
		t.Fatalf("env poll must win over file, got %s", cfg.pollInterval)
	}
}

func TestClampConfigBounds(t *testing.T) {
	cfg := defaultConfig()
	cfg.baseURL = "  http://reef:8000/  "
	cfg.pollInterval = 0
	cfg.reconnectDelay = 999 * time.Second
	cfg.recordLimit = 9999
	cfg.requestTimeout = 0
	cfg.accent = "   "
	clampConfig(&cfg)

	if cfg.baseURL != "http://reef:8000" {
		t.Fatalf("base url not normalized: %q", cfg.baseURL)
	}
	if cfg.pollInterval != time.Second || cfg.requestTimeout != time.Second {
		t.Fatalf("zero durations must clamp to one second: %+v", cfg)
	}
	if cfg.reconnectDelay != 60*time.Second {
		t.Fatalf("reconnect delay not capped: %s", cfg.reconnectDelay)
	}
	if cfg.recordLimit != 500 {
		t.Fatalf("record limit not capped: %d", cfg.recordLimit)
	}
	if cfg.accent != defaultAccent {
		t.Fatalf("blank accent must fall back: %q", cfg.accent)
	}

	cfg.baseURL = ""
	clampConfig(&cfg)
	if cfg.baseURL != defaultHost {
		t.Fatalf("empty host must fall back: %q", cfg.baseURL)
	}
}

func TestReadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "host = \"http://reef:9000\"\npoll_seconds = 11\nalt_screen = false\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	file, err := readConfigFile(path)
	if err != nil {
		t.Fatalf("readConfigFile: %v", err)
	}
	if file.Host != "http://reef:9000" || file.PollSeconds != 11 {
		t.Fatalf("bad decode: %+v", file)
	}
	if file.AltScreen == nil || *file.AltScreen {
		t.Fatalf("alt_screen=false must decode as a set pointer")
	}
}

func TestReadConfigFileBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("host = [broken"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := readConfigFile(path)
	if err == nil || !strings.Contains(err.Error(), "parse") {
		t.Fatalf("expected a parse error, got %v", err)
	}
}

func TestApplyReloadSafeSubset(t *testing.T) {
	cfg := defaultConfig()
	cfg.baseURL = "http://reef:8000"
	cfg.entityID = "c1"

	got := applyReload(cfg, fileConfig{Host: "http://elsewhere:1", Entity: "c2", ReconnectSeconds: 7, Accent: "#123456"})

	if got.baseURL != "http://reef:8000" || got.entityID != "c1" {
		t.Fatalf("host and entity must not hot-reload: %+v", got)
	}
	if got.reconnectDelay != 7*time.Second || got.accent != "#123456" {
		t.Fatalf("reloadable fields not applied: %+v", got)
	}
}

func TestLoadAppConfigExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("host = \"http://reef:9000\"\naccent = \"#abcdef\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ROCKPOOL_HOST", "")
	t.Setenv("ROCKPOOL_ACCENT", "")
	t.Setenv("ROCKPOOL_CONFIG", "")

	cfg, err := loadAppConfig(&cobra.Command{}, &cliFlags{configPath: path})
	if err != nil {
		t.Fatalf("loadAppConfig: %v", err)
	}
	if cfg.baseURL != "http://reef:9000" || cfg.accent != "#abcdef" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.configPath != path {
		t.Fatalf("config path not recorded: %q", cfg.configPath)
	}
}

func TestLoadAppConfigExplicitFileMustExist(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")
	if _, err := loadAppConfig(&cobra.Command{}, &cliFlags{configPath: missing}); err == nil {
		t.Fatalf("an explicitly named config file must exist")
	}
}

func TestLoadAppConfigEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("host = \"http://from-file:1\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ROCKPOOL_HOST", "http://from-env:2")

	cfg, err := loadAppConfig(&cobra.Command{}, &cliFlags{configPath: path})
	if err != nil {
		t.Fatalf("loadAppConfig: %v", err)
	}
	if cfg.baseURL != "http://from-env:2" {
		t.Fatalf("env must override the file, got %q", cfg.baseURL)
	}
}
