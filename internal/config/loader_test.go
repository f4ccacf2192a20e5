package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("TEST_VAR", "hello")
	defer os.Unsetenv("TEST_VAR")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"${TEST_VAR:default}", "hello"},
		{"${UNSET_VAR:fallback}", "fallback"},
		{"${UNSET_VAR}", ""},
		{"no vars here", "no vars here"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
		{"redis://${UNSET_HOST:localhost:6379}", "redis://localhost:6379"},
	}

	for _, tt := range tests {
		got := expandEnvVars(tt.input)
		if got != tt.expected {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadFile_WithEnvVars(t *testing.T) {
	os.Setenv("TEST_PORT", "7777")
	defer os.Unsetenv("TEST_PORT")

	dir := t.TempDir()
	writeFile(t, dir, "service.yaml", `
server:
  host: "${TEST_HOST:127.0.0.1}"
  port: ${TEST_PORT}
cache:
  ttl: 1h
`)

	cfg := DefaultConfig()
	if err := LoadFile(filepath.Join(dir, "service.yaml"), cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1 (default), got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777, got %d", cfg.Server.Port)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("expected ttl 1h, got %s", cfg.Cache.TTL)
	}
	// Unset fields keep their defaults.
	if cfg.Cache.CompressThreshold != 1024 {
		t.Errorf("expected default compress threshold, got %d", cfg.Cache.CompressThreshold)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	var cfg Config
	err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), &cfg)
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestLoader_LoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ServiceFile, "service:\n  name: llm-proxy\n  version: 1.2.3\n")
	writeFile(t, dir, ProviderFile, "api_key: sk-test\n")

	l := NewLoader(dir, testLogger())
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := l.Config()
	if cfg.Server.Port != 8007 {
		t.Errorf("expected default port 8007, got %d", cfg.Server.Port)
	}
	if cfg.Cache.Backend != BackendRedis || cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("unexpected cache defaults %+v", cfg.Cache)
	}
	if cfg.Service.Version != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %s", cfg.Service.Version)
	}

	p := l.Provider()
	if p.APIKey != "sk-test" {
		t.Errorf("expected api key from file, got %q", p.APIKey)
	}
	if p.DefaultChatModel != "gpt-4o-mini" || p.DefaultVisionModel != "gpt-4o" {
		t.Errorf("unexpected default models %q / %q", p.DefaultChatModel, p.DefaultVisionModel)
	}
	if p.VisionSystemPrompt != "You are an expert in image understanding." {
		t.Errorf("unexpected vision prompt %q", p.VisionSystemPrompt)
	}
}

func TestLoader_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		service  string
		provider string
		wantErr  string
	}{
		{"unknown backend", "cache:\n  backend: memcached\n", "", "unknown backend"},
		{"bad port", "server:\n  port: 70000\n", "", "server.port"},
		{"zero ttl", "cache:\n  ttl: 0s\n", "", "cache.ttl"},
		{"empty sqlite path", "cache:\n  backend: sqlite\nsqlite:\n  path: \"\"\n", "", "sqlite.path"},
		{"unsupported provider", "", "type: anthropic\n", "unsupported type"},
		{"malformed yaml", "server: [\n", "", "parse config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, ServiceFile, tt.service)
			writeFile(t, dir, ProviderFile, tt.provider)

			err := NewLoader(dir, testLogger()).Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoader_FailedLoadKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ServiceFile, "cache:\n  backend: memory\n")
	writeFile(t, dir, ProviderFile, "")

	l := NewLoader(dir, testLogger())
	if err := l.Load(); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, ServiceFile, "cache:\n  backend: nope\n")
	if err := l.Load(); err == nil {
		t.Fatal("expected reload to fail")
	}
	if l.Config().Cache.Backend != BackendMemory {
		t.Errorf("expected previous config to remain, got backend %q", l.Config().Cache.Backend)
	}
}

func TestLoader_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ServiceFile, "cache:\n  backend: memory\n")
	writeFile(t, dir, ProviderFile, "default_chat_model: gpt-4o-mini\n")

	l := NewLoader(dir, testLogger())
	if err := l.Load(); err != nil {
		t.Fatal(err)
	}
	reloaded := make(chan struct{}, 10)
	l.OnReload(func() { reloaded <- struct{}{} })
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer l.Close()

	writeFile(t, dir, ProviderFile, "default_chat_model: gpt-4.1-mini\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-reloaded:
			if l.Provider().DefaultChatModel == "gpt-4.1-mini" {
				return
			}
		case <-deadline:
			t.Fatal("config was not reloaded")
		}
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "llmcache", User: "u", Password: "p", MaxOpenConns: 8}
	want := "postgres://u:p@db:5432/llmcache?sslmode=disable&pool_max_conns=8"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestTelemetryConfig_Level(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := (TelemetryConfig{LogLevel: tt.in}).Level(); got != tt.want {
			t.Errorf("Level(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
