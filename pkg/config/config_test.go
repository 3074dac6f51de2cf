package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fmpfmp/mediaforge/pkg/config"
)

func TestLoadDefaultsWhenFileAbsent(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if cfg.Server.Bind != "127.0.0.1:8080" {
		t.Fatalf("unexpected bind: %q", cfg.Server.Bind)
	}
	if cfg.Server.TokenTTLMinutes != 60 {
		t.Fatalf("unexpected token ttl: %d", cfg.Server.TokenTTLMinutes)
	}
	if cfg.Store.Driver != "memory" {
		t.Fatalf("unexpected store driver: %q", cfg.Store.Driver)
	}
	wantPath := filepath.Join(tempHome, ".local", "share", "mediaforge", "jobs.db")
	if cfg.Store.Path != wantPath {
		t.Fatalf("unexpected store path: got %q want %q", cfg.Store.Path, wantPath)
	}
	if !cfg.Server.AuthOptional {
		t.Fatal("expected auth optional in the credential-free defaults")
	}
}

func TestLoadParsesFileAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
bind = "0.0.0.0:9090"
jwt_secret = "s3cret"
api_keys = ["mf_abc"]

[tools]
ffmpeg_path = "~/bin/ffmpeg"

[store]
driver = "SQLite"
path = "~/data/jobs.db"

[staging]
work_dir = "~/scratch"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}

	if cfg.Server.Bind != "0.0.0.0:9090" {
		t.Fatalf("unexpected bind: %q", cfg.Server.Bind)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Fatalf("expected driver normalized to lowercase, got %q", cfg.Store.Driver)
	}
	if cfg.Store.Path != filepath.Join(tempHome, "data", "jobs.db") {
		t.Fatalf("unexpected store path: %q", cfg.Store.Path)
	}
	if cfg.Tools.FFmpegPath != filepath.Join(tempHome, "bin", "ffmpeg") {
		t.Fatalf("unexpected ffmpeg path: %q", cfg.Tools.FFmpegPath)
	}
	if cfg.Staging.WorkDir != filepath.Join(tempHome, "scratch") {
		t.Fatalf("unexpected work dir: %q", cfg.Staging.WorkDir)
	}
}

func TestLoadRejectsInvalidDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
jwt_secret = "s3cret"

[store]
driver = "postgres"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for unsupported store driver")
	}
	if !strings.Contains(err.Error(), "store.driver") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRequiresCredentialsUnlessOptional(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
bind = "127.0.0.1:8080"
auth_optional = false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error when auth is required but no credentials configured")
	}

	optional := `
[server]
auth_optional = true
`
	if err := os.WriteFile(path, []byte(optional), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := config.Load(path); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[server]") {
		t.Fatal("sample config missing [server] section")
	}

	// Sample must parse with auth_optional flipped on.
	content := strings.Replace(string(data), "auth_optional = false", "auth_optional = true", 1)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
}
