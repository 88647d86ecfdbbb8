package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != "http://localhost:8000" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestFileAndEnvOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.yaml")
	body := "server_url: https://portal.example.edu\nusername: ada\nroom: 7\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("PORTAL_PASSWORD", "sesame")
	t.Setenv("PORTAL_ROOM", "9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != "https://portal.example.edu" || cfg.Username != "ada" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Password != "sesame" {
		t.Fatalf("env password not applied: %+v", cfg)
	}
	// Environment wins over the file.
	if cfg.Room != 9 {
		t.Fatalf("env room override lost: %+v", cfg)
	}
}

func TestMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestBadRoomEnv(t *testing.T) {
	t.Setenv("PORTAL_ROOM", "not-a-number")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric PORTAL_ROOM")
	}
}
