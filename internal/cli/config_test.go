package cli

import (
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfig(t *testing.T) {
	got, err := LoadConfig()
	if err != nil {
		t.Fatal("LoadConfig() failed:", err)
	}
	if diff := cmp.Diff(Config{Format: "yaml", LogLevel: "warn"}, got); diff != "" {
		t.Errorf("default config mismatch (-want +got):\n%s", diff)
	}

	t.Setenv("ENTITYCTL_FORMAT", "json")
	t.Setenv("ENTITYCTL_LOG_LEVEL", "debug")
	got, err = LoadConfig()
	if err != nil {
		t.Fatal("LoadConfig() failed:", err)
	}
	if diff := cmp.Diff(Config{Format: "json", LogLevel: "debug"}, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{"debug": slog.LevelDebug, "INFO": slog.LevelInfo, "warn": slog.LevelWarn, "error": slog.LevelError} {
		got, err := parseLevel(name)
		if err != nil || got != want {
			t.Errorf("parseLevel(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := parseLevel("loud"); err == nil {
		t.Error("parseLevel(loud) succeeded")
	}
}
