package app

import (
	"testing"
	"time"

	"github.com/Siencmd/darkbroad/internal/coordinator"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"SYNC_DEBOUNCE_MS", "SYNC_ECHO_WINDOW_MS", "MAX_SUBJECTS", "REALTIME_BUS", "ACTOR_ID"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig(logger.Nop())
	// Empty values parse as invalid ints and fall back to defaults.
	if cfg.Debounce != coordinator.DefaultDebounce || cfg.EchoWindow != coordinator.DefaultEchoWindow {
		t.Fatalf("timers: debounce=%v echo=%v", cfg.Debounce, cfg.EchoWindow)
	}
	if cfg.MaxSubjects != 10 {
		t.Fatalf("max subjects: want=10 got=%d", cfg.MaxSubjects)
	}
	if cfg.Actor.ActorID != "" {
		t.Fatalf("actor: got=%+v", cfg.Actor)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SYNC_DEBOUNCE_MS", "250")
	t.Setenv("REALTIME_BUS", " Redis ")
	t.Setenv("ACTOR_ID", " teach ")
	t.Setenv("ACTOR_ROLE", "Instructor")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg := LoadConfig(logger.Nop())
	if cfg.Debounce != 250*time.Millisecond {
		t.Fatalf("debounce: want=250ms got=%v", cfg.Debounce)
	}
	if cfg.RealtimeBus != BusRedis {
		t.Fatalf("bus: want=%s got=%q", BusRedis, cfg.RealtimeBus)
	}
	if cfg.Actor.ActorID != "teach" || cfg.Actor.Role != "instructor" {
		t.Fatalf("actor: got=%+v", cfg.Actor)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("cors: got=%v", cfg.CORSOrigins)
	}
}
