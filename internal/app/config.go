package app

import (
	"strconv"
	"strings"
	"time"

	"github.com/Siencmd/darkbroad/internal/coordinator"
	"github.com/Siencmd/darkbroad/internal/data/db"
	"github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/observability"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
	"github.com/Siencmd/darkbroad/internal/utils"
)

const (
	BusRedis  = "redis"
	BusMemory = "memory"

	// DriverMemory keeps the remote store in process. Useful for demos and tests.
	DriverMemory = "memory"
)

type Config struct {
	HTTPAddr    string
	CORSOrigins []string

	RemoteDriver string
	DB           db.Config

	RealtimeBus        string
	RedisAddr          string
	RedisChannelPrefix string

	LocalCachePath string

	Debounce    time.Duration
	EchoWindow  time.Duration
	MaxSubjects int

	// Actor is the session started at boot. Empty ActorID falls back to the
	// cached claim.
	Actor course.Claim

	Otel observability.OtelConfig
}

func LoadConfig(log *logger.Logger) Config {
	ratio, err := strconv.ParseFloat(utils.GetEnv("OTEL_SAMPLE_RATIO", "1", log), 64)
	if err != nil {
		ratio = 1
	}
	return Config{
		HTTPAddr:    utils.GetEnv("HTTP_ADDR", ":8080", log),
		CORSOrigins: splitList(utils.GetEnv("CORS_ORIGINS", "", log)),

		RemoteDriver: strings.ToLower(strings.TrimSpace(utils.GetEnv("REMOTE_DRIVER", db.DriverPostgres, log))),
		DB: db.Config{
			Driver:           utils.GetEnv("REMOTE_DRIVER", db.DriverPostgres, log),
			PostgresHost:     utils.GetEnv("POSTGRES_HOST", "localhost", log),
			PostgresPort:     utils.GetEnv("POSTGRES_PORT", "5432", log),
			PostgresUser:     utils.GetEnv("POSTGRES_USER", "postgres", log),
			PostgresPassword: utils.GetEnv("POSTGRES_PASSWORD", "", log),
			PostgresName:     utils.GetEnv("POSTGRES_NAME", "darkbroad", log),
			SQLitePath:       utils.GetEnv("SQLITE_PATH", "data/remote.db", log),
		},

		RealtimeBus:        strings.ToLower(strings.TrimSpace(utils.GetEnv("REALTIME_BUS", BusMemory, log))),
		RedisAddr:          utils.GetEnv("REDIS_ADDR", "", log),
		RedisChannelPrefix: utils.GetEnv("REDIS_CHANNEL_PREFIX", "sync", log),

		LocalCachePath: utils.GetEnv("LOCAL_CACHE_PATH", "data/local_cache.db", log),

		Debounce:    utils.GetEnvAsDuration("SYNC_DEBOUNCE_MS", coordinator.DefaultDebounce, log),
		EchoWindow:  utils.GetEnvAsDuration("SYNC_ECHO_WINDOW_MS", coordinator.DefaultEchoWindow, log),
		MaxSubjects: utils.GetEnvAsInt("MAX_SUBJECTS", course.MaxSubjects, log),

		Actor: course.Claim{
			ActorID: utils.GetEnv("ACTOR_ID", "", log),
			Name:    utils.GetEnv("ACTOR_NAME", "", log),
			Role:    utils.GetEnv("ACTOR_ROLE", "", log),
			Course:  utils.GetEnv("ACTOR_COURSE", "", log),
		}.Normalized(),

		Otel: observability.OtelConfig{
			Enabled:     utils.GetEnvAsBool("OTEL_ENABLED", false, log),
			ServiceName: utils.GetEnv("OTEL_SERVICE_NAME", "darkbroad", log),
			Environment: utils.GetEnv("OTEL_ENVIRONMENT", "development", log),
			Version:     utils.GetEnv("OTEL_SERVICE_VERSION", "", log),
			Endpoint:    utils.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "", log),
			Headers:     utils.GetEnv("OTEL_EXPORTER_OTLP_HEADERS", "", log),
			Insecure:    utils.GetEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true, log),
			SampleRatio: ratio,
		},
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
