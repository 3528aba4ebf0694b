package app

import (
	"fmt"

	"github.com/Siencmd/darkbroad/internal/data/db"
	"github.com/Siencmd/darkbroad/internal/data/repos"
	"github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/localcache"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
	"github.com/Siencmd/darkbroad/internal/realtime/bus"
	"github.com/Siencmd/darkbroad/internal/remote"
)

// Clients are the process-level connections. Close releases them in reverse
// order of creation.
type Clients struct {
	DB    *db.Service
	Bus   bus.Bus
	Cache *localcache.Cache
	Store remote.Store
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	var (
		b   bus.Bus
		err error
	)
	switch cfg.RealtimeBus {
	case BusRedis:
		b, err = bus.NewRedisBus(bus.RedisConfig{Addr: cfg.RedisAddr, ChannelPrefix: cfg.RedisChannelPrefix}, log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis bus: %w", err)
		}
	case BusMemory, "":
		b = bus.NewMemoryBus(log)
	default:
		return Clients{}, fmt.Errorf("unknown REALTIME_BUS %q", cfg.RealtimeBus)
	}

	cache, err := localcache.Open(cfg.LocalCachePath, cfg.MaxSubjects, log)
	if err != nil {
		_ = b.Close()
		return Clients{}, fmt.Errorf("init local cache: %w", err)
	}

	out := Clients{Bus: b, Cache: cache}
	if cfg.RemoteDriver == DriverMemory {
		mem := remote.NewMemoryStore(b, cfg.MaxSubjects, log)
		if cfg.Actor.ActorID != "" {
			mem.SetProfile(course.Profile{ActorID: cfg.Actor.ActorID, Role: cfg.Actor.Role, Course: cfg.Actor.Course})
		}
		out.Store = mem
		return out, nil
	}

	dbs, err := db.NewService(cfg.DB, log)
	if err != nil {
		_ = cache.Close()
		_ = b.Close()
		return Clients{}, fmt.Errorf("init remote store: %w", err)
	}
	out.DB = dbs
	out.Store = remote.NewGormStore(repos.NewSet(dbs.DB(), log), b, cfg.MaxSubjects, log)
	return out, nil
}

func (c Clients) Close(log *logger.Logger) {
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			log.Warn("Closing remote store failed", "error", err)
		}
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			log.Warn("Closing local cache failed", "error", err)
		}
	}
	if c.Bus != nil {
		if err := c.Bus.Close(); err != nil {
			log.Warn("Closing realtime bus failed", "error", err)
		}
	}
}
