package app

import (
	"github.com/Siencmd/darkbroad/internal/coordinator"
	"github.com/Siencmd/darkbroad/internal/listener"
	"github.com/Siencmd/darkbroad/internal/observability"
	"github.com/Siencmd/darkbroad/internal/permission"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
)

type Services struct {
	Gate        *permission.Gate
	Listener    *listener.Listener
	Coordinator *coordinator.Coordinator
}

func wireServices(log *logger.Logger, cfg Config, clients Clients, metrics *observability.Metrics) Services {
	log.Info("Wiring services...")

	gate := permission.New(clients.Store, clients.Cache, log)
	lst := listener.New(clients.Store, clients.Bus, log)

	deps := coordinator.Deps{
		Cache:   clients.Cache,
		Gate:    gate,
		Remote:  clients.Store,
		Source:  lst,
		// Metrics methods are nil-safe.
		Metrics: metrics,
	}
	coord := coordinator.New(deps, coordinator.Config{
		Debounce:    cfg.Debounce,
		EchoWindow:  cfg.EchoWindow,
		MaxSubjects: cfg.MaxSubjects,
	}, log)

	return Services{
		Gate:        gate,
		Listener:    lst,
		Coordinator: coord,
	}
}
