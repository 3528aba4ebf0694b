package realtime

import (
	"github.com/google/uuid"

	"github.com/Siencmd/darkbroad/internal/pkg/logger"
)

type SSEClient struct {
	ID       uuid.UUID
	ActorID  string
	Channels map[string]bool
	Outbound chan SSEMessage
	done     chan struct{}
	Logger   *logger.Logger
}
