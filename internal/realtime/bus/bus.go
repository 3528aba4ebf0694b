package bus

import (
	"context"

	"github.com/Siencmd/darkbroad/internal/realtime"
)

// Bus carries invalidation messages between remote writers and listeners.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	// Subscribe starts delivery for channels. The subscription is live when
	// Subscribe returns.
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
	Close() error
}

// Subscription delivers messages until Close. Messages is closed afterwards.
// Close is idempotent.
type Subscription interface {
	Messages() <-chan realtime.SSEMessage
	Close() error
}
