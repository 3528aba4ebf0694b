package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/Siencmd/darkbroad/internal/pkg/logger"
	"github.com/Siencmd/darkbroad/internal/realtime"
)

const memoryBuffer = 64

// MemoryBus is an in-process Bus for single-instance deployments and tests.
type MemoryBus struct {
	mu     sync.RWMutex
	log    *logger.Logger
	subs   map[string]map[*memorySubscription]struct{}
	closed bool
}

func NewMemoryBus(log *logger.Logger) *MemoryBus {
	if log == nil {
		log = logger.Nop()
	}
	return &MemoryBus{
		log:  log.With("service", "MemoryBus"),
		subs: make(map[string]map[*memorySubscription]struct{}),
	}
}

// Publish never blocks. A subscriber with a full buffer already has pending
// invalidations queued, so the message is dropped for it.
func (b *MemoryBus) Publish(ctx context.Context, msg realtime.SSEMessage) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("memory bus closed")
	}
	for s := range b.subs[msg.Channel] {
		s.deliver(b.log, msg)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("at least one channel required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("memory bus closed")
	}
	s := &memorySubscription{
		bus:      b,
		channels: append([]string(nil), channels...),
		out:      make(chan realtime.SSEMessage, memoryBuffer),
	}
	for _, ch := range channels {
		set, ok := b.subs[ch]
		if !ok {
			set = make(map[*memorySubscription]struct{})
			b.subs[ch] = set
		}
		set[s] = struct{}{}
	}
	return s, nil
}

func (b *MemoryBus) remove(s *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range s.channels {
		if set, ok := b.subs[ch]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(b.subs, ch)
			}
		}
	}
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*memorySubscription
	for _, set := range b.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	b.mu.Unlock()

	for _, s := range all {
		_ = s.Close()
	}
	return nil
}

type memorySubscription struct {
	bus      *MemoryBus
	channels []string
	mu       sync.Mutex
	out      chan realtime.SSEMessage
	closed   bool
}

func (s *memorySubscription) deliver(log *logger.Logger, msg realtime.SSEMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- msg:
	default:
		log.Warn("Dropping bus message; subscriber buffer full", "channel", msg.Channel)
	}
}

func (s *memorySubscription) Messages() <-chan realtime.SSEMessage { return s.out }

func (s *memorySubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.out)
	s.mu.Unlock()

	s.bus.remove(s)
	return nil
}
