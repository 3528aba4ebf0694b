package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Siencmd/darkbroad/internal/pkg/logger"
	"github.com/Siencmd/darkbroad/internal/realtime"
)

type RedisConfig struct {
	Addr          string
	ChannelPrefix string
}

type redisBus struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

func NewRedisBus(cfg RedisConfig, log *logger.Logger) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	prefix := strings.TrimSpace(cfg.ChannelPrefix)
	if prefix == "" {
		prefix = "sync"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisBus{
		log:    log.With("service", "RedisBus"),
		rdb:    rdb,
		prefix: prefix + ":",
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, msg realtime.SSEMessage) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis bus not initialized")
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.prefix+msg.Channel, raw).Err()
}

func (b *redisBus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	if b == nil || b.rdb == nil {
		return nil, fmt.Errorf("redis bus not initialized")
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("at least one channel required")
	}
	full := make([]string, len(channels))
	for i, ch := range channels {
		full[i] = b.prefix + ch
	}

	// Outlives ctx: the subscription ends on Close.
	sub := b.rdb.Subscribe(context.Background(), full...)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	rs := &redisSubscription{
		sub:  sub,
		out:  make(chan realtime.SSEMessage, 16),
		done: make(chan struct{}),
	}
	go rs.forward(b.log, b.prefix)
	return rs, nil
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

type redisSubscription struct {
	sub  *goredis.PubSub
	out  chan realtime.SSEMessage
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) forward(log *logger.Logger, prefix string) {
	defer close(s.out)
	ch := s.sub.Channel()
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-ch:
			if !ok || m == nil {
				return
			}
			var msg realtime.SSEMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				log.Warn("bad redis bus payload", "error", err)
				continue
			}
			msg.Channel = strings.TrimPrefix(m.Channel, prefix)
			select {
			case s.out <- msg:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Messages() <-chan realtime.SSEMessage { return s.out }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.sub.Close()
	})
	return err
}
