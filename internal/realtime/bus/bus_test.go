package bus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Siencmd/darkbroad/internal/pkg/logger"
	"github.com/Siencmd/darkbroad/internal/realtime"
)

func recv(t *testing.T, sub Subscription) realtime.SSEMessage {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for bus message")
	}
	return realtime.SSEMessage{}
}

func expectSilence(t *testing.T, sub Subscription) {
	t.Helper()
	select {
	case msg := <-sub.Messages():
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func exerciseBus(t *testing.T, b Bus) {
	t.Helper()
	ctx := context.Background()
	course := uuid.NewString()
	subjects := realtime.SubjectsChannel(course)
	items := realtime.SubmissionsChannel(course, "tasks", "t1")

	sub, err := b.Subscribe(ctx, subjects, items)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	other, err := b.Subscribe(ctx, realtime.SubjectsChannel("elsewhere-"+course))
	if err != nil {
		t.Fatalf("Subscribe other: %v", err)
	}
	defer other.Close()

	if err := b.Publish(ctx, realtime.SSEMessage{Channel: subjects, Event: realtime.SSEEventSubjectsChanged}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := b.Publish(ctx, realtime.SSEMessage{Channel: items, Event: realtime.SSEEventSubmissionsChanged}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	first := recv(t, sub)
	if first.Channel != subjects || first.Event != realtime.SSEEventSubjectsChanged {
		t.Fatalf("first: got=%+v", first)
	}
	second := recv(t, sub)
	if second.Channel != items || second.Event != realtime.SSEEventSubmissionsChanged {
		t.Fatalf("second: got=%+v", second)
	}
	expectSilence(t, other)

	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = sub.Close()
	select {
	case _, ok := <-sub.Messages():
		if ok {
			t.Fatalf("messages should be closed after Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("messages channel not closed")
	}
}

func TestMemoryBus(t *testing.T) {
	b := NewMemoryBus(logger.Nop())
	t.Cleanup(func() { _ = b.Close() })
	exerciseBus(t, b)
}

func TestMemoryBusCloseEndsSubscriptions(t *testing.T) {
	b := NewMemoryBus(nil)
	sub, err := b.Subscribe(context.Background(), "c")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	_ = b.Close()
	if _, ok := <-sub.Messages(); ok {
		t.Fatalf("bus close should close subscriptions")
	}
	if err := b.Publish(context.Background(), realtime.SSEMessage{Channel: "c"}); err == nil {
		t.Fatalf("publish after close should fail")
	}
}

func TestRedisBus(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	b, err := NewRedisBus(RedisConfig{Addr: addr, ChannelPrefix: "test-" + uuid.NewString()}, logger.Nop())
	if err != nil {
		t.Fatalf("NewRedisBus: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	exerciseBus(t, b)
}
