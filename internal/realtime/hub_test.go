package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Siencmd/darkbroad/internal/pkg/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubReconnectAndOrdering(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := ActorChannel("u1")

	clientA := hub.NewSSEClient("u1")
	hub.AddChannel(clientA, channel)

	first := SSEMessage{Channel: channel, Event: SSEEventSubjectsRendered, Data: map[string]any{"seq": 1}}
	second := SSEMessage{Channel: channel, Event: SSEEventSyncStatus, Data: map[string]any{"seq": 2}}
	hub.Broadcast(first)
	hub.Broadcast(second)

	gotFirst := recvMessage(t, clientA.Outbound, time.Second)
	gotSecond := recvMessage(t, clientA.Outbound, time.Second)
	if gotFirst.Event != SSEEventSubjectsRendered {
		t.Fatalf("first event: want=%s got=%s", SSEEventSubjectsRendered, gotFirst.Event)
	}
	if gotSecond.Event != SSEEventSyncStatus {
		t.Fatalf("second event: want=%s got=%s", SSEEventSyncStatus, gotSecond.Event)
	}

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	select {
	case _, ok := <-clientA.Outbound:
		if ok {
			t.Fatalf("clientA outbound should be closed after disconnect")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for clientA channel close")
	}
	if n := hub.ClientCount(channel); n != 0 {
		t.Fatalf("clients after close: want=0 got=%d", n)
	}

	clientB := hub.NewSSEClient("u1")
	hub.AddChannel(clientB, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventSubmissionCount})
	if got := recvMessage(t, clientB.Outbound, time.Second); got.Event != SSEEventSubmissionCount {
		t.Fatalf("reconnect event: want=%s got=%s", SSEEventSubmissionCount, got.Event)
	}
}

func TestSSEHubDropsWhenBufferFull(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := ActorChannel("u2")
	client := hub.NewSSEClient("u2")
	hub.AddChannel(client, channel)

	for i := 0; i < outboundBuffer+5; i++ {
		hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventSyncStatus})
	}
	if n := len(client.Outbound); n != outboundBuffer {
		t.Fatalf("buffered: want=%d got=%d", outboundBuffer, n)
	}
}

func TestSSEHubServeHTTPWritesEvents(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	client := hub.NewSSEClient("u3")
	hub.AddChannel(client, ActorChannel("u3"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	done := make(chan struct{})
	go func() {
		hub.ServeHTTP(rec, req, client)
		close(done)
	}()

	hub.Broadcast(SSEMessage{Channel: ActorChannel("u3"), Event: SSEEventSubjectsRendered, Data: []string{}})
	deadline := time.Now().Add(time.Second)
	for len(client.Outbound) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	hub.CloseClient(client)
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, "event: SubjectsRendered") {
		t.Fatalf("stream body missing event line: %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: want=text/event-stream got=%s", ct)
	}
}
