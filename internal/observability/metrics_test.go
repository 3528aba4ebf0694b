package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsHandlerExposesSyncCounters(t *testing.T) {
	m := NewMetrics()
	m.PushResult("pushed")
	m.PushResult("pushed")
	m.PushResult("")
	m.EchoSuppressed()
	m.Fallback()
	m.RemoteApplied()
	m.ObserveAPI("GET", "/api/subjects", "200", 15*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`darkbroad_sync_push_total{outcome="pushed"} 2`,
		`darkbroad_sync_push_total{outcome="unknown"} 1`,
		`darkbroad_sync_echo_suppressed_total 1`,
		`darkbroad_sync_local_only_fallback_total 1`,
		`darkbroad_sync_remote_applied_total 1`,
		`darkbroad_api_requests_total{method="GET",route="/api/subjects",status="200"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in exposition:\n%s", want, out)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.PushResult("pushed")
	m.EchoSuppressed()
	m.Fallback()
	m.RemoteApplied()
	m.SetSSEClients(3)
	m.ApiInflightInc()
	m.ApiInflightDec()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 503 {
		t.Fatalf("nil handler status: want=503 got=%d", rec.Code)
	}
}

func TestParseHeaders(t *testing.T) {
	got := parseHeaders(" a=1 , b = 2,broken,=x")
	if len(got) != 2 || got["a"] != "1" || got["b"] != "2" {
		t.Fatalf("parseHeaders: got=%v", got)
	}
	if parseHeaders("") != nil {
		t.Fatalf("empty headers should be nil")
	}
}
