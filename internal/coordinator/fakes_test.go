package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"

	"github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/listener"
	"github.com/Siencmd/darkbroad/internal/localcache"
	"github.com/Siencmd/darkbroad/internal/permission"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
)

type fakeGate struct {
	mu      sync.Mutex
	calls   int
	resolve func(n int, claim course.Claim) (permission.Decision, error)
}

// writerAware grants writes to writer claims with a course.
func writerAware(_ int, claim course.Claim) (permission.Decision, error) {
	claim = claim.Normalized()
	return permission.Decision{
		Claim:    claim,
		Profile:  &course.Profile{ActorID: claim.ActorID, Role: claim.Role, Course: claim.Course},
		CanWrite: claim.IsWriter() && claim.Course != "",
	}, nil
}

func (g *fakeGate) Resolve(_ context.Context, claim course.Claim) (permission.Decision, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	fn := g.resolve
	g.mu.Unlock()
	if fn == nil {
		fn = writerAware
	}
	return fn(n, claim)
}

func (g *fakeGate) set(fn func(n int, claim course.Claim) (permission.Decision, error)) {
	g.mu.Lock()
	g.resolve = fn
	g.mu.Unlock()
}

type fakeRemote struct {
	mu          sync.Mutex
	putErr      error
	puts        [][]course.Subject
	headers     int
	submissions []course.Submission
	subErr      error
	stored      map[string][]course.Submission
	listErr     error
	lists       int
}

func (r *fakeRemote) PutSubjects(_ context.Context, _, _ string, subjects []course.Subject) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.puts = append(r.puts, course.CloneSubjects(subjects))
	return r.putErr
}

func (r *fakeRemote) UpsertItems(_ context.Context, _, _ string, _ []course.ItemHeader) error {
	r.mu.Lock()
	r.headers++
	r.mu.Unlock()
	return nil
}

func (r *fakeRemote) PutSubmission(_ context.Context, _, _ string, _ course.ItemRef, sub course.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subErr != nil {
		return r.subErr
	}
	r.submissions = append(r.submissions, sub)
	return nil
}

func (r *fakeRemote) ListSubmissions(_ context.Context, _, _ string, ref course.ItemRef) ([]course.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists++
	if r.listErr != nil {
		return nil, r.listErr
	}
	return append([]course.Submission(nil), r.stored[ref.ItemID]...), nil
}

func (r *fakeRemote) store(itemID string, subs ...course.Submission) {
	r.mu.Lock()
	if r.stored == nil {
		r.stored = make(map[string][]course.Submission)
	}
	r.stored[itemID] = append(r.stored[itemID], subs...)
	r.mu.Unlock()
}

func (r *fakeRemote) setPutErr(err error) {
	r.mu.Lock()
	r.putErr = err
	r.mu.Unlock()
}

func (r *fakeRemote) putCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.puts)
}

func (r *fakeRemote) lastPut() []course.Subject {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.puts) == 0 {
		return nil
	}
	return r.puts[len(r.puts)-1]
}

type fakeFeed struct {
	ch     chan listener.Update
	mu     sync.Mutex
	closed bool
}

func (f *fakeFeed) Updates() <-chan listener.Update { return f.ch }

func (f *fakeFeed) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeFeed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeSource struct {
	mu      sync.Mutex
	feeds   []*fakeFeed
	courses []string
	watches int
	unwatch int
}

func (s *fakeSource) Subscribe(_ context.Context, _, courseID string) listener.Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := &fakeFeed{ch: make(chan listener.Update)}
	s.feeds = append(s.feeds, f)
	s.courses = append(s.courses, courseID)
	return f
}

func (s *fakeSource) WatchSubmissionCounts(_ context.Context, _, _ string, items []course.ItemRef, onCount func(listener.ItemCount), _ func(error)) listener.Unsubscribe {
	s.mu.Lock()
	s.watches++
	s.mu.Unlock()
	for _, it := range items {
		onCount(listener.ItemCount{Ref: it})
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.unwatch++
			s.mu.Unlock()
		})
	}
}

func (s *fakeSource) current() *fakeFeed {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.feeds) == 0 {
		return nil
	}
	return s.feeds[len(s.feeds)-1]
}

func (s *fakeSource) subscribeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.feeds)
}

// send delivers u on the live feed and waits until the loop has taken it.
func (s *fakeSource) send(t *testing.T, u listener.Update) {
	t.Helper()
	f := s.current()
	if f == nil {
		t.Fatalf("no subscription to deliver on")
	}
	select {
	case f.ch <- u:
	case <-time.After(2 * time.Second):
		t.Fatalf("coordinator did not read the update")
	}
}

type countingMetrics struct {
	mu       sync.Mutex
	results  map[string]int
	echoes   int
	fallback int
	applied  int
}

func (m *countingMetrics) PushResult(r string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		m.results = map[string]int{}
	}
	m.results[r]++
}

func (m *countingMetrics) EchoSuppressed() {
	m.mu.Lock()
	m.echoes++
	m.mu.Unlock()
}

func (m *countingMetrics) Fallback() {
	m.mu.Lock()
	m.fallback++
	m.mu.Unlock()
}

func (m *countingMetrics) RemoteApplied() {
	m.mu.Lock()
	m.applied++
	m.mu.Unlock()
}

func (m *countingMetrics) snapshot() (echoes, fallback, applied int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.echoes, m.fallback, m.applied
}

type changeLog struct {
	mu      sync.Mutex
	changes []Change
}

func (l *changeLog) record(ch Change) {
	l.mu.Lock()
	l.changes = append(l.changes, ch)
	l.mu.Unlock()
}

func (l *changeLog) count(src ChangeSource) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ch := range l.changes {
		if ch.Source == src {
			n++
		}
	}
	return n
}

func (l *changeLog) last(src ChangeSource) (Change, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.changes) - 1; i >= 0; i-- {
		if l.changes[i].Source == src {
			return l.changes[i], true
		}
	}
	return Change{}, false
}

type harness struct {
	c       *Coordinator
	clock   *clock.Mock
	cache   *localcache.Cache
	gate    *fakeGate
	remote  *fakeRemote
	source  *fakeSource
	metrics *countingMetrics
	changes *changeLog
}

var (
	instructor = course.Claim{ActorID: "teach", Name: "Ms. T", Role: course.RoleInstructor, Course: "C"}
	student    = course.Claim{ActorID: "stud", Name: "Sam", Role: course.RoleStudent, Course: "C"}
)

func newHarness(t *testing.T, claim course.Claim) *harness {
	t.Helper()
	h := &harness{
		clock:   clock.NewMock(),
		cache:   localcache.NewMemory(course.MaxSubjects, logger.Nop()),
		gate:    &fakeGate{},
		remote:  &fakeRemote{},
		source:  &fakeSource{},
		metrics: &countingMetrics{},
		changes: &changeLog{},
	}
	h.c = New(Deps{
		Cache:   h.cache,
		Gate:    h.gate,
		Remote:  h.remote,
		Source:  h.source,
		Metrics: h.metrics,
	}, Config{Clock: h.clock}, logger.Nop())
	h.c.OnChange(h.changes.record)
	t.Cleanup(func() { _ = h.c.Close() })

	if err := h.c.Reset(context.Background(), claim); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	return h
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// settle lets in-flight goroutines post back to the loop.
func settle() { time.Sleep(30 * time.Millisecond) }

func (h *harness) state() State { return h.c.Snapshot().State }

func addSubject(id, name string) func([]course.Subject) ([]course.Subject, error) {
	return func(list []course.Subject) ([]course.Subject, error) {
		return append(list, course.Subject{ID: id, Name: name}), nil
	}
}
