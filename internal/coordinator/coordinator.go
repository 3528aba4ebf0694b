package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/domain/syncerr"
	"github.com/Siencmd/darkbroad/internal/listener"
	"github.com/Siencmd/darkbroad/internal/normalization"
	"github.com/Siencmd/darkbroad/internal/permission"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
)

var (
	ErrClosed       = errors.New("coordinator closed")
	ErrSessionReset = errors.New("session reset before sync completed")
)

// Coordinator owns the sync state machine of one course session. Every
// transition runs on a single loop goroutine; remote I/O runs on helper
// goroutines that post their results back to the loop.
type Coordinator struct {
	cfg     Config
	clock   clock.Clock
	cache   Cache
	gate    Gate
	remote  Remote
	source  Source
	metrics Metrics
	log     *logger.Logger
	tracer  trace.Tracer

	ctx      context.Context
	cancel   context.CancelFunc
	cmds     chan func()
	done     chan struct{}
	loopDone chan struct{}
	once     sync.Once
	notify   *notifier

	statusMu   sync.Mutex
	lastStatus Status

	// Loop-owned below.
	state            State
	claim            course.Claim
	canWrite         bool
	sessionGen       uint64
	feed             listener.Feed
	updates          <-chan listener.Update
	countsUnsub      listener.Unsubscribe
	debounce         *clock.Timer
	debounceGen      uint64
	echoSuppressed   bool
	echoTimer        *clock.Timer
	echoGen          uint64
	lastSyncedHash   string
	remoteAbsent     bool
	dirty            bool
	pushQueued       bool
	pushFromFallback bool
	waiters          []chan error
	queuedWaiters    []chan error
	notice           string
	lastError        string
	lastPushAt       time.Time
}

func New(deps Deps, cfg Config, log *logger.Logger) *Coordinator {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:      cfg,
		clock:    cfg.Clock,
		cache:    deps.Cache,
		gate:     deps.Gate,
		remote:   deps.Remote,
		source:   deps.Source,
		metrics:  deps.Metrics,
		log:      log.With("component", "SyncCoordinator"),
		tracer:   otel.Tracer("darkbroad/coordinator"),
		ctx:      ctx,
		cancel:   cancel,
		cmds:     make(chan func()),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		notify:   newNotifier(),
		state:    StateIdle,
	}
	go c.loop()
	return c
}

func (c *Coordinator) loop() {
	defer close(c.loopDone)
	for {
		select {
		case <-c.done:
			c.teardown()
			return
		case fn := <-c.cmds:
			fn()
		case u, ok := <-c.updates:
			if !ok {
				c.updates = nil
				continue
			}
			c.applyRemote(u)
		}
		c.storeStatus()
	}
}

// post queues fn on the loop. It reports false once the coordinator is closed.
func (c *Coordinator) post(fn func()) bool {
	select {
	case c.cmds <- fn:
		return true
	case <-c.done:
		return false
	}
}

// call runs fn on the loop and waits for it to finish.
func (c *Coordinator) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case c.cmds <- wrapped:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// OnChange registers a render callback. Callbacks run in emission order on a
// dedicated goroutine.
func (c *Coordinator) OnChange(fn func(Change)) {
	if fn != nil {
		c.notify.add(fn)
	}
}

// Reset starts a new session for claim: the listener, timers and flags of the
// previous session are dropped, the gate is re-resolved and, when the actor may
// read the course, the listener is re-subscribed. The returned error is the
// gate's; the session is live either way.
func (c *Coordinator) Reset(ctx context.Context, claim course.Claim) error {
	result := make(chan error, 1)
	if err := c.call(ctx, func() { c.resetSession(claim, result) }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// Mutate applies update to the local list. The change is validated, written to
// the local cache and rendered before Mutate returns; the remote push follows
// after the debounce delay.
func (c *Coordinator) Mutate(ctx context.Context, update func([]course.Subject) ([]course.Subject, error)) error {
	var err error
	if callErr := c.call(ctx, func() { err = c.mutate(update, false) }); callErr != nil {
		return callErr
	}
	return err
}

// SyncNow pushes the local list immediately, bypassing the debounce. A
// successful sync leaves local-only fallback and re-subscribes.
func (c *Coordinator) SyncNow(ctx context.Context) error {
	return c.requestSync(ctx, false)
}

// Seed writes the local list to a course whose remote document is absent. A
// list cached for another course is refused.
func (c *Coordinator) Seed(ctx context.Context) error {
	return c.requestSync(ctx, true)
}

func (c *Coordinator) requestSync(ctx context.Context, seed bool) error {
	w := make(chan error, 1)
	if err := c.call(ctx, func() {
		if c.listForeign() {
			w <- syncerr.Validation("sync", fmt.Sprintf("the local list belongs to course %q", c.cache.Owner()))
			return
		}
		if seed {
			c.lastSyncedHash = ""
		}
		c.stopDebounce()
		if c.state == StatePushing {
			c.pushQueued = true
			c.queuedWaiters = append(c.queuedWaiters, w)
			return
		}
		c.startPush([]chan error{w})
	}); err != nil {
		return err
	}
	select {
	case err := <-w:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// WatchSubmissionCounts replaces the per-item submission-count watchers of the
// current session.
func (c *Coordinator) WatchSubmissionCounts(ctx context.Context, items []course.ItemRef, onCount func(listener.ItemCount)) error {
	return c.call(ctx, func() {
		c.stopCounts()
		if c.state == StateLocalOnlyFallback || !permission.CanSubscribe(c.claim) {
			return
		}
		c.countsUnsub = c.source.WatchSubmissionCounts(c.ctx, c.claim.ActorID, c.claim.Course, items, onCount, func(err error) {
			c.log.Warn("Submission-count watch error", "course_id", c.claim.Course, "error", err)
		})
	})
}

// Snapshot returns the current status. After Close it returns the last status.
func (c *Coordinator) Snapshot() Status {
	var st Status
	if err := c.call(context.Background(), func() { st = c.status() }); err != nil {
		c.statusMu.Lock()
		defer c.statusMu.Unlock()
		return c.lastStatus
	}
	return st
}

// Subjects returns the local list.
func (c *Coordinator) Subjects() []course.Subject {
	return c.cache.Read()
}

// Close tears the session down. Safe to call more than once.
func (c *Coordinator) Close() error {
	c.once.Do(func() {
		close(c.done)
		<-c.loopDone
	})
	return nil
}

func (c *Coordinator) teardown() {
	c.unsubscribe()
	c.stopCounts()
	c.stopDebounce()
	c.stopEcho()
	c.failWaiters(ErrClosed)
	c.cancel()
	c.storeStatus()
	c.notify.close()
	c.log.Debug("Coordinator closed")
}

func (c *Coordinator) resetSession(claim course.Claim, result chan<- error) {
	c.sessionGen++
	gen := c.sessionGen
	c.unsubscribe()
	c.stopCounts()
	c.stopDebounce()
	c.stopEcho()
	c.failWaiters(ErrSessionReset)
	c.state = StateIdle
	c.dirty = false
	c.pushQueued = false
	c.lastSyncedHash = ""
	c.remoteAbsent = false
	c.notice = ""
	c.lastError = ""
	c.canWrite = false
	c.claim = claim.Normalized()
	c.cache.WriteClaim(c.claim)

	c.log.Info("Session reset", "actor_id", c.claim.ActorID, "course_id", c.claim.Course, "role", c.claim.Role)
	c.emit(SourceReset, c.cache.Read())

	claimAtReset := c.claim
	go func() {
		d, err := c.gate.Resolve(c.ctx, claimAtReset)
		c.post(func() {
			if gen != c.sessionGen {
				if result != nil {
					result <- ErrSessionReset
				}
				return
			}
			if err != nil {
				c.lastError = err.Error()
				c.log.Warn("Gate resolution failed; continuing with cached claim", "error", err)
			} else {
				c.adoptDecision(d)
			}
			c.subscribe()
			c.emit(SourceStatus, nil)
			if result != nil {
				result <- err
			}
		})
	}()
}

// adoptDecision records a gate outcome for the live session.
func (c *Coordinator) adoptDecision(d permission.Decision) {
	c.canWrite = d.CanWrite
	if d.ClaimChanged {
		c.claim = d.Claim
	}
}

func (c *Coordinator) subscribe() {
	c.unsubscribe()
	if !permission.CanSubscribe(c.claim) {
		c.log.Debug("Actor cannot subscribe; staying offline", "actor_id", c.claim.ActorID)
		return
	}
	c.feed = c.source.Subscribe(c.ctx, c.claim.ActorID, c.claim.Course)
	c.updates = c.feed.Updates()
}

func (c *Coordinator) unsubscribe() {
	if c.feed != nil {
		c.feed.Close()
	}
	c.feed = nil
	c.updates = nil
}

func (c *Coordinator) stopCounts() {
	if c.countsUnsub != nil {
		c.countsUnsub()
		c.countsUnsub = nil
	}
}

func (c *Coordinator) armDebounce() {
	c.stopDebounce()
	gen := c.debounceGen
	c.debounce = c.clock.AfterFunc(c.cfg.Debounce, func() {
		c.post(func() {
			if gen == c.debounceGen {
				c.debounce = nil
				c.onDebounce()
			}
		})
	})
}

// stopDebounce invalidates any armed debounce; a late fire is ignored by generation.
func (c *Coordinator) stopDebounce() {
	c.debounceGen++
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
}

func (c *Coordinator) armEcho() {
	c.stopEcho()
	c.echoSuppressed = true
	gen := c.echoGen
	c.echoTimer = c.clock.AfterFunc(c.cfg.EchoWindow, func() {
		c.post(func() {
			if gen == c.echoGen {
				c.echoTimer = nil
				c.echoSuppressed = false
			}
		})
	})
}

func (c *Coordinator) stopEcho() {
	c.echoGen++
	c.echoSuppressed = false
	if c.echoTimer != nil {
		c.echoTimer.Stop()
		c.echoTimer = nil
	}
}

func (c *Coordinator) failWaiters(err error) {
	for _, w := range c.waiters {
		w <- err
	}
	for _, w := range c.queuedWaiters {
		w <- err
	}
	c.waiters, c.queuedWaiters = nil, nil
}

func (c *Coordinator) mode() Mode {
	switch {
	case c.state == StateLocalOnlyFallback:
		return ModeLocalOnly
	case c.feed == nil:
		return ModeOffline
	case c.canWrite:
		return ModeRealtime
	default:
		return ModeReadOnly
	}
}

func (c *Coordinator) status() Status {
	local := c.cache.Read()
	return Status{
		State:          c.state,
		Mode:           c.mode(),
		ActorID:        c.claim.ActorID,
		Role:           c.claim.Role,
		CourseID:       c.claim.Course,
		CanWrite:       c.canWrite,
		Subscribed:     c.feed != nil,
		EchoSuppressed: c.echoSuppressed,
		LocalHash:      normalization.Hash(local),
		SyncedHash:     c.lastSyncedHash,
		RemoteAbsent:   c.remoteAbsent,
		SeedAvailable:  c.remoteAbsent && len(local) > 0 && !c.listForeign(),
		Notice:         c.notice,
		LastError:      c.lastError,
		LastPushAt:     c.lastPushAt,
	}
}

// claimList marks the cached list as the current course's.
func (c *Coordinator) claimList() {
	if c.claim.Course != "" {
		c.cache.SetOwner(c.claim.Course)
	}
}

// listForeign reports whether the cached list was written for another course.
func (c *Coordinator) listForeign() bool {
	owner := c.cache.Owner()
	return owner != "" && owner != c.claim.Course
}

func (c *Coordinator) storeStatus() {
	st := c.status()
	c.statusMu.Lock()
	c.lastStatus = st
	c.statusMu.Unlock()
}

// emit queues a render. A nil list means "status only".
func (c *Coordinator) emit(src ChangeSource, subjects []course.Subject) {
	ch := Change{Source: src, Status: c.status()}
	if subjects != nil {
		ch.Subjects = course.CloneSubjects(subjects)
	}
	c.notify.push(ch)
}
