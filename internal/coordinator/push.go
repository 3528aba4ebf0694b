package coordinator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/domain/syncerr"
	"github.com/Siencmd/darkbroad/internal/normalization"
	"github.com/Siencmd/darkbroad/internal/permission"
)

type pushOutcome string

const (
	pushPushed          pushOutcome = "pushed"
	pushNoop            pushOutcome = "noop"
	pushSkipped         pushOutcome = "skipped"
	pushTransient       pushOutcome = "transient"
	pushDeniedWriter    pushOutcome = "denied_writer"
	pushDeniedNonWriter pushOutcome = "denied_nonwriter"
)

type pushResult struct {
	outcome  pushOutcome
	hash     string
	decision permission.Decision
	resolved bool
	err      error
}

func (c *Coordinator) onDebounce() {
	switch c.state {
	case StatePushing:
		c.pushQueued = true
	case StateLocalOnlyFallback:
	default:
		c.startPush(nil)
	}
}

// startPush snapshots the local list and pushes it off-loop. At most one push
// is in flight; later requests queue behind it.
func (c *Coordinator) startPush(waiters []chan error) {
	c.stopDebounce()
	subjects := c.cache.Read()
	hash := normalization.Hash(subjects)
	claim := c.claim
	synced := c.lastSyncedHash
	gen := c.sessionGen

	c.pushFromFallback = c.state == StateLocalOnlyFallback
	c.state = StatePushing
	c.pushQueued = false
	c.dirty = false
	c.waiters = append(c.waiters, waiters...)
	c.stopEcho()
	c.echoSuppressed = true
	c.emit(SourceStatus, nil)

	go func() {
		res := c.push(c.ctx, claim, subjects, hash, synced)
		c.post(func() { c.finishPush(gen, res) })
	}()
}

func (c *Coordinator) push(ctx context.Context, claim course.Claim, subjects []course.Subject, hash, synced string) pushResult {
	ctx, span := c.tracer.Start(ctx, "coordinator.push")
	defer span.End()
	span.SetAttributes(
		attribute.String("course_id", claim.Course),
		attribute.String("actor_id", claim.ActorID),
		attribute.Int("subjects", len(subjects)),
	)

	res := pushResult{hash: hash}
	d, err := c.gate.Resolve(ctx, claim)
	if err != nil {
		res.outcome, res.err = pushTransient, syncerr.Classify("push.resolve", err)
		span.SetStatus(codes.Error, err.Error())
		return res
	}
	res.decision, res.resolved = d, true
	if !d.CanWrite {
		res.outcome = pushSkipped
		res.err = syncerr.PermissionDenied("push", "actor cannot write to this course")
		return res
	}
	if hash == synced {
		res.outcome = pushNoop
		return res
	}

	err = c.remote.PutSubjects(ctx, d.Claim.ActorID, d.Claim.Course, subjects)
	if err == nil {
		if herr := c.remote.UpsertItems(ctx, d.Claim.ActorID, d.Claim.Course, course.Headers(subjects)); herr != nil {
			c.log.Warn("Item header upsert failed", "course_id", d.Claim.Course, "error", herr)
		}
		res.outcome = pushPushed
		span.SetAttributes(attribute.String("outcome", string(res.outcome)))
		return res
	}

	err = syncerr.Classify("push.put_subjects", err)
	res.err = err
	span.SetStatus(codes.Error, err.Error())
	if !syncerr.IsPermissionDenied(err) {
		res.outcome = pushTransient
		return res
	}

	// The write was rejected; decide whether this actor believes it is a writer.
	role := d.Claim.Role
	if again, rerr := c.gate.Resolve(ctx, d.Claim); rerr == nil {
		res.decision = again
		if again.Profile != nil {
			role = again.Profile.Role
		}
	}
	if course.IsWriterRole(role) {
		res.outcome = pushDeniedWriter
	} else {
		res.outcome = pushDeniedNonWriter
	}
	span.SetAttributes(attribute.String("outcome", string(res.outcome)))
	return res
}

func (c *Coordinator) finishPush(gen uint64, res pushResult) {
	if gen != c.sessionGen {
		return
	}
	waiters := c.waiters
	c.waiters = nil
	c.metrics.PushResult(string(res.outcome))

	courseBefore := c.claim.Course
	if res.resolved {
		if res.decision.ClaimChanged {
			c.claim = res.decision.Claim
			c.cache.WriteClaim(c.claim)
		}
		c.canWrite = res.decision.CanWrite
	}
	if c.claim.Course != courseBefore {
		c.log.Info("Course reassigned by server; restarting session", "from", courseBefore, "to", c.claim.Course)
		for _, w := range waiters {
			w <- ErrSessionReset
		}
		c.resetSession(c.claim, nil)
		return
	}

	var waiterErr error
	switch res.outcome {
	case pushPushed:
		c.claimList()
		c.lastSyncedHash = res.hash
		c.lastPushAt = c.clock.Now()
		c.lastError = ""
		c.notice = ""
		c.remoteAbsent = false
		c.armEcho()
		c.log.Debug("Pushed subjects", "course_id", c.claim.Course, "hash", res.hash)
	case pushNoop:
		c.stopEcho()
	case pushSkipped:
		c.stopEcho()
		waiterErr = res.err
	case pushTransient:
		c.stopEcho()
		c.lastError = res.err.Error()
		waiterErr = res.err
		c.log.Warn("Push failed; will retry on next change", "course_id", c.claim.Course, "error", res.err)
	case pushDeniedNonWriter:
		c.stopEcho()
		c.notice = "Changes are kept on this device; your role cannot edit this course."
		c.lastError = res.err.Error()
		waiterErr = res.err
	case pushDeniedWriter:
		c.enterFallback(res.err)
		waiterErr = res.err
	}

	fromFallback := c.pushFromFallback
	c.pushFromFallback = false
	recovered := res.outcome == pushPushed || res.outcome == pushNoop
	switch {
	case res.outcome == pushDeniedWriter:
	case fromFallback && !recovered:
		c.state = StateLocalOnlyFallback
		c.pushQueued = false
		for _, w := range c.queuedWaiters {
			w <- waiterErr
		}
		c.queuedWaiters = nil
	case c.pushQueued:
		queued := c.queuedWaiters
		c.queuedWaiters = nil
		c.state = StateIdle
		c.startPush(queued)
	case c.dirty:
		c.state = StatePendingPush
		c.armDebounce()
	default:
		c.state = StateIdle
	}
	if fromFallback && recovered {
		c.notice = ""
		c.log.Info("Left local-only fallback", "course_id", c.claim.Course)
		c.subscribe()
	}

	for _, w := range waiters {
		w <- waiterErr
	}
	c.emit(SourceStatus, nil)
}

// enterFallback stops remote traffic for the session. Local edits keep being
// cached; SyncNow is the only way back.
func (c *Coordinator) enterFallback(err error) {
	c.state = StateLocalOnlyFallback
	c.unsubscribe()
	c.stopCounts()
	c.stopDebounce()
	c.stopEcho()
	c.pushQueued = false
	c.dirty = false
	for _, w := range c.queuedWaiters {
		w <- err
	}
	c.queuedWaiters = nil
	c.notice = "Sync paused: the server rejected your changes. They are saved on this device; use Sync now to retry."
	if err != nil {
		c.lastError = err.Error()
	}
	c.metrics.Fallback()
	c.log.Warn("Entering local-only fallback", "course_id", c.claim.Course, "error", err)
}
