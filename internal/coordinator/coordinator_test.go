package coordinator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/domain/syncerr"
	"github.com/Siencmd/darkbroad/internal/listener"
	"github.com/Siencmd/darkbroad/internal/permission"
	"github.com/Siencmd/darkbroad/internal/pkg/pointers"
)

func TestMutateIsLocalFirst(t *testing.T) {
	h := newHarness(t, instructor)
	ctx := context.Background()

	if err := h.c.Mutate(ctx, addSubject("a", "Algebra")); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	got := h.cache.Read()
	if len(got) != 1 || got[0].Name != "Algebra" {
		t.Fatalf("cache after mutate: got=%+v", got)
	}
	if n := h.remote.putCount(); n != 0 {
		t.Fatalf("no remote write before debounce: want=0 got=%d", n)
	}
	if st := h.state(); st != StatePendingPush {
		t.Fatalf("state: want=%s got=%s", StatePendingPush, st)
	}
	eventually(t, "local render", func() bool { return h.changes.count(SourceLocal) == 1 })
}

func TestEditsInsideDebounceWindowCoalesce(t *testing.T) {
	h := newHarness(t, instructor)
	ctx := context.Background()

	if err := h.c.Mutate(ctx, addSubject("a", "Algebra")); err != nil {
		t.Fatalf("Mutate a: %v", err)
	}
	h.clock.Add(500 * time.Millisecond)
	if err := h.c.Mutate(ctx, addSubject("b", "Biology")); err != nil {
		t.Fatalf("Mutate b: %v", err)
	}
	h.clock.Add(DefaultDebounce)

	eventually(t, "one push", func() bool { return h.remote.putCount() == 1 && h.state() == StateIdle })
	settle()
	if n := h.remote.putCount(); n != 1 {
		t.Fatalf("writes: want=1 got=%d", n)
	}
	if got := h.remote.lastPut(); len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("pushed list should hold both edits: got=%+v", got)
	}
}

func TestPushingTwiceWritesOnce(t *testing.T) {
	h := newHarness(t, instructor)
	ctx := context.Background()

	if err := h.c.Mutate(ctx, addSubject("a", "Algebra")); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if err := h.c.SyncNow(ctx); err != nil {
		t.Fatalf("first SyncNow: %v", err)
	}
	if err := h.c.SyncNow(ctx); err != nil {
		t.Fatalf("second SyncNow: %v", err)
	}
	if n := h.remote.putCount(); n != 1 {
		t.Fatalf("writes: want=1 got=%d", n)
	}
	h.metrics.mu.Lock()
	noops := h.metrics.results["noop"]
	h.metrics.mu.Unlock()
	if noops != 1 {
		t.Fatalf("noop pushes: want=1 got=%d", noops)
	}
	if st := h.c.Snapshot(); st.SyncedHash != st.LocalHash {
		t.Fatalf("synced hash should match local: %+v", st)
	}
}

func TestWriterDeniedEntersFallback(t *testing.T) {
	h := newHarness(t, instructor)
	ctx := context.Background()
	first := h.source.current()

	h.remote.setPutErr(syncerr.PermissionDenied("put_subjects", "rules rejected write"))
	if err := h.c.Mutate(ctx, addSubject("a", "Algebra")); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if err := h.c.SyncNow(ctx); !syncerr.IsPermissionDenied(err) {
		t.Fatalf("SyncNow: want permission_denied got=%v", err)
	}

	st := h.c.Snapshot()
	if st.State != StateLocalOnlyFallback || st.Mode != ModeLocalOnly || st.Subscribed {
		t.Fatalf("fallback status: got=%+v", st)
	}
	if st.Notice == "" {
		t.Fatalf("fallback should surface a notice")
	}
	if !first.isClosed() {
		t.Fatalf("listener should be unsubscribed in fallback")
	}
	if _, fallbacks, _ := h.metrics.snapshot(); fallbacks != 1 {
		t.Fatalf("fallback metric: want=1 got=%d", fallbacks)
	}

	if err := h.c.Mutate(ctx, addSubject("b", "Biology")); err != nil {
		t.Fatalf("Mutate in fallback: %v", err)
	}
	h.clock.Add(5 * time.Second)
	settle()
	if n := h.remote.putCount(); n != 1 {
		t.Fatalf("no writes after fallback: want=1 got=%d", n)
	}
	if got := h.cache.Read(); len(got) != 2 {
		t.Fatalf("edits stay local in fallback: got=%d subjects", len(got))
	}

	h.remote.setPutErr(nil)
	if err := h.c.SyncNow(ctx); err != nil {
		t.Fatalf("manual sync: %v", err)
	}
	st = h.c.Snapshot()
	if st.State != StateIdle || !st.Subscribed || st.Mode != ModeRealtime {
		t.Fatalf("after manual sync: got=%+v", st)
	}
	if n := h.source.subscribeCount(); n != 2 {
		t.Fatalf("manual sync should re-subscribe: want=2 got=%d", n)
	}
	if got := h.remote.lastPut(); len(got) != 2 {
		t.Fatalf("manual sync pushes the local list: got=%+v", got)
	}
}

func TestNonWriterDeniedKeepsListener(t *testing.T) {
	h := newHarness(t, instructor)
	ctx := context.Background()
	first := h.source.current()

	var calls int32
	h.gate.set(func(_ int, claim course.Claim) (permission.Decision, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return writerAware(0, claim)
		}
		claim.Role = course.RoleStudent
		return permission.Decision{
			Claim:        claim,
			Profile:      &course.Profile{ActorID: claim.ActorID, Role: course.RoleStudent, Course: claim.Course},
			ClaimChanged: true,
		}, nil
	})
	h.remote.setPutErr(syncerr.PermissionDenied("put_subjects", "rules rejected write"))

	if err := h.c.Mutate(ctx, addSubject("a", "Algebra")); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if err := h.c.SyncNow(ctx); !syncerr.IsPermissionDenied(err) {
		t.Fatalf("SyncNow: want permission_denied got=%v", err)
	}

	st := h.c.Snapshot()
	if st.State != StateIdle || !st.Subscribed || st.Mode != ModeReadOnly {
		t.Fatalf("non-writer should stay subscribed read-only: got=%+v", st)
	}
	if st.Role != course.RoleStudent || st.CanWrite {
		t.Fatalf("claim should follow the server: got=%+v", st)
	}
	if first.isClosed() {
		t.Fatalf("listener must stay active for a non-writer")
	}
	if _, fallbacks, _ := h.metrics.snapshot(); fallbacks != 0 {
		t.Fatalf("fallback metric: want=0 got=%d", fallbacks)
	}
	if claim, ok := h.cache.ReadClaim(); !ok || claim.Role != course.RoleStudent {
		t.Fatalf("cached claim should be corrected: got=%+v ok=%v", claim, ok)
	}
}

func TestEchoOfOwnWriteIsSuppressed(t *testing.T) {
	h := newHarness(t, instructor)
	ctx := context.Background()

	if err := h.c.Mutate(ctx, addSubject("a", "Algebra")); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if err := h.c.SyncNow(ctx); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if !h.c.Snapshot().EchoSuppressed {
		t.Fatalf("echo window should be open right after a push")
	}

	h.source.send(t, listener.Update{CourseID: "C", Subjects: h.remote.lastPut()})
	_ = h.c.Snapshot()
	settle()
	if echoes, _, _ := h.metrics.snapshot(); echoes != 1 {
		t.Fatalf("suppressed echoes: want=1 got=%d", echoes)
	}
	if n := h.changes.count(SourceRemote); n != 0 {
		t.Fatalf("echo must not render: got %d remote renders", n)
	}

	h.clock.Add(DefaultEchoWindow)
	eventually(t, "echo window to close", func() bool { return !h.c.Snapshot().EchoSuppressed })

	external := []course.Subject{{ID: "a", Name: "Algebra"}, {ID: "z", Name: "Zoology"}}
	h.source.send(t, listener.Update{CourseID: "C", Subjects: external})
	eventually(t, "remote render", func() bool { return h.changes.count(SourceRemote) == 1 })
	if got := h.cache.Read(); len(got) != 2 || got[1].ID != "z" {
		t.Fatalf("remote change should reach the cache: got=%+v", got)
	}
	if _, _, applied := h.metrics.snapshot(); applied != 1 {
		t.Fatalf("applied remote changes: want=1 got=%d", applied)
	}
}

func TestRemoteMatchingLocalDoesNotRender(t *testing.T) {
	h := newHarness(t, instructor)
	h.cache.Write([]course.Subject{{ID: "a", Name: "Algebra"}})

	h.source.send(t, listener.Update{CourseID: "C", Subjects: []course.Subject{{ID: "a", Name: "Algebra"}}})
	st := h.c.Snapshot()
	if st.SyncedHash != st.LocalHash {
		t.Fatalf("matching remote should record the synced hash: %+v", st)
	}
	settle()
	if n := h.changes.count(SourceRemote); n != 0 {
		t.Fatalf("identical remote list must not render: got=%d", n)
	}
}

func TestAbsentRemoteOffersSeed(t *testing.T) {
	h := newHarness(t, instructor)
	ctx := context.Background()
	h.cache.Write([]course.Subject{{ID: "a", Name: "Algebra"}})

	h.source.send(t, listener.Update{CourseID: "C", Absent: true, Subjects: []course.Subject{}})
	eventually(t, "absent render", func() bool { return h.changes.count(SourceRemote) == 1 })

	ch, _ := h.changes.last(SourceRemote)
	if ch.Subjects == nil || len(ch.Subjects) != 0 {
		t.Fatalf("absent document renders an empty list: got=%+v", ch.Subjects)
	}
	if !ch.Status.RemoteAbsent || !ch.Status.SeedAvailable {
		t.Fatalf("absent status should offer a seed: got=%+v", ch.Status)
	}
	if got := h.cache.Read(); len(got) != 1 {
		t.Fatalf("absent document must not clear the local list: got=%+v", got)
	}

	if err := h.c.Seed(ctx); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if got := h.remote.lastPut(); len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("seed writes the local list: got=%+v", got)
	}
	if st := h.c.Snapshot(); st.RemoteAbsent || st.SeedAvailable {
		t.Fatalf("seeded course is no longer absent: %+v", st)
	}
}

func TestSeedRefusesListOfAnotherCourse(t *testing.T) {
	h := newHarness(t, instructor)
	ctx := context.Background()
	if err := h.c.Mutate(ctx, addSubject("a", "Algebra")); err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	next := instructor
	next.Course = "D"
	if err := h.c.Reset(ctx, next); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	h.source.send(t, listener.Update{CourseID: "D", Absent: true, Subjects: []course.Subject{}})
	eventually(t, "absent status", func() bool { return h.c.Snapshot().RemoteAbsent })

	if st := h.c.Snapshot(); st.SeedAvailable {
		t.Fatalf("a list cached for course C must not be offered to D: %+v", st)
	}
	if err := h.c.Seed(ctx); !syncerr.IsCode(err, syncerr.CodeValidation) {
		t.Fatalf("Seed: want validation got=%v", err)
	}
	if n := h.remote.putCount(); n != 0 {
		t.Fatalf("refused seed must not write: got=%d", n)
	}

	// Editing the list in D makes it D's.
	if err := h.c.Mutate(ctx, addSubject("b", "Biology")); err != nil {
		t.Fatalf("Mutate in D: %v", err)
	}
	if st := h.c.Snapshot(); !st.SeedAvailable {
		t.Fatalf("edited list can seed D: %+v", st)
	}
	if owner := h.cache.Owner(); owner != "D" {
		t.Fatalf("owner: want=D got=%q", owner)
	}
}

func TestTransientFailureRetriesOnNextChange(t *testing.T) {
	h := newHarness(t, instructor)
	ctx := context.Background()

	h.remote.setPutErr(errors.New("connection reset by peer"))
	if err := h.c.Mutate(ctx, addSubject("a", "Algebra")); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if err := h.c.SyncNow(ctx); !syncerr.IsCode(err, syncerr.CodeTransient) {
		t.Fatalf("SyncNow: want transient got=%v", err)
	}
	st := h.c.Snapshot()
	if st.State != StateIdle || st.LastError == "" || !st.Subscribed {
		t.Fatalf("transient failure returns to idle: got=%+v", st)
	}

	h.remote.setPutErr(nil)
	if err := h.c.Mutate(ctx, addSubject("b", "Biology")); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	h.clock.Add(DefaultDebounce)
	eventually(t, "retry push", func() bool { return h.remote.putCount() == 2 && h.state() == StateIdle })
	if got := h.remote.lastPut(); len(got) != 2 {
		t.Fatalf("retry carries both subjects: got=%+v", got)
	}
}

func TestStudentEditsNeverPush(t *testing.T) {
	h := newHarness(t, student)
	ctx := context.Background()

	if err := h.c.Mutate(ctx, addSubject("a", "Algebra")); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if st := h.state(); st != StateIdle {
		t.Fatalf("student edits stay local: state=%s", st)
	}
	h.clock.Add(5 * time.Second)
	settle()
	if n := h.remote.putCount(); n != 0 {
		t.Fatalf("student must not write the subject list: got=%d", n)
	}
	if err := h.c.SyncNow(ctx); !syncerr.IsPermissionDenied(err) {
		t.Fatalf("student SyncNow: want permission_denied got=%v", err)
	}
	if n := h.remote.putCount(); n != 0 {
		t.Fatalf("skipped push must not write: got=%d", n)
	}
}

func TestMutateRejectsInvalidLists(t *testing.T) {
	h := newHarness(t, instructor)
	ctx := context.Background()

	tooMany := func(list []course.Subject) ([]course.Subject, error) {
		for i := 0; i < course.MaxSubjects+1; i++ {
			list = append(list, course.Subject{Name: "S"})
		}
		return list, nil
	}
	if err := h.c.Mutate(ctx, tooMany); !syncerr.IsCode(err, syncerr.CodeValidation) {
		t.Fatalf("cap: want validation got=%v", err)
	}

	dup := func(list []course.Subject) ([]course.Subject, error) {
		return append(list, course.Subject{ID: "x"}, course.Subject{ID: "x"}), nil
	}
	if err := h.c.Mutate(ctx, dup); !syncerr.IsCode(err, syncerr.CodeValidation) {
		t.Fatalf("duplicate ids: want validation got=%v", err)
	}

	failing := func([]course.Subject) ([]course.Subject, error) { return nil, errors.New("bad form") }
	if err := h.c.Mutate(ctx, failing); !syncerr.IsCode(err, syncerr.CodeValidation) {
		t.Fatalf("updater error: want validation got=%v", err)
	}

	if got := h.cache.Read(); len(got) != 0 {
		t.Fatalf("rejected mutations must not reach the cache: got=%+v", got)
	}
	if st := h.state(); st != StateIdle {
		t.Fatalf("rejected mutations must not arm a push: state=%s", st)
	}
}

func TestMutateRejectsGradeAbovePoints(t *testing.T) {
	h := newHarness(t, instructor)
	ctx := context.Background()
	h.cache.Write([]course.Subject{{
		ID:   "s1",
		Name: "Physics",
		Assignments: []course.Assignment{{
			ID:          "a1",
			Points:      10,
			Submissions: []course.Submission{{StudentID: "stud", FileName: "hw.pdf"}},
		}},
	}})
	setGrade := func(g float64) func([]course.Subject) ([]course.Subject, error) {
		return func(list []course.Subject) ([]course.Subject, error) {
			list[0].Assignments[0].Submissions[0].Grade = pointers.Float64(g)
			return list, nil
		}
	}

	if err := h.c.Mutate(ctx, setGrade(500)); !syncerr.IsCode(err, syncerr.CodeValidation) {
		t.Fatalf("grade above points: want validation got=%v", err)
	}
	if g := h.cache.Read()[0].Assignments[0].Submissions[0].Grade; g != nil {
		t.Fatalf("rejected grade must not reach the cache: got=%v", *g)
	}
	if st := h.state(); st != StateIdle {
		t.Fatalf("rejected grade must not arm a push: state=%s", st)
	}
	if err := h.c.Mutate(ctx, setGrade(9.5)); err != nil {
		t.Fatalf("grade within points: %v", err)
	}

	// An overridden grade already on the list does not block other edits.
	list := h.cache.Read()
	list[0].Assignments[0].Submissions[0].Grade = pointers.Float64(12)
	h.cache.Write(list)
	rename := func(list []course.Subject) ([]course.Subject, error) {
		list[0].Name = "Physics II"
		return list, nil
	}
	if err := h.c.Mutate(ctx, rename); err != nil {
		t.Fatalf("unchanged grade above points: %v", err)
	}
	if err := h.c.Mutate(ctx, setGrade(13)); !syncerr.IsCode(err, syncerr.CodeValidation) {
		t.Fatalf("changed grade above points: want validation got=%v", err)
	}
}

func TestMutateAssignsIDs(t *testing.T) {
	h := newHarness(t, instructor)
	err := h.c.Mutate(context.Background(), func(list []course.Subject) ([]course.Subject, error) {
		return append(list, course.Subject{Name: "Chemistry", Tasks: []course.Task{{Title: "Lab"}}}), nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	got := h.cache.Read()
	if len(got) != 1 || got[0].ID == "" || len(got[0].Tasks) != 1 || got[0].Tasks[0].ID == "" {
		t.Fatalf("new subjects and items get ids: got=%+v", got)
	}
}

func TestResetResubscribesForNewCourse(t *testing.T) {
	h := newHarness(t, instructor)
	ctx := context.Background()
	first := h.source.current()

	if err := h.c.Mutate(ctx, addSubject("a", "Algebra")); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	next := instructor
	next.Course = "D"
	if err := h.c.Reset(ctx, next); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !first.isClosed() {
		t.Fatalf("previous listener should be closed")
	}
	h.source.mu.Lock()
	courses := append([]string(nil), h.source.courses...)
	h.source.mu.Unlock()
	if len(courses) != 2 || courses[1] != "D" {
		t.Fatalf("subscriptions: got=%v", courses)
	}
	st := h.c.Snapshot()
	if st.CourseID != "D" || st.State != StateIdle {
		t.Fatalf("after reset: got=%+v", st)
	}
	h.clock.Add(5 * time.Second)
	settle()
	if n := h.remote.putCount(); n != 0 {
		t.Fatalf("reset cancels the pending debounce: got=%d writes", n)
	}
	if claim, _ := h.cache.ReadClaim(); claim.Course != "D" {
		t.Fatalf("claim persisted: got=%+v", claim)
	}
}

func TestResetWithoutCourseStaysOffline(t *testing.T) {
	h := newHarness(t, course.Claim{ActorID: "new", Role: course.RoleStudent})
	st := h.c.Snapshot()
	if st.Subscribed || st.Mode != ModeOffline {
		t.Fatalf("no course means no subscription: got=%+v", st)
	}
	if n := h.source.subscribeCount(); n != 0 {
		t.Fatalf("subscriptions: want=0 got=%d", n)
	}
}

func TestResetReportsGateErrorButSubscribes(t *testing.T) {
	h := newHarness(t, student)
	h.gate.set(func(int, course.Claim) (permission.Decision, error) {
		return permission.Decision{}, syncerr.Wrap(syncerr.CodeTransient, "resolve", errors.New("timeout"))
	})
	err := h.c.Reset(context.Background(), student)
	if !syncerr.IsCode(err, syncerr.CodeTransient) {
		t.Fatalf("Reset: want transient got=%v", err)
	}
	if st := h.c.Snapshot(); !st.Subscribed || st.CanWrite {
		t.Fatalf("student stays read-eligible: got=%+v", st)
	}
}

func TestWatchSubmissionCountsReplacesPrevious(t *testing.T) {
	h := newHarness(t, instructor)
	ctx := context.Background()
	items := []course.ItemRef{{Kind: course.KindTask, SubjectID: "a", ItemID: "t1"}}

	var seen int32
	onCount := func(listener.ItemCount) { atomic.AddInt32(&seen, 1) }
	if err := h.c.WatchSubmissionCounts(ctx, items, onCount); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := h.c.WatchSubmissionCounts(ctx, items, onCount); err != nil {
		t.Fatalf("rewatch: %v", err)
	}
	if err := h.c.Reset(ctx, instructor); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	h.source.mu.Lock()
	watches, unwatch := h.source.watches, h.source.unwatch
	h.source.mu.Unlock()
	if watches != 2 || unwatch != 2 {
		t.Fatalf("watches=%d unwatch=%d, want 2 and 2", watches, unwatch)
	}
	if n := atomic.LoadInt32(&seen); n != 2 {
		t.Fatalf("initial counts delivered: want=2 got=%d", n)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness(t, instructor)
	ctx := context.Background()
	if err := h.c.Mutate(ctx, addSubject("a", "Algebra")); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	feed := h.source.current()

	_ = h.c.Close()
	_ = h.c.Close()

	if err := h.c.Mutate(ctx, addSubject("b", "Biology")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Mutate after close: want ErrClosed got=%v", err)
	}
	if !feed.isClosed() {
		t.Fatalf("close should unsubscribe")
	}
	if st := h.c.Snapshot(); st.CourseID != "C" || st.LocalHash == "" {
		t.Fatalf("snapshot after close returns the last status: got=%+v", st)
	}
}
