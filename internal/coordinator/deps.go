package coordinator

import (
	"context"
	"time"

	"github.com/facebookgo/clock"

	"github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/listener"
	"github.com/Siencmd/darkbroad/internal/permission"
)

const (
	DefaultDebounce   = 1200 * time.Millisecond
	DefaultEchoWindow = 1000 * time.Millisecond
)

// Cache is the local-first store. Writes never fail from the caller's view.
// Owner is the course the list was last written for.
type Cache interface {
	Read() []course.Subject
	Write(subjects []course.Subject)
	Owner() string
	SetOwner(courseID string)
	ReadClaim() (course.Claim, bool)
	WriteClaim(claim course.Claim)
}

type Gate interface {
	Resolve(ctx context.Context, claim course.Claim) (permission.Decision, error)
}

// Remote is the write side of the shared store plus the submission reads
// grading needs.
type Remote interface {
	PutSubjects(ctx context.Context, actorID, courseID string, subjects []course.Subject) error
	UpsertItems(ctx context.Context, actorID, courseID string, headers []course.ItemHeader) error
	PutSubmission(ctx context.Context, actorID, courseID string, ref course.ItemRef, sub course.Submission) error
	ListSubmissions(ctx context.Context, actorID, courseID string, ref course.ItemRef) ([]course.Submission, error)
}

// Source delivers remote changes.
type Source interface {
	Subscribe(ctx context.Context, actorID, courseID string) listener.Feed
	WatchSubmissionCounts(ctx context.Context, actorID, courseID string, items []course.ItemRef, onCount func(listener.ItemCount), onError func(error)) listener.Unsubscribe
}

// Metrics receives sync outcomes.
type Metrics interface {
	PushResult(result string)
	EchoSuppressed()
	Fallback()
	RemoteApplied()
}

type nopMetrics struct{}

func (nopMetrics) PushResult(string) {}
func (nopMetrics) EchoSuppressed()   {}
func (nopMetrics) Fallback()         {}
func (nopMetrics) RemoteApplied()    {}

type Deps struct {
	Cache   Cache
	Gate    Gate
	Remote  Remote
	Source  Source
	Metrics Metrics
}

type Config struct {
	Debounce    time.Duration
	EchoWindow  time.Duration
	MaxSubjects int
	Clock       clock.Clock
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.EchoWindow <= 0 {
		c.EchoWindow = DefaultEchoWindow
	}
	if c.MaxSubjects <= 0 {
		c.MaxSubjects = course.MaxSubjects
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}
