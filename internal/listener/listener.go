package listener

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/domain/syncerr"
	"github.com/Siencmd/darkbroad/internal/normalization"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
	"github.com/Siencmd/darkbroad/internal/realtime"
	"github.com/Siencmd/darkbroad/internal/realtime/bus"
	"github.com/Siencmd/darkbroad/internal/remote"
)

// Fetcher is the read side of the remote store.
type Fetcher interface {
	GetSubjects(ctx context.Context, actorID, courseID string) (remote.Document, error)
	CountSubmissions(ctx context.Context, actorID, courseID, collection, itemID string) (int, error)
}

// Update is one delivery of a subject-list subscription: a materialized list,
// an explicit absence, or a classified error.
type Update struct {
	CourseID string
	Subjects []course.Subject
	Absent   bool
	Hash     string
	Err      error
}

// Feed is a cancellable subscription. Updates is closed after Close.
type Feed interface {
	Updates() <-chan Update
	Close()
}

// Unsubscribe ends a callback subscription. Safe to call more than once.
type Unsubscribe func()

// Listener keeps at most one subject-list subscription and one set of
// submission-count watchers alive. A new subscription of either kind replaces
// the previous one.
type Listener struct {
	fetcher Fetcher
	bus     bus.Bus
	log     *logger.Logger
	tracer  trace.Tracer

	mu      sync.Mutex
	current *subscription
	counts  *countWatch
}

func New(fetcher Fetcher, b bus.Bus, log *logger.Logger) *Listener {
	if log == nil {
		log = logger.Nop()
	}
	return &Listener{
		fetcher: fetcher,
		bus:     b,
		log:     log.With("component", "RemoteListener"),
		tracer:  otel.Tracer("darkbroad/listener"),
	}
}

type subscription struct {
	id       uuid.UUID
	actorID  string
	courseID string
	out      chan Update
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

func (s *subscription) Updates() <-chan Update { return s.out }

func (s *subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		close(s.done)
	})
}

// Subscribe starts a subject-list subscription for courseID. The current
// document state is delivered first, then one update per invalidation.
func (l *Listener) Subscribe(ctx context.Context, actorID, courseID string) Feed {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &subscription{
		id:       uuid.New(),
		actorID:  actorID,
		courseID: courseID,
		out:      make(chan Update),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	l.mu.Lock()
	prev := l.current
	l.current = s
	l.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	go l.run(ctx, s)
	return s
}

func (l *Listener) run(ctx context.Context, s *subscription) {
	defer close(s.out)
	log := l.log.With("subscription_id", s.id.String(), "course_id", s.courseID)

	var msgs <-chan realtime.SSEMessage
	if l.bus != nil {
		sub, err := l.bus.Subscribe(ctx, realtime.SubjectsChannel(s.courseID))
		if err != nil {
			log.Warn("Realtime subscription failed; snapshot only", "error", err)
			if !l.deliver(s, Update{CourseID: s.courseID, Err: syncerr.Classify("subscribe subjects", err)}) {
				return
			}
		} else {
			defer sub.Close()
			msgs = sub.Messages()
		}
	}

	if !l.deliver(s, l.fetch(ctx, s)) {
		return
	}
	for {
		select {
		case <-s.done:
			return
		case _, ok := <-msgs:
			if !ok {
				log.Debug("Realtime subscription ended")
				return
			}
			if !l.deliver(s, l.fetch(ctx, s)) {
				return
			}
		}
	}
}

func (l *Listener) fetch(ctx context.Context, s *subscription) Update {
	ctx, span := l.tracer.Start(ctx, "listener.fetch_subjects",
		trace.WithAttributes(attribute.String("course_id", s.courseID)))
	defer span.End()

	doc, err := l.fetcher.GetSubjects(ctx, s.actorID, s.courseID)
	if err != nil {
		span.RecordError(err)
		return Update{CourseID: s.courseID, Err: syncerr.Classify("fetch subjects", err)}
	}
	if doc.Absent {
		return Update{CourseID: s.courseID, Subjects: []course.Subject{}, Absent: true}
	}
	subjects := course.CloneSubjects(doc.Subjects)
	return Update{CourseID: s.courseID, Subjects: subjects, Hash: normalization.Hash(subjects)}
}

func (l *Listener) deliver(s *subscription, u Update) bool {
	select {
	case s.out <- u:
		return true
	case <-s.done:
		return false
	}
}

// SubscribeFunc is Subscribe in callback form. Callbacks run on the
// subscription goroutine, in delivery order.
func (l *Listener) SubscribeFunc(ctx context.Context, actorID, courseID string, onUpdate func(Update), onError func(error)) Unsubscribe {
	feed := l.Subscribe(ctx, actorID, courseID)
	go func() {
		for u := range feed.Updates() {
			if u.Err != nil {
				if onError != nil {
					onError(u.Err)
				}
				continue
			}
			if onUpdate != nil {
				onUpdate(u)
			}
		}
	}()
	return feed.Close
}

// Stop ends every active subscription.
func (l *Listener) Stop() {
	l.mu.Lock()
	cur, counts := l.current, l.counts
	l.current, l.counts = nil, nil
	l.mu.Unlock()
	if cur != nil {
		cur.Close()
	}
	if counts != nil {
		counts.close()
	}
}
