package listener

import (
	"context"
	"sync"

	"github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/domain/syncerr"
	"github.com/Siencmd/darkbroad/internal/realtime"
)

// ItemCount is the live submission count of one item.
type ItemCount struct {
	Ref   course.ItemRef `json:"ref"`
	Count int            `json:"count"`
}

type countWatch struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (w *countWatch) close() {
	w.once.Do(func() {
		w.cancel()
		close(w.done)
	})
}

// WatchSubmissionCounts replaces the current set of submission-count watchers
// with one covering items. Every item's count is delivered once up front and
// again after each invalidation of that item. Non-submittable items are skipped.
func (l *Listener) WatchSubmissionCounts(ctx context.Context, actorID, courseID string, items []course.ItemRef, onCount func(ItemCount), onError func(error)) Unsubscribe {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w := &countWatch{cancel: cancel, done: make(chan struct{})}

	l.mu.Lock()
	prev := l.counts
	l.counts = w
	l.mu.Unlock()
	if prev != nil {
		prev.close()
	}

	byChannel := make(map[string]course.ItemRef, len(items))
	channels := make([]string, 0, len(items))
	for _, ref := range items {
		if !ref.Kind.Submittable() {
			continue
		}
		ch := realtime.SubmissionsChannel(courseID, ref.Kind.Collection(), ref.ItemID)
		if _, dup := byChannel[ch]; dup {
			continue
		}
		byChannel[ch] = ref
		channels = append(channels, ch)
	}

	report := func(ref course.ItemRef) {
		n, err := l.fetcher.CountSubmissions(ctx, actorID, courseID, ref.Kind.Collection(), ref.ItemID)
		select {
		case <-w.done:
			return
		default:
		}
		if err != nil {
			if onError != nil {
				onError(syncerr.Classify("count submissions", err))
			}
			return
		}
		if onCount != nil {
			onCount(ItemCount{Ref: ref, Count: n})
		}
	}

	go func() {
		if len(channels) == 0 {
			return
		}
		var msgs <-chan realtime.SSEMessage
		if l.bus != nil {
			sub, err := l.bus.Subscribe(ctx, channels...)
			if err != nil {
				l.log.Warn("Submission-count subscription failed", "course_id", courseID, "error", err)
				if onError != nil {
					onError(syncerr.Classify("subscribe submissions", err))
				}
			} else {
				defer sub.Close()
				msgs = sub.Messages()
			}
		}
		for _, ch := range channels {
			report(byChannel[ch])
		}
		for {
			select {
			case <-w.done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if ref, known := byChannel[msg.Channel]; known {
					report(ref)
				}
			}
		}
	}()

	return w.close
}
