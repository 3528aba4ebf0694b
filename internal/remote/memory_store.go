package remote

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/domain/syncerr"
	"github.com/Siencmd/darkbroad/internal/normalization"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
	"github.com/Siencmd/darkbroad/internal/realtime/bus"
)

type itemKey struct {
	course, collection, item string
}

type memoryDoc struct {
	raw         []byte
	lastUpdated time.Time
}

// MemoryStore is an in-process Store with the same access rules as GormStore.
type MemoryStore struct {
	mu          sync.RWMutex
	bus         bus.Bus
	log         *logger.Logger
	limit       int
	profiles    map[string]map[string]course.Profile
	docs        map[string]memoryDoc
	items       map[itemKey]course.ItemHeader
	submissions map[itemKey]map[string]course.Submission
}

func NewMemoryStore(b bus.Bus, limit int, log *logger.Logger) *MemoryStore {
	if log == nil {
		log = logger.Nop()
	}
	if limit <= 0 {
		limit = course.MaxSubjects
	}
	return &MemoryStore{
		bus:         b,
		log:         log.With("component", "MemoryStore"),
		limit:       limit,
		profiles:    make(map[string]map[string]course.Profile),
		docs:        make(map[string]memoryDoc),
		items:       make(map[itemKey]course.ItemHeader),
		submissions: make(map[itemKey]map[string]course.Submission),
	}
}

// SetProfile installs or replaces the profile of p.ActorID under p.Source
// (default "users").
func (s *MemoryStore) SetProfile(p course.Profile) {
	if p.Source == "" {
		p.Source = course.ProfileSourceUsers
	}
	p.Role = course.NormalizeRole(p.Role)
	p.Course = course.NormalizeCourseID(p.Course)
	s.mu.Lock()
	defer s.mu.Unlock()
	bySource, ok := s.profiles[p.ActorID]
	if !ok {
		bySource = make(map[string]course.Profile)
		s.profiles[p.ActorID] = bySource
	}
	bySource[p.Source] = p
}

func (s *MemoryStore) GetProfile(ctx context.Context, actorID string) (*course.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bySource := s.profiles[strings.TrimSpace(actorID)]
	for _, src := range []string{course.ProfileSourceUsers, course.ProfileSourceStudents} {
		if p, ok := bySource[src]; ok {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetSubjects(ctx context.Context, actorID, courseID string) (Document, error) {
	const op = "get subjects"
	p, _ := s.GetProfile(ctx, actorID)
	if err := authorizeRead(op, p, courseID); err != nil {
		return Document{}, err
	}
	s.mu.RLock()
	doc, ok := s.docs[courseID]
	s.mu.RUnlock()
	if !ok {
		return Document{Subjects: []course.Subject{}, Absent: true}, nil
	}
	return Document{
		Subjects:    normalization.NormalizeJSONWithLimit(doc.raw, s.limit),
		LastUpdated: doc.lastUpdated,
	}, nil
}

func (s *MemoryStore) PutSubjects(ctx context.Context, actorID, courseID string, subjects []course.Subject) error {
	const op = "put subjects"
	p, _ := s.GetProfile(ctx, actorID)
	if err := authorizeWrite(op, p, courseID); err != nil {
		return err
	}
	if subjects == nil {
		subjects = []course.Subject{}
	}
	raw, err := json.Marshal(subjects)
	if err != nil {
		return syncerr.Wrap(syncerr.CodeInternal, op, err)
	}
	s.mu.Lock()
	s.docs[courseID] = memoryDoc{raw: raw, lastUpdated: time.Now().UTC()}
	s.mu.Unlock()

	publish(ctx, s.bus, s.log, subjectsChanged(courseID))
	return nil
}

func (s *MemoryStore) UpsertItems(ctx context.Context, actorID, courseID string, headers []course.ItemHeader) error {
	const op = "upsert items"
	if len(headers) == 0 {
		return nil
	}
	p, _ := s.GetProfile(ctx, actorID)
	if err := authorizeWrite(op, p, courseID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range headers {
		s.items[itemKey{courseID, h.Kind.Collection(), h.ItemID}] = h
	}
	return nil
}

func (s *MemoryStore) PutSubmission(ctx context.Context, actorID, courseID string, ref course.ItemRef, sub course.Submission) error {
	const op = "put submission"
	if !ref.Kind.Submittable() {
		return syncerr.Validation(op, "item kind does not take submissions")
	}
	p, _ := s.GetProfile(ctx, actorID)
	if err := authorizeSubmission(op, p, actorID, courseID, sub); err != nil {
		return err
	}
	key := itemKey{courseID, ref.Kind.Collection(), ref.ItemID}
	s.mu.Lock()
	byStudent, ok := s.submissions[key]
	if !ok {
		byStudent = make(map[string]course.Submission)
		s.submissions[key] = byStudent
	}
	byStudent[sub.StudentID] = sub
	s.mu.Unlock()

	publish(ctx, s.bus, s.log, submissionsChanged(courseID, ref))
	return nil
}

func (s *MemoryStore) CountSubmissions(ctx context.Context, actorID, courseID, collection, itemID string) (int, error) {
	p, _ := s.GetProfile(ctx, actorID)
	if err := authorizeRead("count submissions", p, courseID); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.submissions[itemKey{courseID, collection, itemID}]), nil
}

// ListSubmissions orders the stored submissions by student.
func (s *MemoryStore) ListSubmissions(ctx context.Context, actorID, courseID string, ref course.ItemRef) ([]course.Submission, error) {
	const op = "list submissions"
	if !ref.Kind.Submittable() {
		return nil, syncerr.Validation(op, "item kind does not take submissions")
	}
	p, _ := s.GetProfile(ctx, actorID)
	if err := authorizeReview(op, p, courseID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	byStudent := s.submissions[itemKey{courseID, ref.Kind.Collection(), ref.ItemID}]
	out := make([]course.Submission, 0, len(byStudent))
	for _, sub := range byStudent {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}
