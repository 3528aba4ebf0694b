package remote

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/Siencmd/darkbroad/internal/data/repos"
	"github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/domain/syncerr"
	"github.com/Siencmd/darkbroad/internal/normalization"
	"github.com/Siencmd/darkbroad/internal/pkg/dbctx"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
	"github.com/Siencmd/darkbroad/internal/realtime/bus"
)

// GormStore keeps course documents in the relational store and announces
// every write on the bus.
type GormStore struct {
	repos repos.Set
	bus   bus.Bus
	log   *logger.Logger
	limit int
	now   func() time.Time
}

func NewGormStore(r repos.Set, b bus.Bus, limit int, log *logger.Logger) *GormStore {
	if limit <= 0 {
		limit = course.MaxSubjects
	}
	return &GormStore{
		repos: r,
		bus:   b,
		log:   log.With("component", "GormStore"),
		limit: limit,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *GormStore) GetProfile(ctx context.Context, actorID string) (*course.Profile, error) {
	row, err := s.repos.UserProfile.GetPreferred(dbctx.Context{Ctx: ctx}, strings.TrimSpace(actorID))
	if err != nil {
		return nil, syncerr.Classify("get profile", err)
	}
	return row.ToProfile(), nil
}

func (s *GormStore) profile(ctx context.Context, op, actorID string) (*course.Profile, error) {
	p, err := s.GetProfile(ctx, actorID)
	if err != nil {
		return nil, syncerr.Classify(op, err)
	}
	return p, nil
}

func (s *GormStore) GetSubjects(ctx context.Context, actorID, courseID string) (Document, error) {
	const op = "get subjects"
	p, err := s.profile(ctx, op, actorID)
	if err != nil {
		return Document{}, err
	}
	if err := authorizeRead(op, p, courseID); err != nil {
		return Document{}, err
	}
	doc, err := s.repos.SubjectsDoc.GetByCourseID(dbctx.Context{Ctx: ctx}, courseID)
	if err != nil {
		return Document{}, syncerr.Classify(op, err)
	}
	if doc == nil {
		return Document{Subjects: []course.Subject{}, Absent: true}, nil
	}
	return Document{
		Subjects:    normalization.NormalizeJSONWithLimit(doc.Subjects, s.limit),
		LastUpdated: doc.LastUpdated,
	}, nil
}

func (s *GormStore) PutSubjects(ctx context.Context, actorID, courseID string, subjects []course.Subject) error {
	const op = "put subjects"
	p, err := s.profile(ctx, op, actorID)
	if err != nil {
		return err
	}
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
	doc := &course.SubjectsDocument{
		CourseID:      courseID,
		Subjects:      datatypes.JSON(raw),
		SchemaVersion: course.SchemaVersion,
		UpdatedBy:     actorID,
		LastUpdated:   s.now(),
	}
	if err := s.repos.SubjectsDoc.Upsert(dbctx.Context{Ctx: ctx}, doc); err != nil {
		return syncerr.Classify(op, err)
	}
	publish(ctx, s.bus, s.log, subjectsChanged(courseID))
	return nil
}

func (s *GormStore) UpsertItems(ctx context.Context, actorID, courseID string, headers []course.ItemHeader) error {
	const op = "upsert items"
	if len(headers) == 0 {
		return nil
	}
	p, err := s.profile(ctx, op, actorID)
	if err != nil {
		return err
	}
	if err := authorizeWrite(op, p, courseID); err != nil {
		return err
	}
	now := s.now()
	docs := make([]*course.ItemDocument, 0, len(headers))
	for _, h := range headers {
		docs = append(docs, &course.ItemDocument{
			CourseID:    courseID,
			Collection:  h.Kind.Collection(),
			ItemID:      h.ItemID,
			SubjectID:   h.SubjectID,
			SubjectName: h.SubjectName,
			Title:       h.Title,
			DueDate:     h.DueDate,
			Extra:       datatypes.JSON("{}"),
			UpdatedAt:   now,
		})
	}
	if err := s.repos.ItemDoc.UpsertHeaders(dbctx.Context{Ctx: ctx}, docs); err != nil {
		return syncerr.Classify(op, err)
	}
	return nil
}

func (s *GormStore) PutSubmission(ctx context.Context, actorID, courseID string, ref course.ItemRef, sub course.Submission) error {
	const op = "put submission"
	if !ref.Kind.Submittable() {
		return syncerr.Validation(op, "item kind does not take submissions")
	}
	p, err := s.profile(ctx, op, actorID)
	if err != nil {
		return err
	}
	if err := authorizeSubmission(op, p, actorID, courseID, sub); err != nil {
		return err
	}
	now := s.now()
	doc := &course.SubmissionDocument{
		ID:          uuid.New(),
		CourseID:    courseID,
		Collection:  ref.Kind.Collection(),
		ItemID:      ref.ItemID,
		StudentID:   sub.StudentID,
		StudentName: sub.StudentName,
		FileName:    sub.FileName,
		FileURL:     sub.FileURL,
		SubmittedAt: parseSubmittedAt(sub.SubmittedAt, now),
		UpdatedAt:   now,
	}
	if err := s.repos.Submission.Upsert(dbctx.Context{Ctx: ctx}, doc); err != nil {
		return syncerr.Classify(op, err)
	}
	publish(ctx, s.bus, s.log, submissionsChanged(courseID, ref))
	return nil
}

func (s *GormStore) ListSubmissions(ctx context.Context, actorID, courseID string, ref course.ItemRef) ([]course.Submission, error) {
	const op = "list submissions"
	if !ref.Kind.Submittable() {
		return nil, syncerr.Validation(op, "item kind does not take submissions")
	}
	p, err := s.profile(ctx, op, actorID)
	if err != nil {
		return nil, err
	}
	if err := authorizeReview(op, p, courseID); err != nil {
		return nil, err
	}
	rows, err := s.repos.Submission.ListByItem(dbctx.Context{Ctx: ctx}, courseID, ref.Kind.Collection(), ref.ItemID)
	if err != nil {
		return nil, syncerr.Classify(op, err)
	}
	out := make([]course.Submission, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToSubmission())
	}
	return out, nil
}

func (s *GormStore) CountSubmissions(ctx context.Context, actorID, courseID, collection, itemID string) (int, error) {
	const op = "count submissions"
	p, err := s.profile(ctx, op, actorID)
	if err != nil {
		return 0, err
	}
	if err := authorizeRead(op, p, courseID); err != nil {
		return 0, err
	}
	n, err := s.repos.Submission.CountByItem(dbctx.Context{Ctx: ctx}, courseID, collection, itemID)
	if err != nil {
		return 0, syncerr.Classify(op, err)
	}
	return int(n), nil
}

func parseSubmittedAt(raw string, fallback time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(raw)); err == nil {
		return t.UTC()
	}
	return fallback
}
