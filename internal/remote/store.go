package remote

import (
	"context"
	"time"

	"github.com/Siencmd/darkbroad/internal/domain/course"
)

// Document is one read of a course's subject list. Absent distinguishes "no
// document yet" from an empty list.
type Document struct {
	Subjects    []course.Subject
	Absent      bool
	LastUpdated time.Time
}

// Store is the shared, permission-gated course store. Every call names the
// acting identity; the store enforces access on its own and returns
// syncerr permission_denied errors on refusal.
type Store interface {
	GetSubjects(ctx context.Context, actorID, courseID string) (Document, error)
	PutSubjects(ctx context.Context, actorID, courseID string, subjects []course.Subject) error
	// UpsertItems merges item headers into parent item documents.
	UpsertItems(ctx context.Context, actorID, courseID string, headers []course.ItemHeader) error
	PutSubmission(ctx context.Context, actorID, courseID string, ref course.ItemRef, sub course.Submission) error
	// ListSubmissions returns every student's stored submission of one item.
	// Writers only.
	ListSubmissions(ctx context.Context, actorID, courseID string, ref course.ItemRef) ([]course.Submission, error)
	CountSubmissions(ctx context.Context, actorID, courseID, collection, itemID string) (int, error)
	GetProfile(ctx context.Context, actorID string) (*course.Profile, error)
}
