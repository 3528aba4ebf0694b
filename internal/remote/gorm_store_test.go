package remote

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/Siencmd/darkbroad/internal/data/repos"
	"github.com/Siencmd/darkbroad/internal/data/repos/testutil"
	"github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/domain/syncerr"
)

func TestGormStoreRoundTrip(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	courseID := "course-" + uuid.NewString()
	teacher := "teach-" + uuid.NewString()
	student := "stud-" + uuid.NewString()
	testutil.SeedProfile(t, ctx, tx, teacher, course.ProfileSourceUsers, "instructor", courseID)
	testutil.SeedProfile(t, ctx, tx, student, course.ProfileSourceStudents, "student", courseID)

	s := NewGormStore(repos.NewSet(tx, log), nil, course.MaxSubjects, log)

	doc, err := s.GetSubjects(ctx, student, courseID)
	if err != nil || !doc.Absent {
		t.Fatalf("absent: err=%v doc=%+v", err, doc)
	}

	list := []course.Subject{{ID: "s1", Name: "Bio", Tasks: []course.Task{{ID: "t1", Title: "Cells"}}}}
	if err := s.PutSubjects(ctx, student, courseID, list); !syncerr.IsPermissionDenied(err) {
		t.Fatalf("student write: want permission_denied got=%v", err)
	}
	if err := s.PutSubjects(ctx, teacher, courseID, list); err != nil {
		t.Fatalf("PutSubjects: %v", err)
	}
	if err := s.UpsertItems(ctx, teacher, courseID, course.Headers(list)); err != nil {
		t.Fatalf("UpsertItems: %v", err)
	}

	doc, err = s.GetSubjects(ctx, student, courseID)
	if err != nil || doc.Absent || len(doc.Subjects) != 1 || doc.Subjects[0].Tasks[0].Status != "pending" {
		t.Fatalf("read back: err=%v doc=%+v", err, doc)
	}

	ref := course.ItemRef{Kind: course.KindTask, SubjectID: "s1", ItemID: "t1"}
	for i := 0; i < 2; i++ {
		if err := s.PutSubmission(ctx, student, courseID, ref, course.Submission{StudentID: student, FileName: "x.pdf"}); err != nil {
			t.Fatalf("PutSubmission #%d: %v", i, err)
		}
	}
	n, err := s.CountSubmissions(ctx, teacher, courseID, "tasks", "t1")
	if err != nil || n != 1 {
		t.Fatalf("count: want=1 got=%d err=%v", n, err)
	}

	subs, err := s.ListSubmissions(ctx, teacher, courseID, ref)
	if err != nil || len(subs) != 1 || subs[0].StudentID != student || subs[0].FileName != "x.pdf" || subs[0].SubmittedAt == "" {
		t.Fatalf("list: err=%v subs=%+v", err, subs)
	}
	if _, err := s.ListSubmissions(ctx, student, courseID, ref); !syncerr.IsPermissionDenied(err) {
		t.Fatalf("student list: want permission_denied got=%v", err)
	}
}
