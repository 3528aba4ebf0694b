package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/domain/syncerr"
	"github.com/Siencmd/darkbroad/internal/pkg/pointers"
	"github.com/Siencmd/darkbroad/internal/pkg/validate"
)

// SubmitRequest is a student's submission against one item. MarkAsDone submits
// without an attachment.
type SubmitRequest struct {
	Kind       course.Kind `json:"kind" validate:"required,oneof=task assignment quiz"`
	SubjectID  string      `json:"subjectId" validate:"required"`
	ItemID     string      `json:"itemId" validate:"required"`
	FileName   string      `json:"fileName"`
	FileURL    string      `json:"fileUrl" validate:"omitempty,url"`
	MarkAsDone bool        `json:"markAsDone"`
}

func (r SubmitRequest) ref() course.ItemRef {
	return course.ItemRef{Kind: r.Kind, SubjectID: r.SubjectID, ItemID: r.ItemID}
}

// GradeRequest grades one student's submission. A grade above the item's
// points is accepted only with Override.
type GradeRequest struct {
	Kind      course.Kind `json:"kind" validate:"required,oneof=task assignment quiz"`
	SubjectID string      `json:"subjectId" validate:"required"`
	ItemID    string      `json:"itemId" validate:"required"`
	StudentID string      `json:"studentId" validate:"required"`
	Grade     float64     `json:"grade" validate:"gte=0"`
	Feedback  string      `json:"feedback" validate:"max=4000"`
	Override  bool        `json:"override"`
}

func (r GradeRequest) ref() course.ItemRef {
	return course.ItemRef{Kind: r.Kind, SubjectID: r.SubjectID, ItemID: r.ItemID}
}

// Submit records the actor's submission locally, replacing any earlier one by
// the same student, then writes it to the remote store. Integrity failures are
// rejected before anything is written.
func (c *Coordinator) Submit(ctx context.Context, req SubmitRequest) error {
	req.Kind = course.ParseKind(string(req.Kind))
	req.FileName = strings.TrimSpace(req.FileName)
	req.FileURL = strings.TrimSpace(req.FileURL)
	if err := validate.Struct(req); err != nil {
		return syncerr.Wrap(syncerr.CodeValidation, "submit", err)
	}
	if !req.MarkAsDone && (req.FileName == "" || req.FileURL == "") {
		return syncerr.Integrity("submit", "a file is required unless the item is marked as done")
	}

	var (
		claim    course.Claim
		sub      course.Submission
		offline  bool
		innerErr error
	)
	err := c.call(ctx, func() {
		claim = c.claim
		switch {
		case claim.ActorID == "":
			innerErr = syncerr.Integrity("submit", "missing student identity")
			return
		case claim.Course == "":
			innerErr = syncerr.Integrity("submit", "no course assigned")
			return
		}
		sub = course.Submission{
			StudentID:   claim.ActorID,
			StudentName: claim.Name,
			SubmittedAt: c.clock.Now().UTC().Format(time.RFC3339Nano),
			Status:      course.SubmissionStatusDefault,
		}
		if !req.MarkAsDone {
			sub.FileName, sub.FileURL = req.FileName, pointers.String(req.FileURL)
		}
		innerErr = c.mutate(func(list []course.Subject) ([]course.Subject, error) {
			target, err := locate(list, req.ref())
			if err != nil {
				return nil, err
			}
			*target.Submissions = course.UpsertSubmission(*target.Submissions, sub)
			if req.Kind == course.KindTask {
				target.SetStatus(req.Kind, course.TaskStatusSubmitted)
			}
			return list, nil
		}, false)
		offline = c.state == StateLocalOnlyFallback
	})
	if err != nil {
		return err
	}
	if innerErr != nil || offline {
		return innerErr
	}

	ctx, span := c.tracer.Start(ctx, "coordinator.submit")
	defer span.End()
	if err := c.remote.PutSubmission(ctx, claim.ActorID, claim.Course, req.ref(), sub); err != nil {
		err = syncerr.Classify("submit", err)
		c.log.Warn("Submission write failed; kept locally", "course_id", claim.Course, "item_id", req.ItemID, "error", err)
		return err
	}
	return nil
}

// Grade sets a grade and feedback on a submission. Only writers grade. The
// item's stored submissions are merged into the local list first; the change
// travels with the next subject-list push.
func (c *Coordinator) Grade(ctx context.Context, req GradeRequest) error {
	req.Kind = course.ParseKind(string(req.Kind))
	if err := validate.Struct(req); err != nil {
		return syncerr.Wrap(syncerr.CodeValidation, "grade", err)
	}
	var (
		claim    course.Claim
		gen      uint64
		offline  bool
		innerErr error
	)
	err := c.call(ctx, func() {
		if !c.claim.IsWriter() {
			innerErr = syncerr.PermissionDenied("grade", "only instructors can grade")
			return
		}
		claim, gen = c.claim, c.sessionGen
		offline = c.state == StateLocalOnlyFallback
	})
	if err != nil {
		return err
	}
	if innerErr != nil {
		return innerErr
	}

	var stored []course.Submission
	if !offline && claim.Course != "" && req.Kind.Submittable() {
		stored = c.storedSubmissions(ctx, claim, req.ref())
	}

	err = c.call(ctx, func() {
		if gen != c.sessionGen {
			innerErr = ErrSessionReset
			return
		}
		innerErr = c.mutate(func(list []course.Subject) ([]course.Subject, error) {
			target, err := locate(list, req.ref())
			if err != nil {
				return nil, err
			}
			if target.MaxPoints > 0 && req.Grade > target.MaxPoints && !req.Override {
				return nil, syncerr.Validation("grade", fmt.Sprintf("grade %.2f exceeds %.2f points; confirm to override", req.Grade, target.MaxPoints))
			}
			subs := *target.Submissions
			for _, sub := range stored {
				subs = course.MergeSubmission(subs, sub)
			}
			i := course.FindSubmission(subs, req.StudentID)
			if i < 0 {
				return nil, syncerr.Validation("grade", "no submission from this student")
			}
			subs[i].Grade = pointers.Float64(req.Grade)
			subs[i].Feedback = strings.TrimSpace(req.Feedback)
			subs[i].Status = course.SubmissionStatusGraded
			*target.Submissions = subs
			return list, nil
		}, req.Override)
	})
	if err != nil {
		return err
	}
	return innerErr
}

// storedSubmissions reads the submissions students wrote for ref. On failure
// grading falls back to the local list.
func (c *Coordinator) storedSubmissions(ctx context.Context, claim course.Claim, ref course.ItemRef) []course.Submission {
	ctx, span := c.tracer.Start(ctx, "coordinator.list_submissions")
	defer span.End()
	subs, err := c.remote.ListSubmissions(ctx, claim.ActorID, claim.Course, ref)
	if err != nil {
		c.log.Warn("Listing submissions failed; grading from the local list", "course_id", claim.Course, "item_id", ref.ItemID, "error", syncerr.Classify("grade", err))
		return nil
	}
	return subs
}

func locate(list []course.Subject, ref course.ItemRef) (course.SubmissionTarget, error) {
	i := course.IndexOf(list, ref.SubjectID)
	if i < 0 {
		return course.SubmissionTarget{}, syncerr.Validation("locate", fmt.Sprintf("unknown subject %q", ref.SubjectID))
	}
	target, ok := list[i].Target(ref.Kind, ref.ItemID)
	if !ok {
		return course.SubmissionTarget{}, syncerr.Validation("locate", fmt.Sprintf("unknown %s %q", ref.Kind, ref.ItemID))
	}
	return target, nil
}
