package coordinator

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/domain/syncerr"
	"github.com/Siencmd/darkbroad/internal/normalization"
)

// mutate runs on the loop. The updater receives a private copy of the local list.
// overPoints admits new grades above an item's points.
func (c *Coordinator) mutate(update func([]course.Subject) ([]course.Subject, error), overPoints bool) error {
	if update == nil {
		return syncerr.Validation("mutate", "nil updater")
	}
	current := c.cache.Read()
	next, err := update(course.CloneSubjects(current))
	if err != nil {
		if syncerr.CodeOf(err) != "" {
			return err
		}
		return syncerr.Wrap(syncerr.CodeValidation, "mutate", err)
	}
	if err := c.validateList(current, next, overPoints); err != nil {
		return err
	}
	assignIDs(next)

	normalized := normalization.NormalizeWithLimit(next, c.cfg.MaxSubjects)
	if normalization.Hash(normalized) == normalization.Hash(current) {
		return nil
	}
	c.cache.Write(normalized)
	c.claimList()
	c.emit(SourceLocal, normalized)
	c.scheduleAfterLocalChange()
	return nil
}

func (c *Coordinator) scheduleAfterLocalChange() {
	switch {
	case c.state == StateLocalOnlyFallback:
		return
	case !c.claim.IsWriter():
		return
	case c.state == StatePushing:
		c.dirty = true
	default:
		c.state = StatePendingPush
		c.armDebounce()
	}
}

func (c *Coordinator) validateList(current, list []course.Subject, overPoints bool) error {
	if len(list) > c.cfg.MaxSubjects {
		return syncerr.Validation("mutate", fmt.Sprintf("a course holds at most %d subjects", c.cfg.MaxSubjects))
	}
	prev := gradesOf(current)
	seen := make(map[string]struct{}, len(list))
	for _, s := range list {
		if s.ID != "" {
			if _, dup := seen[s.ID]; dup {
				return syncerr.Validation("mutate", fmt.Sprintf("duplicate subject id %q", s.ID))
			}
			seen[s.ID] = struct{}{}
		}
		if err := checkGrades(s, prev, overPoints); err != nil {
			return err
		}
	}
	return nil
}

type gradeKey struct {
	subjectID string
	kind      course.Kind
	itemID    string
	studentID string
}

// gradesOf indexes every recorded grade of list.
func gradesOf(list []course.Subject) map[gradeKey]float64 {
	out := make(map[gradeKey]float64)
	add := func(subjectID string, kind course.Kind, itemID string, subs []course.Submission) {
		for _, sub := range subs {
			if sub.Grade != nil {
				out[gradeKey{subjectID, kind, itemID, sub.StudentID}] = *sub.Grade
			}
		}
	}
	for _, s := range list {
		for _, t := range s.Tasks {
			add(s.ID, course.KindTask, t.ID, t.Submissions)
		}
		for _, a := range s.Assignments {
			add(s.ID, course.KindAssignment, a.ID, a.Submissions)
		}
		for _, q := range s.Quizzes {
			add(s.ID, course.KindQuiz, q.ID, q.Submissions)
		}
	}
	return out
}

// checkGrades rejects negative grades, and grades above the item's points
// unless they were already recorded or overPoints is set.
func checkGrades(s course.Subject, prev map[gradeKey]float64, overPoints bool) error {
	check := func(kind course.Kind, itemID string, points float64, subs []course.Submission) error {
		for _, sub := range subs {
			if sub.Grade == nil {
				continue
			}
			g := *sub.Grade
			if g < 0 {
				return syncerr.Validation("mutate", fmt.Sprintf("negative grade on %s %s", kind, itemID))
			}
			if points <= 0 || g <= points || overPoints {
				continue
			}
			if old, ok := prev[gradeKey{s.ID, kind, itemID, sub.StudentID}]; ok && old == g {
				continue
			}
			return syncerr.Validation("mutate", fmt.Sprintf("grade %.2f exceeds %.2f points on %s %s", g, points, kind, itemID))
		}
		return nil
	}
	for _, t := range s.Tasks {
		if err := check(course.KindTask, t.ID, 0, t.Submissions); err != nil {
			return err
		}
	}
	for _, a := range s.Assignments {
		if err := check(course.KindAssignment, a.ID, a.Points, a.Submissions); err != nil {
			return err
		}
	}
	for _, q := range s.Quizzes {
		if err := check(course.KindQuiz, q.ID, q.Points, q.Submissions); err != nil {
			return err
		}
	}
	return nil
}

// assignIDs gives new subjects and items a stable random id.
func assignIDs(list []course.Subject) {
	newID := func(id *string) {
		if *id == "" {
			*id = uuid.NewString()
		}
	}
	for i := range list {
		s := &list[i]
		newID(&s.ID)
		for j := range s.Tasks {
			newID(&s.Tasks[j].ID)
		}
		for j := range s.Assignments {
			newID(&s.Assignments[j].ID)
		}
		for j := range s.Lessons {
			newID(&s.Lessons[j].ID)
		}
		for j := range s.Quizzes {
			newID(&s.Quizzes[j].ID)
		}
	}
}
