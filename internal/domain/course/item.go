package course

import "strings"

type Kind string

const (
	KindTask       Kind = "task"
	KindAssignment Kind = "assignment"
	KindLesson     Kind = "lesson"
	KindQuiz       Kind = "quiz"
)

// Collection is the plural name used for remote item paths and legacy record keys.
func (k Kind) Collection() string {
	switch k {
	case KindQuiz:
		return "quizzes"
	case KindTask, KindAssignment, KindLesson:
		return string(k) + "s"
	default:
		return ""
	}
}

// Submittable reports whether items of this kind carry submissions.
func (k Kind) Submittable() bool {
	return k == KindTask || k == KindAssignment || k == KindQuiz
}

func ParseKind(raw string) Kind {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindTask, KindAssignment, KindLesson, KindQuiz:
		return k
	}
	return ""
}

// Status enums are closed per item type; the first value of each set is the default.
var (
	TaskStatuses       = []string{"pending", "in-progress", "completed", "submitted"}
	AssignmentStatuses = []string{"pending", "submitted", "graded", "closed"}
	LessonStatuses     = []string{"draft", "published"}
	QuizStatuses       = []string{"pending", "open", "closed", "graded"}
	SubmissionStatuses = []string{"submitted", "graded", "returned"}
	TaskPriorities     = []string{"medium", "low", "high"}
)

const (
	TaskStatusSubmitted     = "submitted"
	SubmissionStatusGraded  = "graded"
	SubmissionStatusDefault = "submitted"
)

// StatusSet returns the closed status set for kind.
func StatusSet(k Kind) []string {
	switch k {
	case KindTask:
		return TaskStatuses
	case KindAssignment:
		return AssignmentStatuses
	case KindLesson:
		return LessonStatuses
	case KindQuiz:
		return QuizStatuses
	}
	return nil
}

// OneOf returns raw when it is a member of set (case-insensitive), else set[0].
func OneOf(raw string, set []string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	for _, s := range set {
		if v == s {
			return s
		}
	}
	if len(set) == 0 {
		return ""
	}
	return set[0]
}

// Attachment is an out-of-band file reference; the content is never inspected.
type Attachment struct {
	FileName *string `json:"fileName"`
	FileURL  *string `json:"fileUrl"`
}

type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"dueDate"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	Attachment
	Submissions []Submission `json:"submissions"`
}

type Assignment struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Instructions string  `json:"instructions"`
	DueDate      string  `json:"dueDate"`
	Points       float64 `json:"points"`
	Status       string  `json:"status"`
	Attachment
	Submissions []Submission `json:"submissions"`
}

type Lesson struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Date    string `json:"date"`
	Status  string `json:"status"`
	Attachment
}

type Quiz struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Instructions string  `json:"instructions"`
	DueDate      string  `json:"dueDate"`
	Points       float64 `json:"points"`
	TimeLimit    int     `json:"timeLimit"`
	Status       string  `json:"status"`
	Attachment
	Submissions []Submission `json:"submissions"`
}

// ItemRef addresses one item inside a course's subject list.
type ItemRef struct {
	Kind      Kind   `json:"kind"`
	SubjectID string `json:"subjectId"`
	ItemID    string `json:"itemId"`
}

// SubmissionTarget is a mutable view of a submittable item inside a subject.
type SubmissionTarget struct {
	Title       string
	DueDate     string
	MaxPoints   float64
	Submissions *[]Submission
	status      *string
}

// SetStatus overwrites the owning item's status when value belongs to its set.
func (t SubmissionTarget) SetStatus(kind Kind, value string) {
	if t.status == nil {
		return
	}
	if OneOf(value, StatusSet(kind)) == value {
		*t.status = value
	}
}

// Target locates a submittable item on s. MaxPoints is zero when the item type
// carries no points.
func (s *Subject) Target(kind Kind, itemID string) (SubmissionTarget, bool) {
	switch kind {
	case KindTask:
		for i := range s.Tasks {
			if it := &s.Tasks[i]; it.ID == itemID {
				return SubmissionTarget{Title: it.Title, DueDate: it.DueDate, Submissions: &it.Submissions, status: &it.Status}, true
			}
		}
	case KindAssignment:
		for i := range s.Assignments {
			if it := &s.Assignments[i]; it.ID == itemID {
				return SubmissionTarget{Title: it.Title, DueDate: it.DueDate, MaxPoints: it.Points, Submissions: &it.Submissions, status: &it.Status}, true
			}
		}
	case KindQuiz:
		for i := range s.Quizzes {
			if it := &s.Quizzes[i]; it.ID == itemID {
				return SubmissionTarget{Title: it.Title, DueDate: it.DueDate, MaxPoints: it.Points, Submissions: &it.Submissions, status: &it.Status}, true
			}
		}
	}
	return SubmissionTarget{}, false
}

// ItemHeader is the minimal projection written to parent item documents.
type ItemHeader struct {
	Kind        Kind
	SubjectID   string
	SubjectName string
	ItemID      string
	Title       string
	DueDate     string
}

// Headers lists every task, assignment and quiz of subjects in list order.
func Headers(subjects []Subject) []ItemHeader {
	var out []ItemHeader
	for _, s := range subjects {
		for _, it := range s.Tasks {
			out = append(out, ItemHeader{KindTask, s.ID, s.Name, it.ID, it.Title, it.DueDate})
		}
		for _, it := range s.Assignments {
			out = append(out, ItemHeader{KindAssignment, s.ID, s.Name, it.ID, it.Title, it.DueDate})
		}
		for _, it := range s.Quizzes {
			out = append(out, ItemHeader{KindQuiz, s.ID, s.Name, it.ID, it.Title, it.DueDate})
		}
	}
	return out
}
