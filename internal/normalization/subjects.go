package normalization

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Siencmd/darkbroad/internal/domain/course"
)

// Normalize maps an arbitrary subject-list payload into the canonical shape,
// truncated to course.MaxSubjects. It never fails: malformed input degrades to
// defaults and a nil or unreadable payload yields an empty list.
func Normalize(raw any) []course.Subject {
	return NormalizeWithLimit(raw, course.MaxSubjects)
}

// NormalizeJSON is Normalize over an encoded payload.
func NormalizeJSON(b []byte) []course.Subject {
	return NormalizeJSONWithLimit(b, course.MaxSubjects)
}

func NormalizeJSONWithLimit(b []byte, limit int) []course.Subject {
	var v any
	if len(b) == 0 || json.Unmarshal(b, &v) != nil {
		return []course.Subject{}
	}
	return normalizeList(v, limit)
}

// NormalizeWithLimit accepts already-decoded JSON ([]any, map[string]any),
// canonical []course.Subject, raw bytes, or anything that encodes to JSON.
// A {"subjects": [...]} document wrapper is unwrapped.
func NormalizeWithLimit(raw any, limit int) []course.Subject {
	switch v := raw.(type) {
	case nil:
		return []course.Subject{}
	case []byte:
		return NormalizeJSONWithLimit(v, limit)
	case json.RawMessage:
		return NormalizeJSONWithLimit(v, limit)
	case []any, map[string]any:
		return normalizeList(v, limit)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return []course.Subject{}
	}
	return NormalizeJSONWithLimit(b, limit)
}

func normalizeList(v any, limit int) []course.Subject {
	if m, ok := v.(map[string]any); ok {
		v = m["subjects"]
	}
	list, _ := v.([]any)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([]course.Subject, 0, len(list))
	for i, el := range list {
		out = append(out, normalizeSubject(asMap(el), i))
	}
	return out
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return m
}

func asList(v any) []any {
	l, _ := v.([]any)
	return l
}

func normalizeSubject(m map[string]any, idx int) course.Subject {
	s := course.Subject{
		ID:          firstString(m, "id"),
		Name:        firstString(m, "name"),
		Teacher:     firstString(m, "teacher"),
		Schedule:    firstString(m, "schedule", "time"),
		Description: firstString(m, "description"),
		Tasks:       []course.Task{},
		Assignments: []course.Assignment{},
		Lessons:     []course.Lesson{},
		Quizzes:     []course.Quiz{},
	}
	if s.ID == "" {
		s.ID = fmt.Sprintf("legacy-subject-%d", idx)
	}
	if s.Name == "" {
		s.Name = course.UntitledSubject
	}
	for i, el := range asList(m["tasks"]) {
		s.Tasks = append(s.Tasks, normalizeTask(asMap(el), idx, i))
	}
	for i, el := range asList(m["assignments"]) {
		s.Assignments = append(s.Assignments, normalizeAssignment(asMap(el), idx, i))
	}
	for i, el := range asList(m["lessons"]) {
		s.Lessons = append(s.Lessons, normalizeLesson(asMap(el), idx, i))
	}
	for i, el := range asList(m["quizzes"]) {
		s.Quizzes = append(s.Quizzes, normalizeQuiz(asMap(el), idx, i))
	}
	return s
}

func itemID(m map[string]any, kind course.Kind, subjectIdx, idx int) string {
	if id := firstString(m, "id"); id != "" {
		return id
	}
	return fmt.Sprintf("legacy-%s-%d-%d", kind, subjectIdx, idx)
}

func attachment(m map[string]any) course.Attachment {
	return course.Attachment{
		FileName: firstStringPtr(m, "fileName", "file"),
		FileURL:  firstStringPtr(m, "fileUrl", "url"),
	}
}

func normalizeTask(m map[string]any, si, i int) course.Task {
	return course.Task{
		ID:          itemID(m, course.KindTask, si, i),
		Title:       firstString(m, "title"),
		Description: firstString(m, "description"),
		DueDate:     firstString(m, "dueDate"),
		Priority:    course.OneOf(firstString(m, "priority"), course.TaskPriorities),
		Status:      course.OneOf(firstString(m, "status"), course.TaskStatuses),
		Attachment:  attachment(m),
		Submissions: normalizeSubmissions(m["submissions"]),
	}
}

func normalizeAssignment(m map[string]any, si, i int) course.Assignment {
	return course.Assignment{
		ID:           itemID(m, course.KindAssignment, si, i),
		Title:        firstString(m, "title"),
		Instructions: firstString(m, "instructions"),
		DueDate:      firstString(m, "dueDate"),
		Points:       nonNegative(m, "points"),
		Status:       course.OneOf(firstString(m, "status"), course.AssignmentStatuses),
		Attachment:   attachment(m),
		Submissions:  normalizeSubmissions(m["submissions"]),
	}
}

func normalizeLesson(m map[string]any, si, i int) course.Lesson {
	return course.Lesson{
		ID:         itemID(m, course.KindLesson, si, i),
		Title:      firstString(m, "title"),
		Content:    firstString(m, "content"),
		Date:       firstString(m, "date"),
		Status:     course.OneOf(firstString(m, "status"), course.LessonStatuses),
		Attachment: attachment(m),
	}
}

func normalizeQuiz(m map[string]any, si, i int) course.Quiz {
	return course.Quiz{
		ID:           itemID(m, course.KindQuiz, si, i),
		Title:        firstString(m, "title"),
		Instructions: firstString(m, "instructions"),
		DueDate:      firstString(m, "dueDate"),
		Points:       nonNegative(m, "points"),
		TimeLimit:    int(nonNegative(m, "timeLimit")),
		Status:       course.OneOf(firstString(m, "status"), course.QuizStatuses),
		Attachment:   attachment(m),
		Submissions:  normalizeSubmissions(m["submissions"]),
	}
}

// normalizeSubmissions drops entries without a student and keeps one entry per
// student: the last one seen, at the position of the first.
func normalizeSubmissions(v any) []course.Submission {
	out := []course.Submission{}
	for _, el := range asList(v) {
		m := asMap(el)
		studentID := firstString(m, "studentId")
		if studentID == "" {
			continue
		}
		sub := course.Submission{
			StudentID:   studentID,
			StudentName: firstString(m, "studentName"),
			FileName:    firstString(m, "fileName", "file"),
			FileURL:     firstStringPtr(m, "fileUrl", "url"),
			SubmittedAt: submittedAt(m["submittedAt"]),
			Feedback:    firstString(m, "feedback"),
			Status:      course.OneOf(firstString(m, "status"), course.SubmissionStatuses),
		}
		if g, ok := ParseInputNumber(m["grade"]); ok && g >= 0 {
			sub.Grade = &g
		}
		out = course.UpsertSubmission(out, sub)
	}
	return out
}

// submittedAt accepts RFC3339 strings as-is, epoch milliseconds, and
// {seconds, nanoseconds} timestamp objects.
func submittedAt(v any) string {
	switch t := v.(type) {
	case map[string]any:
		sec, ok := ParseInputNumber(t["seconds"])
		if !ok {
			sec, ok = ParseInputNumber(t["_seconds"])
		}
		if !ok {
			return ""
		}
		nsec, _ := ParseInputNumber(t["nanoseconds"])
		return time.Unix(int64(sec), int64(nsec)).UTC().Format(time.RFC3339Nano)
	case float64, json.Number:
		ms, ok := ParseInputNumber(t)
		if !ok || ms <= 0 {
			return ""
		}
		return time.UnixMilli(int64(ms)).UTC().Format(time.RFC3339Nano)
	default:
		return ParseInputString(v)
	}
}
