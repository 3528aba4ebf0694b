package course

const (
	// MaxSubjects bounds the subject list of a single course.
	MaxSubjects = 10
	// SchemaVersion is stamped on every remote subjects document.
	SchemaVersion = 2

	UntitledSubject = "Untitled Subject"
)

// Subject is the canonical shape of one entry in a course's subject list.
type Subject struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Teacher     string       `json:"teacher"`
	Schedule    string       `json:"schedule"`
	Description string       `json:"description"`
	Tasks       []Task       `json:"tasks"`
	Assignments []Assignment `json:"assignments"`
	Lessons     []Lesson     `json:"lessons"`
	Quizzes     []Quiz       `json:"quizzes"`
}

// Clone copies every slice reachable from s. Pointer fields are shared; they are
// replaced, never mutated in place.
func (s Subject) Clone() Subject {
	out := s
	out.Tasks = make([]Task, len(s.Tasks))
	for i, t := range s.Tasks {
		t.Submissions = cloneSubmissions(t.Submissions)
		out.Tasks[i] = t
	}
	out.Assignments = make([]Assignment, len(s.Assignments))
	for i, a := range s.Assignments {
		a.Submissions = cloneSubmissions(a.Submissions)
		out.Assignments[i] = a
	}
	out.Lessons = append(make([]Lesson, 0, len(s.Lessons)), s.Lessons...)
	out.Quizzes = make([]Quiz, len(s.Quizzes))
	for i, q := range s.Quizzes {
		q.Submissions = cloneSubmissions(q.Submissions)
		out.Quizzes[i] = q
	}
	return out
}

// CloneSubjects deep-copies a subject list. A nil list becomes an empty one.
func CloneSubjects(in []Subject) []Subject {
	out := make([]Subject, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// IndexOf returns the position of the subject with id, or -1.
func IndexOf(subjects []Subject, id string) int {
	for i := range subjects {
		if subjects[i].ID == id {
			return i
		}
	}
	return -1
}
