package course

// Submission is one student's live entry against an item. FileURL is nil for
// submissions without an attachment ("mark as done").
type Submission struct {
	StudentID   string   `json:"studentId"`
	StudentName string   `json:"studentName,omitempty"`
	FileName    string   `json:"fileName"`
	FileURL     *string  `json:"fileUrl"`
	SubmittedAt string   `json:"submittedAt"`
	Grade       *float64 `json:"grade,omitempty"`
	Feedback    string   `json:"feedback,omitempty"`
	Status      string   `json:"status"`
}

func cloneSubmissions(in []Submission) []Submission {
	return append(make([]Submission, 0, len(in)), in...)
}

// UpsertSubmission replaces the entry of sub.StudentID in place or appends it.
func UpsertSubmission(subs []Submission, sub Submission) []Submission {
	for i := range subs {
		if subs[i].StudentID == sub.StudentID {
			subs[i] = sub
			return subs
		}
	}
	return append(subs, sub)
}

// FindSubmission returns the index of studentID's entry, or -1.
func FindSubmission(subs []Submission, studentID string) int {
	for i := range subs {
		if subs[i].StudentID == studentID {
			return i
		}
	}
	return -1
}

// MergeSubmission folds a stored submission into subs. The stored attachment
// fields win; a grade, feedback and status already on the list are kept.
func MergeSubmission(subs []Submission, stored Submission) []Submission {
	i := FindSubmission(subs, stored.StudentID)
	if i < 0 {
		if stored.Status == "" {
			stored.Status = SubmissionStatusDefault
		}
		return append(subs, stored)
	}
	cur := &subs[i]
	if stored.StudentName != "" {
		cur.StudentName = stored.StudentName
	}
	cur.FileName, cur.FileURL, cur.SubmittedAt = stored.FileName, stored.FileURL, stored.SubmittedAt
	return subs
}
