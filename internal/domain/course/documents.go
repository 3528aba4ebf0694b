package course

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SubjectsDocument is the per-course remote record `{subjects, lastUpdated}`.
// A missing row means "no data yet" and is not an error.
type SubjectsDocument struct {
	CourseID      string         `gorm:"column:course_id;primaryKey" json:"course_id"`
	Subjects      datatypes.JSON `gorm:"column:subjects;not null" json:"subjects"`
	SchemaVersion int            `gorm:"column:schema_version;not null;default:2" json:"schema_version"`
	UpdatedBy     string         `gorm:"column:updated_by" json:"updated_by"`
	LastUpdated   time.Time      `gorm:"column:last_updated;not null;index" json:"last_updated"`
}

func (SubjectsDocument) TableName() string { return "course_subjects_doc" }

// ItemDocument is the parent record of an item's submissions. The writer role
// upserts the header columns only; Extra belongs to whoever else maintains it.
type ItemDocument struct {
	CourseID    string         `gorm:"column:course_id;primaryKey" json:"course_id"`
	Collection  string         `gorm:"column:collection;primaryKey" json:"collection"`
	ItemID      string         `gorm:"column:item_id;primaryKey" json:"item_id"`
	SubjectID   string         `gorm:"column:subject_id;index" json:"subject_id"`
	SubjectName string         `gorm:"column:subject_name" json:"subject_name"`
	Title       string         `gorm:"column:title" json:"title"`
	DueDate     string         `gorm:"column:due_date" json:"due_date"`
	Extra       datatypes.JSON `gorm:"column:extra" json:"extra,omitempty"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (ItemDocument) TableName() string { return "course_item_doc" }

// SubmissionDocument is keyed by (course, collection, item, student): one live
// row per student per item, written by the owning student.
type SubmissionDocument struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID    string    `gorm:"column:course_id;not null;uniqueIndex:idx_submission_owner,priority:1" json:"course_id"`
	Collection  string    `gorm:"column:collection;not null;uniqueIndex:idx_submission_owner,priority:2" json:"collection"`
	ItemID      string    `gorm:"column:item_id;not null;uniqueIndex:idx_submission_owner,priority:3" json:"item_id"`
	StudentID   string    `gorm:"column:student_id;not null;uniqueIndex:idx_submission_owner,priority:4" json:"student_id"`
	StudentName string    `gorm:"column:student_name" json:"student_name"`
	FileName    string    `gorm:"column:file_name" json:"file_name"`
	FileURL     *string   `gorm:"column:file_url" json:"file_url,omitempty"`
	SubmittedAt time.Time `gorm:"column:submitted_at;not null" json:"submitted_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (SubmissionDocument) TableName() string { return "course_submission_doc" }

// ToSubmission is the list entry of a stored submission. Grades live in the
// subject list only.
func (d *SubmissionDocument) ToSubmission() Submission {
	return Submission{
		StudentID:   d.StudentID,
		StudentName: d.StudentName,
		FileName:    d.FileName,
		FileURL:     d.FileURL,
		SubmittedAt: d.SubmittedAt.UTC().Format(time.RFC3339Nano),
		Status:      SubmissionStatusDefault,
	}
}

const (
	ProfileSourceUsers    = "users"
	ProfileSourceStudents = "students"
)

// UserProfile is the authoritative role/course assignment of an actor. Staff
// live under the "users" source and are preferred over "students".
type UserProfile struct {
	ActorID   string    `gorm:"column:actor_id;primaryKey" json:"actor_id"`
	Source    string    `gorm:"column:source;primaryKey" json:"source"`
	Role      string    `gorm:"column:role;not null" json:"role"`
	Course    string    `gorm:"column:course;index" json:"course"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (UserProfile) TableName() string { return "user_profile" }

func (p *UserProfile) ToProfile() *Profile {
	if p == nil {
		return nil
	}
	return &Profile{
		ActorID: p.ActorID,
		Role:    NormalizeRole(p.Role),
		Course:  NormalizeCourseID(p.Course),
		Source:  p.Source,
	}
}
