package repos

import (
	"gorm.io/gorm"

	"github.com/Siencmd/darkbroad/internal/data/repos/course"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
)

type SubjectsDocRepo = course.SubjectsDocRepo
type ItemDocRepo = course.ItemDocRepo
type SubmissionRepo = course.SubmissionRepo
type UserProfileRepo = course.UserProfileRepo

// Set groups every repository over one gorm handle.
type Set struct {
	SubjectsDoc SubjectsDocRepo
	ItemDoc     ItemDocRepo
	Submission  SubmissionRepo
	UserProfile UserProfileRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		SubjectsDoc: course.NewSubjectsDocRepo(db, log),
		ItemDoc:     course.NewItemDocRepo(db, log),
		Submission:  course.NewSubmissionRepo(db, log),
		UserProfile: course.NewUserProfileRepo(db, log),
	}
}
