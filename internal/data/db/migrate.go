package db

import (
	"gorm.io/gorm"

	"github.com/Siencmd/darkbroad/internal/domain/course"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Course content
		&course.SubjectsDocument{},
		&course.ItemDocument{},
		&course.SubmissionDocument{},

		// Identity
		&course.UserProfile{},
	)
}
