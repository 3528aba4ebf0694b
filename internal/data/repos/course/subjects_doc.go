package course

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/pkg/dbctx"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
)

type SubjectsDocRepo interface {
	// GetByCourseID returns nil, nil when the course has no document yet.
	GetByCourseID(dbc dbctx.Context, courseID string) (*domain.SubjectsDocument, error)
	Upsert(dbc dbctx.Context, doc *domain.SubjectsDocument) error
}

type subjectsDocRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubjectsDocRepo(db *gorm.DB, baseLog *logger.Logger) SubjectsDocRepo {
	return &subjectsDocRepo{db: db, log: baseLog.With("repo", "SubjectsDocRepo")}
}

func (r *subjectsDocRepo) GetByCourseID(dbc dbctx.Context, courseID string) (*domain.SubjectsDocument, error) {
	var doc domain.SubjectsDocument
	err := dbc.Conn(r.db).
		Where("course_id = ?", courseID).
		Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *subjectsDocRepo) Upsert(dbc dbctx.Context, doc *domain.SubjectsDocument) error {
	if doc == nil {
		return nil
	}
	return dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "course_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"subjects",
				"schema_version",
				"updated_by",
				"last_updated",
			}),
		}).
		Create(doc).Error
}
