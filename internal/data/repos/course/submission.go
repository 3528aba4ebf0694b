package course

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/pkg/dbctx"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
)

type SubmissionRepo interface {
	// Upsert keeps one row per (course, collection, item, student).
	Upsert(dbc dbctx.Context, sub *domain.SubmissionDocument) error
	ListByItem(dbc dbctx.Context, courseID, collection, itemID string) ([]*domain.SubmissionDocument, error)
	CountByItem(dbc dbctx.Context, courseID, collection, itemID string) (int64, error)
}

type submissionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubmissionRepo(db *gorm.DB, baseLog *logger.Logger) SubmissionRepo {
	return &submissionRepo{db: db, log: baseLog.With("repo", "SubmissionRepo")}
}

func (r *submissionRepo) Upsert(dbc dbctx.Context, sub *domain.SubmissionDocument) error {
	if sub == nil {
		return nil
	}
	return dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "course_id"}, {Name: "collection"}, {Name: "item_id"}, {Name: "student_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"student_name",
				"file_name",
				"file_url",
				"submitted_at",
				"updated_at",
			}),
		}).
		Create(sub).Error
}

func (r *submissionRepo) ListByItem(dbc dbctx.Context, courseID, collection, itemID string) ([]*domain.SubmissionDocument, error) {
	var results []*domain.SubmissionDocument
	if err := dbc.Conn(r.db).
		Where("course_id = ? AND collection = ? AND item_id = ?", courseID, collection, itemID).
		Order("submitted_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *submissionRepo) CountByItem(dbc dbctx.Context, courseID, collection, itemID string) (int64, error) {
	var n int64
	if err := dbc.Conn(r.db).
		Model(&domain.SubmissionDocument{}).
		Where("course_id = ? AND collection = ? AND item_id = ?", courseID, collection, itemID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
