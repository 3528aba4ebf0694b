package course

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/pkg/dbctx"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
)

type ItemDocRepo interface {
	// UpsertHeaders merges header columns into existing rows; Extra is only
	// set on insert.
	UpsertHeaders(dbc dbctx.Context, docs []*domain.ItemDocument) error
}

type itemDocRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewItemDocRepo(db *gorm.DB, baseLog *logger.Logger) ItemDocRepo {
	return &itemDocRepo{db: db, log: baseLog.With("repo", "ItemDocRepo")}
}

func (r *itemDocRepo) UpsertHeaders(dbc dbctx.Context, docs []*domain.ItemDocument) error {
	if len(docs) == 0 {
		return nil
	}
	return dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "course_id"}, {Name: "collection"}, {Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"subject_id",
				"subject_name",
				"title",
				"due_date",
				"updated_at",
			}),
		}).
		Create(&docs).Error
}
