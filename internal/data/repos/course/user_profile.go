package course

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/pkg/dbctx"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
)

type UserProfileRepo interface {
	// GetPreferred returns the "users" profile of actorID if present, else the
	// "students" one, else nil.
	GetPreferred(dbc dbctx.Context, actorID string) (*domain.UserProfile, error)
	Upsert(dbc dbctx.Context, p *domain.UserProfile) error
}

type userProfileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserProfileRepo(db *gorm.DB, baseLog *logger.Logger) UserProfileRepo {
	return &userProfileRepo{db: db, log: baseLog.With("repo", "UserProfileRepo")}
}

func (r *userProfileRepo) GetPreferred(dbc dbctx.Context, actorID string) (*domain.UserProfile, error) {
	var rows []*domain.UserProfile
	if err := dbc.Conn(r.db).
		Where("actor_id = ?", actorID).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	var fallback *domain.UserProfile
	for _, p := range rows {
		switch p.Source {
		case domain.ProfileSourceUsers:
			return p, nil
		case domain.ProfileSourceStudents:
			fallback = p
		}
	}
	return fallback, nil
}

func (r *userProfileRepo) Upsert(dbc dbctx.Context, p *domain.UserProfile) error {
	if p == nil {
		return nil
	}
	return dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "actor_id"}, {Name: "source"}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "course", "updated_at"}),
		}).
		Create(p).Error
}
