package testutil

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/Siencmd/darkbroad/internal/domain/course"
)

func SeedProfile(tb testing.TB, ctx context.Context, tx *gorm.DB, actorID, source, role, courseID string) *course.UserProfile {
	tb.Helper()
	p := &course.UserProfile{
		ActorID:   actorID,
		Source:    source,
		Role:      role,
		Course:    courseID,
		UpdatedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed profile: %v", err)
	}
	return p
}
