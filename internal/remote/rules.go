package remote

import (
	"context"
	"strings"

	"github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/domain/syncerr"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
	"github.com/Siencmd/darkbroad/internal/realtime"
	"github.com/Siencmd/darkbroad/internal/realtime/bus"
)

// Members of the course may read it.
func authorizeRead(op string, p *course.Profile, courseID string) error {
	if p == nil {
		return syncerr.PermissionDenied(op, "no profile")
	}
	if p.Course == "" || p.Course != courseID {
		return syncerr.PermissionDenied(op, "not a member of course")
	}
	return nil
}

// Only writer roles of the course may change content.
func authorizeWrite(op string, p *course.Profile, courseID string) error {
	if err := authorizeRead(op, p, courseID); err != nil {
		return err
	}
	if !course.IsWriterRole(p.Role) {
		return syncerr.PermissionDenied(op, "role may not write course content")
	}
	return nil
}

// Every student's submissions are visible only to writers of the course.
func authorizeReview(op string, p *course.Profile, courseID string) error {
	if err := authorizeRead(op, p, courseID); err != nil {
		return err
	}
	if !course.IsWriterRole(p.Role) {
		return syncerr.PermissionDenied(op, "only instructors may read submissions")
	}
	return nil
}

// A submission is written only by the student it belongs to.
func authorizeSubmission(op string, p *course.Profile, actorID, courseID string, sub course.Submission) error {
	if err := authorizeRead(op, p, courseID); err != nil {
		return err
	}
	if strings.TrimSpace(sub.StudentID) != actorID {
		return syncerr.PermissionDenied(op, "submission owned by another student")
	}
	return nil
}

func publish(ctx context.Context, b bus.Bus, log *logger.Logger, msg realtime.SSEMessage) {
	if b == nil {
		return
	}
	if err := b.Publish(ctx, msg); err != nil {
		log.Warn("Failed to publish invalidation", "channel", msg.Channel, "error", err)
	}
}

func subjectsChanged(courseID string) realtime.SSEMessage {
	return realtime.SSEMessage{Channel: realtime.SubjectsChannel(courseID), Event: realtime.SSEEventSubjectsChanged}
}

func submissionsChanged(courseID string, ref course.ItemRef) realtime.SSEMessage {
	return realtime.SSEMessage{
		Channel: realtime.SubmissionsChannel(courseID, ref.Kind.Collection(), ref.ItemID),
		Event:   realtime.SSEEventSubmissionsChanged,
		Data:    map[string]string{"itemId": ref.ItemID},
	}
}
