package realtime

import (
	"fmt"
	"strings"
)

type SSEEvent string

const (
	// Bus invalidations.
	SSEEventSubjectsChanged    SSEEvent = "SubjectsChanged"
	SSEEventSubmissionsChanged SSEEvent = "SubmissionsChanged"

	// Render stream.
	SSEEventSubjectsRendered SSEEvent = "SubjectsRendered"
	SSEEventSyncStatus       SSEEvent = "SyncStatus"
	SSEEventSubmissionCount  SSEEvent = "SubmissionCount"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

func SubjectsChannel(courseID string) string {
	return fmt.Sprintf("course:%s:subjects", strings.TrimSpace(courseID))
}

func SubmissionsChannel(courseID, collection, itemID string) string {
	return fmt.Sprintf("course:%s:item:%s:%s:submissions", strings.TrimSpace(courseID), collection, itemID)
}

// ActorChannel is the render channel of one actor's session.
func ActorChannel(actorID string) string {
	return "actor:" + strings.TrimSpace(actorID)
}
