package coordinator

import (
	"time"

	"github.com/Siencmd/darkbroad/internal/domain/course"
)

// State is the sync state of the active course session.
type State int

const (
	StateIdle State = iota
	StatePendingPush
	StatePushing
	StateLocalOnlyFallback
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePendingPush:
		return "pending_push"
	case StatePushing:
		return "pushing"
	case StateLocalOnlyFallback:
		return "local_only_fallback"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Mode is the user-visible sync indicator.
type Mode string

const (
	ModeRealtime  Mode = "realtime"
	ModeReadOnly  Mode = "read_only"
	ModeLocalOnly Mode = "local_only"
	ModeOffline   Mode = "offline"
)

// Status is a point-in-time view of the coordinator.
type Status struct {
	State          State     `json:"state"`
	Mode           Mode      `json:"mode"`
	ActorID        string    `json:"actorId"`
	Role           string    `json:"role"`
	CourseID       string    `json:"courseId"`
	CanWrite       bool      `json:"canWrite"`
	Subscribed     bool      `json:"subscribed"`
	EchoSuppressed bool      `json:"echoSuppressed"`
	LocalHash      string    `json:"localHash"`
	SyncedHash     string    `json:"syncedHash"`
	RemoteAbsent   bool      `json:"remoteAbsent"`
	SeedAvailable  bool      `json:"seedAvailable"`
	Notice         string    `json:"notice,omitempty"`
	LastError      string    `json:"lastError,omitempty"`
	LastPushAt     time.Time `json:"lastPushAt,omitempty"`
}

// ChangeSource says what produced a render.
type ChangeSource string

const (
	SourceLocal  ChangeSource = "local"
	SourceRemote ChangeSource = "remote"
	SourceReset  ChangeSource = "reset"
	SourceStatus ChangeSource = "status"
)

// Change is delivered to render callbacks. Subjects is a private copy.
type Change struct {
	Source   ChangeSource     `json:"source"`
	Subjects []course.Subject `json:"subjects"`
	Status   Status           `json:"status"`
}
