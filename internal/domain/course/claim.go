package course

import "strings"

const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleTeacher    = "teacher"
	RoleAdmin      = "admin"
)

// Claim is the locally cached view of who the actor is and which course they
// belong to. It is a hint for the UI, never an authorization decision.
type Claim struct {
	ActorID string `json:"id" validate:"required"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	Course  string `json:"course"`
}

// Profile is the authoritative server-side record for an actor.
type Profile struct {
	ActorID string `json:"id"`
	Role    string `json:"role"`
	Course  string `json:"course"`
	Source  string `json:"source"`
}

func NormalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func NormalizeCourseID(course string) string {
	return strings.TrimSpace(course)
}

// IsWriterRole reports whether role may mutate course content remotely.
func IsWriterRole(role string) bool {
	switch NormalizeRole(role) {
	case RoleInstructor, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// Normalized trims and lower-cases the comparable fields of c.
func (c Claim) Normalized() Claim {
	c.ActorID = strings.TrimSpace(c.ActorID)
	c.Role = NormalizeRole(c.Role)
	c.Course = NormalizeCourseID(c.Course)
	return c
}

func (c Claim) IsWriter() bool { return IsWriterRole(c.Role) }
