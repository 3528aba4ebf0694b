package permission

import (
	"context"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/domain/syncerr"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
)

// ProfileStore returns the authoritative profile of an actor, or nil when none exists.
type ProfileStore interface {
	GetProfile(ctx context.Context, actorID string) (*course.Profile, error)
}

// ClaimStore persists the locally cached actor claim.
type ClaimStore interface {
	WriteClaim(claim course.Claim)
}

// Decision is the outcome of one gate resolution.
type Decision struct {
	Claim        course.Claim
	Profile      *course.Profile
	CanWrite     bool
	ClaimChanged bool
}

// Gate decides remote write eligibility. It never trusts the cached claim: every
// resolution goes back to the profile store. Concurrent lookups for the same
// actor share one fetch; results are not kept between calls.
type Gate struct {
	profiles ProfileStore
	claims   ClaimStore
	log      *logger.Logger
	group    singleflight.Group
}

func New(profiles ProfileStore, claims ClaimStore, log *logger.Logger) *Gate {
	if log == nil {
		log = logger.Nop()
	}
	return &Gate{
		profiles: profiles,
		claims:   claims,
		log:      log.With("component", "PermissionGate"),
	}
}

// ResolveAuthoritative fetches the server profile for actorID. A nil profile
// with a nil error means the actor has no profile.
func (g *Gate) ResolveAuthoritative(ctx context.Context, actorID string) (*course.Profile, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, nil
	}
	v, err, shared := g.group.Do(actorID, func() (any, error) {
		return g.profiles.GetProfile(ctx, actorID)
	})
	if err != nil {
		return nil, syncerr.Classify("resolve profile", err)
	}
	if shared {
		g.log.Debug("Coalesced profile lookup", "actor_id", actorID)
	}
	p, _ := v.(*course.Profile)
	if p == nil {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// Resolve compares claim with the authoritative profile. When they disagree the
// server wins: the returned claim carries the server role and course and is
// written back to the claim store.
func (g *Gate) Resolve(ctx context.Context, claim course.Claim) (Decision, error) {
	claim = claim.Normalized()
	d := Decision{Claim: claim}
	if claim.ActorID == "" {
		return d, nil
	}

	profile, err := g.ResolveAuthoritative(ctx, claim.ActorID)
	if err != nil {
		g.log.Warn("Profile lookup failed; denying write", "actor_id", claim.ActorID, "error", err)
		return d, err
	}
	if profile == nil {
		g.log.Debug("No authoritative profile; denying write", "actor_id", claim.ActorID)
		return d, nil
	}
	d.Profile = profile

	updated := claim
	if profile.Role != "" && profile.Role != claim.Role {
		updated.Role = profile.Role
	}
	if profile.Course != "" && profile.Course != claim.Course {
		updated.Course = profile.Course
	}
	if updated != claim {
		g.log.Info("Cached claim disagrees with server profile; updating",
			"actor_id", claim.ActorID,
			"cached_role", claim.Role, "server_role", profile.Role,
			"cached_course", claim.Course, "server_course", profile.Course,
		)
		d.Claim = updated
		d.ClaimChanged = true
		if g.claims != nil {
			g.claims.WriteClaim(updated)
		}
	}

	d.CanWrite = course.IsWriterRole(profile.Role) && profile.Course != ""
	return d, nil
}

// CanWrite is Resolve reduced to its verdict. Lookup errors deny.
func (g *Gate) CanWrite(ctx context.Context, claim course.Claim) bool {
	d, err := g.Resolve(ctx, claim)
	return err == nil && d.CanWrite
}

// CanSubscribe reports read eligibility: any identified actor with a course.
func CanSubscribe(claim course.Claim) bool {
	claim = claim.Normalized()
	return claim.ActorID != "" && claim.Course != ""
}
