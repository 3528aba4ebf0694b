package coordinator

import (
	"github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/domain/syncerr"
	"github.com/Siencmd/darkbroad/internal/listener"
	"github.com/Siencmd/darkbroad/internal/normalization"
)

func (c *Coordinator) applyRemote(u listener.Update) {
	if u.CourseID != "" && u.CourseID != c.claim.Course {
		return
	}
	if c.state == StateLocalOnlyFallback {
		return
	}
	if u.Err != nil {
		c.lastError = u.Err.Error()
		if syncerr.IsPermissionDenied(u.Err) {
			c.notice = "You do not have access to this course's live updates."
		}
		c.log.Warn("Remote listener error", "course_id", c.claim.Course, "error", u.Err)
		c.emit(SourceStatus, nil)
		return
	}
	if c.echoSuppressed {
		c.metrics.EchoSuppressed()
		c.log.Debug("Ignoring remote update inside echo window", "course_id", c.claim.Course, "hash", u.Hash)
		return
	}

	local := c.cache.Read()
	if u.Absent {
		c.remoteAbsent = true
		c.lastSyncedHash = ""
		c.emit(SourceRemote, []course.Subject{})
		return
	}
	c.remoteAbsent = false

	incoming := normalization.NormalizeWithLimit(u.Subjects, c.cfg.MaxSubjects)
	hash := normalization.Hash(incoming)
	if hash == normalization.Hash(local) {
		c.lastSyncedHash = hash
		c.claimList()
		return
	}

	c.cache.Write(incoming)
	c.claimList()
	c.lastSyncedHash = hash
	c.stopDebounce()
	c.dirty = false
	if c.state == StatePendingPush {
		c.state = StateIdle
	}
	c.metrics.RemoteApplied()
	c.emit(SourceRemote, c.cache.Read())
}
