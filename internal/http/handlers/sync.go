package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Siencmd/darkbroad/internal/coordinator"
	"github.com/Siencmd/darkbroad/internal/domain/course"
	"github.com/Siencmd/darkbroad/internal/domain/syncerr"
	"github.com/Siencmd/darkbroad/internal/http/response"
	"github.com/Siencmd/darkbroad/internal/listener"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
	"github.com/Siencmd/darkbroad/internal/pkg/validate"
)

// SyncService is the coordinator surface the HTTP adapter drives.
type SyncService interface {
	Snapshot() coordinator.Status
	Subjects() []course.Subject
	Mutate(ctx context.Context, update func([]course.Subject) ([]course.Subject, error)) error
	SyncNow(ctx context.Context) error
	Seed(ctx context.Context) error
	Reset(ctx context.Context, claim course.Claim) error
	Submit(ctx context.Context, req coordinator.SubmitRequest) error
	Grade(ctx context.Context, req coordinator.GradeRequest) error
	WatchSubmissionCounts(ctx context.Context, items []course.ItemRef, onCount func(listener.ItemCount)) error
}

type SyncHandler struct {
	log  *logger.Logger
	sync SyncService
	// onCount receives submission counts for the render stream.
	onCount func(listener.ItemCount)
}

func NewSyncHandler(log *logger.Logger, sync SyncService, onCount func(listener.ItemCount)) *SyncHandler {
	if onCount == nil {
		onCount = func(listener.ItemCount) {}
	}
	return &SyncHandler{
		log:     log.With("handler", "SyncHandler"),
		sync:    sync,
		onCount: onCount,
	}
}

func (h *SyncHandler) fail(c *gin.Context, op string, err error) {
	if errors.Is(err, coordinator.ErrClosed) || errors.Is(err, coordinator.ErrSessionReset) {
		err = fmt.Errorf("%s: %v: %w", op, err, response.ErrUnavailable)
	}
	status, _ := response.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(op+" failed", "error", err)
	} else {
		h.log.Debug(op+" rejected", "error", err)
	}
	response.RespondSyncError(c, err)
}

// GET /api/status
func (h *SyncHandler) GetStatus(c *gin.Context) {
	response.RespondOK(c, gin.H{"status": h.sync.Snapshot()})
}

// GET /api/subjects
func (h *SyncHandler) ListSubjects(c *gin.Context) {
	h.respondList(c, http.StatusOK)
}

func (h *SyncHandler) respondList(c *gin.Context, status int) {
	c.JSON(status, gin.H{
		"subjects": h.sync.Subjects(),
		"status":   h.sync.Snapshot(),
	})
}

type replaceSubjectsRequest struct {
	Subjects []course.Subject `json:"subjects"`
}

// PUT /api/subjects replaces the whole list.
func (h *SyncHandler) ReplaceSubjects(c *gin.Context) {
	var req replaceSubjectsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Subjects == nil {
		req.Subjects = []course.Subject{}
	}
	err := h.sync.Mutate(c.Request.Context(), func([]course.Subject) ([]course.Subject, error) {
		return req.Subjects, nil
	})
	if err != nil {
		h.fail(c, "ReplaceSubjects", err)
		return
	}
	h.ListSubjects(c)
}

// POST /api/subjects appends one subject.
func (h *SyncHandler) AddSubject(c *gin.Context) {
	var subject course.Subject
	if err := c.ShouldBindJSON(&subject); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	subject.Name = strings.TrimSpace(subject.Name)
	err := h.sync.Mutate(c.Request.Context(), func(list []course.Subject) ([]course.Subject, error) {
		return append(list, subject), nil
	})
	if err != nil {
		h.fail(c, "AddSubject", err)
		return
	}
	h.respondList(c, http.StatusCreated)
}

// DELETE /api/subjects/:id
func (h *SyncHandler) DeleteSubject(c *gin.Context) {
	id := c.Param("id")
	err := h.sync.Mutate(c.Request.Context(), func(list []course.Subject) ([]course.Subject, error) {
		i := course.IndexOf(list, id)
		if i < 0 {
			return nil, syncerr.NewError(syncerr.CodeNotFound, "delete_subject", "unknown subject "+id, nil)
		}
		return append(list[:i], list[i+1:]...), nil
	})
	if err != nil {
		h.fail(c, "DeleteSubject", err)
		return
	}
	h.ListSubjects(c)
}

// POST /api/sync
func (h *SyncHandler) SyncNow(c *gin.Context) {
	if err := h.sync.SyncNow(c.Request.Context()); err != nil {
		h.fail(c, "SyncNow", err)
		return
	}
	response.RespondOK(c, gin.H{"status": h.sync.Snapshot()})
}

// POST /api/seed
func (h *SyncHandler) Seed(c *gin.Context) {
	if err := h.sync.Seed(c.Request.Context()); err != nil {
		h.fail(c, "Seed", err)
		return
	}
	response.RespondOK(c, gin.H{"status": h.sync.Snapshot()})
}

// POST /api/session starts a session for the posted claim. A gate failure is
// reported in the status but does not fail the request.
func (h *SyncHandler) StartSession(c *gin.Context) {
	var claim course.Claim
	if err := c.ShouldBindJSON(&claim); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := validate.Struct(claim); err != nil {
		response.RespondError(c, http.StatusBadRequest, string(syncerr.CodeValidation), err)
		return
	}
	err := h.sync.Reset(c.Request.Context(), claim)
	if errors.Is(err, coordinator.ErrClosed) || errors.Is(err, context.Canceled) {
		h.fail(c, "StartSession", err)
		return
	}
	if err != nil {
		h.log.Warn("Session started without gate resolution", "error", err)
	}
	response.RespondOK(c, gin.H{"status": h.sync.Snapshot()})
}

// POST /api/submissions
func (h *SyncHandler) Submit(c *gin.Context) {
	var req coordinator.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := h.sync.Submit(c.Request.Context(), req); err != nil {
		h.fail(c, "Submit", err)
		return
	}
	h.respondList(c, http.StatusCreated)
}

// POST /api/grades
func (h *SyncHandler) Grade(c *gin.Context) {
	var req coordinator.GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := h.sync.Grade(c.Request.Context(), req); err != nil {
		h.fail(c, "Grade", err)
		return
	}
	h.ListSubjects(c)
}

type watchCountsRequest struct {
	Items []course.ItemRef `json:"items"`
}

// POST /api/submission-counts replaces the watched items; counts arrive on the
// render stream.
func (h *SyncHandler) WatchSubmissionCounts(c *gin.Context) {
	var req watchCountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	for i := range req.Items {
		req.Items[i].Kind = course.ParseKind(string(req.Items[i].Kind))
	}
	if err := h.sync.WatchSubmissionCounts(c.Request.Context(), req.Items, h.onCount); err != nil {
		h.fail(c, "WatchSubmissionCounts", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"watching": len(req.Items)})
}
