package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Siencmd/darkbroad/internal/domain/syncerr"
)

// ErrUnavailable marks a closed or not yet started sync session.
var ErrUnavailable = errors.New("sync session unavailable")

// StatusFor maps a sync error code onto an HTTP status.
func StatusFor(err error) (int, string) {
	if errors.Is(err, ErrUnavailable) {
		return http.StatusServiceUnavailable, "unavailable"
	}
	code := syncerr.CodeOf(err)
	switch code {
	case syncerr.CodeValidation:
		return http.StatusBadRequest, string(code)
	case syncerr.CodeSubmissionIntegrity:
		return http.StatusUnprocessableEntity, string(code)
	case syncerr.CodePermissionDenied:
		return http.StatusForbidden, string(code)
	case syncerr.CodeNotFound:
		return http.StatusNotFound, string(code)
	case syncerr.CodeTransient:
		return http.StatusServiceUnavailable, string(code)
	default:
		return http.StatusInternalServerError, string(syncerr.CodeInternal)
	}
}

// RespondSyncError writes err with the status its code maps to.
func RespondSyncError(c *gin.Context, err error) {
	status, code := StatusFor(err)
	RespondError(c, status, code, err)
}
