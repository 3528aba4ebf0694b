package response

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Siencmd/darkbroad/internal/domain/syncerr"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{syncerr.Validation("mutate", "cap"), http.StatusBadRequest},
		{syncerr.Integrity("submit", "file"), http.StatusUnprocessableEntity},
		{syncerr.PermissionDenied("push", "role"), http.StatusForbidden},
		{syncerr.Wrap(syncerr.CodeTransient, "push", errors.New("reset")), http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", ErrUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got, _ := StatusFor(tc.err); got != tc.status {
			t.Fatalf("StatusFor(%v): want=%d got=%d", tc.err, tc.status, got)
		}
	}
}
