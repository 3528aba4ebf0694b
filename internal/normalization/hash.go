package normalization

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/Siencmd/darkbroad/internal/domain/course"
)

// Hash returns a stable content hash of a canonical subject list. nil and
// empty lists hash the same.
func Hash(subjects []course.Subject) string {
	if subjects == nil {
		subjects = []course.Subject{}
	}
	b, err := json.Marshal(subjects)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}

// Equal reports whether two lists carry the same content.
func Equal(a, b []course.Subject) bool {
	return Hash(a) == Hash(b)
}
