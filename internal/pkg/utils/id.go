// internal/pkg/utils/id.go
package utils

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// GenerateID returns a prefixed, lexicographically sortable unique id,
// e.g. "trd_01J8...".
func GenerateID(prefix string) string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	return prefix + "_" + id.String()
}
