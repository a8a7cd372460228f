// Package idx generates lexicographically sortable ULID identifiers for
// stored entities (accounts, credentials, push sessions).
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrInvalid reports a malformed ULID string.
var ErrInvalid = errors.New("idx: invalid ulid")

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a new ULID string using the current UTC time and a monotonic
// entropy source. Safe for concurrent use.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}

// Parse validates a ULID string and returns its canonical form.
func Parse(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalid
	}
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return "", ErrInvalid
	}
	return u.String(), nil
}
