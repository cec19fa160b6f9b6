// Package id generates prefixed ULIDs for PTY sessions.
//
// Session ids look like pty_01J9Z3Q8X4N6M2B7C5D0E1F2G3. The ULID part is
// lexicographically sortable by creation time, so listing sessions sorted
// by id lists them oldest first.
package id

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionPrefix marks PTY session ids.
const SessionPrefix = "pty"

// ErrInvalid is returned for ids that are not prefix_ULID.
var ErrInvalid = errors.New("invalid id")

// SessionID identifies a PTY session.
type SessionID string

func (id SessionID) String() string { return string(id) }

// Generator generates ULIDs. Ids from one generator are strictly increasing
// even within the same millisecond.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator with monotonic crypto entropy.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return prefix + "_" + g.Generate().String()
}

// NewSessionID generates a new session id.
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// ParseSessionID validates s and returns it as a SessionID.
func ParseSessionID(s string) (SessionID, error) {
	if _, err := parsePrefixed(s, SessionPrefix); err != nil {
		return "", err
	}
	return SessionID(s), nil
}

// Timestamp extracts the creation time from a prefixed id.
func Timestamp(s string) (time.Time, error) {
	prefix, _, ok := strings.Cut(s, "_")
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q has no prefix", ErrInvalid, s)
	}
	u, err := parsePrefixed(s, prefix)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}

func parsePrefixed(s, prefix string) (ulid.ULID, error) {
	raw, ok := strings.CutPrefix(s, prefix+"_")
	if !ok {
		return ulid.ULID{}, fmt.Errorf("%w: %q does not start with %s_", ErrInvalid, s, prefix)
	}
	u, err := ulid.ParseStrict(raw)
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
	}
	return u, nil
}

// TracePrefix marks request trace ids.
const TracePrefix = "trace"

// NewTraceID generates an id for one request flow.
func NewTraceID() string {
	return Default().GenerateWithPrefix(TracePrefix)
}
