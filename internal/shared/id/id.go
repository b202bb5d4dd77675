// Package id provides centralized ID generation for the registry.
//
// Two formats are used:
//   - UUIDs (google/uuid) for registry keys: providers and services are
//     addressed by UDDI-style UUID keys that clients store and exchange.
//   - Prefixed ULIDs (oklog/ulid) for internal identifiers that benefit from
//     time ordering: sessions, requests, trace spans, index events.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ProviderKey identifies a business provider record
type ProviderKey string

// ServiceKey identifies a business service record
type ServiceKey string

// SessionID identifies a publication session grant (not the token itself)
type SessionID string

// RequestID identifies an API request
type RequestID string

// EventID identifies an index change event
type EventID string

const (
	SessionPrefix = "sess"
	RequestPrefix = "req"
	EventPrefix   = "evt"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewProviderKey generates a new provider key
func NewProviderKey() ProviderKey {
	return ProviderKey(uuid.NewString())
}

// NewServiceKey generates a new service key
func NewServiceKey() ServiceKey {
	return ServiceKey(uuid.NewString())
}

// NewSessionID generates a new session grant ID
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewEventID generates a new index event ID
func NewEventID() EventID {
	return EventID(Default().GenerateWithPrefix(EventPrefix))
}

func (id ProviderKey) String() string { return string(id) }
func (id ServiceKey) String() string  { return string(id) }
func (id SessionID) String() string   { return string(id) }
func (id RequestID) String() string   { return string(id) }
func (id EventID) String() string     { return string(id) }

// IsValidKey reports whether s is a well-formed registry key (UUID).
func IsValidKey(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// NormalizeKey returns the canonical lower-case form of a UUID key.
// Keys that are not UUIDs are returned trimmed but otherwise untouched so
// that externally assigned keys still round-trip.
func NormalizeKey(s string) string {
	s = strings.TrimSpace(s)
	if u, err := uuid.Parse(s); err == nil {
		return u.String()
	}
	return s
}

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Timestamp extracts the timestamp from a (possibly prefixed) ULID
func Timestamp(id string) (time.Time, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
