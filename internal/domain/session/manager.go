package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/id"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/utils"
)

// Authenticator verifies credentials against the identity backend
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (types.Identity, error)
}

// Recorder receives session metrics
type Recorder interface {
	RecordSessionOp(op, status string)
	SetActiveSessions(n int)
}

// DefaultShards is the default number of token table shards
const DefaultShards = 32

type shard struct {
	mu     sync.RWMutex
	grants map[string]*types.Grant // token digest -> grant
}

// Manager is the session authority
type Manager struct {
	auth   Authenticator
	hasher *utils.Hasher
	shards []*shard
	ttl    time.Duration
	logger *zap.Logger
	rec    Recorder
	now    func() time.Time

	issued  atomic.Uint64
	revoked atomic.Uint64

	mu         sync.Mutex
	lastIssued *time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithTTL sets the lifetime of new grants. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// WithShards sets the number of token table shards
func WithShards(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.shards = newShards(n)
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRecorder sets the metrics sink
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.rec = r }
}

// WithTokenKey sets the 32-byte key used to digest tokens. A random key is
// generated when none is given, which invalidates tokens across restarts.
func WithTokenKey(key []byte) Option {
	return func(m *Manager) { m.hasher = utils.NewKeyedHasher(key) }
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session authority backed by auth
func NewManager(auth Authenticator, opts ...Option) (*Manager, error) {
	if auth == nil {
		return nil, fault.New(fault.Configuration, "session.NewManager", "authenticator is required")
	}

	m := &Manager{
		auth:   auth,
		shards: newShards(DefaultShards),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.hasher == nil {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fault.Wrap(fault.Configuration, "session.NewManager", err, "generating token key")
		}
		m.hasher = utils.NewKeyedHasher(key)
	}
	return m, nil
}

// Issue authenticates the credentials and returns a new token
func (m *Manager) Issue(ctx context.Context, username, password string) (string, types.Grant, error) {
	const op = "session.Issue"

	if username == "" || password == "" {
		m.record("issue", fault.MalformedInput.String())
		return "", types.Grant{}, fault.New(fault.MalformedInput, op, "username and password are required")
	}

	identity, err := m.auth.Authenticate(ctx, username, password)
	if err != nil {
		kind := fault.KindOf(err)
		if kind == fault.Internal {
			kind = fault.Communication
		}
		m.record("issue", kind.String())
		m.logger.Debug("Authentication failed", zap.String("username", username), zap.String("kind", kind.String()))
		return "", types.Grant{}, fault.Wrap(kind, op, err, "authenticating %s", username)
	}

	token, err := generateToken()
	if err != nil {
		m.record("issue", fault.Internal.String())
		return "", types.Grant{}, fault.Wrap(fault.Internal, op, err, "generating token")
	}

	now := m.now()
	grant := &types.Grant{
		ID:       id.NewSessionID().String(),
		Identity: identity,
		IssuedAt: now,
	}
	if m.ttl > 0 {
		grant.ExpiresAt = now.Add(m.ttl)
	}

	digest := m.hasher.HashString(token)
	s := m.shardFor(digest)
	s.mu.Lock()
	s.grants[digest] = grant
	s.mu.Unlock()

	m.issued.Add(1)
	m.mu.Lock()
	m.lastIssued = &now
	m.mu.Unlock()

	m.logger.Info("Session issued",
		zap.String("session_id", grant.ID),
		zap.String("username", identity.Username),
	)
	m.record("issue", "ok")
	m.updateActive()
	return token, *grant, nil
}

// Validate returns the identity bound to token
func (m *Manager) Validate(token string) (types.Identity, error) {
	grant, err := m.Lookup(token)
	if err != nil {
		return types.Identity{}, err
	}
	return grant.Identity, nil
}

// Lookup returns the live grant for token. Unknown, malformed and expired
// tokens are Auth errors; an expired grant is removed.
func (m *Manager) Lookup(token string) (types.Grant, error) {
	const op = "session.Validate"

	if err := utils.ValidateToken(token); err != nil {
		m.record("validate", fault.Auth.String())
		return types.Grant{}, fault.New(fault.Auth, op, "invalid token")
	}

	digest := m.hasher.HashString(token)
	s := m.shardFor(digest)

	s.mu.RLock()
	grant, ok := s.grants[digest]
	s.mu.RUnlock()

	if !ok {
		m.record("validate", fault.Auth.String())
		return types.Grant{}, fault.New(fault.Auth, op, "invalid token")
	}

	if grant.Expired(m.now()) {
		s.mu.Lock()
		if cur, ok := s.grants[digest]; ok && cur == grant {
			delete(s.grants, digest)
		}
		s.mu.Unlock()
		m.record("validate", fault.Auth.String())
		m.updateActive()
		return types.Grant{}, fault.New(fault.Auth, op, "session expired")
	}

	m.record("validate", "ok")
	return *grant, nil
}

// Revoke deletes token and reports whether it was live
func (m *Manager) Revoke(token string) bool {
	if utils.ValidateToken(token) != nil {
		m.record("revoke", "absent")
		return false
	}

	digest := m.hasher.HashString(token)
	s := m.shardFor(digest)

	s.mu.Lock()
	grant, ok := s.grants[digest]
	if ok {
		delete(s.grants, digest)
	}
	s.mu.Unlock()

	if !ok {
		m.record("revoke", "absent")
		return false
	}

	m.revoked.Add(1)
	m.logger.Info("Session revoked", zap.String("session_id", grant.ID))
	m.record("revoke", "ok")
	m.updateActive()
	return true
}

// Sweep evicts every expired grant and returns how many were removed
func (m *Manager) Sweep() int {
	now := m.now()
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for digest, grant := range s.grants {
			if grant.Expired(now) {
				delete(s.grants, digest)
				removed++
			}
		}
		s.mu.Unlock()
	}
	if removed > 0 {
		m.logger.Debug("Expired sessions swept", zap.Int("count", removed))
		m.updateActive()
	}
	return removed
}

// Run sweeps every interval until ctx is done
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || m.ttl <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Stats returns session statistics
func (m *Manager) Stats() types.SessionStats {
	stats := types.SessionStats{
		Active:  m.active(),
		Issued:  m.issued.Load(),
		Revoked: m.revoked.Load(),
	}

	m.mu.Lock()
	if m.lastIssued != nil {
		t := *m.lastIssued
		stats.LastIssued = &t
	}
	m.mu.Unlock()

	return stats
}

func (m *Manager) active() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.grants)
		s.mu.RUnlock()
	}
	return n
}

func (m *Manager) shardFor(digest string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(digest))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

func (m *Manager) record(op, status string) {
	if m.rec != nil {
		m.rec.RecordSessionOp(op, status)
	}
}

func (m *Manager) updateActive() {
	if m.rec != nil {
		m.rec.SetActiveSessions(m.active())
	}
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{grants: make(map[string]*types.Grant)}
	}
	return shards
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand failed: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
