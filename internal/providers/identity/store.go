// Package identity implements the identity backend consulted when a
// publisher logs in. Users live in memory with bcrypt password hashes and
// can be loaded from a TOML file.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/utils"
)

// User is a registered publisher
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store holds users keyed by username
type Store struct {
	mu     sync.RWMutex
	users  map[string]*User
	cost   int
	logger *zap.Logger
}

// NewStore creates an empty store. A non-positive cost uses bcrypt.DefaultCost.
func NewStore(cost int, logger *zap.Logger) *Store {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		users:  make(map[string]*User),
		cost:   cost,
		logger: logger,
	}
}

// Register creates a user from a plaintext password
func (s *Store) Register(username, password string) (types.Identity, error) {
	const op = "identity.Register"

	if err := utils.ValidateUsername(username); err != nil {
		return types.Identity{}, fault.Wrap(fault.MalformedInput, op, err, "invalid username")
	}
	if err := utils.ValidatePassword(password); err != nil {
		return types.Identity{}, fault.Wrap(fault.MalformedInput, op, err, "invalid password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return types.Identity{}, fault.Wrap(fault.Internal, op, err, "password hashing failed")
	}
	return s.add(op, username, string(hash))
}

// RegisterHash creates a user from an existing bcrypt hash
func (s *Store) RegisterHash(username, hash string) (types.Identity, error) {
	const op = "identity.RegisterHash"

	if err := utils.ValidateUsername(username); err != nil {
		return types.Identity{}, fault.Wrap(fault.MalformedInput, op, err, "invalid username")
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return types.Identity{}, fault.Wrap(fault.MalformedInput, op, err, "invalid password hash for %s", username)
	}
	return s.add(op, username, hash)
}

func (s *Store) add(op, username, hash string) (types.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return types.Identity{}, fault.New(fault.MalformedInput, op, "username already exists")
	}

	user := &User{
		ID:           generateID(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	s.users[username] = user

	s.logger.Debug("User registered", zap.String("username", username))
	return types.Identity{UserID: user.ID, Username: user.Username}, nil
}

// Authenticate verifies a username and password. Every failure is the same
// generic Auth error so callers cannot probe which usernames exist.
func (s *Store) Authenticate(ctx context.Context, username, password string) (types.Identity, error) {
	const op = "identity.Authenticate"

	if err := ctx.Err(); err != nil {
		return types.Identity{}, fault.Wrap(fault.Communication, op, err, "authentication aborted")
	}

	if utils.ValidateUsername(username) != nil || utils.ValidatePassword(password) != nil {
		return types.Identity{}, fault.New(fault.Auth, op, "invalid credentials")
	}

	s.mu.RLock()
	user, exists := s.users[username]
	s.mu.RUnlock()

	if !exists {
		return types.Identity{}, fault.New(fault.Auth, op, "invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.Identity{}, fault.New(fault.Auth, op, "invalid credentials")
	}

	return types.Identity{UserID: user.ID, Username: user.Username}, nil
}

// Usernames lists registered usernames in ascending order
func (s *Store) Usernames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of users
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func generateID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// never fall back to weak randomness
		panic(fmt.Sprintf("crypto/rand failed: %v - cannot generate secure ID", err))
	}
	return base64.URLEncoding.EncodeToString(b)
}
