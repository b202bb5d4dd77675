package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/testutil"
)

func newTestStore() *Store {
	return NewStore(bcrypt.MinCost, nil)
}

func TestRegisterAuthenticate(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	registered, err := s.Register("alice", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, registered.UserID)

	identity, err := s.Authenticate(ctx, "alice", "secret123")
	require.NoError(t, err)
	assert.Equal(t, registered, identity)
}

func TestAuthenticateInvalidCredentials(t *testing.T) {
	s := newTestStore()
	_, err := s.Register("alice", "secret123")
	require.NoError(t, err)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "alice", "wrongpass"},
		{"unknown user", "bob", "secret123"},
		{"invalid username", "a!", "secret123"},
		{"short password", "alice", "short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Authenticate(context.Background(), tt.username, tt.password)
			testutil.AssertFault(t, err, fault.Auth)
			assert.Equal(t, "invalid credentials", fault.Message(err))
		})
	}
}

func TestAuthenticateCancelled(t *testing.T) {
	s := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Authenticate(ctx, "alice", "secret123")
	testutil.AssertFault(t, err, fault.Communication)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestStore()

	_, err := s.Register("ab", "secret123")
	testutil.AssertFault(t, err, fault.MalformedInput)

	_, err = s.Register("alice", "short")
	testutil.AssertFault(t, err, fault.MalformedInput)

	_, err = s.Register("alice", "secret123")
	require.NoError(t, err)
	_, err = s.Register("alice", "secret456")
	testutil.AssertFault(t, err, fault.MalformedInput)

	_, err = s.RegisterHash("bob", "not-a-hash")
	testutil.AssertFault(t, err, fault.MalformedInput)

	assert.Equal(t, 1, s.Count())
}

func TestLoadUsersFile(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	data := `
[[users]]
username = "alice"
password_hash = "` + string(hash) + `"

[[users]]
username = "bob"
password = "plain-pass"
`
	path := filepath.Join(t.TempDir(), "users.toml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	s := newTestStore()
	added, err := s.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"alice", "bob"}, s.Usernames())

	_, err = s.Authenticate(context.Background(), "alice", "hashed-pass")
	assert.NoError(t, err)
	_, err = s.Authenticate(context.Background(), "bob", "plain-pass")
	assert.NoError(t, err)
}

func TestLoadUsersFileErrors(t *testing.T) {
	s := newTestStore()

	_, err := s.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	testutil.AssertFault(t, err, fault.Configuration)

	_, err = s.Load([]byte("[[users]\nbroken"))
	testutil.AssertFault(t, err, fault.Configuration)

	added, err := s.Load([]byte("[[users]]\nusername = \"carol\"\npassword = \"carol-pass\"\n\n[[users]]\nusername = \"dave\"\n"))
	testutil.AssertFault(t, err, fault.Configuration)
	assert.Equal(t, 1, added)
}
