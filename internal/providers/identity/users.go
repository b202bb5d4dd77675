package identity

import (
	"os"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
)

// UsersFile is the TOML layout of a users file:
//
//	[[users]]
//	username = "alice"
//	password_hash = "$2a$10$..."
//
//	[[users]]
//	username = "bob"
//	password = "plaintext-for-dev"
type UsersFile struct {
	Users []UserEntry `toml:"users"`
}

// UserEntry is one user. PasswordHash wins when both fields are set.
type UserEntry struct {
	Username     string `toml:"username"`
	PasswordHash string `toml:"password_hash"`
	Password     string `toml:"password"`
}

// LoadFile registers every user in a TOML users file and returns how many
// were added. A bad entry aborts the load with the users before it kept.
func (s *Store) LoadFile(path string) (int, error) {
	const op = "identity.LoadFile"

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fault.Wrap(fault.Configuration, op, err, "reading users file")
	}
	return s.Load(data)
}

// Load registers users from TOML data
func (s *Store) Load(data []byte) (int, error) {
	const op = "identity.Load"

	var file UsersFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return 0, fault.Wrap(fault.Configuration, op, err, "parsing users file")
	}

	added := 0
	for n, entry := range file.Users {
		var err error
		switch {
		case entry.PasswordHash != "":
			_, err = s.RegisterHash(entry.Username, entry.PasswordHash)
		case entry.Password != "":
			_, err = s.Register(entry.Username, entry.Password)
		default:
			err = fault.New(fault.MalformedInput, op, "user %q has no password", entry.Username)
		}
		if err != nil {
			return added, fault.Wrap(fault.Configuration, op, err, "users[%d]", n)
		}
		added++
	}

	s.logger.Info("Users loaded", zap.Int("count", added))
	return added, nil
}
