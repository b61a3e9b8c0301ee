// Package identity manages the durable pseudonymous id for the current
// client. The id survives sessions by living in a small file under the
// user's config directory; clearing that storage resets the identity.
package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	idPrefix      = "user_"
	idRandomChars = 9
	base36Charset = "0123456789abcdefghijklmnopqrstuvwxyz"
	idFileName    = "user_id"
)

// ErrNoStorage is returned when no durable storage location is
// available; callers degrade to untracked sessions rather than failing.
var ErrNoStorage = errors.New("no durable storage available for user id")

// Manager owns the get-or-create lifecycle of the client id.
type Manager struct {
	dir string
}

// NewManager uses dir for persistence; an empty dir selects
// <user config dir>/portfolio-analytics.
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoStorage, err)
		}
		dir = filepath.Join(base, "portfolio-analytics")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoStorage, err)
	}
	return &Manager{dir: dir}, nil
}

// UserID returns the stored id, generating and persisting a fresh one on
// first use. The value is stable until the storage is cleared.
func (m *Manager) UserID() (string, error) {
	path := filepath.Join(m.dir, idFileName)

	if data, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(data))
		if IsValid(id) {
			return id, nil
		}
		// Corrupted storage: regenerate below.
		log.Warn().Str("stored", id).Msg("Discarding malformed stored user id")
	}

	id, err := Generate()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoStorage, err)
	}

	log.Info().Str("user_id", id).Msg("Generated new user id")
	return id, nil
}

// Generate produces a fresh id of the shape "user_" plus nine random
// base36 characters.
func Generate() (string, error) {
	var b strings.Builder
	b.WriteString(idPrefix)
	for i := 0; i < idRandomChars; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base36Charset))))
		if err != nil {
			return "", err
		}
		b.WriteByte(base36Charset[n.Int64()])
	}
	return b.String(), nil
}

// IsValid reports whether id has the expected shape.
func IsValid(id string) bool {
	if len(id) != len(idPrefix)+idRandomChars || !strings.HasPrefix(id, idPrefix) {
		return false
	}
	for _, ch := range id[len(idPrefix):] {
		if !strings.ContainsRune(base36Charset, ch) {
			return false
		}
	}
	return true
}
