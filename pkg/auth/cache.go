package auth

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// SessionCache persists the current session across process restarts.
// Replay-protection state is deliberately not part of it: the processed-code
// set is scoped to one manager lifetime.
type SessionCache struct {
	path string
}

func NewSessionCache(path string) *SessionCache {
	return &SessionCache{path: path}
}

func (c *SessionCache) Save(session *Session) error {
	data, err := cbor.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("write session cache: %w", err)
	}
	return nil
}

// Load returns the cached session, or nil when none is cached.
func (c *SessionCache) Load() (*Session, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session cache: %w", err)
	}

	var session Session
	if err := cbor.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session cache: %w", err)
	}
	return &session, nil
}

func (c *SessionCache) Clear() error {
	err := os.Remove(c.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session cache: %w", err)
	}
	return nil
}
