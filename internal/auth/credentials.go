package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const SchemaVersion = 1

var ErrStateNotFound = errors.New("auth state not found")

// Credentials is the full session credential set. ExchangeToken is only valid
// paired with the IDToken that produced it; a refresh of the id token
// invalidates the previous exchange token until it is re-exchanged.
type Credentials struct {
	AccessToken   string
	IDToken       string
	ExchangeToken string
	RefreshToken  string
	ExpiresAt     time.Time
}

// Authenticated reports whether the credential set is complete. Partial sets
// never count as authenticated.
func (c Credentials) Authenticated() bool {
	return c.AccessToken != "" && c.IDToken != "" && c.ExchangeToken != "" && c.RefreshToken != ""
}

// State is the persisted refresh state. Short-lived tokens are re-derived on
// demand and deliberately kept out of it.
type State struct {
	SchemaVersion int    `json:"schema_version"`
	RefreshToken  string `json:"refresh_token"`
	MobileID      string `json:"mobile_id"`
}

func (s State) Validate() error {
	if s.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported schema_version: %d", s.SchemaVersion)
	}
	if s.RefreshToken == "" {
		return fmt.Errorf("state missing refresh_token")
	}
	return nil
}

func LoadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, ErrStateNotFound
		}
		return State{}, fmt.Errorf("read state: %w", err)
	}
	if err := checkStateFile(path); err != nil {
		return State{}, err
	}
	return DecodeState(data)
}

func DecodeState(data []byte) (State, error) {
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}
	if err := state.Validate(); err != nil {
		return State{}, err
	}
	return state, nil
}

func WriteState(path string, state State) error {
	if state.SchemaVersion == 0 {
		state.SchemaVersion = SchemaVersion
	}
	if err := ensureParent(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir state dir: %w", err)
	}
	return nil
}

func checkStateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0o600 {
		return fmt.Errorf("state file %s must have 0600 permissions", path)
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if int(stat.Uid) != os.Geteuid() {
			return fmt.Errorf("state file %s must be owned by uid %d", path, os.Geteuid())
		}
	}
	return nil
}
