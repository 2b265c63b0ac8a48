package strategy

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/strikebot-labs/strikebot/pkg/errors"
)

// StateStore persists the wave-lock agent state across restarts. Writes go
// to a temp file in the same directory and rename into place so a crash
// never leaves a torn file.
type StateStore struct {
	path string
}

// NewStateStore creates a store writing to the given path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Load reads the persisted state. A missing or corrupt file yields the
// zero state and ok=false; it is never an error, the agent just starts
// unlocked.
func (s *StateStore) Load() (AgentState, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return AgentState{}, false
	}

	var state AgentState
	if err := json.Unmarshal(data, &state); err != nil {
		return AgentState{}, false
	}

	return state, true
}

// Save writes the state atomically.
func (s *StateStore) Save(state AgentState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeAgentStateCorrupt, "failed to marshal agent state")
	}

	dir := filepath.Dir(s.path)

	tmp, err := os.CreateTemp(dir, ".agent-state-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageFailed, "failed to create temp state file")
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return errors.Wrap(err, errors.ErrCodeStorageFailed, "failed to write temp state file")
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return errors.Wrap(err, errors.ErrCodeStorageFailed, "failed to close temp state file")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)

		return errors.Wrap(err, errors.ErrCodeStorageFailed, "failed to replace state file")
	}

	return nil
}
