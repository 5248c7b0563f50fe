package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"codeberg.org/halcyard/taskguard/internal/errors"
)

// ChainState is the persisted chain head. It is written only after a
// data write succeeds, so a crash can never leave the chain pointing at
// a record that does not exist.
type ChainState struct {
	LastHash    string    `json:"last_hash"`
	CurrentFile string    `json:"current_file"`
	Timestamp   time.Time `json:"timestamp"`
}

func statePath(dir string) string {
	return filepath.Join(dir, stateFileName)
}

// loadState reads the chain state from disk; ok is false when no state
// file exists yet (first initialization).
func loadState(dir string) (ChainState, bool, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(statePath(dir))
	if os.IsNotExist(err) {
		return ChainState{}, false, nil
	}
	if err != nil {
		return ChainState{}, false, errFactory.Wrap(ErrStateCorrupt, err)
	}

	var state ChainState
	if err := json.Unmarshal(data, &state); err != nil {
		return ChainState{}, false, errFactory.Wrap(ErrStateCorrupt, err)
	}
	if state.LastHash == "" || state.CurrentFile == "" {
		return ChainState{}, false, errFactory.WithData(ErrStateCorrupt, state)
	}

	return state, true, nil
}

// saveState atomically replaces the state file: write to a temp name,
// then rename over the old state.
func saveState(dir string, state ChainState) error {
	errFactory := errors.New()

	data, err := json.Marshal(state)
	if err != nil {
		return errFactory.Wrap(ErrStatePersist, err)
	}

	tmp := statePath(dir) + ".tmp"
	if err := os.WriteFile(tmp, data, statePerm); err != nil {
		return errFactory.Wrap(ErrStatePersist, err)
	}
	if err := os.Rename(tmp, statePath(dir)); err != nil {
		return errFactory.Wrap(ErrStatePersist, err)
	}

	return nil
}

// genesisHash produces the unforgeable-by-accident anchor for the first
// entry of a fresh ledger.
func genesisHash() string {
	sum := sha256.Sum256([]byte("genesis:" + uuid.NewString() + ":" + time.Now().UTC().Format(time.RFC3339Nano)))

	return hex.EncodeToString(sum[:])
}
