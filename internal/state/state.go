// Package state implements the durable one-line updater state marker.
package state

import (
	"strings"

	"otaupdate/internal/fsiface"
)

// State is one of the three durable lifecycle states.
type State string

const (
	Idle           State = "idle"
	Installing     State = "installing"
	ConfirmPending State = "confirm_pending"
)

// Load reads the state marker file through fs. A missing file, or any
// content that does not match a recognized token, is treated as Idle — the
// caller is expected to log a warning in the latter case.
func Load(fs fsiface.FS, path string) (s State, recognized bool) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return Idle, true
	}
	token := strings.TrimSpace(string(data))
	switch State(token) {
	case Idle, Installing, ConfirmPending:
		return State(token), true
	default:
		return Idle, false
	}
}

// Save writes the state marker through fs using write-then-rename
// semantics where the filesystem supports it. Entering Installing MUST be
// durable before any destructive mutation of tracked files begins.
func Save(fs fsiface.FS, path string, s State) error {
	tmp := path + ".tmp"
	if err := fs.WriteFile(tmp, []byte(s), 0o644); err != nil {
		return err
	}
	return fs.Rename(tmp, path)
}
