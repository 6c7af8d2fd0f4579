// Package diskspace queries free filesystem space for the Orchestrator's
// preflight check, in bytes.
package diskspace

// AvailableBytes returns the free space available at path's filesystem, in
// bytes. Implementation is platform-specific (see diskspace_unix.go /
// diskspace_windows.go).
func AvailableBytes(path string) (int64, error) {
	return availableBytes(path)
}

// HasEnoughFreeSpace reports whether the free space at path is at least
// minFraction of the filesystem's total capacity, per the source spec's
// "free space < 40% of filesystem" preflight warning rule.
func HasEnoughFreeSpace(path string, minFraction float64) (bool, error) {
	free, total, err := statTotals(path)
	if err != nil {
		return true, err // fail open: a stat failure must not block an update
	}
	if total == 0 {
		return true, nil
	}
	return float64(free)/float64(total) >= minFraction, nil
}
