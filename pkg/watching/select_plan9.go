//go:build plan9

package watching

import "time"

// pollInterval is the periodic walk interval used on platforms with
// neither a native recursive nor a cross-platform notification facility.
const pollInterval = 500 * time.Millisecond

// DefaultDriver returns the preferred watching.Driver for this platform.
func DefaultDriver() Driver {
	return NewPollDriver(pollInterval)
}
