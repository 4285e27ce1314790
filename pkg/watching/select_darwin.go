//go:build darwin && cgo

package watching

// DefaultDriver returns the preferred watching.Driver for this platform.
func DefaultDriver() Driver {
	return NewFSEventsDriver()
}
