//go:build !(darwin && cgo) && !plan9

package watching

// DefaultDriver returns the preferred watching.Driver for this platform.
func DefaultDriver() Driver {
	return NewFSNotifyDriver()
}
