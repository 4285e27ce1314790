// Package wisp holds process-wide identity constants: the daemon's version
// and its debug/development-mode environment switches. The old bespoke
// 12-byte version handshake is dropped since version negotiation happens
// through BSERv2's capability bitfield (pkg/wireframe) instead.
package wisp

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

const (
	// VersionMajor is this daemon's major version.
	VersionMajor = 0
	// VersionMinor is this daemon's minor version.
	VersionMinor = 1
	// VersionPatch is this daemon's patch version.
	VersionPatch = 0
)

// Version is the rendered "major.minor.patch" version string.
var Version = fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)

// SourceTreePath computes the path to this module's source directory. It's
// used by tests that need to shell out to "go run" against a sibling package.
func SourceTreePath() (string, error) {
	_, filePath, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("unable to compute file path")
	}
	return filepath.Dir(filepath.Dir(filepath.Dir(filePath))), nil
}
