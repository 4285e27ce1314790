package filesystem

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/wisprd/wisp/pkg/filesystem/locking"
)

const (
	// WispLockFileName is the name of the lock file coordinating access to
	// the wisp data directory.
	WispLockFileName = ".wisp.lock"

	// WispDataDirectoryName is the name of the wisp data directory.
	WispDataDirectoryName = ".wisp"

	// wispConfigurationName is the name of the global wisp configuration
	// file inside the user's home directory.
	wispConfigurationName = ".wisp.toml"

	// WispDaemonDirectoryName is the name of the daemon subdirectory within
	// the wisp data directory.
	WispDaemonDirectoryName = "daemon"

	// WispCachesDirectoryName is the name of the caches subdirectory within
	// the wisp data directory. Nothing in this tree creates or uses it: the
	// content-hash cache lives only in memory and cookie files are written
	// inside watched roots.
	WispCachesDirectoryName = "caches"
)

// WispLockFilePath is the path to the lock file coordinating access to the
// wisp data directory. It can be overridden in init functions or entry
// points, but this should be done before any calls to AcquireWispLock.
var WispLockFilePath string

// WispDataDirectoryPath is the path to the wisp data directory. It can be
// overridden in init functions or entry points, but this should be done
// before any calls to Wisp.
var WispDataDirectoryPath string

// WispConfigurationPath is the path to the global wisp configuration file.
var WispConfigurationPath string

func init() {
	WispLockFilePath = filepath.Join(HomeDirectory, WispLockFileName)
	WispDataDirectoryPath = filepath.Join(HomeDirectory, WispDataDirectoryName)
	WispConfigurationPath = filepath.Join(HomeDirectory, wispConfigurationName)
}

// AcquireWispLock is a convenience function which attempts to acquire the
// wisp data directory lock and returns a locked file locker.
func AcquireWispLock() (*locking.Locker, error) {
	locker, err := locking.NewLocker(WispLockFilePath, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create file locker")
	} else if err = locker.Lock(false); err != nil {
		locker.Close()
		return nil, err
	}
	return locker, nil
}

// Wisp computes (and optionally creates) subdirectories inside the wisp data
// directory.
func Wisp(create bool, pathComponents ...string) (string, error) {
	result := filepath.Join(WispDataDirectoryPath, filepath.Join(pathComponents...))
	if create {
		if err := os.MkdirAll(result, 0700); err != nil {
			return "", errors.Wrap(err, "unable to create subpath")
		} else if err := MarkHidden(WispDataDirectoryPath); err != nil {
			return "", errors.Wrap(err, "unable to hide wisp data directory")
		}
	}
	return result, nil
}
