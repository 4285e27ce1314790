// Package housekeeping provides a background goroutine that periodically
// sweeps the top level of each watched root directory for orphaned cookie
// files that a crash might have left behind. Neither the wisp data directory
// nor a configured cookie subdirectory inside a root is swept.
//
// The ticker-driven HousekeepRegularly shape does an initial pass, then
// loops on an interval, cancellable via context. The scan-directory-and-
// age-out-by-mtime sweep targets stale cookie files, the one on-disk
// artifact this daemon creates outside of its in-memory view/cache state
// (pkg/cookie.Sync.Sync creates and removes them itself on every code path,
// but a process crash mid-sync can leave one behind).
package housekeeping

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/wisprd/wisp/pkg/cookie"
	"github.com/wisprd/wisp/pkg/logging"
	"github.com/wisprd/wisp/pkg/must"
)

const (
	// housekeepingInterval is the interval at which housekeeping runs.
	housekeepingInterval = 1 * time.Hour

	// maximumCookieAge is how long an orphaned cookie file is allowed to sit
	// on disk before being removed. This is far longer than any legitimate
	// sync timeout, so it can only fire for leftovers from a crashed process.
	maximumCookieAge = 1 * time.Hour
)

// HousekeepRegularly sweeps every root's directory in roots for orphaned
// cookie files at a fixed interval, in a long-lived background goroutine.
// It terminates when ctx is cancelled.
func HousekeepRegularly(ctx context.Context, roots func() []string, logger *logging.Logger) {
	logger.Info("Performing initial housekeeping")
	housekeep(roots(), logger)

	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("Performing regular housekeeping")
			housekeep(roots(), logger)
		}
	}
}

// housekeep performs a single housekeeping pass over every root directory.
func housekeep(rootPaths []string, logger *logging.Logger) {
	now := time.Now()
	for _, root := range rootPaths {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !cookie.IsCookiePath(entry.Name()) {
				continue
			}
			fullPath := filepath.Join(root, entry.Name())
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if now.Sub(info.ModTime()) > maximumCookieAge {
				must.OSRemove(fullPath, logger)
			}
		}
	}
}
