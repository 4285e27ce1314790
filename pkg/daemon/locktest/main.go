package main

import (
	"fmt"
	"os"

	"github.com/wisprd/wisp/pkg/daemon"
	"github.com/wisprd/wisp/pkg/logging"
)

func main() {
	// Attempt to acquire the daemon lock and release it.
	if lock, err := daemon.AcquireLock(logging.RootLogger); err != nil {
		fmt.Fprintln(os.Stderr, "wisp lock acquisition failed")
		os.Exit(1)
	} else {
		lock.Release()
	}
}
