package main

import (
	"fmt"
	"os"

	"github.com/wisprd/wisp/pkg/filesystem"
)

func main() {
	// Attempt to acquire the wisp lock and release it.
	if locker, err := filesystem.AcquireWispLock(); err != nil {
		fmt.Fprintln(os.Stderr, "wisp lock acquisition failed")
		os.Exit(1)
	} else {
		locker.Close()
	}
}
