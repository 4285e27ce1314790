package wisp

import "os"

// DebugEnabled controls whether debug-level logging is enabled. Set
// automatically from the WISPD_DEBUG environment variable.
var DebugEnabled bool

func init() {
	DebugEnabled = os.Getenv("WISPD_DEBUG") == "1"
}
