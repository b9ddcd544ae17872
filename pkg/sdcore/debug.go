package sdcore

import "os"

// DebugEnabled controls whether or not debug-level logging and diagnostics
// are enabled. It is set automatically based on the SDCORE_DEBUG environment
// variable.
var DebugEnabled bool

func init() {
	DebugEnabled = os.Getenv("SDCORE_DEBUG") == "1"
}
