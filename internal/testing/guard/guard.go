// Package guard switches binaries into test mode when imported by their tests, so that
// running main() does not dial Redis or bind ports.
package guard

import "os"

// Env is the variable app.InTestMode reads.
const Env = "DASHBOARD_TEST_MODE"

func init() {
	if os.Getenv(Env) == "" {
		_ = os.Setenv(Env, "1")
	}
}
