// Package testing forces test mode for packages that link the binaries'
// startup path.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("PARCEL_TEST_MODE", "1")
		if os.Getenv("NOTIFY_SENDER") == "" {
			_ = os.Setenv("NOTIFY_SENDER", "log")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
