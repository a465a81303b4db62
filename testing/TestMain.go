package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("TALENTDESK_TEST_MODE", "1")
		if os.Getenv("AUTHZ_CACHE") == "" {
			_ = os.Setenv("AUTHZ_CACHE", "memory")
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
