package lobby

import (
	"testing"
	"time"
)

// eventually polls cond until it holds or the deadline passes.
// Subscription callbacks run on watcher goroutines, so assertions about
// their effects need to wait.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
