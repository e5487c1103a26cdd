package auth

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestCodeGuardMarksOnce(t *testing.T) {
	guard := newCodeGuard(4)

	if !guard.MarkIfNew("a") {
		t.Fatal("first sighting must be new")
	}
	if guard.MarkIfNew("a") {
		t.Fatal("second sighting must not be new")
	}
	if !guard.MarkIfNew("b") {
		t.Fatal("distinct code must be new")
	}
}

func TestCodeGuardConcurrentExactlyOnce(t *testing.T) {
	guard := newCodeGuard(16)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if guard.MarkIfNew("contested") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("%d callers won the mark, want exactly 1", got)
	}
}

func TestCodeGuardEvictsOldest(t *testing.T) {
	guard := newCodeGuard(3)

	for i := 0; i < 4; i++ {
		guard.MarkIfNew(fmt.Sprintf("code-%d", i))
	}

	// code-0 fell out of the window and counts as new again
	if !guard.MarkIfNew("code-0") {
		t.Error("evicted code should be treated as new")
	}
	if guard.MarkIfNew("code-3") {
		t.Error("recent code must still be remembered")
	}
}
