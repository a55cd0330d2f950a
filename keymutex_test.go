package credits

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := newKeyedMutex()

	const workers = 50
	counter := 0
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("user:u1")
			counter++
			km.Unlock("user:u1")
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("counter = %d, want %d", counter, workers)
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := newKeyedMutex()

	km.Lock("user:u1")
	done := make(chan struct{})
	go func() {
		km.Lock("user:u2")
		km.Unlock("user:u2")
		close(done)
	}()

	// A different key must not block behind u1's lock.
	<-done
	km.Unlock("user:u1")
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	km := newKeyedMutex()

	km.Lock("coupon:X")
	km.Unlock("coupon:X")

	km.mu.Lock()
	defer km.mu.Unlock()
	if len(km.locks) != 0 {
		t.Fatalf("locks map has %d entries, want 0", len(km.locks))
	}
}
