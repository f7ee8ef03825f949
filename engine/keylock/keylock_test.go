package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLock_SerializesSameKey(t *testing.T) {
	kl := New()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kl.Lock("alice")
			counter++
			kl.Unlock("alice")
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
}

func TestLock_DifferentKeysIndependent(t *testing.T) {
	kl := New()

	kl.Lock("alice")
	done := make(chan struct{})
	go func() {
		// Must not block on alice's lock.
		kl.Lock("bob")
		kl.Unlock("bob")
		close(done)
	}()
	<-done
	kl.Unlock("alice")
}

func TestUnlock_RemovesIdleEntries(t *testing.T) {
	kl := New()

	kl.Lock("alice")
	kl.Unlock("alice")
	kl.Lock("bob")
	kl.Unlock("bob")

	kl.mu.Lock()
	defer kl.mu.Unlock()
	assert.Empty(t, kl.locks, "entries with no holders must be reclaimed")
}

func TestLock_Reacquire(t *testing.T) {
	kl := New()
	for i := 0; i < 10; i++ {
		kl.Lock("alice")
		kl.Unlock("alice")
	}
}
