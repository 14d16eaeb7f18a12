package usecase

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("alice")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.Lock("alice")
	// bob's lock must not wait on alice's
	done := make(chan struct{})
	go func() {
		unlock := km.Lock("bob")
		unlock()
		close(done)
	}()
	<-done
	unlockA()
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	km := newKeyedMutex()
	for i := 0; i < 10; i++ {
		unlock := km.Lock("alice")
		unlock()
	}
	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks)
}
