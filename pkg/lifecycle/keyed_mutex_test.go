package lifecycle

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	locks := newKeyedMutex()

	const iterations = 100

	var (
		wg      sync.WaitGroup
		counter int
	)

	for range iterations {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock := locks.Lock("s1")
			defer unlock()

			counter++
		}()
	}

	wg.Wait()
	assert.Equal(t, iterations, counter)
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	locks := newKeyedMutex()

	unlockA := locks.Lock("a")

	done := make(chan struct{})

	go func() {
		unlockB := locks.Lock("b")
		unlockB()
		close(done)
	}()

	// Holding "a" must not block "b".
	<-done
	unlockA()
}

func TestKeyedMutex_EntriesReleased(t *testing.T) {
	locks := newKeyedMutex()

	unlock := locks.Lock("s1")
	unlock()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.entries)
}
