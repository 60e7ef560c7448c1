package monitor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInFlightAcquireReleaseClear(t *testing.T) {
	f := NewInFlight()

	assert.True(t, f.TryAcquire("a"))
	assert.False(t, f.TryAcquire("a"), "second acquire of the same position must fail")
	assert.True(t, f.TryAcquire("b"))
	assert.Equal(t, 2, f.Len())

	f.Release("a")
	assert.Equal(t, 1, f.Len())
	assert.True(t, f.TryAcquire("a"), "released position can be acquired again")

	f.Clear()
	assert.Equal(t, 0, f.Len())
	assert.True(t, f.TryAcquire("b"))
}

func TestInFlightConcurrentAcquire(t *testing.T) {
	f := NewInFlight()

	const goroutines = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.TryAcquire("contended") {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, acquired, "exactly one goroutine wins the position")
	assert.Equal(t, 1, f.Len())
}
