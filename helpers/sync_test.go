package helpers

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtomicErrorStoreOnce(t *testing.T) {
	t.Parallel()

	var ae AtomicError
	_, set := ae.Load()
	assert.False(t, set)

	first := fmt.Errorf("first")
	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i == 0 {
				ae.StoreOnce(first)
			}
		}(i)
	}
	wg.Wait()
	prev, found := ae.StoreOnce(fmt.Errorf("second"))
	assert.True(t, found)
	assert.Equal(t, first, prev)
}

func TestWithLock(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	n := 0
	WithLock(&mu, func() { n++ })
	assert.Equal(t, 1, n)
	// released after panic in f
	assert.Panics(t, func() { WithLock(&mu, func() { panic("inner") }) })
	WithLock(&mu, func() { n++ })
	assert.Equal(t, 2, n)
}
