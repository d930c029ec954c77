package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddEmitRemove(t *testing.T) {
	var r Registry[int]
	var got []int

	remove := r.Add(func(v int) { got = append(got, v) })
	r.Emit(1)
	remove()
	r.Emit(2)
	remove()

	assert.Equal(t, []int{1}, got)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryPreservesOrder(t *testing.T) {
	var r Registry[string]
	var order []string
	r.Add(func(string) { order = append(order, "a") })
	r.Add(func(string) { order = append(order, "b") })
	r.Add(func(string) { order = append(order, "c") })

	r.Emit("x")

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRegistryHandlerRemovesItselfDuringEmit(t *testing.T) {
	var r Registry[int]
	var calls []string

	var removeSelf func()
	removeSelf = r.Add(func(int) {
		calls = append(calls, "self")
		removeSelf()
	})
	r.Add(func(int) { calls = append(calls, "other") })

	r.Emit(1)
	r.Emit(2)

	assert.Equal(t, []string{"self", "other", "other"}, calls)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRemovalOfLaterHandlerSkipsIt(t *testing.T) {
	var r Registry[int]
	var calls []string

	var removeSecond func()
	r.Add(func(int) {
		calls = append(calls, "first")
		removeSecond()
	})
	removeSecond = r.Add(func(int) { calls = append(calls, "second") })
	r.Add(func(int) { calls = append(calls, "third") })

	r.Emit(1)

	assert.Equal(t, []string{"first", "third"}, calls)
}

func TestRegistryAddDuringEmitWaitsForNextEmit(t *testing.T) {
	var r Registry[int]
	late := 0
	r.Add(func(int) {
		r.Add(func(int) { late++ })
	})

	r.Emit(1)
	require.Equal(t, 0, late)
	r.Emit(2)
	assert.Equal(t, 1, late)
}

func TestRegistryNilHandler(t *testing.T) {
	var r Registry[int]
	remove := r.Add(nil)
	remove()
	assert.Equal(t, 0, r.Len())
}

func TestRegistryConcurrentUse(t *testing.T) {
	var r Registry[int]
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			remove := r.Add(func(int) {})
			remove()
		}()
		go func() {
			defer wg.Done()
			r.Emit(1)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}
