// ABOUTME: Tests for the session registry
// ABOUTME: Covers identity, idempotent removal, counting, and concurrent creation

package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrCreate_SameObject(t *testing.T) {
	reg := NewRegistry(nil, nil)

	first, err := reg.GetOrCreate("s1", KindRequest)
	require.NoError(t, err)
	second, err := reg.GetOrCreate("s1", KindRequest)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, reg.Count())
}

func TestRegistry_GetOrCreate_EmptyID(t *testing.T) {
	reg := NewRegistry(nil, nil)

	_, err := reg.GetOrCreate("", KindRequest)
	assert.ErrorIs(t, err, ErrEmptyID)
	assert.Equal(t, 0, reg.Count())
}

func TestRegistry_StateIsPerSession(t *testing.T) {
	reg := NewRegistry(func(id string) any {
		return &[]string{id}
	}, nil)

	a, err := reg.GetOrCreate("a", KindRequest)
	require.NoError(t, err)
	b, err := reg.GetOrCreate("b", KindStream)
	require.NoError(t, err)

	require.NotNil(t, a.State())
	require.NotNil(t, b.State())
	assert.NotSame(t, a.State(), b.State())
	assert.Equal(t, []string{"a"}, *a.State().(*[]string))
	assert.Equal(t, KindStream, b.Kind)
}

func TestRegistry_Remove_Idempotent(t *testing.T) {
	reg := NewRegistry(nil, nil)
	_, err := reg.GetOrCreate("s1", KindRequest)
	require.NoError(t, err)

	reg.Remove("s1")
	reg.Remove("s1")
	reg.Remove("never-existed")

	assert.Equal(t, 0, reg.Count())
	_, ok := reg.Get("s1")
	assert.False(t, ok)
}

func TestRegistry_RemoveThenCreate_NewObject(t *testing.T) {
	reg := NewRegistry(nil, nil)

	first, err := reg.GetOrCreate("s1", KindRequest)
	require.NoError(t, err)
	reg.Remove("s1")
	second, err := reg.GetOrCreate("s1", KindRequest)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	var built atomic.Int32
	reg := NewRegistry(func(id string) any {
		built.Add(1)
		return id
	}, nil)

	const workers = 64
	results := make([]*Session, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			sess, err := reg.GetOrCreate("shared", KindRequest)
			if err == nil {
				results[i] = sess
			}
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, int32(1), built.Load())
	assert.Equal(t, 1, reg.Count())
}

func TestRegistry_ListOrdered(t *testing.T) {
	reg := NewRegistry(nil, nil)
	for i := 0; i < 3; i++ {
		_, err := reg.GetOrCreate(fmt.Sprintf("s%d", i), KindRequest)
		require.NoError(t, err)
	}

	infos := reg.List()
	require.Len(t, infos, 3)
	for i := 1; i < len(infos); i++ {
		assert.False(t, infos[i].CreatedAt.Before(infos[i-1].CreatedAt))
	}
}
