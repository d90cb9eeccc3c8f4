package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemember_LoadsOnce(t *testing.T) {
	r := NewRun()
	var loads atomic.Int32
	load := func() (string, error) {
		loads.Add(1)
		return "value", nil
	}

	for range 3 {
		v, err := Remember(r, "k", load)
		require.NoError(t, err)
		assert.Equal(t, "value", v)
	}
	assert.Equal(t, int32(1), loads.Load())
}

func TestRemember_DoesNotCacheErrors(t *testing.T) {
	r := NewRun()
	calls := 0
	load := func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("throttled")
		}
		return 42, nil
	}

	_, err := Remember(r, "k", load)
	require.Error(t, err)

	v, err := Remember(r, "k", load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)
}

func TestEnabledRegions_ConcurrentCallersShareLoad(t *testing.T) {
	r := NewRun()
	var loads atomic.Int32
	start := make(chan struct{})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			regions, err := r.EnabledRegions(func() ([]string, error) {
				loads.Add(1)
				return []string{"eu-west-1", "us-east-1"}, nil
			})
			assert.NoError(t, err)
			assert.Len(t, regions, 2)
		}()
	}
	close(start)
	wg.Wait()

	assert.LessOrEqual(t, loads.Load(), int32(10))
	assert.Equal(t, 1, r.Len())
}

func TestEnabledRegions_ReturnsCopy(t *testing.T) {
	r := NewRun()
	load := func() ([]string, error) { return []string{"eu-west-1"}, nil }

	first, err := r.EnabledRegions(load)
	require.NoError(t, err)
	first[0] = "mutated"

	second, err := r.EnabledRegions(load)
	require.NoError(t, err)
	assert.Equal(t, []string{"eu-west-1"}, second)
}

func TestActiveRegions_KeyedByAccount(t *testing.T) {
	r := NewRun()

	a, err := r.ActiveRegions("111", func() ([]string, error) { return []string{"us-east-1"}, nil })
	require.NoError(t, err)
	b, err := r.ActiveRegions("222", func() ([]string, error) { return []string{"eu-west-1"}, nil })
	require.NoError(t, err)

	assert.Equal(t, []string{"us-east-1"}, a)
	assert.Equal(t, []string{"eu-west-1"}, b)
	assert.Equal(t, 2, r.Len())
}
