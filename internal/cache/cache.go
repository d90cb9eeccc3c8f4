// Package cache holds lookups memoized for the duration of one run.
//
// A Run is created by the orchestrator at the start of a pass and handed to
// the components that need it. Nothing outlives the run, so every new run
// starts from live provider and control-plane state.
package cache

import (
	"fmt"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const enabledRegionsKey = "regions:enabled"

// Run is a run-scoped memo. It is safe for concurrent use; concurrent
// misses on the same key share a single load.
type Run struct {
	items *gocache.Cache
	group singleflight.Group
}

// NewRun creates an empty run cache.
func NewRun() *Run {
	return &Run{items: gocache.New(gocache.NoExpiration, 0)}
}

// Remember returns the cached value for key, loading and storing it on a
// miss. Failed loads are not cached.
func Remember[T any](r *Run, key string, load func() (T, error)) (T, error) {
	if v, ok := r.items.Get(key); ok {
		return v.(T), nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		if cached, ok := r.items.Get(key); ok {
			return cached, nil
		}
		loaded, err := load()
		if err != nil {
			return nil, err
		}
		r.items.Set(key, loaded, gocache.NoExpiration)
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// EnabledRegions memoizes the organization's enabled region list.
func (r *Run) EnabledRegions(load func() ([]string, error)) ([]string, error) {
	regions, err := Remember(r, enabledRegionsKey, load)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), regions...), nil
}

// ActiveRegions memoizes the probed workload regions of one account.
func (r *Run) ActiveRegions(accountID string, load func() ([]string, error)) ([]string, error) {
	regions, err := Remember(r, fmt.Sprintf("regions:active:%s", accountID), load)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), regions...), nil
}

// Len returns the number of cached entries.
func (r *Run) Len() int {
	return r.items.ItemCount()
}
