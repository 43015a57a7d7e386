// Package coalesce collapses concurrent identical in-flight requests into a
// single upstream call. All callers waiting on the same key receive the same
// eventual result, success or failure.
package coalesce

import "golang.org/x/sync/singleflight"

// Group coalesces calls by key, typed over the produced value. The zero
// value is ready to use.
type Group[V any] struct {
	g singleflight.Group
}

// Do runs producer for key unless an identical call is already in flight, in
// which case it waits for and shares that call's result. The in-flight
// registration is dropped once the producer settles, so a later call with
// the same key starts fresh.
func (c *Group[V]) Do(key string, producer func() (V, error)) (V, error) {
	v, err, _ := c.g.Do(key, func() (any, error) {
		return producer()
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}
