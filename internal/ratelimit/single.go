package ratelimit

import "golang.org/x/sync/singleflight"

// Single de-duplicates concurrent calls for the same key: callers awaiting an
// in-flight fetch share its result instead of issuing duplicates.
type Single[T any] struct {
	g singleflight.Group
}

func (s *Single[T]) Do(key string, fn func() (T, error)) (T, error) {
	v, err, _ := s.g.Do(key, func() (any, error) { return fn() })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
