package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed reports that no entry in a [FallbackGroup] could serve the
// call, whether by failing outright or by having an open breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig carries the breaker settings applied to each entry in a
// [FallbackGroup]. The per-entry breaker name is filled in from the entry's
// registration name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type guarded[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds an ordered chain of interchangeable backends, each
// guarded by its own [CircuitBreaker]. Calls go to the first entry whose
// breaker admits them and which succeeds; later entries are tried only when
// earlier ones cannot serve.
//
// The chain must be assembled before use; Execute may then be called from
// any number of goroutines.
type FallbackGroup[T any] struct {
	chain []guarded[T]
	cfg   FallbackConfig
}

// NewFallbackGroup starts a group with primary as its sole entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.append(primaryName, primary)
	return g
}

// AddFallback appends another backend to the end of the chain.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.append(name, fallback)
}

func (fg *FallbackGroup[T]) append(name string, value T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.chain = append(fg.chain, guarded[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(bc),
	})
}

// Execute runs fn against entries in chain order until one succeeds. It
// returns [ErrAllFailed] wrapping the last error when the whole chain is
// exhausted.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls that produce a
// value. It is a free function because methods cannot introduce their own
// type parameters.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range fg.chain {
		entry := &fg.chain[i]

		var out R
		err := entry.breaker.Execute(func() error {
			var callErr error
			out, callErr = fn(entry.value)
			return callErr
		})
		if err == nil {
			return out, nil
		}

		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("provider skipped, circuit open", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next in chain",
				"provider", entry.name, "error", err)
		}
	}

	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
