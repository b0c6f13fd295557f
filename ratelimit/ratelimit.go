// Package ratelimit bounds how fast items are relayed from a sequential
// source. It implements a fixed-window limit: time is split into consecutive
// windows of a fixed period, anchored at the arrival of the first item, and
// at most a configured number of items pass per window. Items over the limit
// are discarded permanently, never buffered or delayed, which keeps a slow
// consumer (usually a terminal) from falling behind a bursty source such as
// an active log file.
package ratelimit

import (
	"io"
	"time"

	"github.com/pkg/errors"
)

// Source produces a sequence of items. Next returns io.EOF once the sequence
// is exhausted; any other error also ends the sequence.
type Source[T any] interface {
	Next() (T, error)
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc[T any] func() (T, error)

// Next calls f.
func (f SourceFunc[T]) Next() (T, error) { return f() }

// SliceSource returns a Source that yields the elements of s in order.
func SliceSource[T any](s []T) Source[T] {
	i := 0
	return SourceFunc[T](func() (T, error) {
		if i == len(s) {
			var zero T
			return zero, io.EOF
		}
		v := s[i]
		i++
		return v, nil
	})
}

// Window is a rate limit of at most Limit items per Period.
type Window struct {
	Period time.Duration
	Limit  int
}

// IsZero reports whether the window is unset and therefore imposes no limit.
func (w Window) IsZero() bool { return w.Period == 0 && w.Limit == 0 }

func (w Window) validate() error {
	if w.Period <= 0 {
		return errors.New("window period must be positive")
	}
	if w.Limit < 1 {
		return errors.New("window limit must be at least 1")
	}
	return nil
}

// Relay pulls items from a source and forwards at most Limit of them per
// Period, discarding the rest. A window opens at the first item's arrival
// and each later item either falls into the current window or opens the next
// one. The relay does no work unless pulled and keeps no state shared with
// other relays.
type Relay[T any] struct {
	// OnSaturated, if set, is called once per window when the first item of
	// that window is discarded.
	OnSaturated func()

	src Source[T]
	win Window

	now   func() time.Time
	start time.Time
	count int
	err   error
}

// New creates a relay over src limited by win.
func New[T any](src Source[T], win Window) (*Relay[T], error) {
	if err := win.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid rate limit window")
	}

	return &Relay[T]{
		src: src,
		win: win,
		now: time.Now,
	}, nil
}

// Next pulls items from the source until one fits into the current window
// and returns it. Items beyond the window limit are discarded. Source errors
// are returned unchanged at the pull that encounters them, and every pull
// after that returns the same error.
func (r *Relay[T]) Next() (T, error) {
	var zero T

	if r.err != nil {
		return zero, r.err
	}

	for {
		v, err := r.src.Next()
		if err != nil {
			// Drop the partially-consumed window state along with the
			// source.
			r.start = time.Time{}
			r.count = 0
			r.err = err
			return zero, err
		}

		now := r.now()

		if r.start.IsZero() || now.Sub(r.start) >= r.win.Period {
			// First item ever or first item past the current window: open a
			// new window anchored here.
			r.start = now
			r.count = 1
			return v, nil
		}

		r.count++
		if r.count <= r.win.Limit {
			return v, nil
		}

		if r.count == r.win.Limit+1 && r.OnSaturated != nil {
			r.OnSaturated()
		}
		// Discarded for good; keep pulling.
	}
}
