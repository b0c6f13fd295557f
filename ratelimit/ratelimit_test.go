package ratelimit

import (
	"io"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to, making window boundaries exact.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2021, time.April, 13, 5, 35, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRelay(t *testing.T, items []string, win Window) (*Relay[string], *fakeClock) {
	t.Helper()

	r, err := New[string](SliceSource(items), win)
	require.NoError(t, err)

	clock := newFakeClock()
	r.now = clock.Now
	return r, clock
}

func drain(t *testing.T, r *Relay[string]) []string {
	t.Helper()

	var out []string
	for {
		v, err := r.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, v)
	}
}

func TestRelayBurstDiscards(t *testing.T) {
	items := []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}
	r, _ := newTestRelay(t, items, Window{Period: time.Second, Limit: 3})

	saturated := 0
	r.OnSaturated = func() { saturated++ }

	assert.Equal(t, []string{"0", "1", "2"}, drain(t, r))
	assert.Equal(t, 1, saturated, "one saturation mark per window")
}

func TestRelaySlowSourcePassesEverything(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	r, clock := newTestRelay(t, items, Window{Period: time.Second, Limit: 3})

	r.OnSaturated = func() { t.Error("window saturated with a slow source") }

	// Wrap the source so each arrival is spaced wider than Period/Limit.
	src := r.src
	r.src = SourceFunc[string](func() (string, error) {
		clock.Advance(400 * time.Millisecond)
		return src.Next()
	})

	assert.Equal(t, items, drain(t, r))
}

func TestRelayConsecutiveWindows(t *testing.T) {
	items := []string{"0", "1", "2", "3", "4", "5", "6", "7"}
	r, clock := newTestRelay(t, items, Window{Period: time.Second, Limit: 2})

	pulled := 0
	src := r.src
	r.src = SourceFunc[string](func() (string, error) {
		// Burst 4 items instantly, then jump into the next window.
		if pulled == 4 {
			clock.Advance(time.Second)
		}
		pulled++
		return src.Next()
	})

	// 2 retained per window regardless of burstiness within it.
	assert.Equal(t, []string{"0", "1", "4", "5"}, drain(t, r))
}

func TestRelayExhaustionIsSticky(t *testing.T) {
	r, _ := newTestRelay(t, []string{"only"}, Window{Period: time.Second, Limit: 1})

	assert.Equal(t, []string{"only"}, drain(t, r))

	for i := 0; i < 3; i++ {
		_, err := r.Next()
		assert.Equal(t, io.EOF, err)
	}
}

func TestRelayPropagatesSourceError(t *testing.T) {
	boom := errors.New("read failed")

	yielded := false
	src := SourceFunc[string](func() (string, error) {
		if yielded {
			return "", boom
		}
		yielded = true
		return "first", nil
	})

	r, err := New[string](src, Window{Period: time.Second, Limit: 3})
	require.NoError(t, err)
	r.now = newFakeClock().Now

	v, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	_, err = r.Next()
	assert.Same(t, boom, errors.Cause(err))

	// The same error keeps coming back; nothing is fabricated.
	_, err = r.Next()
	assert.Same(t, boom, errors.Cause(err))
}

func TestNewRejectsBadWindows(t *testing.T) {
	_, err := New[string](SliceSource[string](nil), Window{Period: time.Second, Limit: 0})
	assert.Error(t, err)

	_, err = New[string](SliceSource[string](nil), Window{Period: 0, Limit: 5})
	assert.Error(t, err)
}
