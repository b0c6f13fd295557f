package tail

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reversefold/util/ratelimit"
)

func TestPrefix(t *testing.T) {
	files := []string{"short", "a-much-longer-name"}

	assert.Equal(t, "[short]              ", prefix("short", files))
	assert.Equal(t, "[a-much-longer-name] ", prefix("a-much-longer-name", files))
}

func TestMasterUnlimited(t *testing.T) {
	var out []string
	m, err := newMaster(ratelimit.Window{}, func(line string) { out = append(out, line) })
	require.NoError(t, err)

	go func() {
		m.handle("one")
		m.handle("two")
		m.finish()
	}()

	require.NoError(t, m.run())
	assert.Equal(t, []string{"one", "two"}, out)
}

func TestMasterRateLimited(t *testing.T) {
	var out []string
	win := ratelimit.Window{Period: time.Hour, Limit: 2}
	m, err := newMaster(win, func(line string) { out = append(out, line) })
	require.NoError(t, err)

	go func() {
		for _, line := range []string{"a", "b", "c", "d", "e"} {
			m.handle(line)
		}
		m.finish()
	}()

	require.NoError(t, m.run())
	assert.Equal(t, []string{"a", "b", Saturated}, out)
}

func TestMasterRejectsBadWindow(t *testing.T) {
	_, err := newMaster(ratelimit.Window{Period: time.Second, Limit: -1}, func(string) {})
	assert.Error(t, err)
}

type lineCollector struct {
	mu    sync.Mutex
	lines []string
}

func (c *lineCollector) add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *lineCollector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grow.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collected := lineCollector{}
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, []string{path}, Options{Output: collected.add})
	}()

	// Give the tailer time to seek to the end so "old" is skipped.
	time.Sleep(300 * time.Millisecond)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("fresh line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Eventually(t, func() bool {
		lines := collected.snapshot()
		return len(lines) == 1 && lines[0] == "["+path+"] fresh line"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunMissingFile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, []string{filepath.Join(t.TempDir(), "nope")}, Options{Output: func(string) {}})
	assert.NoError(t, err)
}
