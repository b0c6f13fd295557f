package follow

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "followed")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0600)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString(content)
	require.NoError(t, err)
}

func TestFollower(t *testing.T) {
	path := writeFile(t, "hello ")

	f, err := Open(path, Options{})
	require.NoError(t, err)
	defer f.Close()

	ctx := context.Background()

	data, err := f.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello ", string(data))

	appendFile(t, path, "world")

	data, err = f.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))

	f.Finish()
	_, err = f.Next(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestFollowerTailOnly(t *testing.T) {
	path := writeFile(t, "old content\n")

	f, err := Open(path, Options{TailOnly: true})
	require.NoError(t, err)
	defer f.Close()

	appendFile(t, path, "new")
	f.Finish()

	data, err := f.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestFollowerCanceled(t *testing.T) {
	path := writeFile(t, "")

	f, err := Open(path, Options{})
	require.NoError(t, err)
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.Next(ctx)
	assert.Equal(t, context.Canceled, err)
}

func TestLineFollower(t *testing.T) {
	path := writeFile(t, "one\ntwo\npar")

	l, err := OpenLines(path, Options{})
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()

	line, err := l.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one", line)

	line, err = l.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "two", line)

	// The partial line is held until its newline arrives.
	appendFile(t, path, "tial\n")

	line, err = l.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "partial", line)

	l.Finish()
	_, err = l.Next(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestLineFollowerDrainsPartial(t *testing.T) {
	path := writeFile(t, "done\nno newline")

	l, err := OpenLines(path, Options{})
	require.NoError(t, err)
	defer l.Close()

	l.Finish()
	ctx := context.Background()

	line, err := l.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "done", line)

	line, err = l.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "no newline", line)

	_, err = l.Next(ctx)
	assert.Equal(t, io.EOF, err)
}
