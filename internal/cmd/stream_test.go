package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reversefold/util/follow"
)

func writeStreamFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "stream.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestStreamLines(t *testing.T) {
	lf, err := follow.OpenLines(writeStreamFile(t, "first\nsecond\npartial"), follow.Options{})
	require.NoError(t, err)
	defer lf.Close()

	lf.Finish()

	var out bytes.Buffer
	require.NoError(t, streamLines(context.Background(), lf, &out))

	assert.Equal(t, "first\nsecond\npartial\n", out.String())
}

func TestStreamBytes(t *testing.T) {
	f, err := follow.Open(writeStreamFile(t, "raw\ndata"), follow.Options{ChunkSize: 3})
	require.NoError(t, err)
	defer f.Close()

	f.Finish()

	var out bytes.Buffer
	require.NoError(t, streamBytes(context.Background(), f, &out))

	assert.Equal(t, "raw\ndata", out.String())
}
