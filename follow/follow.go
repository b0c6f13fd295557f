// Package follow streams the contents of a growing file. A Follower emits
// raw byte chunks as they are appended; a LineFollower emits whole lines,
// holding a partial trailing line until its newline arrives. Both poll the
// file and keep emitting until Finish is called, after which the remaining
// data is drained and the stream ends.
package follow

import (
	"bytes"
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// PollInterval is how long a follower sleeps when the file has no new data.
var PollInterval = 100 * time.Millisecond

// Options configure how a file is followed.
type Options struct {
	// TailOnly starts emitting from the current end of the file instead of
	// the beginning.
	TailOnly bool
	// ChunkSize is the read size for Follower. Defaults to 1024.
	ChunkSize int
}

// Follower emits chunks of bytes appended to a file.
type Follower struct {
	fd        int
	chunkSize int
	poll      time.Duration
	finish    atomic.Bool
}

// Open opens the file for following. The file is opened non-blocking so that
// FIFOs can be followed as well as regular files.
func Open(name string, opts Options) (*Follower, error) {
	fd, err := unix.Open(name, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", name)
	}

	if opts.TailOnly {
		if _, err := unix.Seek(fd, 0, io.SeekEnd); err != nil {
			unix.Close(fd)
			return nil, errors.Wrapf(err, "failed to seek %q to end", name)
		}
	}

	chunkSize := opts.ChunkSize
	if chunkSize == 0 {
		chunkSize = 1024
	}

	return &Follower{
		fd:        fd,
		chunkSize: chunkSize,
		poll:      PollInterval,
	}, nil
}

// Next blocks until the file has new data and returns it. After Finish is
// called, the remaining data is returned chunk by chunk and then io.EOF.
// Next returns the context's error if it is canceled while waiting.
func (f *Follower) Next(ctx context.Context) ([]byte, error) {
	buf := make([]byte, f.chunkSize)

	for {
		n, err := unix.Read(f.fd, buf)
		if n > 0 {
			return buf[:n], nil
		}
		if err != nil && err != unix.EAGAIN {
			return nil, errors.Wrap(err, "failed to read")
		}

		// No new data yet.
		if f.finish.Load() {
			return nil, io.EOF
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.poll):
		}
	}
}

// Finish makes the follower stop once the data written so far is drained.
func (f *Follower) Finish() { f.finish.Store(true) }

// Close closes the underlying file.
func (f *Follower) Close() error {
	return unix.Close(f.fd)
}

// LineFollower emits whole lines appended to a file, without the trailing
// newline. A partial line at the end of the file is held back until its
// newline is written, or until the follower is finished and drained.
type LineFollower struct {
	f       *Follower
	lines   []string
	partial []byte
}

// OpenLines opens the file for line-based following.
func OpenLines(name string, opts Options) (*LineFollower, error) {
	f, err := Open(name, opts)
	if err != nil {
		return nil, err
	}

	return &LineFollower{f: f}, nil
}

// Next blocks until a complete line is available and returns it.
func (l *LineFollower) Next(ctx context.Context) (string, error) {
	for len(l.lines) == 0 {
		data, err := l.f.Next(ctx)
		if err != nil {
			if err == io.EOF && len(l.partial) > 0 {
				// The file ended without a final newline; emit what's left.
				line := string(l.partial)
				l.partial = nil
				return line, nil
			}
			return "", err
		}

		data = append(l.partial, data...)
		parts := bytes.Split(data, []byte{'\n'})

		// The last part is either empty (data ended on a newline) or the new
		// partial line.
		l.partial = parts[len(parts)-1]
		if len(l.partial) > 0 {
			l.partial = append([]byte(nil), l.partial...)
		} else {
			l.partial = nil
		}

		for _, p := range parts[:len(parts)-1] {
			l.lines = append(l.lines, string(p))
		}
	}

	line := l.lines[0]
	l.lines = l.lines[1:]
	return line, nil
}

// Finish makes the follower stop once the data written so far is drained.
func (l *LineFollower) Finish() { l.f.Finish() }

// Close closes the underlying file.
func (l *LineFollower) Close() error { return l.f.Close() }
