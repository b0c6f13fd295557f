// Package journal implements the daemon package's Journaler interface over
// a file. A file lock guards the journal so only one supervisor can run
// against the same journal file; readers need no lock, since every write is
// a single atomic appended line.
package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/reversefold/util/daemon"
)

// Event describes the JSON structure of an event as written.
type Event struct {
	Time time.Time    `json:"time"`
	Type string       `json:"type"`
	Data daemon.Event `json:"data"`
}

// Writer is a simple journaler that writes line-delimited JSON events into
// the writer.
type Writer struct{ w io.Writer }

var _ daemon.Journaler = Writer{}

// NewWriter creates a new journal writer.
func NewWriter(w io.Writer) Writer {
	return Writer{w}
}

// Write writes the given event into the writer. Writes are concurrently
// safe and are atomic.
func (l Writer) Write(ev daemon.Event) error {
	evJSON := Event{
		Time: time.Now(),
		Type: ev.Type(),
		Data: ev,
	}

	buf := bytes.Buffer{}
	buf.Grow(512)

	if err := json.NewEncoder(&buf).Encode(evJSON); err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	_, err := l.w.Write(buf.Bytes())
	if err != nil {
		return errors.Wrap(err, "failed to write event")
	}

	return nil
}

// MultiWriter creates a journaler that writes to all the given journalers.
func MultiWriter(ws ...daemon.Journaler) daemon.Journaler {
	return multiWriter(ws)
}

type multiWriter []daemon.Journaler

func (w multiWriter) Write(ev daemon.Event) error {
	var firstErr error
	for _, writer := range w {
		if err := writer.Write(ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// ErrLockedElsewhere is returned if NewFileLockJournaler can't acquire the
// file lock.
var ErrLockedElsewhere = errors.New("file already locked elsewhere")

// FileLockJournaler is a journaler that flocks the given file and appends to
// it. The instance must be closed by the caller or by the operating system
// when the application exits.
type FileLockJournaler struct {
	Writer
	f *os.File
	l *flock.Flock
}

// NewFileLockJournaler creates a new file journaler if it can acquire a
// flock on the path. It returns ErrLockedElsewhere if the file is locked.
func NewFileLockJournaler(path string) (*FileLockJournaler, error) {
	return newFileLockJournaler(nil, path)
}

// NewFileLockJournalerWait creates a new file journaler but waits until the
// lock can be acquired or until the context times out.
func NewFileLockJournalerWait(ctx context.Context, path string) (*FileLockJournaler, error) {
	return newFileLockJournaler(ctx, path)
}

func newFileLockJournaler(ctx context.Context, path string) (*FileLockJournaler, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create journal directory")
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE|os.O_SYNC, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}

	l := flock.New(path)

	var locked bool
	if ctx != nil {
		locked, err = l.TryLockContext(ctx, 25*time.Millisecond)
	} else {
		locked, err = l.TryLock()
	}

	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to acquire lock")
	}

	if !locked {
		f.Close()
		return nil, ErrLockedElsewhere
	}

	return &FileLockJournaler{
		Writer: Writer{f},
		f:      f,
		l:      l,
	}, nil
}

// Close closes the file and releases the flock.
func (f *FileLockJournaler) Close() error {
	f.f.Close()
	return f.l.Unlock()
}
