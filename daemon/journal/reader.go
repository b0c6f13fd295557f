package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/diamondburned/backwardio"
	"github.com/pkg/errors"

	"github.com/reversefold/util/daemon"
)

// Reader parses journals written by Writer from the first entry to the
// last.
type Reader struct {
	s *bufio.Scanner
}

// NewReader creates a forward journal reader.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{s: s}
}

// Read reads a single entry. An io.EOF error is returned once the journal
// has been fully consumed.
func (r *Reader) Read() (daemon.Event, time.Time, error) {
	for r.s.Scan() {
		line := r.s.Bytes()
		if len(line) == 0 {
			continue
		}
		return decodeEvent(line)
	}

	if err := r.s.Err(); err != nil {
		return nil, time.Time{}, err
	}
	return nil, time.Time{}, io.EOF
}

// BackwardReader parses journals written by Writer starting from the most
// recent entry.
type BackwardReader struct {
	b *backwardio.Scanner
}

// NewBackwardReader creates a journal reader that reads entries newest
// first.
func NewBackwardReader(r io.ReadSeeker) *BackwardReader {
	return &BackwardReader{backwardio.NewScanner(r)}
}

// Read reads a single entry, starting from the end of the file. An io.EOF
// error is returned once the journal has been fully consumed.
func (r *BackwardReader) Read() (daemon.Event, time.Time, error) {
	for {
		line, err := r.b.ReadUntil('\n')
		if err != nil {
			return nil, time.Time{}, err
		}
		if len(line) > 0 {
			return decodeEvent(line)
		}
	}
}

func decodeEvent(line []byte) (daemon.Event, time.Time, error) {
	var rawEvent struct {
		Time time.Time       `json:"time"`
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(line, &rawEvent); err != nil {
		return nil, time.Time{}, errors.Wrap(err, "failed to decode JSON")
	}

	event := daemon.NewEvent(rawEvent.Type)
	if event == nil {
		return nil, time.Time{}, fmt.Errorf("unknown event %q", rawEvent.Type)
	}

	if err := json.Unmarshal(rawEvent.Data, event); err != nil {
		return nil, time.Time{}, errors.Wrap(err, "failed to decode event data")
	}

	return event, rawEvent.Time, nil
}

// ReadStatusFromFile reads the most recent daemon status recorded in the
// journal at path.
func ReadStatusFromFile(path string) (*daemon.Status, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return daemon.ReadStatus(NewBackwardReader(f))
}
