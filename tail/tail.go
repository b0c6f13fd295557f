// Package tail follows multiple growing files at once, printing every new
// line prefixed with the name of the file it came from. Each file is read on
// its own goroutine and handed to a single master printer, which can rate
// limit the displayed lines so a bursty file cannot flood the terminal.
package tail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/reversefold/util/follow"
	"github.com/reversefold/util/ratelimit"
)

// Saturated is printed once per rate limit window when lines start being
// dropped.
const Saturated = "..."

// Options configure a tail run.
type Options struct {
	// Window rate-limits the printed lines. The zero Window disables
	// limiting.
	Window ratelimit.Window
	// Output receives each line. Defaults to stdout.
	Output func(string)
	// Log receives diagnostics. Defaults to a nop logger.
	Log *zap.Logger
}

// Run follows all the given files until ctx is canceled. Files that do not
// exist are reported and skipped; they do not fail the run.
func Run(ctx context.Context, files []string, opts Options) error {
	if len(files) == 0 {
		return errors.New("no files to tail")
	}
	if opts.Output == nil {
		opts.Output = func(line string) { fmt.Println(line) }
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	m, err := newMaster(opts.Window, opts.Output)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, file := range files {
		wg.Add(1)
		go func(file, prefix string) {
			defer wg.Done()
			tailFile(ctx, file, prefix, m, opts.Log)
		}(file, prefix(file, files))
	}

	// The master drains until every tailer is done.
	go func() {
		wg.Wait()
		m.finish()
	}()

	return m.run()
}

// prefix formats the "[name] " tag, padded so that all tags in this run line
// up.
func prefix(file string, all []string) string {
	width := 0
	for _, f := range all {
		if len(f) > width {
			width = len(f)
		}
	}
	width += 3 // brackets and a trailing space

	tag := "[" + file + "] "
	if len(tag) < width {
		tag += strings.Repeat(" ", width-len(tag))
	}
	return tag
}

// master serializes lines from all tailers and prints them, applying the
// rate limit window if one is configured.
type master struct {
	win   ratelimit.Window
	out   func(string)
	lines chan string
}

func newMaster(win ratelimit.Window, out func(string)) (*master, error) {
	if !win.IsZero() {
		// Surface a bad window before any goroutines start.
		if _, err := ratelimit.New[string](ratelimit.SliceSource[string](nil), win); err != nil {
			return nil, err
		}
	}

	return &master{
		win:   win,
		out:   out,
		lines: make(chan string, 256),
	}, nil
}

func (m *master) handle(line string) { m.lines <- line }
func (m *master) finish()            { close(m.lines) }

func (m *master) run() error {
	var src ratelimit.Source[string] = ratelimit.SourceFunc[string](func() (string, error) {
		line, ok := <-m.lines
		if !ok {
			return "", io.EOF
		}
		return line, nil
	})

	if !m.win.IsZero() {
		relay, err := ratelimit.New(src, m.win)
		if err != nil {
			return err
		}
		relay.OnSaturated = func() { m.out(Saturated) }
		src = relay
	}

	for {
		line, err := src.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		m.out(line)
	}
}

// tailFile follows a single file until ctx is canceled. With a working
// fsnotify watcher it reads whatever is available after each write event;
// without one it falls back to the polling line follower.
func tailFile(ctx context.Context, file, prefix string, m *master, log *zap.Logger) {
	if _, err := os.Stat(file); err != nil {
		log.Warn("file does not exist", zap.String("file", file))
		fmt.Fprintf(os.Stderr, "file %s does not exist\n", file)
		return
	}

	abs, err := filepath.Abs(file)
	if err != nil {
		log.Warn("cannot resolve file path", zap.String("file", file), zap.Error(err))
		return
	}

	w := tryWatch(abs, log)
	if w == nil {
		tailPolling(ctx, file, prefix, m, log)
		return
	}
	defer w.Close()

	f, err := os.Open(abs)
	if err != nil {
		log.Warn("cannot open file", zap.String("file", file), zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		log.Warn("cannot seek to end", zap.String("file", file), zap.Error(err))
		return
	}

	r := lineReader{f: f}
	for {
		lines, err := r.readAvailable()
		if err != nil {
			log.Warn("read failed", zap.String("file", file), zap.Error(err))
			return
		}

		for _, line := range lines {
			m.handle(prefix + line)
		}

		if err := w.wait(ctx); err != nil {
			return
		}
	}
}

// tailPolling is the fallback used when inotify is unavailable.
func tailPolling(ctx context.Context, file, prefix string, m *master, log *zap.Logger) {
	lf, err := follow.OpenLines(file, follow.Options{TailOnly: true})
	if err != nil {
		log.Warn("cannot follow file", zap.String("file", file), zap.Error(err))
		return
	}
	defer lf.Close()

	for {
		line, err := lf.Next(ctx)
		if err != nil {
			return
		}
		m.handle(prefix + line)
	}
}

// lineReader drains the complete lines currently available in a file,
// holding a partial trailing line for the next read.
type lineReader struct {
	f       *os.File
	partial []byte
}

func (r *lineReader) readAvailable() ([]string, error) {
	var lines []string
	buf := make([]byte, 64*1024)

	for {
		n, err := r.f.Read(buf)
		if n > 0 {
			data := append(r.partial, buf[:n]...)
			parts := bytes.Split(data, []byte{'\n'})

			r.partial = append([]byte(nil), parts[len(parts)-1]...)
			if len(r.partial) == 0 {
				r.partial = nil
			}

			for _, p := range parts[:len(parts)-1] {
				lines = append(lines, string(p))
			}
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return lines, errors.Wrap(err, "failed to read")
		}
	}
}
