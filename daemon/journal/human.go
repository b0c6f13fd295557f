package journal

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/reversefold/util/daemon"
)

// HumanWriter renders events as single human-readable lines, for echoing a
// journal to a terminal alongside the file journaler.
type HumanWriter struct {
	name string
	w    io.Writer
}

var _ daemon.Journaler = (*HumanWriter)(nil)

// NewHumanWriter creates a human-readable journaler. The name identifies the
// output in each line, e.g. "stderr".
func NewHumanWriter(name string, w io.Writer) *HumanWriter {
	return &HumanWriter{name: name, w: w}
}

func (h *HumanWriter) Write(ev daemon.Event) error {
	_, err := fmt.Fprintf(h.w, "%s [%s] %s: %s\n",
		time.Now().Format(time.RFC3339), h.name, ev.Type(), Describe(ev))
	return err
}

// Describe renders an event's details in one line.
func Describe(ev daemon.Event) string {
	switch ev := ev.(type) {
	case *daemon.EventWarning:
		return fmt.Sprintf("%s: %s", ev.Component, ev.Error)
	case *daemon.EventAcquired:
		return fmt.Sprintf("pid %d", ev.PID)
	case *daemon.EventLogTruncated:
		return ev.Reason
	case *daemon.EventSpawnError:
		return fmt.Sprintf("%s: %s", strings.Join(ev.Command, " "), ev.Reason)
	case *daemon.EventSpawned:
		return fmt.Sprintf("pid %d: %s", ev.PID, strings.Join(ev.Command, " "))
	case *daemon.EventExited:
		if ev.Error != "" {
			return fmt.Sprintf("pid %d: exit code %d: %s", ev.PID, ev.ExitCode, ev.Error)
		}
		return fmt.Sprintf("pid %d: exit code %d", ev.PID, ev.ExitCode)
	default:
		return ""
	}
}
