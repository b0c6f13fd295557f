package daemon

import (
	"io"
	"time"
)

// Journaler describes an event logger.
type Journaler interface {
	Write(Event) error
}

// nopJournaler drops every event.
type nopJournaler struct{}

func (nopJournaler) Write(Event) error { return nil }

// EventReader reads journaled events newest first.
type EventReader interface {
	Read() (Event, time.Time, error)
}

// Status summarizes the most recent run recorded in a journal.
type Status struct {
	// Running is true if the journal ends on a spawn with no matching exit.
	// The process may still have died without the supervisor recording it.
	Running  bool
	PID      int
	ExitCode int
	Error    string
	Time     time.Time
}

// ReadStatus reads events backward until it finds the most recent spawn or
// exit and summarizes it. A nil Status is returned when the journal holds
// neither.
func ReadStatus(r EventReader) (*Status, error) {
	for {
		ev, t, err := r.Read()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		switch ev := ev.(type) {
		case *EventSpawned:
			return &Status{Running: true, PID: ev.PID, Time: t}, nil
		case *EventExited:
			return &Status{
				PID:      ev.PID,
				ExitCode: ev.ExitCode,
				Error:    ev.Error,
				Time:     t,
			}, nil
		}
	}
}
