package daemon

// eventType describes an event type.
type eventType = string

const (
	eventWarning      eventType = "warning"
	eventAcquired     eventType = "acquired pidfile"
	eventLogTruncated eventType = "log truncated"
	eventSpawnError   eventType = "spawn error"
	eventSpawned      eventType = "spawned"
	eventExited       eventType = "exited"
)

// Event is an interface describing known events.
type Event interface {
	Type() string
	event()
}

// NewEvent creates a new empty event from the given event type. It is used
// primarily for decoding events from a journal. Nil is returned if the event
// type is unknown.
func NewEvent(eventType string) Event {
	switch eventType {
	case eventWarning:
		return &EventWarning{}
	case eventAcquired:
		return &EventAcquired{}
	case eventLogTruncated:
		return &EventLogTruncated{}
	case eventSpawnError:
		return &EventSpawnError{}
	case eventSpawned:
		return &EventSpawned{}
	case eventExited:
		return &EventExited{}
	default:
		return nil
	}
}

// EventWarning is emitted when a non-fatal error occurs.
type EventWarning struct {
	Component string `json:"component"`
	Error     string `json:"error"`
}

func (ev *EventWarning) Type() string { return eventWarning }
func (ev *EventWarning) event()       {}

// EventAcquired is emitted when the supervisor acquires the pidfile, which
// is on startup.
type EventAcquired struct {
	PID int `json:"pid"`
}

func (ev *EventAcquired) Type() string { return eventAcquired }
func (ev *EventAcquired) event()       {}

// EventLogTruncated is emitted when a capture log has been truncated for any
// reason, including rotation of a corrupted log file.
type EventLogTruncated struct {
	Reason string `json:"reason"`
}

func (ev *EventLogTruncated) Type() string { return eventLogTruncated }
func (ev *EventLogTruncated) event()       {}

// EventSpawnError is emitted when the supervised command fails to start.
type EventSpawnError struct {
	Command []string `json:"command"`
	Reason  string   `json:"reason"`
}

func (ev *EventSpawnError) Type() string { return eventSpawnError }
func (ev *EventSpawnError) event()       {}

// EventSpawned is emitted when the supervised command has been started.
type EventSpawned struct {
	PID     int      `json:"pid"`
	Command []string `json:"command"`
}

func (ev *EventSpawned) Type() string { return eventSpawned }
func (ev *EventSpawned) event()       {}

// EventExited is emitted when the supervised command has exited for any
// reason.
type EventExited struct {
	PID      int    `json:"pid"`
	Error    string `json:"error,omitempty"`
	ExitCode int    `json:"exit_code"` // -1 if interrupted or terminated
}

// IsGraceful returns true if the process stopped gracefully.
func (ev *EventExited) IsGraceful() bool {
	return ev.ExitCode != -1
}

func (ev *EventExited) Type() string { return eventExited }
func (ev *EventExited) event()       {}
