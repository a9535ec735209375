package pipeline

import "time"

// EventType discriminates progress events.
type EventType string

const (
	EventScanStarted   EventType = "scan_started"
	EventScanProgress  EventType = "scan_progress"
	EventScanFinished  EventType = "scan_finished"
	EventStageResult   EventType = "stage_result"
	EventIndexCleared  EventType = "index_cleared"
	EventEventsUpdated EventType = "events_updated"
)

// Event is one progress update published to subscribers.
type Event struct {
	Type       EventType `json:"type"`
	RunID      string    `json:"run_id,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	FileID     string    `json:"file_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Error      string    `json:"error,omitempty"`
	Discovered int       `json:"discovered,omitempty"`
	NewFiles   int       `json:"new_files,omitempty"`
	Hashed     int       `json:"hashed,omitempty"`
	Errors     int       `json:"errors,omitempty"`
	Cancelled  bool      `json:"cancelled,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Notifier receives progress events. Publish must not block: slow consumers
// are the notifier's problem, not the pipeline's.
type Notifier interface {
	Publish(Event)
}

// NopNotifier drops all events.
type NopNotifier struct{}

func (NopNotifier) Publish(Event) {}

func (p *Pipeline) publish(ev Event) {
	ev.Timestamp = time.Now()
	p.notifier.Publish(ev)
}
