package ogservice

// State is a step of one document-processing run.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateNormalizing
	StatePlanning
	StateSerializing
	StateDone
	StateFailed
	StateErrorWriting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateNormalizing:
		return "normalizing"
	case StatePlanning:
		return "planning"
	case StateSerializing:
		return "serializing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateErrorWriting:
		return "error_writing"
	default:
		return "unknown"
	}
}

// MarshalText lets states appear by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event kinds passed to an EventFunc.
const (
	EventState         = "document.state"
	EventProcessed     = "document.processed"
	EventFailed        = "document.failed"
	EventBatchProgress = "batch.progress"
	EventBatchFinished = "batch.finished"
)

// EventFunc receives pipeline events. It must not block.
type EventFunc func(kind string, data any)

// StateChange is the payload of EventState.
type StateChange struct {
	Path  string `json:"path"`
	State State  `json:"state"`
}
