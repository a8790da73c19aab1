package drapto

import (
	"time"

	"github.com/five82/drapto/internal/reporter"
)

// Reporter re-exports the internal progress reporting interface for
// callers who want direct access to every encoding event rather than
// the simplified EventHandler callback.
type Reporter = reporter.Reporter

// Timestamp is the wall-clock time an event was generated.
type Timestamp = time.Time

// NewTimestamp returns the current time for stamping a new event.
func NewTimestamp() Timestamp {
	return time.Now()
}

// EventType identifies the kind of event carried by an Event.
type EventType string

const (
	EventTypeEncodingProgress   EventType = "encoding_progress"
	EventTypeValidationComplete EventType = "validation_complete"
	EventTypeEncodingComplete   EventType = "encoding_complete"
	EventTypeWarning            EventType = "warning"
	EventTypeError              EventType = "error"
	EventTypeBatchComplete      EventType = "batch_complete"
)

// Event is implemented by every event type dispatched to an
// EventHandler.
type Event interface {
	Type() EventType
	Timestamp() Timestamp
}

// BaseEvent carries the fields common to every event.
type BaseEvent struct {
	EventType EventType
	Time      Timestamp
}

// Type returns the event's type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event was generated.
func (e BaseEvent) Timestamp() Timestamp {
	return e.Time
}

// EventHandler receives encoding events. Returning an error does not
// stop the encode; the caller discards it.
type EventHandler func(Event) error

// ValidationStep reports the outcome of one post-encode validation check.
type ValidationStep struct {
	Step    string
	Passed  bool
	Details string
}

// EncodingProgressEvent reports encoding progress for the current file.
type EncodingProgressEvent struct {
	BaseEvent
	Percent    float32
	Speed      float32
	FPS        float32
	ETASeconds int64
}

// ValidationCompleteEvent reports the result of post-encode validation.
type ValidationCompleteEvent struct {
	BaseEvent
	ValidationPassed bool
	ValidationSteps  []ValidationStep
}

// EncodingCompleteEvent reports that a file finished encoding.
type EncodingCompleteEvent struct {
	BaseEvent
	OutputFile           string
	OriginalSize         uint64
	EncodedSize          uint64
	SizeReductionPercent float64
}

// WarningEvent reports a non-fatal issue encountered during encoding.
type WarningEvent struct {
	BaseEvent
	Message string
}

// ErrorEvent reports a fatal error encountered during encoding.
type ErrorEvent struct {
	BaseEvent
	Title      string
	Message    string
	Context    string
	Suggestion string
}

// BatchCompleteEvent reports the outcome of a multi-file batch encode.
type BatchCompleteEvent struct {
	BaseEvent
	SuccessfulCount           int
	TotalFiles                int
	TotalSizeReductionPercent float64
}
