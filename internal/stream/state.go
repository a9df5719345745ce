package stream

import (
	"time"

	"github.com/google/uuid"

	"github.com/Eliolocin/TomoriBot-sub001/internal/llm"
)

// Status is the terminal outcome of a stream.
type Status string

const (
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
	StatusFunctionCall Status = "function_call"
	StatusStopped      Status = "stopped_by_user"
	StatusTimeout      Status = "timeout"
)

// streamState is the mutable per-stream bookkeeping. One instance exists per
// in-flight stream and is owned exclusively by the orchestrator invocation
// that created it.
type streamState struct {
	id        string
	channelID string

	buffer          string
	insideCodeBlock bool
	openMarkers     bool

	messagesSent     int
	repliedToTrigger bool

	lastChunkAt time.Time
}

func newStreamState(channelID string) *streamState {
	return &streamState{
		id:        uuid.NewString(),
		channelID: channelID,
	}
}

// streamMetrics counts what one stream did, for the completion log line and
// the Prometheus instruments. Not persisted.
type streamMetrics struct {
	chunks        int
	characters    int
	messages      int
	functionCalls int
	errors        int
	timeouts      int
	startedAt     time.Time
	endedAt       time.Time
}

func newStreamMetrics() *streamMetrics {
	return &streamMetrics{startedAt: time.Now()}
}

func (m *streamMetrics) duration() time.Duration {
	end := m.endedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(m.startedAt)
}

// Result is returned to the calling layer when a stream terminates. Calls
// is populated only for StatusFunctionCall, when no tool registry was
// available to run the requested functions in-process.
type Result struct {
	Status        Status
	StreamID      string
	MessagesSent  int
	FunctionCalls int
	Calls         []llm.FunctionCall
	Duration      time.Duration
}
