package stream

import (
	"errors"
	"fmt"
)

// ErrInactivityTimeout marks a stream abandoned because no chunk arrived
// within the inactivity window.
var ErrInactivityTimeout = errors.New("stream: inactivity timeout")

// ChannelError wraps a chat-platform failure (send, reply, typing). Send and
// reply failures are fatal to the stream attempt; typing failures are logged
// and ignored at the call site instead of being wrapped.
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s failed: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// ToolError wraps a local function handler failure. It never terminates a
// stream: the bridge converts it into an error-flagged result for the model.
type ToolError struct {
	Name string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Name, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}
