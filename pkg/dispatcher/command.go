package dispatcher

import (
	"context"
	"encoding/json"
)

// Command is a named operation the gateway can run. A nil error means success and the
// returned string is the result; otherwise the string is ignored.
type Command interface {
	Invoke(ctx context.Context, input json.RawMessage) (string, error)
}

// CommandFunc adapts a plain function to the Command interface.
type CommandFunc func(ctx context.Context, input json.RawMessage) (string, error)

// Invoke calls f.
func (f CommandFunc) Invoke(ctx context.Context, input json.RawMessage) (string, error) {
	return f(ctx, input)
}
