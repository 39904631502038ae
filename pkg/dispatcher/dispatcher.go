package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/morezero/marketplace-gateway/pkg/apperrors"
)

const logPrefix = "dispatcher:dispatch"

// Dispatcher routes invocations to commands held in a Registry.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a new Dispatcher. A nil registry resolves no names.
func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{registry: reg}
}

// Registry returns the registry the dispatcher reads from.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs the named command and returns its envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, input json.RawMessage) Envelope {
	return d.Invoke(ctx, name, input).Envelope()
}

// Invoke runs the named command and returns the full outcome. It never panics: a
// panicking command is reported as an internal error.
func (d *Dispatcher) Invoke(ctx context.Context, name string, input json.RawMessage) (out Outcome) {
	start := time.Now()
	out.Name = name
	defer func() {
		out.Duration = time.Since(start)
	}()

	cmd, ok := d.registry.Lookup(name)
	if !ok {
		slog.Debug(fmt.Sprintf("%s - function not found: %q", logPrefix, name))
		out.Err = apperrors.NotFound(name)
		return out
	}

	slog.Debug(fmt.Sprintf("%s - invoking %s", logPrefix, name))
	result, err := d.run(ctx, name, cmd, input)
	if err != nil {
		out.Err = apperrors.From(err)
		return out
	}
	out.Result = result
	return out
}

func (d *Dispatcher) run(ctx context.Context, name string, cmd Command, input json.RawMessage) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - panic in function %s: %v\n%s", logPrefix, name, r, debug.Stack()))
			result = ""
			err = apperrors.Internal(fmt.Sprintf("Internal error in function '%s'", name), fmt.Errorf("panic: %v", r))
		}
	}()
	return cmd.Invoke(ctx, input)
}
