// Package adapter is the single path every transport takes into the dispatcher: it
// normalizes invocation payloads, runs the dispatch and records the activation.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/morezero/marketplace-gateway/pkg/apperrors"
	"github.com/morezero/marketplace-gateway/pkg/dispatcher"
	"github.com/morezero/marketplace-gateway/pkg/metrics"
)

const logPrefix = "adapter:adapter"

// UnknownFunction is dispatched when a payload names no function.
const UnknownFunction = "unknown"

// Transport labels.
const (
	TransportHTTP  = "http"
	TransportEvent = "event"
	TransportCLI   = "cli"
)

// ErrInvalidPayload is returned when the invocation body is not JSON.
var ErrInvalidPayload = errors.New("invalid invocation payload")

var emptyObject = json.RawMessage(`{}`)

// Invocation is a normalized request to run one command.
type Invocation struct {
	FunctionName string          `json:"function_name"`
	Input        json.RawMessage `json:"input"`
}

// DecodeInvocation parses an invocation payload. A missing, empty or non-string
// function_name becomes UnknownFunction; a missing or null input becomes {}. A body that
// is valid JSON but not an object is treated as naming nothing.
func DecodeInvocation(data []byte) (Invocation, error) {
	inv := Invocation{FunctionName: UnknownFunction, Input: emptyObject}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return inv, ErrInvalidPayload
	}
	if trimmed[0] != '{' {
		return inv, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return inv, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if raw, ok := fields["function_name"]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil && name != "" {
			inv.FunctionName = name
		}
	}
	if raw, ok := fields["input"]; ok {
		if v := bytes.TrimSpace(raw); len(v) > 0 && !bytes.Equal(v, []byte("null")) {
			inv.Input = v
		}
	}
	return inv, nil
}

// Adapter binds a dispatcher to one transport.
type Adapter struct {
	dispatcher *dispatcher.Dispatcher
	metrics    *metrics.Metrics
	transport  string
}

// New creates an Adapter. m may be nil.
func New(d *dispatcher.Dispatcher, m *metrics.Metrics, transport string) *Adapter {
	return &Adapter{dispatcher: d, metrics: m, transport: transport}
}

// Transport returns the transport label.
func (a *Adapter) Transport() string {
	return a.transport
}

// Invoke runs one activation and returns its envelope.
func (a *Adapter) Invoke(ctx context.Context, inv Invocation) dispatcher.Envelope {
	activationID := uuid.NewString()
	out := a.dispatcher.Invoke(ctx, inv.FunctionName, inv.Input)

	kind := out.Kind()
	label := metrics.UnregisteredFunction
	if kind != apperrors.KindNotFound {
		label = inv.FunctionName
	}
	a.metrics.RecordDispatch(a.transport, label, string(kind), out.Duration)

	if out.Ok() {
		slog.Debug(fmt.Sprintf("%s - activation=%s transport=%s function=%s ok duration=%s",
			logPrefix, activationID, a.transport, inv.FunctionName, out.Duration))
	} else {
		slog.Warn(fmt.Sprintf("%s - activation=%s transport=%s function=%s kind=%s error=%q",
			logPrefix, activationID, a.transport, inv.FunctionName, kind, apperrors.Message(out.Err)))
	}
	return out.Envelope()
}

// Handle decodes data and runs it. A decode failure returns ErrInvalidPayload and a
// failure envelope describing it; the command is not run.
func (a *Adapter) Handle(ctx context.Context, data []byte) (dispatcher.Envelope, error) {
	inv, err := DecodeInvocation(data)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - transport=%s rejected payload: %v", logPrefix, a.transport, err))
		return dispatcher.Failure("Invalid invocation payload"), err
	}
	return a.Invoke(ctx, inv), nil
}
