package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/marketplace-gateway/pkg/adapter"
	"github.com/morezero/marketplace-gateway/pkg/commsutil"
	"github.com/morezero/marketplace-gateway/pkg/dispatcher"
	"github.com/morezero/marketplace-gateway/pkg/metrics"
)

const eventLogPrefix = "server:event"

// EventAdapter serves invocations arriving on a COMMS subject. Each message is one
// activation; the envelope is sent as the reply.
type EventAdapter struct {
	nc      *comms.Conn
	subject string
	timeout time.Duration
	adapter *adapter.Adapter
	sub     *comms.Subscription
}

// EventOptions configures an EventAdapter.
type EventOptions struct {
	Subject string
	// RequestTimeout bounds each activation; non-positive means no deadline.
	RequestTimeout time.Duration
}

// NewEventAdapter creates an EventAdapter. m may be nil.
func NewEventAdapter(nc *comms.Conn, d *dispatcher.Dispatcher, m *metrics.Metrics, opts EventOptions) *EventAdapter {
	subject := opts.Subject
	if subject == "" {
		subject = commsutil.SubjectInvoke
	}
	return &EventAdapter{
		nc:      nc,
		subject: subject,
		timeout: opts.RequestTimeout,
		adapter: adapter.New(d, m, adapter.TransportEvent),
	}
}

// Subject returns the subscribed subject.
func (e *EventAdapter) Subject() string {
	return e.subject
}

// Start subscribes to the invocation subject. Activations derive their context from ctx.
func (e *EventAdapter) Start(ctx context.Context) error {
	sub, err := e.nc.Subscribe(e.subject, func(msg *comms.Msg) {
		data := e.Handle(ctx, msg.Data)
		if msg.Reply == "" {
			slog.Debug(fmt.Sprintf("%s - message on %s has no reply subject; envelope dropped", eventLogPrefix, msg.Subject))
			return
		}
		if err := msg.Respond(data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to respond on %s: %v", eventLogPrefix, msg.Reply, err))
		}
	})
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe to %s: %w", eventLogPrefix, e.subject, err)
	}
	e.sub = sub
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", eventLogPrefix, e.subject))
	return nil
}

// Handle runs one activation for data and returns the encoded envelope.
func (e *EventAdapter) Handle(ctx context.Context, data []byte) []byte {
	reqCtx, cancel := e.activationContext(ctx)
	defer cancel()

	env, _ := e.adapter.Handle(reqCtx, data)
	out, err := commsutil.EncodePayload(env)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode envelope: %v", eventLogPrefix, err))
		out = []byte(`{"result":null,"error":"Internal error"}`)
	}
	return out
}

func (e *EventAdapter) activationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return context.WithCancel(ctx)
}

// Stop unsubscribes. In-flight activations finish when the connection drains.
func (e *EventAdapter) Stop() error {
	if e.sub == nil {
		return nil
	}
	if err := e.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("%s - failed to unsubscribe from %s: %w", eventLogPrefix, e.subject, err)
	}
	e.sub = nil
	return nil
}
