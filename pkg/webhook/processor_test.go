package webhook

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/morezero/marketplace-gateway/pkg/apperrors"
	"github.com/morezero/marketplace-gateway/pkg/metrics"
)

const processorTestPrefix = "webhook:processor_test"

type recordingEffects struct {
	paid      []*Event
	deleted   []*Event
	unhandled []*Event
	err       error
	recordErr error
}

func (r *recordingEffects) PaymentSucceeded(_ context.Context, e *Event) error {
	r.paid = append(r.paid, e)
	return r.err
}

func (r *recordingEffects) SubscriptionDeleted(_ context.Context, e *Event) error {
	r.deleted = append(r.deleted, e)
	return r.err
}

func (r *recordingEffects) Unhandled(_ context.Context, e *Event) error {
	r.unhandled = append(r.unhandled, e)
	return r.recordErr
}

func newProcessor(effects Effects, recordUnhandled bool) *Processor {
	return NewProcessor(Config{Secret: testSecret, RecordUnhandled: recordUnhandled, Now: clock}, effects, nil)
}

func signed(payload string) ([]byte, string) {
	return []byte(payload), SignatureHeader(testSecret, fixedNow, []byte(payload))
}

func TestProcess_RecognizedTypes(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		wantAck   string
	}{
		{"payment succeeded", EventPaymentSucceeded, "Payment succeeded"},
		{"subscription deleted", EventSubscriptionDeleted, "Subscription deleted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			effects := &recordingEffects{}
			payload, header := signed(`{"id":"evt_1","type":"` + tt.eventType + `","created":1700000000,"data":{"object":{"id":"obj_1"}}}`)

			ack, err := newProcessor(effects, false).Process(context.Background(), payload, header)
			if err != nil {
				t.Fatalf("%s - unexpected error: %v", processorTestPrefix, err)
			}
			if ack != tt.wantAck {
				t.Errorf("%s - ack = %q, want %q", processorTestPrefix, ack, tt.wantAck)
			}
			if got := len(effects.paid) + len(effects.deleted); got != 1 {
				t.Errorf("%s - effects run = %d, want 1", processorTestPrefix, got)
			}
		})
	}
}

func TestProcess_BadSignatureRunsNoEffect(t *testing.T) {
	effects := &recordingEffects{}
	payload, _ := signed(`{"id":"evt_1","type":"invoice.payment_succeeded"}`)

	_, err := newProcessor(effects, true).Process(context.Background(), payload, "t=1700000000,v1=00ff")
	if apperrors.KindOf(err) != apperrors.KindVerification {
		t.Fatalf("%s - kind = %q, want verification", processorTestPrefix, apperrors.KindOf(err))
	}
	if msg := apperrors.Message(err); !strings.HasPrefix(msg, "Webhook error: ") {
		t.Errorf("%s - message = %q", processorTestPrefix, msg)
	}
	if len(effects.paid)+len(effects.deleted)+len(effects.unhandled) != 0 {
		t.Errorf("%s - no effect may run on a bad signature", processorTestPrefix)
	}
}

func TestProcess_UnhandledPolicy(t *testing.T) {
	payload, header := signed(`{"id":"evt_9","type":"charge.refunded"}`)

	silent := &recordingEffects{}
	ack, err := newProcessor(silent, false).Process(context.Background(), payload, header)
	if err != nil || ack != "Unhandled event type" {
		t.Fatalf("%s - ack=%q err=%v", processorTestPrefix, ack, err)
	}
	if len(silent.unhandled) != 0 {
		t.Errorf("%s - unhandled events must not be recorded by default", processorTestPrefix)
	}

	recording := &recordingEffects{recordErr: errors.New("broker down")}
	ack, err = newProcessor(recording, true).Process(context.Background(), payload, header)
	if err != nil || ack != "Unhandled event type" {
		t.Fatalf("%s - recording: ack=%q err=%v", processorTestPrefix, ack, err)
	}
	if len(recording.unhandled) != 1 || recording.unhandled[0].ID != "evt_9" {
		t.Errorf("%s - unhandled = %v", processorTestPrefix, recording.unhandled)
	}
}

// webhookCount reads webhook_events_total for one type and disposition.
func webhookCount(t *testing.T, m *metrics.Metrics, eventType, disposition string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("%s - gather: %v", processorTestPrefix, err)
	}
	for _, mf := range families {
		if !strings.HasSuffix(mf.GetName(), "webhook_events_total") {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["type"] == eventType && labels["disposition"] == disposition {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestProcess_UnhandledAlwaysCounted(t *testing.T) {
	payload, header := signed(`{"id":"evt_10","type":"charge.refunded"}`)

	for _, record := range []bool{false, true} {
		m := metrics.New()
		effects := &recordingEffects{}
		p := NewProcessor(Config{Secret: testSecret, RecordUnhandled: record, Now: clock}, effects, m)

		if _, err := p.Process(context.Background(), payload, header); err != nil {
			t.Fatalf("%s - record=%v: unexpected error: %v", processorTestPrefix, record, err)
		}
		if got := webhookCount(t, m, "charge.refunded", "unhandled"); got != 1 {
			t.Errorf("%s - record=%v: unhandled count = %v, want 1", processorTestPrefix, record, got)
		}
		wantRecorded := 0
		if record {
			wantRecorded = 1
		}
		if len(effects.unhandled) != wantRecorded {
			t.Errorf("%s - record=%v: recorded = %d, want %d", processorTestPrefix, record, len(effects.unhandled), wantRecorded)
		}
	}
}

func TestProcess_EffectFailureIsError(t *testing.T) {
	effects := &recordingEffects{err: errors.New("db unavailable")}
	payload, header := signed(`{"id":"evt_1","type":"invoice.payment_succeeded"}`)

	ack, err := newProcessor(effects, false).Process(context.Background(), payload, header)
	if err == nil {
		t.Fatalf("%s - expected error, got ack %q", processorTestPrefix, ack)
	}
	if apperrors.KindOf(err) != apperrors.KindInternal {
		t.Errorf("%s - kind = %q, want internal", processorTestPrefix, apperrors.KindOf(err))
	}
}

func TestProcess_InvalidEventPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `this is not json`},
		{"missing type", `{"id":"evt_1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, header := signed(tt.payload)
			_, err := newProcessor(&recordingEffects{}, false).Process(context.Background(), payload, header)
			if apperrors.KindOf(err) != apperrors.KindValidation {
				t.Errorf("%s - kind = %q, want validation", processorTestPrefix, apperrors.KindOf(err))
			}
		})
	}
}

func TestEvent_Decoders(t *testing.T) {
	e, err := parseEvent([]byte(`{"id":"evt_1","type":" invoice.payment_succeeded ","data":{"object":{
		"id":"in_1","customer":"cus_1","subscription":"sub_1",
		"subscription_details":{"metadata":{"user_id":"42"}},
		"status_transitions":{"paid_at":1700000100},
		"lines":{"data":[{"period":{"start":1700000000,"end":1702592000},"price":{"id":"price_pro"}}]}
	}}}`))
	if err != nil {
		t.Fatalf("%s - parseEvent: %v", processorTestPrefix, err)
	}
	if e.Type != EventPaymentSucceeded {
		t.Errorf("%s - Type = %q", processorTestPrefix, e.Type)
	}
	inv, err := e.Invoice()
	if err != nil {
		t.Fatalf("%s - Invoice: %v", processorTestPrefix, err)
	}
	if inv.Subscription != "sub_1" || inv.UserID() != "42" || inv.StatusTransitions.PaidAt != 1700000100 {
		t.Errorf("%s - invoice = %+v", processorTestPrefix, inv)
	}
	if len(inv.Lines.Data) != 1 || inv.Lines.Data[0].Price.ID != "price_pro" {
		t.Errorf("%s - lines = %+v", processorTestPrefix, inv.Lines.Data)
	}
}
