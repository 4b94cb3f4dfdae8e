package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/taskqueue/internal/model"
)

var propagator = propagation.TraceContext{}

// NATSBridge mirrors every published Event onto a NATS subject, carrying
// W3C trace context in the message headers so downstream consumers can
// continue the trace. Grounded on libs/go/core/natsctx/natsctx.go's
// Publish/Subscribe helpers.
type NATSBridge struct {
	nc      *nats.Conn
	subject string
}

// NewNATSBridge wraps an already-connected *nats.Conn. Connection
// management (URL, auth, reconnect policy) is the caller's concern —
// this type only knows how to publish Events.
func NewNATSBridge(nc *nats.Conn, subject string) *NATSBridge {
	return &NATSBridge{nc: nc, subject: subject}
}

// Publish injects the current trace context into message headers and
// publishes ev as JSON.
func (b *NATSBridge) Publish(ev model.Event) error {
	return b.PublishContext(context.Background(), ev)
}

// PublishContext is like Publish but propagates ctx's trace context,
// matching natsctx.Publish's signature.
func (b *NATSBridge) PublishContext(ctx context.Context, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	msg := &nats.Msg{Subject: b.subject, Data: data, Header: hdr}
	return b.nc.PublishMsg(msg)
}

// SubscribeExternal subscribes to subject, extracting trace context from
// each message and starting a consumer span before invoking handler —
// for bridging events published by another process back into this one.
func SubscribeExternal(nc *nats.Conn, subject string, handler func(context.Context, model.Event)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(m *nats.Msg) {
		ctx := propagator.Extract(context.Background(), propagation.HeaderCarrier(m.Header))
		tracer := otel.Tracer("taskqueue-eventbus")
		ctx, span := tracer.Start(ctx, "eventbus.consume", trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()

		var ev model.Event
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			span.RecordError(err)
			return
		}
		handler(ctx, ev)
	})
}
