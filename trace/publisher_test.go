package observability_test

import (
	"context"
	"testing"

	observability "livetix/trace"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"
)

func TestTracingPublisherDecorator_propagates_trace(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() {
		_ = pubSub.Close()
	})

	messages, err := pubSub.Subscribe(context.Background(), "topic")
	require.NoError(t, err)

	ctx, span := otel.Tracer("").Start(context.Background(), "publish")
	msg := message.NewMessage(watermill.NewUUID(), []byte("{}"))
	msg.SetContext(ctx)

	pub := observability.TracingPublisherDecorator{Publisher: pubSub}
	require.NoError(t, pub.Publish("topic", msg))
	span.End()

	received := <-messages
	received.Ack()

	assert.Contains(t, received.Metadata.Get("traceparent"), span.SpanContext().TraceID().String())

	var handled bool
	handler := observability.TracingMiddleware(func(msg *message.Message) ([]*message.Message, error) {
		handled = true
		assert.Equal(t, span.SpanContext().TraceID(), oteltrace.SpanContextFromContext(msg.Context()).TraceID())
		return nil, nil
	})
	_, err = handler(received)
	require.NoError(t, err)
	assert.True(t, handled)
}
