package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Renal37/fulfillment-connector/internal/logger"
	"github.com/Renal37/fulfillment-connector/internal/models"
)

// EventSink receives lifecycle events. Sink failures are logged, never
// propagated: event delivery must not fail the pipeline step that emitted it.
type EventSink interface {
	Deliver(ctx context.Context, event models.Event) error
}

// EventBus fans lifecycle events out to all configured sinks.
type EventBus struct {
	sinks []EventSink
}

func NewEventBus(sinks ...EventSink) *EventBus {
	return &EventBus{sinks: sinks}
}

func (b *EventBus) AddSink(sink EventSink) {
	b.sinks = append(b.sinks, sink)
}

// Publish delivers the event to every sink.
func (b *EventBus) Publish(ctx context.Context, event models.Event) {
	for _, sink := range b.sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			logger.Log.Error("event sink failed",
				zap.String("orderID", event.OrderID),
				zap.String("eventType", string(event.Type)),
				zap.Error(err),
			)
		}
	}
}

// LogSink writes every lifecycle event into the connector log.
type LogSink struct{}

func (LogSink) Deliver(_ context.Context, event models.Event) error {
	fields := []zap.Field{
		zap.String("eventID", event.ID.String()),
		zap.String("orderID", event.OrderID),
		zap.String("eventType", string(event.Type)),
		zap.Time("at", event.At),
	}
	if event.Error != nil {
		fields = append(fields,
			zap.String("errorCode", event.Error.Code),
			zap.String("errorMessage", event.Error.Message),
			zap.Bool("retryable", event.Error.Retryable),
		)
	}

	logger.Log.Info("lifecycle event", fields...)
	return nil
}

// WebhookSink POSTs events as JSON to the configured endpoint.
type WebhookSink struct {
	url        string
	httpClient *http.Client
}

func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *WebhookSink) Deliver(ctx context.Context, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook endpoint returned status %d", res.StatusCode)
	}

	return nil
}

// NATSSink publishes events to connector.events.<type> subjects.
type NATSSink struct {
	conn *nats.Conn
}

func NewNATSSink(url string) (*NATSSink, error) {
	conn, err := nats.Connect(url, nats.Name("fulfillment-connector"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSSink{conn: conn}, nil
}

func (s *NATSSink) Deliver(_ context.Context, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := "connector.events." + string(event.Type)
	if err := s.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	return nil
}

func (s *NATSSink) Close() {
	s.conn.Close()
}
