// Package kafkaevents implements [domain.EventSink] by publishing JSON
// events to a Kafka topic.
package kafkaevents

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

// Sink publishes controller events to Kafka. Emit is fire-and-forget: the
// write happens on its own goroutine and failures are logged, never
// surfaced to the controllers.
type Sink struct {
	Writer *kafka.Writer
	Log    logrus.FieldLogger
	// Timeout bounds one publish. Zero means 10s.
	Timeout time.Duration
}

// NewSink creates a sink writing to the given brokers and topic.
func NewSink(brokers []string, topic string, log logrus.FieldLogger) *Sink {
	return &Sink{
		Writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		Log: log,
	}
}

func (s *Sink) Emit(event domain.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.log().WithError(err).Error("marshal event")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
		defer cancel()

		err := s.Writer.WriteMessages(ctx, kafka.Message{
			Key:   s.key(event),
			Value: payload,
		})
		if err != nil {
			s.log().WithError(err).WithField("type", event.Type).Warn("publish event")
		}
	}()
}

// key partitions by release when present so one release's events stay
// ordered, otherwise by event type.
func (s *Sink) key(event domain.Event) []byte {
	if event.ReleaseID != "" {
		return []byte(event.ReleaseID)
	}
	return []byte(event.Type)
}

// Close flushes and closes the underlying writer.
func (s *Sink) Close() error {
	return s.Writer.Close()
}

func (s *Sink) log() logrus.FieldLogger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}

func (s *Sink) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 10 * time.Second
}
