package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/i474232898/location-data-aggregation/internal/location"
	"github.com/i474232898/location-data-aggregation/internal/logging"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs, so tests
// can substitute a fake.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Subscriber is a snapshot feed.
type Subscriber interface {
	Subscribe() (<-chan location.Snapshot, func())
}

// Event is the payload written for every snapshot.
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Snapshot  location.Snapshot `json:"snapshot"`
}

// Publisher writes snapshots to a Kafka topic as they are replaced.
type Publisher struct {
	writer MessageWriter
	source Subscriber
	log    logging.Logger
}

// NewKafkaWriter builds a synchronous writer for topic on brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

// NewPublisher creates a Publisher writing snapshots from source to writer.
func NewPublisher(writer MessageWriter, source Subscriber, log logging.Logger) *Publisher {
	return &Publisher{writer: writer, source: source, log: logging.OrNoop(log)}
}

// Run publishes the current snapshot and every replacement until ctx is
// cancelled, then closes the writer. A failed write is logged and skipped.
func (p *Publisher) Run(ctx context.Context) {
	updates, cancel := p.source.Subscribe()
	defer cancel()
	defer func() {
		if err := p.writer.Close(); err != nil {
			p.log.Warn(context.Background(), "kafka: close writer", logging.Err(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := p.publish(ctx, snap); err != nil && ctx.Err() == nil {
				p.log.Error(ctx, "kafka: publish snapshot", logging.Err(err))
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, snap location.Snapshot) error {
	ev := Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Snapshot:  snap,
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte("snapshot"),
		Value: value,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(ev.ID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	p.log.Debug(ctx, "kafka: snapshot published", logging.String("event_id", ev.ID))
	return nil
}
