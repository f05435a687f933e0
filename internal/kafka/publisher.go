// Package kafka publishes finished calculation runs to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/rzzdr/quant-pricing-engine/pkg/models"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/logger"
)

// Message kinds carried in the "kind" header
const (
	KindResult = "result"
	KindRun    = "run"
)

// Config for the result publisher
type Config struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks string
	Compression  string
	WriteTimeout time.Duration
}

// MessageWriter is the part of *kafka.Writer the publisher uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ResultPublisher writes one message per instrument result, keyed by
// instrument id, followed by one run summary keyed by run id
type ResultPublisher struct {
	writer MessageWriter
	topic  string
	log    *logger.Logger
}

func parseAcks(s string) (kafka.RequiredAcks, error) {
	switch strings.ToLower(s) {
	case "", "all", "-1":
		return kafka.RequireAll, nil
	case "one", "1":
		return kafka.RequireOne, nil
	case "none", "0":
		return kafka.RequireNone, nil
	}
	return 0, errors.InvalidArgumentf("unknown required acks %q", s)
}

func parseCompression(s string) (kafka.Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	}
	return 0, errors.InvalidArgumentf("unknown compression %q", s)
}

// NewResultPublisher creates a publisher backed by a kafka-go writer
func NewResultPublisher(config Config) (*ResultPublisher, error) {
	if len(config.Brokers) == 0 {
		return nil, errors.InvalidArgumentf("kafka publisher needs at least one broker")
	}
	if config.Topic == "" {
		return nil, errors.InvalidArgumentf("kafka publisher needs a topic")
	}
	acks, err := parseAcks(config.RequiredAcks)
	if err != nil {
		return nil, err
	}
	compression, err := parseCompression(config.Compression)
	if err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		RequiredAcks: acks,
		Compression:  compression,
		WriteTimeout: config.WriteTimeout,
	}
	return NewResultPublisherWithWriter(writer, config.Topic), nil
}

// NewResultPublisherWithWriter wraps an existing writer
func NewResultPublisherWithWriter(writer MessageWriter, topic string) *ResultPublisher {
	return &ResultPublisher{
		writer: writer,
		topic:  topic,
		log:    logger.GetLogger("kafka.publisher"),
	}
}

func headers(kind, runID string) []kafka.Header {
	return []kafka.Header{
		{Key: "content-type", Value: []byte("application/json")},
		{Key: "kind", Value: []byte(kind)},
		{Key: "run-id", Value: []byte(runID)},
		{Key: "message-id", Value: []byte(uuid.NewString())},
	}
}

// Messages encodes a finished run the way Publish writes it
func Messages(event models.RunEvent) ([]kafka.Message, error) {
	runID := event.Run.ID
	msgs := make([]kafka.Message, 0, len(event.Results)+1)
	for _, res := range event.Results {
		value, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize result %s: %w", res.InstrumentID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(res.InstrumentID),
			Value:   value,
			Headers: headers(KindResult, runID),
		})
	}

	value, err := json.Marshal(event.Run)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize run %s: %w", runID, err)
	}
	msgs = append(msgs, kafka.Message{
		Key:     []byte(runID),
		Value:   value,
		Headers: headers(KindRun, runID),
	})
	return msgs, nil
}

// Publish writes the run's results and then its summary
func (p *ResultPublisher) Publish(ctx context.Context, event models.RunEvent) error {
	msgs, err := Messages(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.log.Errorf("Failed to publish run %s: %v", event.Run.ID, err)
		return errors.WithType(errors.Wrapf(err, "failed to publish run %s", event.Run.ID), errors.ErrorTypeNetwork)
	}
	p.log.Debugf("Published run %s with %d results to %s", event.Run.ID, len(event.Results), p.topic)
	return nil
}

// Close flushes pending messages and closes the writer
func (p *ResultPublisher) Close() error {
	p.log.Info("Closing publisher")
	return p.writer.Close()
}
