// Package kafka adapts the wire-line feed to Kafka topics: a consumer that
// feeds lines into the ingest path and a producer used by tooling to
// publish lines at a live engine.
package kafka

import (
	"context"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// LineConsumer reads wire lines from a topic and hands each to a handler.
type LineConsumer struct {
	reader *kafkago.Reader
	log    *zap.Logger
}

func NewLineConsumer(brokers []string, topic, group string, log *zap.Logger) *LineConsumer {
	return &LineConsumer{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  group,
			MinBytes: 1,
			MaxBytes: 1 << 20,
		}),
		log: log.Named("kafka-consumer"),
	}
}

// Run consumes until the context is cancelled. Handler rejections are the
// ingest path's business (logged there); consumption continues regardless.
func (c *LineConsumer) Run(ctx context.Context, handle func(line string) bool) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		handle(string(msg.Value))
	}
}

func (c *LineConsumer) Close() error {
	return c.reader.Close()
}

// LineProducer publishes wire lines to the feed topic.
type LineProducer struct {
	writer *kafkago.Writer
}

func NewLineProducer(brokers []string, topic string) *LineProducer {
	return &LineProducer{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafkago.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *LineProducer) Send(ctx context.Context, line string) error {
	return p.writer.WriteMessages(ctx, kafkago.Message{Value: []byte(line)})
}

func (p *LineProducer) Close() error {
	return p.writer.Close()
}
