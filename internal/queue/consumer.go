package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"retailapi/internal/logging"
	"retailapi/internal/metrics"
	"retailapi/internal/model"
	"retailapi/internal/service"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Creator turns a message payload into a stored entity.
type Creator interface {
	CreateFromMessage(ctx context.Context, kind model.Kind, payload []byte) (*model.Entity, error)
}

// Consumer feeds one kind's messages into a Creator.
// Failed messages are logged and dropped; every fetched offset is committed.
type Consumer struct {
	kind    model.Kind
	reader  MessageReader
	creator Creator
	log     *slog.Logger
	metrics *metrics.Registry
}

func NewConsumer(kind model.Kind, reader MessageReader, creator Creator, logger *slog.Logger, m *metrics.Registry) *Consumer {
	return &Consumer{
		kind:    kind,
		reader:  reader,
		creator: creator,
		log:     logging.Component(logger, "queue").With("kind", string(kind)),
		metrics: m,
	}
}

// Run processes messages until ctx is cancelled or the reader is closed.
// A crash between create and commit redelivers the message.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.log.Info("consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch %s message: %w", c.kind, err)
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				c.log.Info("consumer stopped")
				return nil
			}
			c.log.Error("commit failed", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	ctx, span := otel.Tracer("retailapi/queue").Start(ctx, "consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.Int("messaging.kafka.destination.partition", msg.Partition),
			attribute.Int64("messaging.kafka.message.offset", msg.Offset),
		),
	)
	defer span.End()

	e, err := c.creator.CreateFromMessage(ctx, c.kind, msg.Value)
	if err != nil {
		reason := service.Reason(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		c.metrics.MessageDropped(string(c.kind), reason)
		c.log.Error("message dropped",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"reason", reason,
			"error", err,
		)
		return
	}
	if e != nil {
		c.log.Info("entity created from message", "id", e.ID, "offset", msg.Offset)
	}
}

// RunAll runs every consumer until ctx is done or one fails, then closes their readers.
func RunAll(ctx context.Context, consumers ...*Consumer) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range consumers {
		c := c
		g.Go(func() error {
			defer c.reader.Close()
			return c.Run(gctx)
		})
	}
	return g.Wait()
}
