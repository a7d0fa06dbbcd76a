package entitystore

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gocloud.dev/pubsub"
)

// A Publisher publishes the Changed notifications of a store to a pubsub
// topic, gob-encoded, in the order the store produced them. Decode them with
// GobDecoder[Changed].
//
// Each message carries the "store" and "version" metadata, to enable key-based
// partitioning of the feeds of different stores.
type Publisher struct {
	store  *Store
	sink   *pubsub.Topic
	buffer int
}

// NewPublisher returns a Publisher of the changes of s to sink. Up to buffer
// notifications are queued while sending; once the queue is full, dispatches on
// s wait for the Publisher to catch up.
func NewPublisher(s *Store, sink *pubsub.Topic, buffer int) *Publisher {
	return &Publisher{store: s, sink: sink, buffer: max(buffer, 0)}
}

// Exec implements component.Procedure: it runs the Publisher for the lifetime
// of l, and fails l if a notification cannot be sent.
func (p *Publisher) Exec(l *component.L) {
	if err := p.Run(l.Context()); err != nil {
		l.Fatal(err)
	}
}

// Run publishes the changes of the store until ctx is done, when it returns
// nil. It returns an error, and stops publishing, as soon as a notification
// fails to send; the feed must never skip a change.
func (p *Publisher) Run(ctx context.Context) error {
	logger := component.Logger(ctx).With(slog.String("store", p.store.id.String()))

	queue := make(chan Changed, p.buffer)
	done := make(chan struct{})
	defer close(done)
	cancel := p.store.Subscribe(func(c Changed) {
		select {
		case queue <- c:
		case <-done:
		}
	})
	defer cancel()

	logger.Info("Publishing store changes")
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-queue:
			if err := p.publish(ctx, logger, c); err != nil {
				logger.Error("Couldn't publish Changed notification", slog.Any("error", err))
				return fmt.Errorf("publish: %w", err)
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, logger *slog.Logger, c Changed) error {
	ctx, span := tracer.Start(ctx, "Publisher.publish", trace.WithAttributes(
		attribute.Stringer("store.id", c.Store),
		attribute.Int64("snapshot.version", int64(c.After)),
	))
	defer span.End()

	logger.Debug("Encoding Changed message using gob...", slog.Uint64("version", c.After))
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(c); err != nil {
		err := fmt.Errorf("encode gob: %w", err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	msg := &pubsub.Message{
		Body: b.Bytes(),
		Metadata: map[string]string{
			"store":   c.Store.String(),
			"version": strconv.FormatUint(c.After, 10),
		},
	}
	if err := p.sink.Send(ctx, msg); err != nil {
		err := fmt.Errorf("send: %w", err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	logger.Debug("Changed message sent successfully", slog.Uint64("version", c.After))
	return nil
}
