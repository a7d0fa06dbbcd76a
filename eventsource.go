package entitystore

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"

	"github.com/danielorbach/go-component"
	"gocloud.dev/pubsub"
)

// A Decoder decodes the body of a pubsub message into a value of type V.
type Decoder[V any] func(p []byte) (V, error)

// GobDecoder returns a Decoder of gob-encoded values of type V.
func GobDecoder[V any]() Decoder[V] {
	return func(p []byte) (V, error) {
		var v V
		err := gob.NewDecoder(bytes.NewReader(p)).Decode(&v)
		return v, err
	}
}

// SubscriptionSource returns an EventSource delivering the messages received
// from sub, decoded with decode. Messages that fail to decode are delivered as
// failures, and receiving continues; a failure to receive is delivered once, and
// ends the delivery, as the subscription cannot be used afterwards.
//
// Messages are acknowledged once received, even if they fail to decode.
// Releasing the subscription of the source does not shut sub down; its owner
// remains responsible for it.
func SubscriptionSource[V any](sub *pubsub.Subscription, decode Decoder[V]) EventSource[V] {
	return SourceFunc[V](func(ctx context.Context, emit func(Event[V])) (func(), error) {
		ctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			receive(ctx, sub, decode, emit)
		}()
		return func() {
			cancel()
			<-done
		}, nil
	})
}

func receive[V any](ctx context.Context, sub *pubsub.Subscription, decode Decoder[V], emit func(Event[V])) {
	logger := component.Logger(ctx)
	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
				// we're shutting down
				return
			}
			// Based on the pubsub Receive function documentation, if Receive returns an
			// error, it is either a non-retryable error from the underlying driver or
			// indicates that the provided context is Done.
			logger.Error("Couldn't receive messages from the pubsub service", slog.Any("error", err))
			emit(Failure[V](fmt.Errorf("receive: %w", err)))
			return
		}
		// always ack, even if we fail to decode.
		// otherwise, we might get stuck processing
		// the same failed message
		msg.Ack()

		v, err := decode(msg.Body)
		if err != nil {
			emit(Failure[V](fmt.Errorf("decode message %s: %w", msg.LoggableID, err)))
			continue
		}
		emit(Value(v))
	}
}
