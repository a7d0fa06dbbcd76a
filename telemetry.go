package entitystore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/go-digitaltwin/go-entitystore")
var meter = otel.Meter("github.com/go-digitaltwin/go-entitystore")

const (
	// storeIDAttr is the attribute key used to associate each record with the
	// store instance that produced it. This enables both collective analysis of
	// every store in a process and individual analysis per store.
	storeIDAttr = "entitystore.id"
)

var (
	// dispatchDuration measures the duration of a single successful dispatch,
	// including the notification of every listener.
	//
	// Each record is associated with the storeIDAttr.
	dispatchDuration metric.Float64Histogram
	// dispatchFailures measures the number of dispatches discarded because one of
	// their patches failed.
	//
	// Each record is associated with the storeIDAttr.
	dispatchFailures metric.Int64Counter
	// recomputations measures the number of times a computed value was evaluated.
	recomputations metric.Int64Counter
	// bridgeEvents measures the number of events delivered by bridged sources,
	// including the ones dropped after teardown.
	bridgeEvents metric.Int64Counter
)

func init() {
	var err error
	dispatchDuration, err = meter.Float64Histogram(
		"store.dispatch.duration",
		metric.WithDescription("The duration of a single successful dispatch, including the notification of every listener."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic("entitystore: failed to init 'store.dispatch.duration' instrument")
	}

	dispatchFailures, err = meter.Int64Counter(
		"store.dispatch.failures",
		metric.WithDescription("The number of dispatches that have failed and were discarded."),
	)
	if err != nil {
		panic("entitystore: failed to init 'store.dispatch.failures' instrument")
	}

	recomputations, err = meter.Int64Counter(
		"store.computed.evaluations",
		metric.WithDescription("The number of times a computed value was evaluated."),
	)
	if err != nil {
		panic("entitystore: failed to init 'store.computed.evaluations' instrument")
	}

	bridgeEvents, err = meter.Int64Counter(
		"store.bridge.events",
		metric.WithDescription("The number of events delivered by bridged sources."),
	)
	if err != nil {
		panic("entitystore: failed to init 'store.bridge.events' instrument")
	}
}

// measureDispatch records the outcome of a dispatch: its duration if it
// succeeded, or a failure otherwise.
//
// According to [metric] documentation, [metric.WithAttributeSet] should be used
// instead of [metric.WithAttributes] for performance optimization.
func measureDispatch(ctx context.Context, attrs attribute.Set, succeeded bool, d time.Duration) {
	if succeeded {
		// We use floating-point division here for higher precision (instead of the
		// Millisecond method).
		duration := float64(d) / float64(time.Millisecond)
		dispatchDuration.Record(ctx, duration, metric.WithAttributeSet(attrs))
	} else {
		dispatchFailures.Add(ctx, 1, metric.WithAttributeSet(attrs))
	}
}
