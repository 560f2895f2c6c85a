package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/edital-watch/internal/core/domain"
	"github.com/kirillkom/edital-watch/internal/infrastructure/resilience"
)

const (
	publishOperation   = "nats.publish"
	subscribeOperation = "nats.subscribe"
)

// Failures the connection recovers from on its own. A closed connection only
// comes back when the bus is rebuilt, so it is not retried here.
var transientErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
}

// Failures caused by the event or the subscription itself.
var rejectedErrors = []error{
	nats.ErrMaxPayload,
	nats.ErrBadSubject,
	nats.ErrBadQueueName,
	nats.ErrBadSubscription,
	nats.ErrInvalidMsg,
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func classifyBusError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case isAny(err, rejectedErrors):
		// Retrying the same event cannot help and must not trip the breaker.
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), isAny(err, transientErrors):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// busError attaches the failing operation and job to err and maps it onto a
// domain error kind.
func busError(operation, jobID string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrInvalidInput) {
		return err
	}
	op := operation
	if jobID != "" {
		op = fmt.Sprintf("%s job %s", operation, jobID)
	}
	switch {
	case isAny(err, rejectedErrors):
		return domain.WrapError(domain.ErrInvalidInput, op, err)
	case resilience.IsCircuitOpen(err), isAny(err, transientErrors), errors.Is(err, nats.ErrConnectionClosed):
		return domain.WrapError(domain.ErrTemporary, op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// asyncErrorHandler reports failures nats.go only delivers asynchronously,
// most notably a tail that cannot keep up with the relayed statuses.
func (b *StatusBus) asyncErrorHandler(_ *nats.Conn, sub *nats.Subscription, err error) {
	attrs := []any{"error", err}
	if sub != nil {
		attrs = append(attrs, "subject", sub.Subject)
		if dropped, dropErr := sub.Dropped(); dropErr == nil {
			attrs = append(attrs, "dropped_events", dropped)
		}
	}
	if errors.Is(err, nats.ErrSlowConsumer) {
		b.logger.Warn("status_subscription_slow_consumer", attrs...)
		return
	}
	b.logger.Error("status_bus_async_error", attrs...)
}
