package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/edital-watch/internal/core/domain"
	"github.com/kirillkom/edital-watch/internal/core/ports"
	"github.com/kirillkom/edital-watch/internal/infrastructure/resilience"
)

const DefaultSubject = "edital.jobs.status"

// StatusBus relays job status events over a NATS subject.
type StatusBus struct {
	conn     *nats.Conn
	subject  string
	queue    string
	executor *resilience.Executor
	logger   *slog.Logger
}

var (
	_ ports.StatusPublisher  = (*StatusBus)(nil)
	_ ports.StatusSubscriber = (*StatusBus)(nil)
)

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	// QueueGroup load-balances subscribers; empty means every subscriber
	// receives every event.
	QueueGroup         string
	ResilienceExecutor *resilience.Executor
	Logger             *slog.Logger
}

func New(url, subject string) (*StatusBus, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*StatusBus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	if subject == "" {
		subject = DefaultSubject
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bus := &StatusBus{
		subject:  subject,
		queue:    options.QueueGroup,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}

	conn, err := nats.Connect(
		url,
		nats.Name("edital-watch"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(bus.asyncErrorHandler),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	bus.conn = conn
	return bus, nil
}

func (b *StatusBus) Subject() string {
	return b.subject
}

func (b *StatusBus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *StatusBus) PublishStatus(ctx context.Context, event domain.StatusEvent) error {
	payload, err := encodeStatusEvent(event)
	if err != nil {
		return err
	}

	err = b.execute(ctx, publishOperation, func(context.Context) error {
		return b.conn.Publish(b.subject, payload)
	})
	return busError("publish status event", event.JobID, err)
}

func (b *StatusBus) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	if b.executor == nil {
		return call(ctx)
	}
	return b.executor.Execute(ctx, operation, call, classifyBusError)
}

// SubscribeStatus blocks until ctx is done, then drains the subscription.
func (b *StatusBus) SubscribeStatus(ctx context.Context, handler func(context.Context, domain.StatusEvent) error) error {
	onMsg := func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		event, err := decodeStatusEvent(msg.Data)
		if err != nil {
			b.logger.Warn("status_event_decode_failed", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event); err != nil {
			b.logger.Error("status_event_handler_failed", "job_id", event.JobID, "error", err)
		}
	}

	var sub *nats.Subscription
	err := b.execute(ctx, subscribeOperation, func(context.Context) error {
		var err error
		if b.queue != "" {
			sub, err = b.conn.QueueSubscribe(b.subject, b.queue, onMsg)
		} else {
			sub, err = b.conn.Subscribe(b.subject, onMsg)
		}
		if err != nil {
			return err
		}
		if err := b.conn.Flush(); err != nil {
			_ = sub.Unsubscribe()
			return err
		}
		return nil
	})
	if err != nil {
		return busError("subscribe status events", "", err)
	}
	b.logger.Info("status_subscription_started", "subject", b.subject, "queue_group", b.queue)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return busError("drain status subscription", "", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return busError("flush status subscription", "", err)
	}
	return nil
}

func encodeStatusEvent(event domain.StatusEvent) ([]byte, error) {
	if event.JobID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode status event", fmt.Errorf("job id is required"))
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode status event: %w", err)
	}
	return payload, nil
}

func decodeStatusEvent(data []byte) (domain.StatusEvent, error) {
	var event domain.StatusEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.StatusEvent{}, domain.WrapError(domain.ErrInvalidPayload, "decode status event", err)
	}
	if event.JobID == "" {
		return domain.StatusEvent{}, domain.WrapError(domain.ErrInvalidPayload, "decode status event", fmt.Errorf("missing job id"))
	}
	return event, nil
}
