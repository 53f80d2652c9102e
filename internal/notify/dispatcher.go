package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/hireme/internal/metrics"
	"github.com/mmeshcher/hireme/internal/model"
)

// Store описывает операции исходящей очереди, нужные диспетчеру.
type Store interface {
	ClaimNotifications(ctx context.Context, limit int, now, leaseUntil time.Time) ([]model.Notification, error)
	MarkNotificationSent(ctx context.Context, id int64, now time.Time) error
	MarkNotificationFailed(ctx context.Context, id int64, sendErr string, retryAt *time.Time) error
}

const (
	defaultBatchSize   = 20
	defaultMaxAttempts = 5
	defaultBackoff     = 30 * time.Second
	defaultLease       = 5 * time.Minute
)

// Dispatcher периодически забирает письма из очереди и отправляет их.
// Неудачные отправки повторяются с экспоненциальной задержкой.
type Dispatcher struct {
	store       Store
	mailer      Mailer
	logger      *zap.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
	backoff     time.Duration
	lease       time.Duration
	now         func() time.Time
}

// NewDispatcher создаёт диспетчер исходящей очереди.
func NewDispatcher(store Store, mailer Mailer, logger *zap.Logger, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Dispatcher{
		store:       store,
		mailer:      mailer,
		logger:      logger,
		interval:    interval,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		lease:       defaultLease,
		now:         time.Now,
	}
}

// Start обрабатывает очередь до отмены контекста.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.processBatch(ctx)
		}
	}
}

// retryDelay возвращает задержку перед следующей попыткой: backoff·2^(attempts-1).
func (d *Dispatcher) retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return d.backoff << (attempts - 1)
}

func (d *Dispatcher) processBatch(ctx context.Context) int {
	now := d.now()

	batch, err := d.store.ClaimNotifications(ctx, d.batchSize, now, now.Add(d.lease))
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Error("claim notifications", zap.Error(err))
		}
		return 0
	}

	for _, n := range batch {
		if ctx.Err() != nil {
			return 0
		}
		d.deliver(ctx, n)
	}
	return len(batch)
}

func (d *Dispatcher) deliver(ctx context.Context, n model.Notification) {
	sendCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	err := d.mailer.Send(sendCtx, Message{To: n.Recipient, Subject: n.Subject, Body: n.Body})
	if err == nil {
		metrics.NotificationsTotal.WithLabelValues(n.Kind, "sent").Inc()
		if err := d.store.MarkNotificationSent(ctx, n.ID, d.now()); err != nil {
			d.logger.Error("mark notification sent", zap.Int64("id", n.ID), zap.Error(err))
		}
		return
	}

	fields := []zap.Field{
		zap.Int64("id", n.ID),
		zap.String("kind", n.Kind),
		zap.Int("attempts", n.Attempts),
		zap.Error(err),
	}

	var retryAt *time.Time
	if n.Attempts < d.maxAttempts {
		t := d.now().Add(d.retryDelay(n.Attempts))
		retryAt = &t
		metrics.NotificationsTotal.WithLabelValues(n.Kind, "retry").Inc()
		d.logger.Warn("notification delivery failed, will retry", append(fields, zap.Time("retry_at", t))...)
	} else {
		metrics.NotificationsTotal.WithLabelValues(n.Kind, "failed").Inc()
		d.logger.Error("notification delivery failed permanently", fields...)
	}

	if err := d.store.MarkNotificationFailed(ctx, n.ID, err.Error(), retryAt); err != nil {
		d.logger.Error("mark notification failed", zap.Int64("id", n.ID), zap.Error(err))
	}
}
