package worker

import (
	"context"
	"docuvault/config"
	"docuvault/internal/common"
	"docuvault/internal/mq"
	"docuvault/internal/reclaim"
	"docuvault/internal/task"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type dlqMessage struct {
	OwnerUserID uint64    `json:"owner_user_id"`
	Attempt     int       `json:"attempt"`
	Error       string    `json:"error"`
	FailedAt    time.Time `json:"failed_at"`
}

// Processor runs one reclamation.
type Processor interface {
	Reclaim(ctx context.Context, ownerUserID uint64) (reclaim.Result, error)
}

// RetryPublisher is the part of the MQ client used for retries and the DLQ.
type RetryPublisher interface {
	PublishRetry(ctx context.Context, body []byte, delay time.Duration) error
	PublishDLQ(ctx context.Context, body []byte) error
}

type Options struct {
	Prefetch    int
	Concurrency int
	Rate        float64
	Burst       int
	RetryMax    int
	RetryDelays []time.Duration
	Timeout     time.Duration
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Prefetch:    cfg.RabbitMQPrefetch,
		Concurrency: cfg.ReclaimWorkerConcurrency,
		Rate:        cfg.ReclaimRate,
		Burst:       cfg.ReclaimBurst,
		RetryMax:    cfg.ReclaimRetryMax,
		RetryDelays: cfg.ReclaimRetryDelays,
		Timeout:     cfg.ReclaimTimeout,
	}
}

func newLimiter(opts Options) *rate.Limiter {
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	if opts.Rate <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(opts.Rate), burst)
}

// RunReclaimWorker consumes reclaim messages until ctx is cancelled.
func RunReclaimWorker(ctx context.Context, client *mq.Client, proc Processor, opts Options, log logrus.FieldLogger) error {
	if err := client.DeclareTopology(); err != nil {
		return err
	}

	prefetch := opts.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := client.Channel.Qos(prefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := client.Channel.Consume(
		mq.QueueReclaim,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	h := &messageHandler{proc: proc, pub: client, limiter: newLimiter(opts), opts: opts, log: log}

	for {
		select {
		case <-ctx.Done():
			// wait for in-flight messages before returning
			for i := 0; i < concurrency; i++ {
				sem <- struct{}{}
			}
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("reclaim worker: delivery channel closed")
			}
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				h.handle(ctx, d)
			}(delivery)
		}
	}
}

type messageHandler struct {
	proc    Processor
	pub     RetryPublisher
	limiter *rate.Limiter
	opts    Options
	log     logrus.FieldLogger
}

func (h *messageHandler) handle(ctx context.Context, delivery amqp.Delivery) {
	msg, err := task.DecodeReclaimMessage(delivery.Body)
	if err != nil {
		h.log.WithError(err).Warn("reclaim worker: dropping invalid message")
		_ = delivery.Ack(false)
		return
	}
	log := h.log.WithFields(logrus.Fields{"owner_user_id": msg.OwnerUserID, "attempt": msg.Attempt})

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			_ = delivery.Nack(false, true)
			return
		}
	}

	runCtx := ctx
	if h.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, h.opts.Timeout)
		defer cancel()
	}

	if _, err := h.proc.Reclaim(runCtx, msg.OwnerUserID); err != nil {
		if ctx.Err() != nil {
			// shutting down; let the broker redeliver
			_ = delivery.Nack(false, true)
			return
		}
		if shouldRetry(err) {
			if err := h.scheduleRetry(ctx, msg, err); err != nil {
				log.WithError(err).Error("reclaim worker: retry schedule failed")
				_ = delivery.Nack(false, true)
				return
			}
		} else {
			h.markFailed(ctx, msg, err)
		}
	}

	_ = delivery.Ack(false)
}

// shouldRetry treats everything but malformed input as transient: a busy
// owner lock, an unreachable proxy and database hiccups all clear up.
func shouldRetry(err error) bool {
	return !errors.Is(err, task.ErrInvalidMessage) && !errors.Is(err, common.ErrInvalidArgument)
}

func (h *messageHandler) scheduleRetry(ctx context.Context, msg task.ReclaimMessage, procErr error) error {
	maxRetry := h.opts.RetryMax
	if maxRetry < 0 {
		maxRetry = 0
	}
	nextAttempt := msg.Attempt + 1
	if maxRetry == 0 || nextAttempt > maxRetry {
		h.markFailed(ctx, msg, procErr)
		return nil
	}

	delay := pickRetryDelay(nextAttempt, h.opts.RetryDelays)
	h.log.WithFields(logrus.Fields{
		"owner_user_id": msg.OwnerUserID,
		"attempt":       nextAttempt,
		"delay":         delay.String(),
	}).WithError(procErr).Info("reclaim worker: retry scheduled")

	msg.Attempt = nextAttempt
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.pub.PublishRetry(ctx, body, delay)
}

func (h *messageHandler) markFailed(ctx context.Context, msg task.ReclaimMessage, procErr error) {
	h.log.WithField("owner_user_id", msg.OwnerUserID).WithError(procErr).Error("reclaim worker: giving up")
	body, err := json.Marshal(dlqMessage{
		OwnerUserID: msg.OwnerUserID,
		Attempt:     msg.Attempt,
		Error:       procErr.Error(),
		FailedAt:    time.Now(),
	})
	if err != nil {
		return
	}
	if err := h.pub.PublishDLQ(ctx, body); err != nil {
		h.log.WithError(err).Warn("reclaim worker: dlq publish failed")
	}
}

func pickRetryDelay(attempt int, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	index := attempt - 1
	if index < 0 {
		index = 0
	}
	if index >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[index]
}
