package worker

import (
	"context"
	"docuvault/internal/common"
	"docuvault/internal/logging"
	"docuvault/internal/reclaim"
	"docuvault/internal/task"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackRecorder struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue bool
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	return a.Nack(0, false, requeue)
}

type fakePublisher struct {
	retries []retried
	dlq     [][]byte
	err     error
}

type retried struct {
	body  []byte
	delay time.Duration
}

func (p *fakePublisher) PublishRetry(_ context.Context, body []byte, delay time.Duration) error {
	if p.err != nil {
		return p.err
	}
	p.retries = append(p.retries, retried{body: body, delay: delay})
	return nil
}

func (p *fakePublisher) PublishDLQ(_ context.Context, body []byte) error {
	p.dlq = append(p.dlq, body)
	return nil
}

type fakeProcessor struct {
	owners []uint64
	err    error
}

func (f *fakeProcessor) Reclaim(_ context.Context, owner uint64) (reclaim.Result, error) {
	f.owners = append(f.owners, owner)
	return reclaim.Result{}, f.err
}

func newTestHandler(proc Processor, pub RetryPublisher) *messageHandler {
	return &messageHandler{
		proc:    proc,
		pub:     pub,
		limiter: newLimiter(Options{}),
		opts: Options{
			RetryMax:    2,
			RetryDelays: []time.Duration{time.Second, 5 * time.Second},
			Timeout:     time.Second,
		},
		log: logging.Discard(),
	}
}

func delivery(t *testing.T, ack amqp.Acknowledger, msg task.ReclaimMessage) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}
}

func TestHandleSuccessAcks(t *testing.T) {
	proc := &fakeProcessor{}
	pub := &fakePublisher{}
	ack := &ackRecorder{}

	newTestHandler(proc, pub).handle(context.Background(), delivery(t, ack, task.ReclaimMessage{OwnerUserID: 42}))

	assert.Equal(t, []uint64{42}, proc.owners)
	assert.Equal(t, 1, ack.acks)
	assert.Empty(t, pub.retries)
	assert.Empty(t, pub.dlq)
}

func TestHandleInvalidMessageIsDropped(t *testing.T) {
	proc := &fakeProcessor{}
	ack := &ackRecorder{}

	newTestHandler(proc, &fakePublisher{}).handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("{")})

	assert.Empty(t, proc.owners)
	assert.Equal(t, 1, ack.acks)
}

func TestHandleBusyIsRetriedThenDeadLettered(t *testing.T) {
	proc := &fakeProcessor{err: reclaim.ErrReclaimBusy}
	pub := &fakePublisher{}
	h := newTestHandler(proc, pub)

	ack := &ackRecorder{}
	h.handle(context.Background(), delivery(t, ack, task.ReclaimMessage{OwnerUserID: 42}))
	require.Len(t, pub.retries, 1)
	assert.Equal(t, time.Second, pub.retries[0].delay)
	var next task.ReclaimMessage
	require.NoError(t, json.Unmarshal(pub.retries[0].body, &next))
	assert.Equal(t, 1, next.Attempt)
	assert.Equal(t, 1, ack.acks)

	h.handle(context.Background(), delivery(t, &ackRecorder{}, next))
	require.Len(t, pub.retries, 2)
	assert.Equal(t, 5*time.Second, pub.retries[1].delay)

	h.handle(context.Background(), delivery(t, &ackRecorder{}, task.ReclaimMessage{OwnerUserID: 42, Attempt: 2}))
	assert.Len(t, pub.retries, 2)
	require.Len(t, pub.dlq, 1)
	var dead dlqMessage
	require.NoError(t, json.Unmarshal(pub.dlq[0], &dead))
	assert.EqualValues(t, 42, dead.OwnerUserID)
	assert.Contains(t, dead.Error, "already running")
}

func TestHandleNonRetryableGoesToDLQ(t *testing.T) {
	proc := &fakeProcessor{err: fmt.Errorf("%w: bad request", common.ErrInvalidArgument)}
	pub := &fakePublisher{}
	ack := &ackRecorder{}

	newTestHandler(proc, pub).handle(context.Background(), delivery(t, ack, task.ReclaimMessage{OwnerUserID: 42}))
	assert.Empty(t, pub.retries)
	assert.Len(t, pub.dlq, 1)
	assert.Equal(t, 1, ack.acks)
}

func TestHandleRequeuesWhenRetryPublishFails(t *testing.T) {
	proc := &fakeProcessor{err: common.ErrTransport}
	pub := &fakePublisher{err: errors.New("channel closed")}
	ack := &ackRecorder{}

	newTestHandler(proc, pub).handle(context.Background(), delivery(t, ack, task.ReclaimMessage{OwnerUserID: 42}))
	assert.Zero(t, ack.acks)
	assert.Equal(t, 1, ack.nacks)
	assert.True(t, ack.requeue)
}

func TestHandleRequeuesOnShutdown(t *testing.T) {
	proc := &fakeProcessor{err: context.Canceled}
	ack := &ackRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := newTestHandler(proc, &fakePublisher{})
	h.limiter = nil
	h.handle(ctx, delivery(t, ack, task.ReclaimMessage{OwnerUserID: 42}))
	assert.Equal(t, 1, ack.nacks)
	assert.True(t, ack.requeue)
}

func TestPickRetryDelay(t *testing.T) {
	delays := []time.Duration{time.Second, time.Minute}
	assert.Equal(t, time.Duration(0), pickRetryDelay(1, nil))
	assert.Equal(t, time.Second, pickRetryDelay(0, delays))
	assert.Equal(t, time.Second, pickRetryDelay(1, delays))
	assert.Equal(t, time.Minute, pickRetryDelay(2, delays))
	assert.Equal(t, time.Minute, pickRetryDelay(9, delays))
}
