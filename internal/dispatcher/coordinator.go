package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmehdipour/router-sms-gateway/internal/jobs"
	"github.com/jmehdipour/router-sms-gateway/internal/metrics"
	"github.com/jmehdipour/router-sms-gateway/internal/model"
)

var (
	ErrQueueFull         = errors.New("send queue is full")
	ErrCoordinatorClosed = errors.New("coordinator stopped")
)

// Sender performs one send against the device. *Executor is the production implementation.
type Sender interface {
	Send(ctx context.Context, phoneNumber, message string) model.SendResult
}

// Recorder receives every finished job, e.g. for a delivery history.
type Recorder interface {
	Record(ctx context.Context, job model.Job) error
}

type Options struct {
	MaxQueue      int // 0 = unbounded
	Recorder      Recorder
	RecordTimeout time.Duration // per history write, default 5s
	Log           *zap.Logger
}

type request struct {
	job  model.Job
	done chan model.SendResult // buffered, written once
}

// Coordinator funnels every send through one worker so the device session
// only ever sees a single interaction at a time. Requests run strictly in
// arrival order.
type Coordinator struct {
	sender     Sender
	jobs       jobs.Store
	rec        Recorder
	recTimeout time.Duration
	log        *zap.Logger
	maxQueue   int

	mu     sync.Mutex
	queue  []*request
	busy   bool
	closed bool

	wake    chan struct{}
	stopped chan struct{}
}

func NewCoordinator(sender Sender, store jobs.Store, opts Options) *Coordinator {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.MaxQueue < 0 {
		opts.MaxQueue = 0
	}
	if opts.RecordTimeout <= 0 {
		opts.RecordTimeout = 5 * time.Second
	}
	return &Coordinator{
		sender:     sender,
		jobs:       store,
		rec:        opts.Recorder,
		recTimeout: opts.RecordTimeout,
		log:        opts.Log,
		maxQueue:   opts.MaxQueue,
		wake:       make(chan struct{}, 1),
		stopped:    make(chan struct{}),
	}
}

// Submit queues a send and returns its pending job without waiting.
func (c *Coordinator) Submit(ctx context.Context, phoneNumber, message string) (model.Job, error) {
	req, err := c.enqueue(ctx, phoneNumber, message)
	if err != nil {
		return model.Job{}, err
	}
	return req.job, nil
}

// SubmitAndWait queues a send and blocks until it has run. If ctx ends first
// the caller stops waiting, but the send itself still runs.
func (c *Coordinator) SubmitAndWait(ctx context.Context, phoneNumber, message string) model.SendResult {
	req, err := c.enqueue(ctx, phoneNumber, message)
	if err != nil {
		return model.QueueError(err)
	}
	select {
	case res := <-req.done:
		return res
	case <-ctx.Done():
		return model.QueueError(ctx.Err())
	}
}

// Stats reports the number of queued requests and whether one is executing.
func (c *Coordinator) Stats() (queued int, busy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue), c.busy
}

// Stopped is closed once Run has returned and every queued request has been failed.
func (c *Coordinator) Stopped() <-chan struct{} { return c.stopped }

func (c *Coordinator) enqueue(ctx context.Context, phoneNumber, message string) (*request, error) {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return nil, ErrCoordinatorClosed
	case c.maxQueue > 0 && len(c.queue) >= c.maxQueue:
		c.mu.Unlock()
		return nil, ErrQueueFull
	}
	c.mu.Unlock()

	now := time.Now().UTC()
	job := model.Job{
		ID:          uuid.NewString(),
		PhoneNumber: phoneNumber,
		Message:     message,
		Status:      model.JobPending,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	req := &request{job: job, done: make(chan model.SendResult, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.abort(context.WithoutCancel(ctx), req)
		return nil, ErrCoordinatorClosed
	}
	c.queue = append(c.queue, req)
	depth := len(c.queue)
	c.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))
	metrics.MessagesTotal.WithLabelValues("queued").Inc()
	c.log.Debug("send queued", zap.String("job_id", job.ID), zap.Int("depth", depth))

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return req, nil
}

// Run is the single worker. It returns when ctx ends; requests still queued
// at that point fail with ErrCoordinatorClosed.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.stopped)
	defer c.failQueued(context.WithoutCancel(ctx))

	for {
		if ctx.Err() != nil {
			return nil
		}
		req := c.next()
		if req == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-c.wake:
			}
			continue
		}
		c.process(ctx, req)
	}
}

// next pops the queue head and marks the worker busy, or marks it idle when empty.
func (c *Coordinator) next() *request {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		c.busy = false
		return nil
	}
	req := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	c.busy = true
	metrics.QueueDepth.Set(float64(len(c.queue)))
	return req
}

func (c *Coordinator) process(ctx context.Context, req *request) {
	// once started, a send runs to completion even during shutdown
	jobCtx := context.WithoutCancel(ctx)
	id := req.job.ID

	if err := c.jobs.Transition(jobCtx, id, model.JobProcessing, nil); err != nil {
		c.log.Warn("job transition failed", zap.String("job_id", id), zap.Error(err))
	}

	start := time.Now()
	res := c.execute(jobCtx, req.job)
	res.ElapsedTime = time.Since(start).Seconds()
	metrics.SendDuration.Observe(res.ElapsedTime)

	if res.OK() {
		metrics.MessagesTotal.WithLabelValues("sent").Inc()
		c.log.Info("sms sent", zap.String("job_id", id), zap.Float64("elapsed", res.ElapsedTime))
	} else {
		metrics.MessagesTotal.WithLabelValues("failed").Inc()
		c.log.Warn("sms failed", zap.String("job_id", id), zap.String("reason", res.Message))
	}

	c.finish(jobCtx, req, res)
}

func (c *Coordinator) execute(ctx context.Context, job model.Job) (res model.SendResult) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("send panicked", zap.String("job_id", job.ID), zap.Any("panic", r))
			res = model.QueueError(fmt.Errorf("%v", r))
		}
	}()
	return c.sender.Send(ctx, job.PhoneNumber, job.Message)
}

func (c *Coordinator) finish(ctx context.Context, req *request, res model.SendResult) {
	status := model.StatusFor(res)
	if err := c.jobs.Transition(ctx, req.job.ID, status, &res); err != nil {
		c.log.Warn("job transition failed", zap.String("job_id", req.job.ID), zap.Error(err))
	}

	req.done <- res

	if c.rec == nil {
		return
	}
	job := req.job
	job.Status = status
	job.Result = &res
	job.UpdatedAt = time.Now().UTC()

	recCtx, cancel := context.WithTimeout(ctx, c.recTimeout)
	defer cancel()
	if err := c.rec.Record(recCtx, job); err != nil {
		c.log.Warn("record history failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (c *Coordinator) abort(ctx context.Context, req *request) {
	res := model.QueueError(ErrCoordinatorClosed)
	if err := c.jobs.Transition(ctx, req.job.ID, model.JobFailed, &res); err != nil {
		c.log.Debug("job transition failed", zap.String("job_id", req.job.ID), zap.Error(err))
	}
	req.done <- res
}

func (c *Coordinator) failQueued(ctx context.Context) {
	c.mu.Lock()
	c.closed = true
	c.busy = false
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()

	metrics.QueueDepth.Set(0)
	for _, req := range pending {
		c.abort(ctx, req)
	}
	if len(pending) > 0 {
		c.log.Warn("dropped queued sends on shutdown", zap.Int("count", len(pending)))
	}
}
