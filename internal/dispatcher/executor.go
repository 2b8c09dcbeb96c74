package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jmehdipour/router-sms-gateway/internal/device"
	"github.com/jmehdipour/router-sms-gateway/internal/metrics"
	"github.com/jmehdipour/router-sms-gateway/internal/model"
)

var ErrRebuildSuspended = errors.New("session rebuild suspended after repeated login failures")

// Executor performs sends over the single device session it owns, replacing
// the session whenever an interaction fails. It is not safe for concurrent
// use; the Coordinator is its only caller while serving.
type Executor struct {
	newSession device.Factory
	maxRetries int
	breaker    *MicroBreaker
	log        *zap.Logger

	sess device.Session
}

func NewExecutor(factory device.Factory, maxRetries int, breaker *MicroBreaker, log *zap.Logger) *Executor {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		newSession: factory,
		maxRetries: maxRetries,
		breaker:    breaker,
		log:        log,
	}
}

// Send delivers one message with the configured retry budget.
func (e *Executor) Send(ctx context.Context, phoneNumber, message string) model.SendResult {
	return e.SendWithRetries(ctx, phoneNumber, message, e.maxRetries)
}

// SendWithRetries delivers one message. Each failed attempt costs one
// session rebuild while retriesRemaining > 0.
func (e *Executor) SendWithRetries(ctx context.Context, phoneNumber, message string, retriesRemaining int) model.SendResult {
	if e.sess == nil {
		if err := e.rebuild(ctx); err != nil {
			return model.Failure(err.Error())
		}
	}

	for {
		err := e.sess.Send(ctx, phoneNumber, message)
		if err == nil {
			return model.Success()
		}
		if retriesRemaining <= 0 {
			e.log.Warn("send failed, retries exhausted", zap.String("phone", phoneNumber), zap.Error(err))
			return model.Failure(model.MsgMaxRetries)
		}

		e.log.Warn("send failed, rebuilding session",
			zap.String("phone", phoneNumber),
			zap.Int("retries_left", retriesRemaining),
			zap.Error(err),
		)
		if err := e.rebuild(ctx); err != nil {
			return model.Failure(err.Error())
		}
		retriesRemaining--
	}
}

// Warmup opens the session ahead of the first send, trying up to attempts times.
func (e *Executor) Warmup(ctx context.Context, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 1; i <= attempts; i++ {
		if last = e.rebuild(ctx); last == nil {
			return nil
		}
		e.log.Warn("session warmup failed", zap.Int("attempt", i), zap.Error(last))
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("failed to initialize after %d attempts: %w", attempts, last)
}

// Close tears the session down.
func (e *Executor) Close() error {
	return e.discard()
}

func (e *Executor) discard() error {
	if e.sess == nil {
		return nil
	}
	err := e.sess.Close()
	e.sess = nil
	return err
}

// rebuild replaces the current session with a freshly logged-in one.
func (e *Executor) rebuild(ctx context.Context) error {
	if err := e.discard(); err != nil {
		e.log.Debug("closing stale session", zap.Error(err))
	}

	if !e.breaker.TryAcquire() {
		metrics.SessionRebuildsTotal.WithLabelValues("suspended").Inc()
		return ErrRebuildSuspended
	}

	s, err := e.open(ctx)
	if err != nil {
		e.breaker.OnFailure()
		metrics.SessionRebuildsTotal.WithLabelValues("failed").Inc()
		return err
	}

	e.breaker.OnSuccess()
	metrics.SessionRebuildsTotal.WithLabelValues("ok").Inc()
	e.sess = s
	return nil
}

func (e *Executor) open(ctx context.Context) (device.Session, error) {
	s, err := e.newSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if err := s.Login(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.NavigateToCompose(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	e.log.Info("device session ready")
	return s, nil
}
