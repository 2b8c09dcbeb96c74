package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/jmehdipour/router-sms-gateway/internal/kafka"
	"github.com/jmehdipour/router-sms-gateway/internal/metrics"
	"github.com/jmehdipour/router-sms-gateway/internal/model"
	"github.com/jmehdipour/router-sms-gateway/internal/util"
)

// Source is the subset of *kafka.Consumer the intake uses.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// Submitter runs one send to completion. *dispatcher.Coordinator implements it.
type Submitter interface {
	SubmitAndWait(ctx context.Context, phoneNumber, message string) model.SendResult
}

// Intake feeds Kafka records into the coordinator one at a time and commits
// each record once its send has finished, so delivery is at-least-once.
type Intake struct {
	Source   Source
	Dispatch Submitter
	Log      *zap.Logger

	FetchBackoff time.Duration // pause after a fetch error
	RetryBackoff time.Duration // pause before resubmitting after a queue fault
	MaxRequeues  int           // queue faults tolerated per record before it is committed as failed
}

func NewIntake(src Source, d Submitter, log *zap.Logger) *Intake {
	if log == nil {
		log = zap.NewNop()
	}
	return &Intake{
		Source:       src,
		Dispatch:     d,
		Log:          log,
		FetchBackoff: 200 * time.Millisecond,
		RetryBackoff: time.Second,
		MaxRequeues:  3,
	}
}

// Run blocks until ctx is cancelled.
func (w *Intake) Run(ctx context.Context) error {
	for {
		m, err := w.Source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.Log.Warn("intake: kafka fetch failed", zap.Error(err))
			if !sleep(ctx, w.FetchBackoff) {
				return nil
			}
			continue
		}
		w.processOne(ctx, m)
	}
}

func (w *Intake) processOne(ctx context.Context, m kafka.Message) {
	log := w.Log.With(zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset))

	var env model.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Warn("intake: bad envelope json, skipping", zap.Error(err))
		w.commit(ctx, m, "poison")
		return
	}
	sms := env.SMS.Normalize()
	sms.PhoneNumber = util.NormalizePhone(sms.PhoneNumber)
	if !sms.Valid() {
		log.Warn("intake: envelope missing phone_number or message, skipping", zap.String("id", env.ID))
		w.commit(ctx, m, "poison")
		return
	}

	var res model.SendResult
	for attempt := 0; ; attempt++ {
		res = w.Dispatch.SubmitAndWait(ctx, sms.PhoneNumber, sms.Message)
		if ctx.Err() != nil {
			// not committed; the record is redelivered after restart
			return
		}
		if !res.QueueFault() || attempt >= w.MaxRequeues {
			break
		}
		metrics.IntakeTotal.WithLabelValues("requeued").Inc()
		log.Warn("intake: send did not run, retrying", zap.String("id", env.ID), zap.String("reason", res.Message))
		if !sleep(ctx, w.RetryBackoff) {
			return
		}
	}

	outcome := "sent"
	if !res.OK() {
		outcome = "failed"
	}
	log.Info("intake: record processed",
		zap.String("id", env.ID),
		zap.String("status", res.Status.String()),
		zap.String("message", res.Message),
	)
	w.commit(ctx, m, outcome)
}

func (w *Intake) commit(ctx context.Context, m kafka.Message, outcome string) {
	metrics.IntakeTotal.WithLabelValues(outcome).Inc()
	if err := w.Source.Commit(ctx, m); err != nil {
		w.Log.Warn("intake: commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
