// Package jobs keeps the status of submitted sends so callers can poll them.
// Records are short-lived: every backend bounds them with a TTL.
package jobs

import (
	"context"
	"errors"

	"github.com/jmehdipour/router-sms-gateway/internal/model"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrExists            = errors.New("job already exists")
	ErrFull              = errors.New("job store full of unfinished jobs")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

type Store interface {
	Create(ctx context.Context, job model.Job) error
	Get(ctx context.Context, id string) (model.Job, error)
	// Transition moves a job forward and attaches result when non-nil.
	// Regressions fail with ErrInvalidTransition.
	Transition(ctx context.Context, id string, to model.JobStatus, result *model.SendResult) error
}
