package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jmehdipour/router-sms-gateway/internal/model"
)

const (
	redisKeyPrefix       = "job:"
	maxTransitionRetries = 5
)

// RedisStore keeps each job as a hash under job:<id> that expires after ttl.
type RedisStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func key(id string) string { return redisKeyPrefix + id }

func (s *RedisStore) Create(ctx context.Context, job model.Job) error {
	fields, err := encodeJob(job)
	if err != nil {
		return err
	}
	k := key(job.ID)

	ok, err := s.rdb.HSetNX(ctx, k, "id", job.ID).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrExists, job.ID)
	}

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, fields)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	return err
}

func (s *RedisStore) Get(ctx context.Context, id string) (model.Job, error) {
	data, err := s.rdb.HGetAll(ctx, key(id)).Result()
	if err != nil {
		return model.Job{}, err
	}
	if len(data) == 0 {
		return model.Job{}, ErrNotFound
	}
	return decodeJob(data)
}

func (s *RedisStore) Transition(ctx context.Context, id string, to model.JobStatus, result *model.SendResult) error {
	k := key(id)
	update := map[string]interface{}{
		"status":     to.String(),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		update["result"] = string(b)
	}

	txf := func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, k, "status").Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		from := model.JobStatus(cur)
		if !from.CanTransition(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, k, update)
			p.Expire(ctx, k, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTransitionRetries; i++ {
		err := s.rdb.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("transition %s: %w", id, redis.TxFailedErr)
}

func encodeJob(j model.Job) (map[string]interface{}, error) {
	fields := map[string]interface{}{
		"id":           j.ID,
		"phone_number": j.PhoneNumber,
		"message":      j.Message,
		"status":       j.Status.String(),
		"submitted_at": j.SubmittedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":   j.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if j.Result != nil {
		b, err := json.Marshal(j.Result)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		fields["result"] = string(b)
	}
	return fields, nil
}

func decodeJob(data map[string]string) (model.Job, error) {
	j := model.Job{
		ID:          data["id"],
		PhoneNumber: data["phone_number"],
		Message:     data["message"],
		Status:      model.JobStatus(data["status"]),
	}
	var err error
	if j.SubmittedAt, err = time.Parse(time.RFC3339Nano, data["submitted_at"]); err != nil {
		return model.Job{}, fmt.Errorf("decode submitted_at: %w", err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339Nano, data["updated_at"]); err != nil {
		return model.Job{}, fmt.Errorf("decode updated_at: %w", err)
	}
	if raw := data["result"]; raw != "" {
		var r model.SendResult
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return model.Job{}, fmt.Errorf("decode result: %w", err)
		}
		j.Result = &r
	}
	return j, nil
}
