package jobs

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmehdipour/router-sms-gateway/internal/model"
)

type memoryEntry struct {
	job     model.Job
	expires time.Time
}

// MemoryStore is an in-process store bounded by TTL and entry count.
// When full, the oldest expired or finished job is evicted. Pending and
// processing jobs are never evicted; Create fails with ErrFull instead.
type MemoryStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	byID       map[string]*list.Element
	order      *list.List // oldest at front
	now        func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration, maxEntries int) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryStore{
		ttl:        ttl,
		maxEntries: maxEntries,
		byID:       make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, job model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.byID[job.ID]; ok {
		if s.now().Before(el.Value.(*memoryEntry).expires) {
			return fmt.Errorf("%w: %s", ErrExists, job.ID)
		}
		s.removeLocked(el)
	}
	for s.order.Len() >= s.maxEntries {
		el := s.victimLocked()
		if el == nil {
			return fmt.Errorf("%w: %d entries", ErrFull, s.order.Len())
		}
		s.removeLocked(el)
	}
	s.byID[job.ID] = s.order.PushBack(&memoryEntry{job: job, expires: s.now().Add(s.ttl)})
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.liveLocked(id)
	if !ok {
		return model.Job{}, ErrNotFound
	}
	j := e.job
	if j.Result != nil {
		r := *j.Result
		j.Result = &r
	}
	return j, nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, to model.JobStatus, result *model.SendResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.liveLocked(id)
	if !ok {
		return ErrNotFound
	}
	if !e.job.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.job.Status, to)
	}
	e.job.Status = to
	e.job.UpdatedAt = s.now().UTC()
	if result != nil {
		r := *result
		e.job.Result = &r
	}
	return nil
}

// Sweep drops expired jobs and reports how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for el := s.order.Front(); el != nil; {
		next := el.Next()
		if !now.Before(el.Value.(*memoryEntry).expires) {
			s.removeLocked(el)
			n++
		}
		el = next
	}
	return n
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *MemoryStore) liveLocked(id string) (*memoryEntry, bool) {
	el, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	e := el.Value.(*memoryEntry)
	if !s.now().Before(e.expires) {
		s.removeLocked(el)
		return nil, false
	}
	return e, true
}

// victimLocked returns the oldest expired or finished entry, or nil.
func (s *MemoryStore) victimLocked() *list.Element {
	now := s.now()
	for el := s.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*memoryEntry)
		if !now.Before(e.expires) || e.job.Status.Terminal() {
			return el
		}
	}
	return nil
}

func (s *MemoryStore) removeLocked(el *list.Element) {
	e := s.order.Remove(el).(*memoryEntry)
	delete(s.byID, e.job.ID)
}
