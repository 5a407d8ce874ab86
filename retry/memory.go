package retry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue; jobs are lost on restart
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []Job
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.jobs = append(q.jobs, job)
	return nil
}

func (q *MemoryQueue) Due(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	sort.SliceStable(q.jobs, func(i, j int) bool {
		return q.jobs[i].NextAttemptAt.Before(q.jobs[j].NextAttemptAt)
	})

	n := 0
	for n < len(q.jobs) && !q.jobs[n].NextAttemptAt.After(now) {
		if limit > 0 && n == limit {
			break
		}
		n++
	}

	due := make([]Job, n)
	copy(due, q.jobs[:n])
	q.jobs = append(q.jobs[:0], q.jobs[n:]...)
	return due, nil
}

func (q *MemoryQueue) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return int64(len(q.jobs)), nil
}
