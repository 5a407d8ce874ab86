package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/marcelsud/heatmap-webhooks/retry"
	"github.com/redis/go-redis/v9"
)

const retryQueueKey = "webhook:retries"

// claimScript pops due members in one step so a job is never half-claimed
var claimScript = redis.NewScript(`
local members = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
if #members > 0 then
	redis.call('ZREM', KEYS[1], unpack(members))
end
return members
`)

/* RetryQueue keeps retry jobs in a Sorted Set scored by the next attempt time in milliseconds.
 * Due reads and removes members in one script, so several workers can share one queue.
 */
type RetryQueue struct {
	client *redis.Client
	key    string
}

// NewRetryQueue shares the repository connection
func NewRetryQueue(client *redis.Client) *RetryQueue {
	return &RetryQueue{client: client, key: retryQueueKey}
}

func (q *RetryQueue) Enqueue(ctx context.Context, job retry.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling retry job: %w", err)
	}
	err = q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(job.NextAttemptAt.UnixMilli()),
		Member: string(data),
	}).Err()
	if err != nil {
		return fmt.Errorf("adding retry job: %w", err)
	}
	return nil
}

// Due claims up to limit jobs (every due job when limit <= 0) whose next attempt is at or before now
func (q *RetryQueue) Due(ctx context.Context, now time.Time, limit int) ([]retry.Job, error) {
	if limit <= 0 {
		limit = -1 // LIMIT 0 -1 returns every due member
	}
	members, err := claimScript.Run(ctx, q.client, []string{q.key},
		strconv.FormatInt(now.UnixMilli(), 10), limit).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("claiming due retries: %w", err)
	}

	var errs []error
	jobs := make([]retry.Job, 0, len(members))
	for _, member := range members {
		var job retry.Job
		dec := json.NewDecoder(bytes.NewReader([]byte(member)))
		dec.UseNumber()
		if err := dec.Decode(&job); err != nil {
			// an undecodable member can never run; it stays removed
			errs = append(errs, fmt.Errorf("unmarshaling retry job: %w", err))
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, errors.Join(errs...)
}

func (q *RetryQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("counting retries: %w", err)
	}
	return n, nil
}
