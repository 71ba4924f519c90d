// Package queue implements a durable redis-backed job queue. Jobs move
// through wait -> active -> completed, with failed runs rescheduled onto a
// delayed set (exponential backoff) until the attempt limit, after which the
// job is retained on a failed list for operator inspection.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Job is one unit of deferred work. Payload is opaque to the queue; the
// worker's dispatcher interprets it by Type.
type Job struct {
	ID          string
	Type        string
	Payload     json.RawMessage
	Attempts    int
	MaxAttempts int
	EnqueuedAt  time.Time
	LastError   string
}

// Options tune retry behavior for a queue.
type Options struct {
	MaxAttempts int           // total executions before a job is dead-lettered
	BackoffBase time.Duration // first retry delay, doubled per further attempt
}

// Stats is a point-in-time snapshot of queue depths.
type Stats struct {
	Waiting int64 `json:"waiting"`
	Active  int64 `json:"active"`
	Delayed int64 `json:"delayed"`
	Failed  int64 `json:"failed"`
}

// Queue is a named durable job queue on redis.
type Queue struct {
	rdb  *redis.Client
	name string
	opts Options
	log  zerolog.Logger
}

// New returns a queue named `name`. Zero option fields get defaults
// (3 attempts, 2s backoff base).
func New(rdb *redis.Client, name string, opts Options, logger zerolog.Logger) *Queue {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 2 * time.Second
	}
	return &Queue{
		rdb:  rdb,
		name: name,
		opts: opts,
		log:  logger.With().Str("component", "queue").Str("queue", name).Logger(),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

func (q *Queue) key(suffix string) string {
	return "queue:" + q.name + ":" + suffix
}

func (q *Queue) jobKey(id string) string {
	return q.key("job:" + id)
}

// Enqueue durably records a job and places it on the wait list. The job is
// recoverable from redis once Enqueue returns.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	id := uuid.New().String()

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.jobKey(id), map[string]any{
		"type":         jobType,
		"payload":      string(data),
		"attempts":     0,
		"max_attempts": q.opts.MaxAttempts,
		"enqueued_at":  time.Now().UTC().Format(time.RFC3339Nano),
	})
	pipe.LPush(ctx, q.key("wait"), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	q.log.Debug().Str("job_id", id).Str("job_type", jobType).Msg("job enqueued")
	return id, nil
}

// promoteDelayed moves jobs whose backoff has elapsed from the delayed set
// back onto the wait list. Atomic so two workers cannot promote the same job.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('LPUSH', KEYS[2], id)
end
return #due
`)

func (q *Queue) promoteDelayed(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	return promoteScript.Run(ctx, q.rdb, []string{q.key("delayed"), q.key("wait")}, now).Err()
}

// dequeue blocks up to `timeout` for the next job, moving its id from wait to
// active. Returns nil without error when nothing arrived in time.
func (q *Queue) dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	id, err := q.rdb.BLMove(ctx, q.key("wait"), q.key("active"), "RIGHT", "LEFT", timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return q.loadJob(ctx, id)
}

func (q *Queue) loadJob(ctx context.Context, id string) (*Job, error) {
	fields, err := q.rdb.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	if len(fields) == 0 {
		// Job hash expired or was removed out-of-band; drop the dangling id.
		q.rdb.LRem(ctx, q.key("active"), 1, id)
		return nil, fmt.Errorf("job %s has no record", id)
	}
	job := &Job{
		ID:          id,
		Type:        fields["type"],
		Payload:     json.RawMessage(fields["payload"]),
		LastError:   fields["last_error"],
		MaxAttempts: q.opts.MaxAttempts,
	}
	job.Attempts, _ = strconv.Atoi(fields["attempts"])
	if v, err := strconv.Atoi(fields["max_attempts"]); err == nil && v > 0 {
		job.MaxAttempts = v
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["enqueued_at"]); err == nil {
		job.EnqueuedAt = t
	}
	return job, nil
}

// complete removes a finished job and its payload; completed jobs are not
// replayed.
func (q *Queue) complete(ctx context.Context, job *Job) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.key("active"), 1, job.ID)
	pipe.Del(ctx, q.jobKey(job.ID))
	_, err := pipe.Exec(ctx)
	return err
}

// retryOrFail reschedules a failed job with exponential backoff, or moves it
// to the failed list once its attempts are exhausted. The job record is kept
// either way.
func (q *Queue) retryOrFail(ctx context.Context, job *Job, jobErr error) error {
	attempts := job.Attempts + 1
	terminal := attempts >= job.MaxAttempts

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.jobKey(job.ID), map[string]any{
		"attempts":   attempts,
		"last_error": jobErr.Error(),
	})
	pipe.LRem(ctx, q.key("active"), 1, job.ID)
	if terminal {
		pipe.LPush(ctx, q.key("failed"), job.ID)
	} else {
		delay := q.opts.BackoffBase << (attempts - 1)
		readyAt := time.Now().Add(delay).UnixMilli()
		pipe.ZAdd(ctx, q.key("delayed"), redis.Z{Score: float64(readyAt), Member: job.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	if terminal {
		q.log.Error().Err(jobErr).Str("job_id", job.ID).Str("job_type", job.Type).
			Int("attempts", attempts).Msg("job failed terminally")
	} else {
		q.log.Warn().Err(jobErr).Str("job_id", job.ID).Str("job_type", job.Type).
			Int("attempts", attempts).Msg("job failed, retry scheduled")
	}
	return nil
}

// recoverStalled returns jobs stranded on the active list by a crashed
// worker to the wait list. Run at worker startup, before processing begins.
// Handlers must tolerate re-delivery: request log inserts dedup on
// request_uuid, while application logs have no natural key and may repeat.
func (q *Queue) recoverStalled(ctx context.Context) (int, error) {
	moved := 0
	for {
		_, err := q.rdb.LMove(ctx, q.key("active"), q.key("wait"), "RIGHT", "LEFT").Result()
		if err == redis.Nil {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

// Stats reports current queue depths.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.rdb.Pipeline()
	waiting := pipe.LLen(ctx, q.key("wait"))
	active := pipe.LLen(ctx, q.key("active"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	failed := pipe.LLen(ctx, q.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{
		Waiting: waiting.Val(),
		Active:  active.Val(),
		Delayed: delayed.Val(),
		Failed:  failed.Val(),
	}, nil
}
