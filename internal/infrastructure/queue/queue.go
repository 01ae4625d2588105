// Package queue implements C5: a durable FIFO over Redis lists, with a ZSET
// tracking in-flight jobs for stalled-job detection (spec §4.5). The
// teacher's own infrastructure/redis package was declared in its go.mod but
// absent from the retrieval pack (only its call sites in pkg/di/container.go
// and the health handler survived), so this is built fresh against
// github.com/redis/go-redis/v9 in the same spirit — a thin struct wrapping
// *redis.Client with a Ping method for the health check.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"driveingest/internal/pkg/apperr"
	"driveingest/internal/pkg/logger"
)

const (
	Folders = "folders"
	Images  = "images"

	stateActive    = "active"
	stateCompleted = "completed"
	stateFailed    = "failed"

	maxAttempts = 3

	completedRetention = 200
	failedRetention     = 2000
)

var backoffSchedule = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// Job is a unit of work on one of the two logical queues.
type Job struct {
	ID        string          `json:"id"`
	Queue     string          `json:"queue"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	State     string          `json:"state"`
	EnqueuedAt int64          `json:"enqueuedAt"`
	FailReason string         `json:"failReason,omitempty"`
}

// Counts is a per-state snapshot for a queue, used by peekCounts.
type Counts struct {
	Pending   int64
	Active    int64
	Completed int64
	Failed    int64
}

// Queue is the Redis-backed broker. Keys are namespaced per logical queue:
//
//	queue:{name}:pending    — list, RPUSH/LPOP, FIFO job ids
//	queue:{name}:active     — ZSET, member=job id, score=lease deadline unix ms
//	queue:{name}:scheduled  — ZSET, member=job id, score=retry-ready unix ms
//	queue:{name}:completed  — list, most-recent job ids, capped
//	queue:{name}:failed     — list, most-recent job ids, capped
//	queue:job:{id}          — hash/string, the serialized Job
//	queue:{name}:seen:{jobId} — idempotency marker, short TTL
type Queue struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

func (q *Queue) Ping(ctx context.Context) error {
	if err := q.rdb.Ping(ctx).Err(); err != nil {
		return apperr.New(apperr.QueueUnavailable, "queue backend unreachable", err)
	}
	return nil
}

func pendingKey(queueName string) string   { return fmt.Sprintf("queue:%s:pending", queueName) }
func activeKey(queueName string) string    { return fmt.Sprintf("queue:%s:active", queueName) }
func scheduledKey(queueName string) string { return fmt.Sprintf("queue:%s:scheduled", queueName) }
func completedKey(queueName string) string { return fmt.Sprintf("queue:%s:completed", queueName) }
func failedKey(queueName string) string    { return fmt.Sprintf("queue:%s:failed", queueName) }
func seenKey(queueName, jobID string) string {
	return fmt.Sprintf("queue:%s:seen:%s", queueName, jobID)
}
func jobKey(jobID string) string { return "queue:job:" + jobID }

// Enqueue pushes a job, deduping on jobID (spec §4.5's idempotency keys).
// A duplicate enqueue within the dedupe window is a silent no-op.
func (q *Queue) Enqueue(ctx context.Context, queueName, jobID string, payload interface{}) error {
	return q.enqueueOne(ctx, queueName, jobID, payload)
}

// EnqueueBatch enqueues several jobs on the same logical queue, skipping
// duplicates individually rather than failing the whole batch.
func (q *Queue) EnqueueBatch(ctx context.Context, queueName string, jobs map[string]interface{}) error {
	for jobID, payload := range jobs {
		if err := q.enqueueOne(ctx, queueName, jobID, payload); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) enqueueOne(ctx context.Context, queueName, jobID string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return apperr.New(apperr.InvalidInput, "failed to marshal job payload", err)
	}

	set, err := q.rdb.SetNX(ctx, seenKey(queueName, jobID), 1, 24*time.Hour).Result()
	if err != nil {
		return apperr.New(apperr.QueueUnavailable, "failed to check job dedupe key", err)
	}
	if !set {
		logger.Queue("enqueue_dedup", "job already enqueued, skipping", map[string]interface{}{
			"queue": queueName, "jobId": jobID,
		})
		return nil
	}

	job := Job{
		ID:         jobID,
		Queue:      queueName,
		Payload:    raw,
		Attempts:   0,
		State:      "pending",
		EnqueuedAt: time.Now().UnixMilli(),
	}
	jobRaw, err := json.Marshal(job)
	if err != nil {
		return apperr.New(apperr.InvalidInput, "failed to marshal job", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(jobID), jobRaw, 0)
	pipe.RPush(ctx, pendingKey(queueName), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.New(apperr.QueueUnavailable, "failed to enqueue job", err)
	}

	logger.Queue("enqueue", "job enqueued", map[string]interface{}{
		"queue": queueName, "jobId": jobID,
	})
	return nil
}

// Dequeue pops the next pending job (if any) and moves it to the active
// ZSET with a lease deadline, acting as the worker's heartbeat. It first
// promotes any due scheduled retries back onto the pending list, so a
// backoff delay is never tracked only in process memory (spec §4.5's
// durable retry/backoff requirement).
func (q *Queue) Dequeue(ctx context.Context, queueName string, lease time.Duration) (*Job, error) {
	if err := q.promoteScheduledRetries(ctx, queueName); err != nil {
		return nil, err
	}

	jobID, err := q.rdb.LPop(ctx, pendingKey(queueName)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.New(apperr.QueueUnavailable, "failed to dequeue job", err)
	}

	job, err := q.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	job.Attempts++
	job.State = stateActive

	deadline := float64(time.Now().Add(lease).UnixMilli())
	pipe := q.rdb.TxPipeline()
	pipe.ZAdd(ctx, activeKey(queueName), redis.Z{Score: deadline, Member: jobID})
	pipe.Set(ctx, jobKey(jobID), mustMarshal(job), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, apperr.New(apperr.QueueUnavailable, "failed to mark job active", err)
	}

	return job, nil
}

// Complete marks a job done, retiring it from the active set and trimming
// the bounded completed-retention list.
func (q *Queue) Complete(ctx context.Context, queueName, jobID string) error {
	job, err := q.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.State = stateCompleted

	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, activeKey(queueName), jobID)
	pipe.Set(ctx, jobKey(jobID), mustMarshal(job), 0)
	pipe.LPush(ctx, completedKey(queueName), jobID)
	pipe.LTrim(ctx, completedKey(queueName), 0, completedRetention-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.New(apperr.QueueUnavailable, "failed to complete job", err)
	}
	return nil
}

// Fail either schedules the job for a backed-off retry (spec §4.5's
// defaults) or moves it to the bounded failed list once attempts are
// exhausted. A scheduled retry is durable: it lives in the scheduled ZSET,
// not a process-local timer, so a crash during the backoff window loses
// nothing — the next Dequeue call on any process promotes it once due.
func (q *Queue) Fail(ctx context.Context, queueName, jobID, reason string) error {
	job, err := q.loadJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Attempts < maxAttempts {
		delay := backoffSchedule[min(job.Attempts-1, len(backoffSchedule)-1)]
		job.State = "pending"
		job.FailReason = reason
		readyAt := float64(time.Now().Add(delay).UnixMilli())

		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, activeKey(queueName), jobID)
		pipe.ZAdd(ctx, scheduledKey(queueName), redis.Z{Score: readyAt, Member: jobID})
		pipe.Set(ctx, jobKey(jobID), mustMarshal(job), 0)
		if _, err := pipe.Exec(ctx); err != nil {
			return apperr.New(apperr.QueueUnavailable, "failed to schedule retry", err)
		}
		return nil
	}

	job.State = stateFailed
	job.FailReason = reason

	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, activeKey(queueName), jobID)
	pipe.Set(ctx, jobKey(jobID), mustMarshal(job), 0)
	pipe.LPush(ctx, failedKey(queueName), jobID)
	pipe.LTrim(ctx, failedKey(queueName), 0, failedRetention-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.New(apperr.QueueUnavailable, "failed to move job to failed", err)
	}
	return nil
}

// FailStalled unconditionally moves jobID to the bounded failed list,
// regardless of remaining attempts. Used by StalledJobs, which must
// declare a stalled job failed outright (spec §4.5/§4.11) rather than give
// it another backed-off retry.
func (q *Queue) FailStalled(ctx context.Context, queueName, jobID, reason string) error {
	job, err := q.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.State = stateFailed
	job.FailReason = reason

	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, activeKey(queueName), jobID)
	pipe.Set(ctx, jobKey(jobID), mustMarshal(job), 0)
	pipe.LPush(ctx, failedKey(queueName), jobID)
	pipe.LTrim(ctx, failedKey(queueName), 0, failedRetention-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.New(apperr.QueueUnavailable, "failed to move stalled job to failed", err)
	}
	return nil
}

// promoteScheduledRetries moves every scheduled retry whose backoff has
// elapsed back onto the pending list.
func (q *Queue) promoteScheduledRetries(ctx context.Context, queueName string) error {
	now := float64(time.Now().UnixMilli())
	ids, err := q.rdb.ZRangeByScore(ctx, scheduledKey(queueName), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return apperr.New(apperr.QueueUnavailable, "failed to scan for due retries", err)
	}

	for _, id := range ids {
		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, scheduledKey(queueName), id)
		pipe.RPush(ctx, pendingKey(queueName), id)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.QueueError("promote_retry_failed", "failed to promote scheduled retry to pending", err, map[string]interface{}{
				"queue": queueName, "jobId": id,
			})
		}
	}
	return nil
}

// StalledJobs scans the active ZSET for jobs whose lease deadline has
// passed, declares them stalled, and moves each to failed with the fixed
// reason required by spec §4.5/§4.11. Returns the ids moved.
func (q *Queue) StalledJobs(ctx context.Context, queueName string) ([]string, error) {
	now := float64(time.Now().UnixMilli())
	ids, err := q.rdb.ZRangeByScore(ctx, activeKey(queueName), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return nil, apperr.New(apperr.QueueUnavailable, "failed to scan for stalled jobs", err)
	}

	for _, id := range ids {
		if err := q.FailStalled(ctx, queueName, id, "worker restart recovery"); err != nil {
			logger.QueueError("stalled_job", "failed to move stalled job to failed", err, map[string]interface{}{
				"queue": queueName, "jobId": id,
			})
			continue
		}
	}
	return ids, nil
}

// PeekCounts folds scheduled retries into Pending: Counts has no separate
// bucket for them, and a scheduled retry is pending work that just isn't
// ready to dequeue yet.
func (q *Queue) PeekCounts(ctx context.Context, queueName string) (Counts, error) {
	pipe := q.rdb.Pipeline()
	pending := pipe.LLen(ctx, pendingKey(queueName))
	scheduled := pipe.ZCard(ctx, scheduledKey(queueName))
	active := pipe.ZCard(ctx, activeKey(queueName))
	completed := pipe.LLen(ctx, completedKey(queueName))
	failed := pipe.LLen(ctx, failedKey(queueName))
	if _, err := pipe.Exec(ctx); err != nil {
		return Counts{}, apperr.New(apperr.QueueUnavailable, "failed to read queue counts", err)
	}

	return Counts{
		Pending:   pending.Val() + scheduled.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

// ListJobs returns the jobs in the given states, grouped in the order the
// states are given, for the admin surface: pending and active jobs oldest
// first, completed and failed jobs most recent first. states may include
// "pending", "active", "completed", "failed".
func (q *Queue) ListJobs(ctx context.Context, queueName string, states []string, limit int) ([]Job, error) {
	var ids []string
	for _, state := range states {
		var stateIDs []string
		var err error
		switch state {
		case "pending":
			stateIDs, err = q.rdb.LRange(ctx, pendingKey(queueName), 0, int64(limit)-1).Result()
		case "active":
			stateIDs, err = q.rdb.ZRange(ctx, activeKey(queueName), 0, int64(limit)-1).Result()
		case "completed":
			stateIDs, err = q.rdb.LRange(ctx, completedKey(queueName), 0, int64(limit)-1).Result()
		case "failed":
			stateIDs, err = q.rdb.LRange(ctx, failedKey(queueName), 0, int64(limit)-1).Result()
		}
		if err != nil {
			return nil, apperr.New(apperr.QueueUnavailable, "failed to list jobs", err)
		}
		ids = append(ids, stateIDs...)
	}

	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.loadJob(ctx, id)
		if err != nil {
			continue
		}
		jobs = append(jobs, *job)
		if len(jobs) >= limit {
			break
		}
	}
	return jobs, nil
}

func (q *Queue) Remove(ctx context.Context, queueName, jobID string) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, pendingKey(queueName), 0, jobID)
	pipe.ZRem(ctx, activeKey(queueName), jobID)
	pipe.ZRem(ctx, scheduledKey(queueName), jobID)
	pipe.LRem(ctx, completedKey(queueName), 0, jobID)
	pipe.LRem(ctx, failedKey(queueName), 0, jobID)
	pipe.Del(ctx, jobKey(jobID))
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.New(apperr.QueueUnavailable, "failed to remove job", err)
	}
	return nil
}

func (q *Queue) Purge(ctx context.Context, queueName string) error {
	pipe := q.rdb.TxPipeline()
	pipe.Del(ctx, pendingKey(queueName))
	pipe.Del(ctx, activeKey(queueName))
	pipe.Del(ctx, scheduledKey(queueName))
	pipe.Del(ctx, completedKey(queueName))
	pipe.Del(ctx, failedKey(queueName))
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.New(apperr.QueueUnavailable, "failed to purge queue", err)
	}
	return nil
}

func (q *Queue) loadJob(ctx context.Context, jobID string) (*Job, error) {
	raw, err := q.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, apperr.NotFoundf("job %s not found", jobID)
	}
	if err != nil {
		return nil, apperr.New(apperr.QueueUnavailable, "failed to load job", err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, apperr.New(apperr.QueueUnavailable, "failed to unmarshal job", err)
	}
	return &job, nil
}

func mustMarshal(job *Job) []byte {
	raw, err := json.Marshal(job)
	if err != nil {
		panic(err)
	}
	return raw
}
