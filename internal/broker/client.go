// Package broker provides the typed Redis client for the job queue.
//
// The broker is the only shared mutable state in the pipeline. Each job
// kind has a FIFO list (queue:<name>) of job ids; the job record itself
// lives in a hash (job:<id>). Workers consume with a blocking pop, the
// gateway enqueues and polls. Every status change is additionally
// published on the job's pub/sub channel so clients can stream progress
// instead of polling.
//
// Key layout:
//
//	queue:<name>      list of job ids awaiting processing
//	job:<id>          hash with queue, handler, payload, status, ...
//	queues:known      set of queue names that have ever seen a job
//	jobs:events:<id>  pub/sub channel for status events
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrTerminal is returned when a terminal-status write is rejected
// because the job already reached a terminal status. Late results from
// an abandoned handler invocation surface as this error and are
// discarded by the caller.
var ErrTerminal = errors.New("job already in terminal status")

// Client wraps Redis operations for the job queue system.
type Client struct {
	rdb       *redis.Client
	resultTTL time.Duration
}

// Config holds configuration for the broker client.
type Config struct {
	// URL is the Redis connection URL (redis://...).
	URL string

	// ResultTTL is how long terminal job records are retained
	// (default: 24h).
	ResultTTL time.Duration
}

// NewClient creates a broker client. Connect must be called before use.
func NewClient(cfg Config) *Client {
	if cfg.ResultTTL == 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &Client{resultTTL: cfg.ResultTTL}
}

// Connect establishes the connection and verifies it with a ping.
func (c *Client) Connect(ctx context.Context, url string) error {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return fmt.Errorf("failed to parse broker URL: %w", err)
	}
	c.rdb = redis.NewClient(opts)
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Ping verifies broker reachability.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Raw exposes the underlying go-redis client for collaborators that
// share the connection (token store, tests).
func (c *Client) Raw() *redis.Client {
	return c.rdb
}

func queueKey(name string) string   { return "queue:" + name }
func jobKey(id string) string       { return "job:" + id }
func eventChannel(id string) string { return "jobs:events:" + id }

const knownQueuesKey = "queues:known"

// terminalOnceScript updates a job hash only while the job has not yet
// reached a terminal status. ARGV[1] is a retention TTL in seconds
// (0 = keep), followed by field/value pairs.
var terminalOnceScript = redis.NewScript(`
local s = redis.call('HGET', KEYS[1], 'status')
if s == 'finished' or s == 'failed' or s == 'timed_out' then
  return 0
end
for i = 2, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
end
local ttl = tonumber(ARGV[1])
if ttl > 0 then
  redis.call('EXPIRE', KEYS[1], ttl)
end
return 1
`)

// Enqueue writes the job record and appends its id to the named queue.
// The hash write and the list push run in one transaction so a consumer
// can never pop an id whose record is missing.
func (c *Client) Enqueue(ctx context.Context, queue, handler string, payload json.RawMessage, timeout time.Duration) (string, error) {
	id := uuid.NewString()
	now := time.Now()

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, jobKey(id), map[string]interface{}{
		"queue":       queue,
		"handler":     handler,
		"payload":     string(payload),
		"status":      string(StatusQueued),
		"timeout":     int(timeout / time.Second),
		"enqueued_at": formatTime(now),
	})
	pipe.RPush(ctx, queueKey(queue), id)
	pipe.SAdd(ctx, knownQueuesKey, queue)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	c.publishEvent(ctx, id, StatusQueued, nil)
	return id, nil
}

// BlockPop removes the next id from the queue, blocking up to maxWait,
// and returns its record. Returns (nil, nil) when no job arrived within
// the wait. If the popped id has no record (reaped under the consumer),
// the pop is treated as empty.
func (c *Client) BlockPop(ctx context.Context, queue string, maxWait time.Duration) (*Job, error) {
	res, err := c.rdb.BLPop(ctx, maxWait, queueKey(queue)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop from queue %s: %w", queue, err)
	}
	// BLPOP returns [key, value].
	if len(res) < 2 {
		return nil, nil
	}
	job, err := c.Get(ctx, res[1])
	if err != nil {
		return nil, err
	}
	if job.Status == StatusUnknown {
		return nil, nil
	}
	return job, nil
}

// SetStatus records a non-terminal status transition. Writes against a
// job that already reached a terminal status are silently ignored.
func (c *Client) SetStatus(ctx context.Context, id string, status Status) error {
	fields := []interface{}{"status", string(status)}
	if status == StatusStarted {
		fields = append(fields, "started_at", formatTime(time.Now()))
	}
	args := append([]interface{}{0}, fields...)
	ok, err := terminalOnceScript.Run(ctx, c.rdb, []string{jobKey(id)}, args...).Int()
	if err != nil {
		return fmt.Errorf("failed to set status for job %s: %w", id, err)
	}
	if ok == 1 {
		c.publishEvent(ctx, id, status, nil)
	}
	return nil
}

// Complete marks the job finished with the handler's result. Returns
// ErrTerminal if the job already reached a terminal status (for example
// a timed-out job whose handler returned late).
func (c *Client) Complete(ctx context.Context, id string, result json.RawMessage) error {
	args := []interface{}{
		int(c.resultTTL / time.Second),
		"status", string(StatusFinished),
		"result", string(result),
		"ended_at", formatTime(time.Now()),
	}
	ok, err := terminalOnceScript.Run(ctx, c.rdb, []string{jobKey(id)}, args...).Int()
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", id, err)
	}
	if ok == 0 {
		return ErrTerminal
	}
	c.publishEvent(ctx, id, StatusFinished, nil)
	return nil
}

// Fail marks the job failed or timed_out with an error envelope.
// Returns ErrTerminal if a terminal status was already published.
func (c *Client) Fail(ctx context.Context, id string, status Status, jobErr *JobError) error {
	if status != StatusFailed && status != StatusTimedOut {
		return fmt.Errorf("fail requires a terminal failure status, got %q", status)
	}
	errJSON, err := json.Marshal(jobErr)
	if err != nil {
		return fmt.Errorf("failed to marshal job error: %w", err)
	}
	args := []interface{}{
		int(c.resultTTL / time.Second),
		"status", string(status),
		"error", string(errJSON),
		"ended_at", formatTime(time.Now()),
	}
	ok, err := terminalOnceScript.Run(ctx, c.rdb, []string{jobKey(id)}, args...).Int()
	if err != nil {
		return fmt.Errorf("failed to fail job %s: %w", id, err)
	}
	if ok == 0 {
		return ErrTerminal
	}
	c.publishEvent(ctx, id, status, jobErr)
	return nil
}

// Get reads a job record. A reaped or never-seen id yields a job with
// StatusUnknown rather than an error; reads are idempotent.
func (c *Client) Get(ctx context.Context, id string) (*Job, error) {
	fields, err := c.rdb.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return &Job{ID: id, Status: StatusUnknown}, nil
	}

	job := &Job{
		ID:         id,
		Queue:      fields["queue"],
		Handler:    fields["handler"],
		Status:     Status(fields["status"]),
		EnqueuedAt: parseTime(fields["enqueued_at"]),
		StartedAt:  parseTime(fields["started_at"]),
		EndedAt:    parseTime(fields["ended_at"]),
	}
	if v, ok := fields["payload"]; ok && v != "" {
		job.Payload = json.RawMessage(v)
	}
	if v, ok := fields["timeout"]; ok {
		job.TimeoutSeconds, _ = strconv.Atoi(v)
	}
	if v, ok := fields["result"]; ok && v != "" {
		job.Result = json.RawMessage(v)
	}
	if v, ok := fields["error"]; ok && v != "" {
		var jobErr JobError
		if err := json.Unmarshal([]byte(v), &jobErr); err == nil {
			job.Error = &jobErr
		}
	}
	return job, nil
}

// QueueDepth returns the approximate number of jobs waiting on a queue.
func (c *Client) QueueDepth(ctx context.Context, queue string) (int64, error) {
	return c.rdb.LLen(ctx, queueKey(queue)).Result()
}

// QueueSeen reports whether the queue has ever had a job enqueued.
// Health reporting uses this to distinguish a freshly started system
// from an unreachable one.
func (c *Client) QueueSeen(ctx context.Context, queue string) (bool, error) {
	return c.rdb.SIsMember(ctx, knownQueuesKey, queue).Result()
}

// Subscribe returns a pub/sub subscription for one job's status events.
// The caller owns the subscription and must close it.
func (c *Client) Subscribe(ctx context.Context, id string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, eventChannel(id))
}

// publishEvent emits a status event. Event delivery is best-effort;
// the job hash remains the source of truth.
func (c *Client) publishEvent(ctx context.Context, id string, status Status, jobErr *JobError) {
	event := Event{
		JobID:     id,
		Status:    status,
		Timestamp: formatTime(time.Now()),
		Error:     jobErr,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	c.rdb.Publish(ctx, eventChannel(id), payload)
}
