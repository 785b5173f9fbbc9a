package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// ErrAlreadyQueued is returned when analysis for the same job is still held by
// the queue.
var ErrAlreadyQueued = errors.New("analysis already queued for job")

// Policy controls how analysis tasks are retried and retained.
type Policy struct {
	MaxRetry  int
	Timeout   time.Duration
	Retention time.Duration
}

// DefaultPolicy suits documents of a few megabytes.
var DefaultPolicy = Policy{
	MaxRetry:  3,
	Timeout:   5 * time.Minute,
	Retention: 24 * time.Hour,
}

type Client struct {
	enqueuer *asynq.Client
	name     string
	policy   Policy
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return NewClientWithPolicy(redisOpt, queueName, DefaultPolicy)
}

func NewClientWithPolicy(redisOpt asynq.RedisClientOpt, queueName string, policy Policy) *Client {
	return &Client{
		enqueuer: asynq.NewClient(redisOpt),
		name:     queueName,
		policy:   policy,
	}
}

func (c *Client) Queue() string {
	return c.name
}

// EnqueueAnalyzeDocument schedules analysis of an uploaded document. The job
// id is used as the task id, so a second enqueue for the same job reports
// ErrAlreadyQueued.
func (c *Client) EnqueueAnalyzeDocument(ctx context.Context, payload AnalyzeDocumentPayload) (*asynq.TaskInfo, error) {
	task, err := NewAnalyzeDocumentTask(payload)
	if err != nil {
		return nil, err
	}
	info, err := c.enqueuer.EnqueueContext(ctx, task, c.policy.options(c.name, payload.JobID)...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyQueued, payload.JobID)
	}
	return info, err
}

func (p Policy) options(queueName, taskID string) []asynq.Option {
	opts := []asynq.Option{asynq.Queue(queueName), asynq.TaskID(taskID)}
	if p.MaxRetry >= 0 {
		opts = append(opts, asynq.MaxRetry(p.MaxRetry))
	}
	if p.Timeout > 0 {
		opts = append(opts, asynq.Timeout(p.Timeout))
	}
	if p.Retention > 0 {
		opts = append(opts, asynq.Retention(p.Retention))
	}
	return opts
}

func (c *Client) Close() error {
	return c.enqueuer.Close()
}
