// Package queue wraps asynq for batch-processing tasks: submission,
// status tracking in redis, and re-enqueueing of timed-out batches.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/rmaraujo/fiscalflow/config"
)

// TaskTypeBatchProcess is the single task type the worker consumes.
const TaskTypeBatchProcess = "batch:process"

// Queue is the surface handlers and the orchestrator depend on.
type Queue interface {
	EnqueueBatch(ctx context.Context, task *BatchTask) error
	EnqueueBatchRetry(ctx context.Context, folder string) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	SaveFinalStatus(ctx context.Context, status *TaskStatus) error
}

// BatchTask asks the worker to process one batch folder.
type BatchTask struct {
	ID        string    `json:"id"`
	Folder    string    `json:"folder"`
	Retry     bool      `json:"retry"`
	CreatedAt time.Time `json:"createdAt"`
}

// TaskStatus is the status record persisted in redis.
type TaskStatus struct {
	TaskID     string    `json:"taskId"`
	Folder     string    `json:"folder,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// AsynqQueue implements Queue on asynq + redis.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
}

// statusTTL bounds how long finished-task statuses linger in redis.
const statusTTL = 24 * time.Hour

// New builds the queue from the redis configuration.
func New() *AsynqQueue {
	rc := config.GetRedisConfig()
	redisOpt := asynq.RedisClientOpt{Addr: rc.Addr, DB: rc.DB}
	return &AsynqQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		redis:     redis.NewClient(&redis.Options{Addr: rc.Addr, DB: rc.DB}),
	}
}

// EnqueueBatch submits a batch folder for processing.
func (q *AsynqQueue) EnqueueBatch(ctx context.Context, task *BatchTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal batch task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(3),
		asynq.Timeout(config.Get().Batch.Timeout + time.Minute),
		asynq.TaskID(task.ID),
	}
	if task.Retry {
		// Timed-out batches run isolated in the low queue so a stuck
		// document can't starve fresh work.
		opts = append(opts, asynq.Queue("low"))
	}

	t := asynq.NewTask(TaskTypeBatchProcess, payload, opts...)
	if _, err := q.client.EnqueueContext(ctx, t); err != nil {
		return fmt.Errorf("enqueue batch task: %w", err)
	}
	return nil
}

// EnqueueBatchRetry re-queues a timed-out batch folder.
func (q *AsynqQueue) EnqueueBatchRetry(ctx context.Context, folder string) error {
	return q.EnqueueBatch(ctx, &BatchTask{Folder: folder, Retry: true})
}

func statusKey(taskID string) string {
	return "fiscalflow:task_status:" + taskID
}

// GetTaskStatus reads the persisted status, falling back to the live
// queue state when nothing was saved yet.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := q.redis.Get(ctx, statusKey(taskID)).Bytes()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get status from redis: %w", err)
	}
	if err == nil {
		var status TaskStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return nil, fmt.Errorf("unmarshal status: %w", err)
		}
		return &status, nil
	}

	var info *asynq.TaskInfo
	var lastErr error
	for _, queueName := range []string{"default", "low"} {
		info, lastErr = q.inspector.GetTaskInfo(queueName, taskID)
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("task %s not found: %w", taskID, lastErr)
	}
	return convertTaskInfo(info), nil
}

// SaveFinalStatus persists a terminal status with an expiry.
func (q *AsynqQueue) SaveFinalStatus(ctx context.Context, status *TaskStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := q.redis.Set(ctx, statusKey(status.TaskID), data, statusTTL).Err(); err != nil {
		return fmt.Errorf("save status: %w", err)
	}
	return nil
}

// Close releases the underlying connections.
func (q *AsynqQueue) Close() error {
	if err := q.client.Close(); err != nil {
		return err
	}
	return q.redis.Close()
}

func convertTaskInfo(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{TaskID: info.ID, StartedAt: info.NextProcessAt}
	switch info.State {
	case asynq.TaskStatePending:
		status.Status = "pending"
	case asynq.TaskStateActive:
		status.Status = "running"
	case asynq.TaskStateCompleted:
		status.Status = "completed"
		status.FinishedAt = info.CompletedAt
	case asynq.TaskStateRetry, asynq.TaskStateArchived:
		status.Status = "failed"
		status.Error = info.LastErr
	default:
		status.Status = "unknown"
	}
	return status
}
