package queue

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
)

func TestConvertTaskInfo(t *testing.T) {
	done := time.Date(2026, time.August, 24, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		state      asynq.TaskState
		wantStatus string
	}{
		{asynq.TaskStatePending, "pending"},
		{asynq.TaskStateActive, "running"},
		{asynq.TaskStateCompleted, "completed"},
		{asynq.TaskStateRetry, "failed"},
		{asynq.TaskStateArchived, "failed"},
	}
	for _, tc := range cases {
		info := &asynq.TaskInfo{ID: "t1", State: tc.state, CompletedAt: done, LastErr: "boom"}
		status := convertTaskInfo(info)
		assert.Equal(t, tc.wantStatus, status.Status, "state %v", tc.state)
		assert.Equal(t, "t1", status.TaskID)
	}

	completed := convertTaskInfo(&asynq.TaskInfo{ID: "t2", State: asynq.TaskStateCompleted, CompletedAt: done})
	assert.Equal(t, done, completed.FinishedAt)

	failed := convertTaskInfo(&asynq.TaskInfo{ID: "t3", State: asynq.TaskStateArchived, LastErr: "boom"})
	assert.Equal(t, "boom", failed.Error)
}

func TestStatusKey(t *testing.T) {
	assert.Equal(t, "fiscalflow:task_status:abc", statusKey("abc"))
}
