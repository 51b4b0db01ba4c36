package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/rmaraujo/fiscalflow/internal/batch"
	"github.com/rmaraujo/fiscalflow/internal/models"
	"github.com/rmaraujo/fiscalflow/pkg/logger"
	"github.com/rmaraujo/fiscalflow/pkg/queue"
)

// Archiver mirrors a processed batch folder into object storage.
type Archiver interface {
	ArchiveBatch(ctx context.Context, batchID, folder string) error
}

// BatchWorker consumes batch-processing tasks from the queue and runs
// them through the orchestrator. One worker process serves both the
// default queue and the low-priority retry queue.
type BatchWorker struct {
	BaseWorker
	orchestrator *batch.Orchestrator
	queue        queue.Queue
	archiver     Archiver
	batchTimeout time.Duration
}

func NewBatchWorker(cfg Config, orch *batch.Orchestrator, q queue.Queue, batchTimeout time.Duration, log logger.Logger) *BatchWorker {
	if cfg.Queues == nil {
		cfg.Queues = map[string]int{"default": 6, "low": 1}
	}
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * 30 * time.Second
			},
		},
	)

	w := &BatchWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   log.Named("worker"),
			stopChan: make(chan struct{}),
		},
		orchestrator: orch,
		queue:        q,
		batchTimeout: batchTimeout,
	}
	w.mux.HandleFunc(queue.TaskTypeBatchProcess, w.handleBatchTask)
	return w
}

// SetArchiver wires the optional object-storage archiver. Processed
// batch folders are mirrored after each successful run.
func (w *BatchWorker) SetArchiver(a Archiver) { w.archiver = a }

// Start runs the server until the context is cancelled or Stop is
// called.
func (w *BatchWorker) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- w.server.Run(w.mux)
	}()

	w.logger.Info("batch worker started")
	select {
	case <-ctx.Done():
		w.server.Stop()
		w.server.Shutdown()
		return ctx.Err()
	case <-w.stopChan:
		w.server.Shutdown()
		return nil
	case err := <-errChan:
		return err
	}
}

func (w *BatchWorker) handleBatchTask(ctx context.Context, t *asynq.Task) error {
	var task queue.BatchTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("unmarshal batch task: %w", err)
	}

	w.logger.Info("processing batch",
		logger.String("taskId", task.ID),
		logger.String("folder", task.Folder),
		logger.Bool("retry", task.Retry),
	)
	started := time.Now()

	batchCtx, cancel := context.WithTimeout(ctx, w.batchTimeout)
	defer cancel()

	b, err := w.orchestrator.Process(batchCtx, task.Folder)
	status := &queue.TaskStatus{
		TaskID:     task.ID,
		Folder:     task.Folder,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	switch {
	case err == nil:
		status.Status = "completed"
	case b != nil && b.Status == models.BatchTimeout:
		status.Status = "timeout"
		status.Error = err.Error()
	default:
		status.Status = "failed"
		status.Error = err.Error()
	}
	if saveErr := w.queue.SaveFinalStatus(ctx, status); saveErr != nil {
		w.logger.Error("save task status failed",
			logger.String("taskId", task.ID),
			logger.Error(saveErr),
		)
	}

	if err != nil {
		w.logger.Error("batch task failed",
			logger.String("taskId", task.ID),
			logger.String("folder", task.Folder),
			logger.Error(err),
		)
		return err
	}

	// Archiving is best effort; a storage hiccup must not fail the task.
	if w.archiver != nil {
		if aErr := w.archiver.ArchiveBatch(ctx, b.BatchID, task.Folder); aErr != nil {
			w.logger.Warn("batch archive failed",
				logger.String("batchId", b.BatchID),
				logger.Error(aErr),
			)
		}
	}

	w.logger.Info("batch task completed",
		logger.String("taskId", task.ID),
		logger.Int("documents", len(b.Documents)),
		logger.Int("pairs", len(b.Pairs)),
		logger.Duration("elapsed", time.Since(started)),
	)
	return nil
}
