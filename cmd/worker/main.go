package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rmaraujo/fiscalflow/config"
	"github.com/rmaraujo/fiscalflow/internal/batch"
	"github.com/rmaraujo/fiscalflow/internal/extract"
	"github.com/rmaraujo/fiscalflow/internal/pairing"
	"github.com/rmaraujo/fiscalflow/internal/pipeline"
	"github.com/rmaraujo/fiscalflow/pkg/logger"
	"github.com/rmaraujo/fiscalflow/pkg/queue"
	"github.com/rmaraujo/fiscalflow/pkg/storage"
	"github.com/rmaraujo/fiscalflow/pkg/worker"
)

func main() {
	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Get()
	p := pipeline.New(cfg.Pipeline, log)
	registry := extract.DefaultRegistry(log)
	pairer := pairing.NewEngine(cfg.Batch.ValueTolerance, log)
	orch := batch.NewOrchestrator(p, registry, pairer, cfg.Batch, log)

	q := queue.New()
	defer q.Close()
	orch.SetRetryEnqueuer(q)

	rc := config.GetRedisConfig()
	batchWorker := worker.NewBatchWorker(worker.Config{
		RedisAddr:   rc.Addr,
		RedisDB:     rc.DB,
		Concurrency: cfg.Batch.Concurrency,
		Queues: map[string]int{
			"default": 6,
			"low":     1,
		},
	}, orch, q, cfg.Batch.Timeout, log)

	if config.ArchiveEnabled() {
		store, err := storage.New(log)
		if err != nil {
			log.Error("object storage unavailable, archiving disabled", logger.Error(err))
		} else {
			batchWorker.SetArchiver(storage.NewArchiver(store, log))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := batchWorker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker exited", logger.Error(err))
		os.Exit(1)
	}
	log.Info("worker stopped")
}
