// Command ingest runs the full pipeline once over a root folder of
// batch folders and writes the reconciliation report. It is the
// queue-less entrypoint for cron runs and local reprocessing.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rmaraujo/fiscalflow/config"
	"github.com/rmaraujo/fiscalflow/internal/batch"
	"github.com/rmaraujo/fiscalflow/internal/export"
	"github.com/rmaraujo/fiscalflow/internal/extract"
	"github.com/rmaraujo/fiscalflow/internal/models"
	"github.com/rmaraujo/fiscalflow/internal/pairing"
	"github.com/rmaraujo/fiscalflow/internal/pipeline"
	"github.com/rmaraujo/fiscalflow/pkg/logger"
	"github.com/rmaraujo/fiscalflow/pkg/storage"
)

func main() {
	root := flag.String("root", "inbox", "root folder containing one subfolder per email batch")
	output := flag.String("output", "", "report path (overrides configuration)")
	flag.Parse()

	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("console"),
		logger.WithOutputPaths([]string{"stdout", "logs/ingest.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Get()
	outputPath := cfg.Export.OutputPath
	if *output != "" {
		outputPath = *output
	}

	p := pipeline.New(cfg.Pipeline, log)
	registry := extract.DefaultRegistry(log)
	pairer := pairing.NewEngine(cfg.Batch.ValueTolerance, log)
	orch := batch.NewOrchestrator(p, registry, pairer, cfg.Batch, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	batches, err := orch.ProcessRoot(ctx, *root)
	if err != nil {
		log.Error("run failed", logger.Error(err))
		os.Exit(1)
	}

	writer := export.NewWriter(outputPath, log)
	path, err := writer.WriteReport(batches, time.Now())
	if err != nil {
		log.Error("report failed", logger.Error(err))
		os.Exit(1)
	}

	metricsPath := filepath.Join(filepath.Dir(path),
		fmt.Sprintf("metrics_%s.json", start.Format("20060102_150405")))
	if err := orch.Metrics().WriteJSON(metricsPath); err != nil {
		log.Warn("metrics export failed", logger.Error(err))
	}

	if config.ArchiveEnabled() {
		store, err := storage.New(log)
		if err != nil {
			log.Error("object storage unavailable, report not archived", logger.Error(err))
		} else if _, err := storage.NewArchiver(store, log).ArchiveReport(ctx, path, time.Now()); err != nil {
			log.Error("report archive failed", logger.Error(err))
		}
	}

	summary := summarize(batches)
	log.Info("run finished",
		logger.Int("batches", len(batches)),
		logger.Int("documents", summary.documents),
		logger.Int("pairs", summary.pairs),
		logger.Int("timeouts", summary.timeouts),
		logger.Duration("elapsed", time.Since(start)),
	)
	fmt.Printf("report: %s (%d batches, %d pairs)\n", path, len(batches), summary.pairs)
}

type runSummary struct {
	documents int
	pairs     int
	timeouts  int
}

func summarize(batches []*models.Batch) runSummary {
	var s runSummary
	for _, b := range batches {
		if b == nil {
			continue
		}
		s.documents += len(b.Documents)
		s.pairs += len(b.Pairs)
		if b.Status == models.BatchTimeout {
			s.timeouts++
		}
	}
	return s
}
