// Package storage archives processed batch folders and generated
// reports in object storage, keyed by batch id.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rmaraujo/fiscalflow/pkg/logger"
	"github.com/rmaraujo/fiscalflow/pkg/storage/minio"
)

// Storage is the object-store contract the archiver depends on.
type Storage interface {
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

// New returns the configured object-store backend.
func New(log logger.Logger) (Storage, error) {
	return minio.NewClient(log)
}

// Archiver mirrors batch folders and reports into object storage.
type Archiver struct {
	store Storage
	log   logger.Logger
}

func NewArchiver(store Storage, log logger.Logger) *Archiver {
	return &Archiver{store: store, log: log.Named("archiver")}
}

// ArchiveBatch uploads every file of a processed batch folder under
// batches/<batchID>/.
func (a *Archiver) ArchiveBatch(ctx context.Context, batchID, folder string) error {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return fmt.Errorf("read batch folder %s: %w", folder, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(folder, e.Name())
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		key := fmt.Sprintf("batches/%s/%s", batchID, e.Name())
		_, err = a.store.Store(ctx, f, key)
		f.Close()
		if err != nil {
			return err
		}
	}
	a.log.Info("batch archived",
		logger.String("batchId", batchID),
		logger.Int("files", len(entries)),
	)
	return nil
}

// ArchiveReport uploads a generated report under reports/, timestamped
// so successive runs don't overwrite each other.
func (a *Archiver) ArchiveReport(ctx context.Context, path string, now time.Time) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open report %s: %w", path, err)
	}
	defer f.Close()

	key := fmt.Sprintf("reports/%s_%s", now.Format("20060102-150405"), filepath.Base(path))
	if _, err := a.store.Store(ctx, f, key); err != nil {
		return "", err
	}
	a.log.Info("report archived", logger.String("key", key))
	return key, nil
}
