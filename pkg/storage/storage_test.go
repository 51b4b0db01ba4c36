package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmaraujo/fiscalflow/pkg/logger"
)

// memStore records uploads in memory.
type memStore struct {
	objects map[string][]byte
}

func newMemStore() *memStore { return &memStore{objects: make(map[string][]byte)} }

func (m *memStore) Store(ctx context.Context, reader io.Reader, key string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	m.objects[key] = data
	return key, nil
}

func (m *memStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.objects[key])), nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memStore) CleanupBefore(ctx context.Context, threshold time.Time) error { return nil }

func TestArchiveBatchUploadsFolder(t *testing.T) {
	folder := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(folder, "nota.pdf"), []byte("invoice"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "metadata.json"), []byte("{}"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(folder, "sub"), 0o755))

	store := newMemStore()
	a := NewArchiver(store, logger.NewTestLogger())
	require.NoError(t, a.ArchiveBatch(context.Background(), "batch-001", folder))

	var keys []string
	for k := range store.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"batches/batch-001/metadata.json", "batches/batch-001/nota.pdf"}, keys)
	assert.Equal(t, []byte("invoice"), store.objects["batches/batch-001/nota.pdf"])
}

func TestArchiveReportKeyIsTimestamped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("workbook"), 0o644))

	store := newMemStore()
	a := NewArchiver(store, logger.NewTestLogger())
	now := time.Date(2026, time.August, 24, 10, 30, 0, 0, time.UTC)
	key, err := a.ArchiveReport(context.Background(), path, now)
	require.NoError(t, err)
	assert.Equal(t, "reports/20260824-103000_pairs.xlsx", key)
	assert.Equal(t, []byte("workbook"), store.objects[key])
}
