// Package testutil provides shared test helpers for setting up storage and
// record stores.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/starford/tabula/internal/models"
	"github.com/starford/tabula/internal/recordstore"
	"github.com/starford/tabula/internal/storage"
)

// TempFS creates a file storage provider over a temporary directory.
func TempFS(t *testing.T) *storage.FS {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

// TempSQLite creates a temporary SQLite storage provider that is closed on cleanup.
func TempSQLite(t *testing.T) *storage.SQLite {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "tabula-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// SeededStore returns an in-memory store holding n records named "row 00"
// to "row NN". Records are added in order, so the table lists the last one
// first.
func SeededStore(t *testing.T, n int, opts ...recordstore.Option) *recordstore.Store {
	t.Helper()
	ctx := context.Background()
	s := recordstore.Open(ctx, storage.NewMemory(), opts...)
	for i := range n {
		if _, err := s.Add(ctx, models.Input{
			Name:  fmt.Sprintf("row %02d", i),
			Date:  fmt.Sprintf("2024-01-%02d", i%28+1),
			Value: int64(i),
		}); err != nil {
			t.Fatal(err)
		}
	}
	return s
}
