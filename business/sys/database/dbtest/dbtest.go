// Package dbtest contains supporting code for running business layer tests
// against a throwaway database.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/civicledger/participation/business/sys/database"
	"github.com/civicledger/participation/foundation/logger"
	"go.uber.org/zap"
)

// New opens a fresh database in a temporary directory, applies the schema,
// and returns it with a logger for test use. The database is closed when the
// test completes.
func New(t *testing.T) (*sql.DB, *zap.SugaredLogger) {
	t.Helper()

	log, err := logger.New("TEST")
	if err != nil {
		t.Fatalf("constructing logger: %s", err)
	}

	db, err := database.Open(database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("opening database: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := database.Migrate(ctx, db); err != nil {
		t.Fatalf("migrating database: %s", err)
	}

	t.Cleanup(func() {
		db.Close()
		log.Sync()
	})

	return db, log
}
