// Package testutil provides shared test helpers.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fetcharr/fetcharr/internal/store"
)

// NewDB creates a migrated scratch database that is removed with the test.
func NewDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "fetcharr.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}
