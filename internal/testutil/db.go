package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/regcascade/internal/infrastructure/sqlite"
	"github.com/zjrosen/regcascade/internal/ledger"
)

// NewTestLedger opens a fresh ledger database under t.TempDir().
// The database is closed when the test completes.
func NewTestLedger(t *testing.T) ledger.Repository {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db.Invocations()
}
