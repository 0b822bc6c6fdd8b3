package journal

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/store"
)

// Runs against a real Postgres when TEST_DATABASE_URL is set.
func TestRepository_SaveIsIdempotent(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := store.NewDB(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	repo := NewRepository(db.Client)
	require.NoError(t, repo.EnsureSchema(ctx))

	evt := FromCommit("op-7", sampleCommit())
	evt.ClassID = 900000 + int64(os.Getpid())
	t.Cleanup(func() {
		_, _ = db.Client.ExecContext(ctx, `DELETE FROM commit_batches WHERE class_id = $1`, evt.ClassID)
	})

	inserted, err := repo.Save(ctx, evt)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Save(ctx, evt)
	require.NoError(t, err)
	assert.False(t, inserted)

	batches, err := repo.ListBatches(ctx, evt.ClassID, 10)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, evt.BatchID, batches[0].BatchID)
	assert.Equal(t, "2024-03-07", batches[0].Date)
	assert.Equal(t, 2, batches[0].Entries)
}
