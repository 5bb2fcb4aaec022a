//go:build cgo

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/repochain/repochain/internal/config"
)

func TestOpenLocalStore_SingleConnection(t *testing.T) {
	ctx := context.Background()

	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   "file:" + t.TempDir() + "/repochain.db",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.Equal(t, 1, store.DB.Stats().MaxOpenConnections)
	require.NoError(t, store.Migrate(ctx))
	// Migrate is idempotent, including the added columns.
	require.NoError(t, store.Migrate(ctx))
}
