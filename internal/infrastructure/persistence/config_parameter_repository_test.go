package persistence

import (
	"context"
	"testing"

	"github.com/erp/salesync/internal/domain/replication"
	"github.com/erp/salesync/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormConfigParameters(t *testing.T) {
	ctx := context.Background()

	t.Run("empty table yields an incomplete disabled config", func(t *testing.T) {
		params := NewGormConfigParameters(newTestDB(t))

		cfg, err := params.SyncConfig(ctx)
		require.NoError(t, err)
		assert.False(t, cfg.Enabled)
		assert.False(t, cfg.IsComplete())
	})

	t.Run("save then read round trip and overwrite", func(t *testing.T) {
		params := NewGormConfigParameters(newTestDB(t))
		want := replication.SyncConfig{URL: "https://erp.example.com", Database: "prod", UserID: 2, Password: "pw", Enabled: true}

		require.NoError(t, params.SaveSyncConfig(ctx, want))
		got, err := params.SyncConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		want.Enabled = false
		want.Password = "rotated"
		require.NoError(t, params.SaveSyncConfig(ctx, want))
		got, err = params.SyncConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("malformed uid reads as unset", func(t *testing.T) {
		db := newTestDB(t)
		require.NoError(t, db.Create(&models.ConfigParameterModel{Key: replication.ParamServerUID, Value: "admin"}).Error)

		cfg, err := NewGormConfigParameters(db).SyncConfig(ctx)
		require.NoError(t, err)
		assert.Zero(t, cfg.UserID)
		assert.Contains(t, cfg.MissingFields(), "user_id")
	})
}
