package persistence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/erp/salesync/internal/domain/replication"
	"github.com/erp/salesync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormConfigParameters reads and writes the sync settings kept in the
// config_parameters key/value table.
type GormConfigParameters struct {
	db *gorm.DB
}

// NewGormConfigParameters creates a new GormConfigParameters
func NewGormConfigParameters(db *gorm.DB) *GormConfigParameters {
	return &GormConfigParameters{db: db}
}

var syncParamKeys = []string{
	replication.ParamServerURL,
	replication.ParamServerDB,
	replication.ParamServerUID,
	replication.ParamServerPassword,
	replication.ParamDataSync,
}

// SyncConfig implements replication.ConfigProvider. Missing keys leave the
// matching field unset; a malformed uid reads as zero.
func (r *GormConfigParameters) SyncConfig(ctx context.Context) (replication.SyncConfig, error) {
	var rows []models.ConfigParameterModel
	if err := r.db.WithContext(ctx).Where("key IN ?", syncParamKeys).Find(&rows).Error; err != nil {
		return replication.SyncConfig{}, fmt.Errorf("load sync parameters: %w", err)
	}
	params := make(map[string]string, len(rows))
	for _, row := range rows {
		params[row.Key] = strings.TrimSpace(row.Value)
	}

	uid, _ := strconv.ParseInt(params[replication.ParamServerUID], 10, 64)
	enabled, _ := strconv.ParseBool(params[replication.ParamDataSync])
	return replication.SyncConfig{
		URL:      params[replication.ParamServerURL],
		Database: params[replication.ParamServerDB],
		UserID:   uid,
		Password: params[replication.ParamServerPassword],
		Enabled:  enabled,
	}, nil
}

// SaveSyncConfig implements replication.ConfigWriter
func (r *GormConfigParameters) SaveSyncConfig(ctx context.Context, cfg replication.SyncConfig) error {
	now := time.Now()
	uid := ""
	if cfg.UserID > 0 {
		uid = strconv.FormatInt(cfg.UserID, 10)
	}
	rows := []models.ConfigParameterModel{
		{Key: replication.ParamServerURL, Value: cfg.URL, UpdatedAt: now},
		{Key: replication.ParamServerDB, Value: cfg.Database, UpdatedAt: now},
		{Key: replication.ParamServerUID, Value: uid, UpdatedAt: now},
		{Key: replication.ParamServerPassword, Value: cfg.Password, UpdatedAt: now},
		{Key: replication.ParamDataSync, Value: strconv.FormatBool(cfg.Enabled), UpdatedAt: now},
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("save sync parameters: %w", err)
	}
	return nil
}
