package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/salesync/internal/domain/replication"
	"github.com/erp/salesync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormIdentityMap implements replication.IdentityMap using GORM.
// Both (entity_type, local_id) and (entity_type, remote_id) are unique.
type GormIdentityMap struct {
	db *gorm.DB
}

// NewGormIdentityMap creates a new GormIdentityMap
func NewGormIdentityMap(db *gorm.DB) *GormIdentityMap {
	return &GormIdentityMap{db: db}
}

// Lookup returns the remote id bound to a local entity
func (r *GormIdentityMap) Lookup(ctx context.Context, t replication.EntityType, id replication.LocalID) (replication.RemoteID, bool, error) {
	var m models.IdentityModel
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND local_id = ?", string(t), int64(id)).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup identity %s/%d: %w", t, id, err)
	}
	return replication.RemoteID(m.RemoteID), true, nil
}

// LookupLocal returns the local entity bound to a remote id
func (r *GormIdentityMap) LookupLocal(ctx context.Context, t replication.EntityType, id replication.RemoteID) (replication.LocalID, bool, error) {
	var m models.IdentityModel
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND remote_id = ?", string(t), int64(id)).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup local identity %s/%d: %w", t, id, err)
	}
	return replication.LocalID(m.LocalID), true, nil
}

// Bind records the binding. Re-binding the same pair is a no-op; a side
// already bound to a different counterpart returns ErrIdentityConflict.
func (r *GormIdentityMap) Bind(ctx context.Context, t replication.EntityType, local replication.LocalID, remote replication.RemoteID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []models.IdentityModel
		if err := tx.Where("entity_type = ? AND (local_id = ? OR remote_id = ?)", string(t), int64(local), int64(remote)).
			Find(&existing).Error; err != nil {
			return fmt.Errorf("bind identity %s/%d: %w", t, local, err)
		}
		for _, m := range existing {
			if m.LocalID == int64(local) && m.RemoteID == int64(remote) {
				return nil
			}
		}
		if len(existing) > 0 {
			return fmt.Errorf("%w: %s local %d remote %d", replication.ErrIdentityConflict, t, local, remote)
		}

		err := tx.Create(&models.IdentityModel{
			EntityType: string(t),
			LocalID:    int64(local),
			RemoteID:   int64(remote),
			CreatedAt:  time.Now(),
		}).Error
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s local %d remote %d", replication.ErrIdentityConflict, t, local, remote)
		}
		if err != nil {
			return fmt.Errorf("bind identity %s/%d: %w", t, local, err)
		}
		return nil
	})
}

// Unbind removes the binding of a local entity, if any
func (r *GormIdentityMap) Unbind(ctx context.Context, t replication.EntityType, id replication.LocalID) error {
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND local_id = ?", string(t), int64(id)).
		Delete(&models.IdentityModel{}).Error
	if err != nil {
		return fmt.Errorf("unbind identity %s/%d: %w", t, id, err)
	}
	return nil
}
