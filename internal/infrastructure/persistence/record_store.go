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

// GormRecordStore implements replication.LocalStore on the local_records table
type GormRecordStore struct {
	db *gorm.DB
}

// NewGormRecordStore creates a new GormRecordStore
func NewGormRecordStore(db *gorm.DB) *GormRecordStore {
	return &GormRecordStore{db: db}
}

// Create persists records and their children in one transaction, assigning ids
func (s *GormRecordStore) Create(ctx context.Context, records []*replication.Record) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for _, rec := range records {
			if err := insertRecord(tx, rec, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertRecord(tx *gorm.DB, rec *replication.Record, now time.Time) error {
	rec.CreatedAt, rec.UpdatedAt = now, now
	var m models.LocalRecordModel
	if err := m.FromDomain(rec); err != nil {
		return err
	}
	m.ID = 0
	if err := tx.Create(&m).Error; err != nil {
		return fmt.Errorf("create %s record: %w", rec.Type, err)
	}
	rec.ID = replication.LocalID(m.ID)

	for _, child := range rec.Children {
		parent := rec.ID
		child.ParentID = &parent
		child.Values[child.ParentField] = int64(parent)
		if schema, err := replication.SchemaFor(child.Type); err == nil {
			child.ScopeKey = replication.ScopeKey(schema, child.Values)
		}
		if err := insertRecord(tx, child, now); err != nil {
			return err
		}
	}
	return nil
}

// Update merges values into the given records
func (s *GormRecordStore) Update(ctx context.Context, t replication.EntityType, ids []replication.LocalID, values replication.Values) ([]*replication.Record, error) {
	schema, err := replication.SchemaFor(t)
	if err != nil {
		return nil, err
	}
	var out []*replication.Record
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for _, id := range ids {
			rec, err := findRecord(tx, t, id)
			if err != nil {
				return err
			}
			for k, v := range values {
				rec.Values[k] = v
			}
			rec.Name = rec.Values.Name()
			rec.ScopeKey = replication.ScopeKey(schema, rec.Values)
			rec.UpdatedAt = now

			var m models.LocalRecordModel
			if err := m.FromDomain(rec); err != nil {
				return err
			}
			if err := tx.Model(&models.LocalRecordModel{}).Where("id = ?", m.ID).Updates(map[string]any{
				"name":         m.Name,
				"name_key":     m.NameKey,
				"scope_key":    m.ScopeKey,
				"field_values": m.ValuesJSON,
				"updated_at":   m.UpdatedAt,
			}).Error; err != nil {
				return fmt.Errorf("update %s record %d: %w", t, id, err)
			}
			if err := loadChildren(tx, rec); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes records and their descendants. Unknown ids are skipped.
func (s *GormRecordStore) Delete(ctx context.Context, t replication.EntityType, ids []replication.LocalID) ([]*replication.Record, error) {
	var removed []*replication.Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			rec, err := findRecord(tx, t, id)
			if errors.Is(err, replication.ErrRecordNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := loadChildren(tx, rec); err != nil {
				return err
			}
			tree := flatten(rec)
			rowIDs := make([]int64, 0, len(tree))
			for _, r := range tree {
				rowIDs = append(rowIDs, int64(r.ID))
			}
			if err := tx.Where("id IN ?", rowIDs).Delete(&models.LocalRecordModel{}).Error; err != nil {
				return fmt.Errorf("delete %s record %d: %w", t, id, err)
			}
			removed = append(removed, tree...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// Get loads one record with its children
func (s *GormRecordStore) Get(ctx context.Context, t replication.EntityType, id replication.LocalID) (*replication.Record, error) {
	db := s.db.WithContext(ctx)
	rec, err := findRecord(db, t, id)
	if err != nil {
		return nil, err
	}
	if err := loadChildren(db, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// FindByIDs loads the existing records of one type, in id order
func (s *GormRecordStore) FindByIDs(ctx context.Context, t replication.EntityType, ids []replication.LocalID) ([]*replication.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}
	db := s.db.WithContext(ctx)
	var rows []models.LocalRecordModel
	if err := db.Where("entity_type = ? AND id IN ?", string(t), raw).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find %s records: %w", t, err)
	}
	out := make([]*replication.Record, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		if err := loadChildren(db, rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ExistsByName reports whether another record has the same name key in scope
func (s *GormRecordStore) ExistsByName(ctx context.Context, t replication.EntityType, nameKey, scopeKey string, exclude replication.LocalID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.LocalRecordModel{}).
		Where("entity_type = ? AND name_key = ? AND scope_key = ? AND id <> ?", string(t), nameKey, scopeKey, int64(exclude)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check %s name: %w", t, err)
	}
	return count > 0, nil
}

func findRecord(db *gorm.DB, t replication.EntityType, id replication.LocalID) (*replication.Record, error) {
	var m models.LocalRecordModel
	err := db.Where("entity_type = ? AND id = ?", string(t), int64(id)).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s %d", replication.ErrRecordNotFound, t, id)
	}
	if err != nil {
		return nil, fmt.Errorf("find %s record %d: %w", t, id, err)
	}
	return m.ToDomain()
}

func loadChildren(db *gorm.DB, rec *replication.Record) error {
	var rows []models.LocalRecordModel
	if err := db.Where("parent_id = ?", int64(rec.ID)).Order("id").Find(&rows).Error; err != nil {
		return fmt.Errorf("load lines of %s %d: %w", rec.Type, rec.ID, err)
	}
	rec.Children = rec.Children[:0]
	for i := range rows {
		child, err := rows[i].ToDomain()
		if err != nil {
			return err
		}
		if err := loadChildren(db, child); err != nil {
			return err
		}
		rec.Children = append(rec.Children, child)
	}
	return nil
}

func flatten(rec *replication.Record) []*replication.Record {
	out := []*replication.Record{rec}
	for _, child := range rec.Children {
		out = append(out, flatten(child)...)
	}
	return out
}

// GormPartnerDirectory resolves customer names from the local partner records
type GormPartnerDirectory struct {
	db *gorm.DB
}

// NewGormPartnerDirectory creates a new GormPartnerDirectory
func NewGormPartnerDirectory(db *gorm.DB) *GormPartnerDirectory {
	return &GormPartnerDirectory{db: db}
}

// PartnerName returns the display name of a local partner
func (d *GormPartnerDirectory) PartnerName(ctx context.Context, partnerID int64) (string, error) {
	rec, err := findRecord(d.db.WithContext(ctx), replication.EntityPartner, replication.LocalID(partnerID))
	if err != nil {
		return "", err
	}
	return rec.Name, nil
}
