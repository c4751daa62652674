package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/salesync/internal/domain/commission"
	"github.com/erp/salesync/internal/domain/shared"
	"github.com/erp/salesync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPayoutIssuer implements commission.PayoutIssuer on payout_documents
type GormPayoutIssuer struct {
	db *gorm.DB
}

// NewGormPayoutIssuer creates a new GormPayoutIssuer
func NewGormPayoutIssuer(db *gorm.DB) *GormPayoutIssuer {
	return &GormPayoutIssuer{db: db}
}

// Issue claims the record for the document and inserts the document in one
// transaction. The claim is guarded by the version the record was read at.
func (r *GormPayoutIssuer) Issue(ctx context.Context, rec *commission.Record, doc *commission.PayoutDocument) error {
	var m models.PayoutDocumentModel
	if err := m.FromDomain(doc); err != nil {
		return fmt.Errorf("issue payout: %w", err)
	}
	current := rec.Version
	now := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.CommissionRecordModel{}).
			Where("id = ? AND version = ? AND payout_document_id IS NULL", rec.ID, current).
			Updates(map[string]any{
				"state":              string(commission.StateInPayment),
				"payout_document_id": doc.ID,
				"payout_settled":     false,
				"version":            current + 1,
				"updated_at":         now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return claimFailure(tx, rec.ID)
		}
		return tx.Create(&m).Error
	})
	if err != nil {
		if errors.Is(err, commission.ErrAlreadyInPayment) ||
			errors.Is(err, commission.ErrRecordNotFound) ||
			errors.Is(err, shared.ErrConcurrencyConflict) {
			return err
		}
		return fmt.Errorf("issue payout: %w", err)
	}
	rec.State = commission.StateInPayment
	rec.PayoutDocumentID = &doc.ID
	rec.PayoutSettled = false
	rec.UpdatedAt = now
	rec.IncrementVersion()
	return nil
}

// claimFailure explains why a payout claim matched no row
func claimFailure(tx *gorm.DB, id uuid.UUID) error {
	var current models.CommissionRecordModel
	err := tx.Select("id", "payout_document_id").Where("id = ?", id).First(&current).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return commission.ErrRecordNotFound
	case err != nil:
		return err
	case current.PayoutDocumentID != nil:
		return commission.ErrAlreadyInPayment
	}
	return shared.ErrConcurrencyConflict
}

// FindByID finds a payout document by ID
func (r *GormPayoutIssuer) FindByID(ctx context.Context, id uuid.UUID) (*commission.PayoutDocument, error) {
	var m models.PayoutDocumentModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, commission.ErrPayoutNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.ToDomain()
}

// Save updates a payout document
func (r *GormPayoutIssuer) Save(ctx context.Context, doc *commission.PayoutDocument) error {
	var m models.PayoutDocumentModel
	if err := m.FromDomain(doc); err != nil {
		return fmt.Errorf("save payout: %w", err)
	}
	if err := r.db.WithContext(ctx).Save(&m).Error; err != nil {
		return fmt.Errorf("save payout: %w", err)
	}
	return nil
}

// GormServiceItemCatalog implements commission.ServiceItemCatalog on payout_items
type GormServiceItemCatalog struct {
	db *gorm.DB
}

// NewGormServiceItemCatalog creates a new GormServiceItemCatalog
func NewGormServiceItemCatalog(db *gorm.DB) *GormServiceItemCatalog {
	return &GormServiceItemCatalog{db: db}
}

// FindOrCreate returns the item with the given name, creating it once
func (c *GormServiceItemCatalog) FindOrCreate(ctx context.Context, name string) (*commission.ServiceItem, error) {
	db := c.db.WithContext(ctx)
	item := commission.NewServiceItem(name)
	var m models.PayoutItemModel
	m.FromDomain(item)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&m).Error
	if err != nil {
		return nil, fmt.Errorf("create payout item: %w", err)
	}

	var found models.PayoutItemModel
	if err := db.Where("name = ?", name).First(&found).Error; err != nil {
		return nil, fmt.Errorf("load payout item: %w", err)
	}
	return found.ToDomain(), nil
}
