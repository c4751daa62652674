package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/salesync/internal/domain/replication"
)

// IdentityModel binds a local entity to its remote counterpart
type IdentityModel struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	EntityType string    `gorm:"type:varchar(64);not null;uniqueIndex:uq_identity_local,priority:1;uniqueIndex:uq_identity_remote,priority:1"`
	LocalID    int64     `gorm:"not null;uniqueIndex:uq_identity_local,priority:2"`
	RemoteID   int64     `gorm:"not null;uniqueIndex:uq_identity_remote,priority:2"`
	CreatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (IdentityModel) TableName() string {
	return "replication_identities"
}

// LocalRecordModel stores a synchronized entity of the local system.
// Lines of one-to-many fields are rows pointing at their parent.
type LocalRecordModel struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	EntityType  string    `gorm:"type:varchar(64);not null;index:idx_local_records_name,priority:1"`
	Name        string    `gorm:"type:varchar(255);not null;default:''"`
	NameKey     string    `gorm:"type:varchar(255);not null;default:'';index:idx_local_records_name,priority:2"`
	ScopeKey    string    `gorm:"type:varchar(64);not null;default:'';index:idx_local_records_name,priority:3"`
	ValuesJSON  string    `gorm:"type:jsonb;column:field_values;not null"`
	ParentID    *int64    `gorm:"index"`
	ParentField string    `gorm:"type:varchar(64);not null;default:''"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LocalRecordModel) TableName() string {
	return "local_records"
}

// ToDomain converts the model to a domain record without children
func (m *LocalRecordModel) ToDomain() (*replication.Record, error) {
	vals, err := DecodeValues(m.ValuesJSON)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", m.ID, err)
	}
	rec := &replication.Record{
		ID:          replication.LocalID(m.ID),
		Type:        replication.EntityType(m.EntityType),
		Name:        m.Name,
		Values:      vals,
		ParentField: m.ParentField,
		ScopeKey:    m.ScopeKey,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.ParentID != nil {
		parent := replication.LocalID(*m.ParentID)
		rec.ParentID = &parent
	}
	return rec, nil
}

// FromDomain populates the model from a domain record
func (m *LocalRecordModel) FromDomain(r *replication.Record) error {
	raw, err := EncodeValues(r.Values)
	if err != nil {
		return err
	}
	m.ID = int64(r.ID)
	m.EntityType = string(r.Type)
	m.Name = r.Name
	m.NameKey = replication.NameKey(r.Name)
	m.ScopeKey = r.ScopeKey
	m.ValuesJSON = raw
	m.ParentField = r.ParentField
	m.ParentID = nil
	if r.ParentID != nil {
		parent := int64(*r.ParentID)
		m.ParentID = &parent
	}
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
	return nil
}

// EncodeValues serializes a payload. Line commands are not stored, the
// lines themselves are rows of their own.
func EncodeValues(v replication.Values) (string, error) {
	clean := make(replication.Values, len(v))
	for k, val := range v {
		if _, isCmds := val.([]replication.Command); isCmds {
			continue
		}
		clean[k] = val
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("encode values: %w", err)
	}
	return string(b), nil
}

// DecodeValues parses a stored payload keeping numbers exact
func DecodeValues(raw string) (replication.Values, error) {
	vals := replication.Values{}
	if raw == "" {
		return vals, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	if err := dec.Decode(&vals); err != nil {
		return nil, fmt.Errorf("decode values: %w", err)
	}
	return vals, nil
}

// ConfigParameterModel is a key/value system parameter
type ConfigParameterModel struct {
	Key       string    `gorm:"type:varchar(128);primaryKey"`
	Value     string    `gorm:"type:text;not null;default:''"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ConfigParameterModel) TableName() string {
	return "config_parameters"
}
