package replication

import "strings"

// Configuration parameter keys holding the sync settings
const (
	ParamServerURL      = "salesync.external_server_url"
	ParamServerDB       = "salesync.external_server_db"
	ParamServerUID      = "salesync.external_server_uid"
	ParamServerPassword = "salesync.external_server_password"
	ParamDataSync       = "salesync.data_sync"
)

// MaskedPassword replaces the password in exposed settings
const MaskedPassword = "********"

// SyncConfig holds the connection settings for the remote system.
// It is read afresh at the start of every replication operation.
type SyncConfig struct {
	URL      string `json:"url" validate:"omitempty,url"`
	Database string `json:"database" validate:"required_if=Enabled true,max=128"`
	UserID   int64  `json:"user_id" validate:"gte=0,required_if=Enabled true"`
	Password string `json:"password" validate:"required_if=Enabled true"`
	Enabled  bool   `json:"enabled"`
}

// IsComplete reports whether every connection field is present
func (c SyncConfig) IsComplete() bool {
	return strings.TrimSpace(c.URL) != "" &&
		strings.TrimSpace(c.Database) != "" &&
		c.UserID > 0 &&
		c.Password != ""
}

// MissingFields lists the connection fields that are unset
func (c SyncConfig) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(c.URL) == "" {
		missing = append(missing, "url")
	}
	if strings.TrimSpace(c.Database) == "" {
		missing = append(missing, "database")
	}
	if c.UserID <= 0 {
		missing = append(missing, "user_id")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	return missing
}

// Masked returns a copy safe to expose, with the password hidden
func (c SyncConfig) Masked() SyncConfig {
	if c.Password != "" {
		c.Password = MaskedPassword
	}
	return c
}
