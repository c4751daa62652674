package replication

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/erp/salesync/internal/domain/replication"
	"github.com/erp/salesync/internal/domain/shared"
)

// SettingsStore reads and writes the persisted sync configuration
type SettingsStore interface {
	replication.ConfigProvider
	replication.ConfigWriter
}

// SettingsService manages the connection settings of the remote system
type SettingsService struct {
	store    SettingsStore
	validate *validator.Validate
	logger   *zap.Logger
}

// NewSettingsService creates a new settings service
func NewSettingsService(store SettingsStore, logger *zap.Logger) *SettingsService {
	return &SettingsService{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Get returns the current settings with the password masked
func (s *SettingsService) Get(ctx context.Context) (replication.SyncConfig, error) {
	cfg, err := s.store.SyncConfig(ctx)
	if err != nil {
		return replication.SyncConfig{}, err
	}
	return cfg.Masked(), nil
}

// Save validates and persists new settings. An empty or masked password
// keeps the stored one.
func (s *SettingsService) Save(ctx context.Context, cfg replication.SyncConfig) (replication.SyncConfig, error) {
	cfg.URL = strings.TrimSpace(cfg.URL)
	cfg.Database = strings.TrimSpace(cfg.Database)

	if cfg.Password == "" || cfg.Password == replication.MaskedPassword {
		current, err := s.store.SyncConfig(ctx)
		if err != nil {
			return replication.SyncConfig{}, err
		}
		cfg.Password = current.Password
	}

	if err := s.validate.Struct(cfg); err != nil {
		return replication.SyncConfig{}, s.translateValidationError(err)
	}
	if cfg.Enabled && !cfg.IsComplete() {
		return replication.SyncConfig{}, shared.NewDomainError("INVALID_INPUT",
			"sync cannot be enabled without "+strings.Join(cfg.MissingFields(), ", "))
	}

	if err := s.store.SaveSyncConfig(ctx, cfg); err != nil {
		s.logger.Error("Failed to save sync settings", zap.Error(err))
		return replication.SyncConfig{}, err
	}
	s.logger.Info("Sync settings updated",
		zap.String("url", cfg.URL),
		zap.String("database", cfg.Database),
		zap.Bool("enabled", cfg.Enabled),
	)
	return cfg.Masked(), nil
}

func (s *SettingsService) translateValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return shared.NewDomainError("INVALID_INPUT", err.Error())
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "url":
		return shared.NewDomainError("INVALID_INPUT", "url must be a valid URL")
	case "required_if":
		return shared.NewDomainError("INVALID_INPUT", strings.ToLower(fe.Field())+" is required when sync is enabled")
	default:
		return shared.NewDomainError("INVALID_INPUT", strings.ToLower(fe.Field())+" is invalid")
	}
}
