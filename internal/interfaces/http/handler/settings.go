package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/erp/salesync/internal/domain/replication"
)

// SyncSettings reads and writes the remote connection settings
type SyncSettings interface {
	Get(ctx context.Context) (replication.SyncConfig, error)
	Save(ctx context.Context, cfg replication.SyncConfig) (replication.SyncConfig, error)
}

// SettingsHandler exposes the sync settings
type SettingsHandler struct {
	BaseHandler
	settings SyncSettings
}

// NewSettingsHandler creates a new SettingsHandler
func NewSettingsHandler(settings SyncSettings) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// UpdateSyncSettingsRequest replaces the sync settings. An empty or masked
// password keeps the stored one.
type UpdateSyncSettingsRequest struct {
	URL      string `json:"url" example:"https://erp.example.com"`
	Database string `json:"database" example:"production"`
	UserID   int64  `json:"user_id" binding:"gte=0" example:"2"`
	Password string `json:"password"`
	Enabled  bool   `json:"enabled"`
}

// RegisterRoutes mounts the settings routes
func (h *SettingsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/settings")
	g.GET("/sync", h.GetSync)
	g.PUT("/sync", h.UpdateSync)
}

// GetSync godoc
// @Summary      Get the sync settings, password masked
// @Tags         settings
// @Produce      json
// @Success      200 {object} dto.Response{data=replication.SyncConfig}
// @Router       /settings/sync [get]
func (h *SettingsHandler) GetSync(c *gin.Context) {
	cfg, err := h.settings.Get(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cfg)
}

// UpdateSync godoc
// @Summary      Replace the sync settings
// @Tags         settings
// @Accept       json
// @Produce      json
// @Param        request body UpdateSyncSettingsRequest true "Settings"
// @Success      200 {object} dto.Response{data=replication.SyncConfig}
// @Router       /settings/sync [put]
func (h *SettingsHandler) UpdateSync(c *gin.Context) {
	var req UpdateSyncSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	saved, err := h.settings.Save(c.Request.Context(), replication.SyncConfig{
		URL:      req.URL,
		Database: req.Database,
		UserID:   req.UserID,
		Password: req.Password,
		Enabled:  req.Enabled,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, saved)
}
