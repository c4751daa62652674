package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	appreplication "github.com/erp/salesync/internal/application/replication"
	"github.com/erp/salesync/internal/domain/replication"
)

// ReplicationEngine is the local write path that mirrors to the remote system
type ReplicationEngine interface {
	OnCreate(ctx context.Context, et replication.EntityType, payloads []replication.Values) ([]*replication.Record, error)
	OnUpdate(ctx context.Context, et replication.EntityType, ids []replication.LocalID, values replication.Values) ([]*replication.Record, error)
	OnDelete(ctx context.Context, et replication.EntityType, ids []replication.LocalID) error
	Sync(ctx context.Context, et replication.EntityType, ids []replication.LocalID) (appreplication.SyncReport, error)
}

// RecordReader loads local records
type RecordReader interface {
	Get(ctx context.Context, t replication.EntityType, id replication.LocalID) (*replication.Record, error)
}

// BindingReader looks up remote counterparts
type BindingReader interface {
	Lookup(ctx context.Context, t replication.EntityType, id replication.LocalID) (replication.RemoteID, bool, error)
}

// ReplicationHandler exposes the replicated write path over HTTP
type ReplicationHandler struct {
	BaseHandler
	engine   ReplicationEngine
	records  RecordReader
	bindings BindingReader
}

// NewReplicationHandler creates a new ReplicationHandler
func NewReplicationHandler(engine ReplicationEngine, records RecordReader, bindings BindingReader) *ReplicationHandler {
	return &ReplicationHandler{
		engine:   engine,
		records:  records,
		bindings: bindings,
	}
}

// RecordPayload is the field values of one record
type RecordPayload struct {
	Values map[string]any `json:"values" binding:"required"`
}

// CreateRecordsRequest creates one or more records of a type
type CreateRecordsRequest struct {
	Records []RecordPayload `json:"records" binding:"required,min=1,dive"`
}

// UpdateRecordsRequest applies the same values to several records
type UpdateRecordsRequest struct {
	IDs    []int64        `json:"ids" binding:"required,min=1,dive,gt=0"`
	Values map[string]any `json:"values" binding:"required"`
}

// IDsRequest names records by local id
type IDsRequest struct {
	IDs []int64 `json:"ids" binding:"required,min=1,dive,gt=0"`
}

// RecordResponse is a local record with its remote binding
type RecordResponse struct {
	ID          int64              `json:"id"`
	Type        string             `json:"type"`
	Name        string             `json:"name"`
	Values      replication.Values `json:"values"`
	ParentID    *int64             `json:"parent_id,omitempty"`
	ParentField string             `json:"parent_field,omitempty"`
	RemoteID    *int64             `json:"remote_id,omitempty"`
	Lines       []RecordResponse   `json:"lines,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// DeleteResponse reports removed records
type DeleteResponse struct {
	Deleted int `json:"deleted"`
}

// RegisterRoutes mounts the replication routes
func (h *ReplicationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/replication")
	g.POST("/:type", h.Create)
	g.PUT("/:type", h.Update)
	g.DELETE("/:type", h.Delete)
	g.POST("/:type/sync", h.Sync)
	g.GET("/:type/:id", h.Get)
}

// Create godoc
// @Summary      Create records and mirror them remotely
// @Tags         replication
// @Accept       json
// @Produce      json
// @Param        type path string true "Entity type"
// @Param        request body CreateRecordsRequest true "Records"
// @Success      201 {object} dto.Response{data=[]RecordResponse}
// @Router       /replication/{type} [post]
func (h *ReplicationHandler) Create(c *gin.Context) {
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	var req CreateRecordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	payloads := make([]replication.Values, len(req.Records))
	for i, r := range req.Records {
		payloads[i] = replication.Values(r.Values)
	}
	records, err := h.engine.OnCreate(c.Request.Context(), et, payloads)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toRecordResponses(records))
}

// Update godoc
// @Summary      Update records and mirror the changes remotely
// @Tags         replication
// @Accept       json
// @Produce      json
// @Param        type path string true "Entity type"
// @Param        request body UpdateRecordsRequest true "Ids and values"
// @Success      200 {object} dto.Response{data=[]RecordResponse}
// @Router       /replication/{type} [put]
func (h *ReplicationHandler) Update(c *gin.Context) {
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	var req UpdateRecordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	records, err := h.engine.OnUpdate(c.Request.Context(), et, toLocalIDs(req.IDs), replication.Values(req.Values))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toRecordResponses(records))
}

// Delete godoc
// @Summary      Delete records and their remote counterparts
// @Tags         replication
// @Accept       json
// @Produce      json
// @Param        type path string true "Entity type"
// @Param        request body IDsRequest true "Ids"
// @Success      200 {object} dto.Response{data=DeleteResponse}
// @Router       /replication/{type} [delete]
func (h *ReplicationHandler) Delete(c *gin.Context) {
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	if err := h.engine.OnDelete(c.Request.Context(), et, toLocalIDs(req.IDs)); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, DeleteResponse{Deleted: len(req.IDs)})
}

// Sync godoc
// @Summary      Reconcile existing records with the remote system
// @Tags         replication
// @Accept       json
// @Produce      json
// @Param        type path string true "Entity type"
// @Param        request body IDsRequest true "Ids"
// @Success      200 {object} dto.Response{data=appreplication.SyncReport}
// @Router       /replication/{type}/sync [post]
func (h *ReplicationHandler) Sync(c *gin.Context) {
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	report, err := h.engine.Sync(c.Request.Context(), et, toLocalIDs(req.IDs))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// Get godoc
// @Summary      Get a local record and its remote binding
// @Tags         replication
// @Produce      json
// @Param        type path string true "Entity type"
// @Param        id path int true "Local id"
// @Success      200 {object} dto.Response{data=RecordResponse}
// @Router       /replication/{type}/{id} [get]
func (h *ReplicationHandler) Get(c *gin.Context) {
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.BadRequest(c, "Invalid record ID")
		return
	}

	ctx := c.Request.Context()
	rec, err := h.records.Get(ctx, et, replication.LocalID(id))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if err := h.attachBindings(ctx, rec); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toRecordResponse(rec))
}

func (h *ReplicationHandler) attachBindings(ctx context.Context, rec *replication.Record) error {
	remote, found, err := h.bindings.Lookup(ctx, rec.Type, rec.ID)
	if err != nil {
		return err
	}
	if found {
		rec.Bind(remote)
	}
	for _, child := range rec.Children {
		if err := h.attachBindings(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

func (h *ReplicationHandler) entityType(c *gin.Context) (replication.EntityType, bool) {
	et, err := replication.ParseEntityType(c.Param("type"))
	if err != nil {
		h.HandleError(c, err)
		return "", false
	}
	return et, true
}

func toLocalIDs(ids []int64) []replication.LocalID {
	out := make([]replication.LocalID, len(ids))
	for i, id := range ids {
		out[i] = replication.LocalID(id)
	}
	return out
}

func toRecordResponses(records []*replication.Record) []RecordResponse {
	out := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}
	return out
}

func toRecordResponse(rec *replication.Record) RecordResponse {
	resp := RecordResponse{
		ID:          int64(rec.ID),
		Type:        rec.Type.String(),
		Name:        rec.Name,
		Values:      rec.Values,
		ParentField: rec.ParentField,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	if rec.ParentID != nil {
		id := int64(*rec.ParentID)
		resp.ParentID = &id
	}
	if rec.IsBound() {
		id := int64(*rec.RemoteID)
		resp.RemoteID = &id
	}
	if len(rec.Children) > 0 {
		resp.Lines = toRecordResponses(rec.Children)
	}
	return resp
}
