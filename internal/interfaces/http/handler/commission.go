package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	appcommission "github.com/erp/salesync/internal/application/commission"
	"github.com/erp/salesync/internal/domain/commission"
	"github.com/erp/salesync/internal/domain/shared"
	"github.com/erp/salesync/internal/interfaces/http/dto"
)

// CommissionService is the commission use case surface used over HTTP
type CommissionService interface {
	CreateFiscalYear(ctx context.Context, in appcommission.CreateFiscalYearInput) (*commission.FiscalYear, error)
	CreateRule(ctx context.Context, in appcommission.CreateRuleInput) (*commission.Rule, error)
	ListRules(ctx context.Context, companyID *int64) ([]*commission.Rule, error)
	ActivateRule(ctx context.Context, id uuid.UUID) (*commission.Rule, error)
	DeactivateRule(ctx context.Context, id uuid.UUID) (*commission.Rule, error)
	GetRecord(ctx context.Context, id uuid.UUID) (*commission.Record, error)
	ListRecords(ctx context.Context, filter commission.RecordFilter) ([]*commission.Record, int64, error)
	CreateRecord(ctx context.Context, partnerID int64, fiscalYearID uuid.UUID) (*commission.Record, error)
	Recompute(ctx context.Context, id uuid.UUID) (*commission.Record, error)
	RecomputeAll(ctx context.Context, companyID *int64) (appcommission.RecomputeSummary, error)
	SetPaymentDate(ctx context.Context, id uuid.UUID, date time.Time) (*commission.Record, error)
	MakePayment(ctx context.Context, id uuid.UUID, today time.Time) (*commission.PayoutDocument, error)
	RecordActivity(ctx context.Context, in appcommission.RecordActivityInput) (*commission.ActivityEntry, error)
}

// CommissionHandler handles commission records, rules, fiscal years and
// the activity ledger
type CommissionHandler struct {
	BaseHandler
	service CommissionService
	now     func() time.Time
}

// NewCommissionHandler creates a new CommissionHandler
func NewCommissionHandler(service CommissionService) *CommissionHandler {
	return &CommissionHandler{service: service, now: time.Now}
}

// ---------------------------------------------------------------------------
// Requests and responses
// ---------------------------------------------------------------------------

// ListCommissionsQuery filters the commission listing
type ListCommissionsQuery struct {
	dto.ListRequest
	PartnerID    *int64  `form:"partner_id" binding:"omitempty,gt=0"`
	FiscalYearID string  `form:"fiscal_year_id" binding:"omitempty,uuid"`
	CompanyID    *int64  `form:"company_id" binding:"omitempty,gt=0"`
	State        *string `form:"state" binding:"omitempty,oneof=draft applicable eligible in_payment paid"`
}

// CreateCommissionRequest opens a record manually
type CreateCommissionRequest struct {
	PartnerID    int64  `json:"partner_id" binding:"required,gt=0"`
	FiscalYearID string `json:"fiscal_year_id" binding:"required,uuid"`
}

// RecomputeAllRequest limits a bulk recomputation to one company
type RecomputeAllRequest struct {
	CompanyID *int64 `json:"company_id" binding:"omitempty,gt=0"`
}

// PayoutRequest optionally overrides the payout date
type PayoutRequest struct {
	Date string `json:"date" binding:"omitempty,datetime=2006-01-02" example:"2025-01-15"`
}

// PaymentDateRequest sets the payout settlement date
type PaymentDateRequest struct {
	PaymentDate string `json:"payment_date" binding:"required,datetime=2006-01-02" example:"2025-01-20"`
}

// CreateRuleRequest adds a commission tier
type CreateRuleRequest struct {
	CompanyID         int64           `json:"company_id" binding:"required,gt=0"`
	FiscalYearID      string          `json:"fiscal_year_id" binding:"omitempty,uuid"`
	PurchaseTarget    decimal.Decimal `json:"purchase_target" swaggertype:"string" example:"10000"`
	CommissionPercent decimal.Decimal `json:"commission_percent" swaggertype:"string" example:"5"`
}

// ListRulesQuery filters rules by company
type ListRulesQuery struct {
	CompanyID *int64 `form:"company_id" binding:"omitempty,gt=0"`
}

// CreateFiscalYearRequest registers a fiscal year
type CreateFiscalYearRequest struct {
	Name      string `json:"name" binding:"required,max=64" example:"FY 2024"`
	CompanyID int64  `json:"company_id" binding:"required,gt=0"`
	DateFrom  string `json:"date_from" binding:"required,datetime=2006-01-02" example:"2024-01-01"`
	DateTo    string `json:"date_to" binding:"required,datetime=2006-01-02" example:"2024-12-31"`
}

// RecordActivityRequest records host accounting activity
type RecordActivityRequest struct {
	Kind       string          `json:"kind" binding:"required,oneof=sale_confirmed invoice_posted payment_settled payout_settled"`
	PartnerID  int64           `json:"partner_id" binding:"omitempty,gt=0"`
	CompanyID  int64           `json:"company_id" binding:"omitempty,gt=0"`
	Date       string          `json:"date" binding:"required,datetime=2006-01-02"`
	Amount     decimal.Decimal `json:"amount" swaggertype:"string"`
	Reference  string          `json:"reference" binding:"max=128"`
	DocumentID string          `json:"document_id" binding:"omitempty,uuid"`
}

// CommissionResponse is a commission record
type CommissionResponse struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	PartnerID        int64           `json:"partner_id"`
	PartnerName      string          `json:"partner_name"`
	FiscalYearID     string          `json:"fiscal_year_id"`
	FiscalYearName   string          `json:"fiscal_year_name"`
	CompanyID        int64           `json:"company_id"`
	RuleID           *string         `json:"rule_id,omitempty"`
	State            string          `json:"state"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	TotalPurchase    decimal.Decimal `json:"total_purchase"`
	TotalInvoiced    decimal.Decimal `json:"total_invoiced"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	TotalDue         decimal.Decimal `json:"total_due"`
	PaymentDate      *string         `json:"payment_date,omitempty"`
	PayoutDocumentID *string         `json:"payout_document_id,omitempty"`
	PayoutSettled    bool            `json:"payout_settled"`
	Version          int             `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// RuleResponse is a commission rule
type RuleResponse struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	CompanyID         int64           `json:"company_id"`
	FiscalYearID      *string         `json:"fiscal_year_id,omitempty"`
	PurchaseTarget    decimal.Decimal `json:"purchase_target"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
	Active            bool            `json:"active"`
}

// FiscalYearResponse is a fiscal year
type FiscalYearResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CompanyID int64  `json:"company_id"`
	DateFrom  string `json:"date_from"`
	DateTo    string `json:"date_to"`
}

// PayoutResponse is an issued payout credit note
type PayoutResponse struct {
	ID           string          `json:"id"`
	CommissionID string          `json:"commission_id"`
	Ref          string          `json:"ref"`
	Date         string          `json:"date"`
	State        string          `json:"state"`
	PaymentState string          `json:"payment_state"`
	Total        decimal.Decimal `json:"total"`
}

// ActivityResponse is a ledger entry
type ActivityResponse struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	PartnerID int64           `json:"partner_id"`
	CompanyID int64           `json:"company_id"`
	Date      string          `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
}

// RegisterRoutes mounts the commission routes
func (h *CommissionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	records := rg.Group("/commissions")
	records.GET("", h.List)
	records.POST("", h.Create)
	records.POST("/recompute", h.RecomputeAll)
	records.GET("/:id", h.Get)
	records.POST("/:id/recompute", h.Recompute)
	records.POST("/:id/payout", h.MakePayment)
	records.PUT("/:id/payment-date", h.SetPaymentDate)

	rg.GET("/commission-rules", h.ListRules)
	rg.POST("/commission-rules", h.CreateRule)
	rg.POST("/commission-rules/:id/activate", h.ActivateRule)
	rg.POST("/commission-rules/:id/deactivate", h.DeactivateRule)
	rg.POST("/fiscal-years", h.CreateFiscalYear)
	rg.POST("/activity", h.RecordActivity)
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// List godoc
// @Summary      List commission records
// @Tags         commissions
// @Produce      json
// @Param        partner_id query int false "Customer"
// @Param        fiscal_year_id query string false "Fiscal year"
// @Param        company_id query int false "Company"
// @Param        state query string false "State"
// @Success      200 {object} dto.Response{data=[]CommissionResponse,meta=dto.Meta}
// @Router       /commissions [get]
func (h *CommissionHandler) List(c *gin.Context) {
	q := ListCommissionsQuery{ListRequest: dto.DefaultListRequest()}
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := commission.RecordFilter{
		Filter: shared.Filter{
			Page:     q.Page,
			PageSize: q.PageSize,
			OrderBy:  q.OrderBy,
			OrderDir: q.OrderDir,
		},
		PartnerID: q.PartnerID,
		CompanyID: q.CompanyID,
	}
	if q.FiscalYearID != "" {
		id := uuid.MustParse(q.FiscalYearID)
		filter.FiscalYearID = &id
	}
	if q.State != nil {
		state := commission.State(*q.State)
		filter.State = &state
	}

	records, total, err := h.service.ListRecords(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]CommissionResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toCommissionResponse(rec))
	}
	h.SuccessWithMeta(c, out, total, q.Page, q.PageSize)
}

// Get godoc
// @Summary      Get a commission record
// @Tags         commissions
// @Produce      json
// @Param        id path string true "Record ID"
// @Success      200 {object} dto.Response{data=CommissionResponse}
// @Router       /commissions/{id} [get]
func (h *CommissionHandler) Get(c *gin.Context) {
	id, ok := h.recordID(c)
	if !ok {
		return
	}
	rec, err := h.service.GetRecord(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toCommissionResponse(rec))
}

// Create godoc
// @Summary      Open a commission record for a customer's fiscal year
// @Tags         commissions
// @Accept       json
// @Produce      json
// @Param        request body CreateCommissionRequest true "Record"
// @Success      201 {object} dto.Response{data=CommissionResponse}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /commissions [post]
func (h *CommissionHandler) Create(c *gin.Context) {
	var req CreateCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	rec, err := h.service.CreateRecord(c.Request.Context(), req.PartnerID, uuid.MustParse(req.FiscalYearID))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toCommissionResponse(rec))
}

// Recompute godoc
// @Summary      Recompute the totals, tier and state of a record
// @Tags         commissions
// @Produce      json
// @Param        id path string true "Record ID"
// @Success      200 {object} dto.Response{data=CommissionResponse}
// @Router       /commissions/{id}/recompute [post]
func (h *CommissionHandler) Recompute(c *gin.Context) {
	id, ok := h.recordID(c)
	if !ok {
		return
	}
	rec, err := h.service.Recompute(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toCommissionResponse(rec))
}

// RecomputeAll godoc
// @Summary      Recompute every record, optionally of one company
// @Tags         commissions
// @Accept       json
// @Produce      json
// @Param        request body RecomputeAllRequest false "Scope"
// @Success      200 {object} dto.Response{data=appcommission.RecomputeSummary}
// @Router       /commissions/recompute [post]
func (h *CommissionHandler) RecomputeAll(c *gin.Context) {
	var req RecomputeAllRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, err.Error())
			return
		}
	}
	summary, err := h.service.RecomputeAll(c.Request.Context(), req.CompanyID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// MakePayment godoc
// @Summary      Issue and post the payout credit note of a record
// @Tags         commissions
// @Accept       json
// @Produce      json
// @Param        id path string true "Record ID"
// @Param        request body PayoutRequest false "Payout date, defaults to today"
// @Success      201 {object} dto.Response{data=PayoutResponse}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /commissions/{id}/payout [post]
func (h *CommissionHandler) MakePayment(c *gin.Context) {
	id, ok := h.recordID(c)
	if !ok {
		return
	}
	var req PayoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, err.Error())
			return
		}
	}
	today := commission.DateOf(h.now())
	if req.Date != "" {
		d, err := commission.ParseDate(req.Date)
		if err != nil {
			h.BadRequest(c, "Invalid date")
			return
		}
		today = d
	}

	doc, err := h.service.MakePayment(c.Request.Context(), id, today)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, PayoutResponse{
		ID:           doc.ID.String(),
		CommissionID: doc.CommissionID.String(),
		Ref:          doc.Ref,
		Date:         doc.Date.Format(time.DateOnly),
		State:        doc.State,
		PaymentState: doc.PaymentState,
		Total:        doc.Total(),
	})
}

// SetPaymentDate godoc
// @Summary      Set the payout settlement date of a record
// @Tags         commissions
// @Accept       json
// @Produce      json
// @Param        id path string true "Record ID"
// @Param        request body PaymentDateRequest true "Payment date"
// @Success      200 {object} dto.Response{data=CommissionResponse}
// @Router       /commissions/{id}/payment-date [put]
func (h *CommissionHandler) SetPaymentDate(c *gin.Context) {
	id, ok := h.recordID(c)
	if !ok {
		return
	}
	var req PaymentDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	date, err := commission.ParseDate(req.PaymentDate)
	if err != nil {
		h.BadRequest(c, "Invalid payment date")
		return
	}
	rec, err := h.service.SetPaymentDate(c.Request.Context(), id, date)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toCommissionResponse(rec))
}

// ---------------------------------------------------------------------------
// Rules and fiscal years
// ---------------------------------------------------------------------------

// ListRules godoc
// @Summary      List commission rules
// @Tags         commission-rules
// @Produce      json
// @Param        company_id query int false "Company"
// @Success      200 {object} dto.Response{data=[]RuleResponse}
// @Router       /commission-rules [get]
func (h *CommissionHandler) ListRules(c *gin.Context) {
	var q ListRulesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	rules, err := h.service.ListRules(c.Request.Context(), q.CompanyID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]RuleResponse, 0, len(rules))
	for _, r := range rules {
		out = append(out, toRuleResponse(r))
	}
	h.Success(c, out)
}

// CreateRule godoc
// @Summary      Add a commission tier
// @Tags         commission-rules
// @Accept       json
// @Produce      json
// @Param        request body CreateRuleRequest true "Rule"
// @Success      201 {object} dto.Response{data=RuleResponse}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /commission-rules [post]
func (h *CommissionHandler) CreateRule(c *gin.Context) {
	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	in := appcommission.CreateRuleInput{
		CompanyID:         req.CompanyID,
		PurchaseTarget:    req.PurchaseTarget,
		CommissionPercent: req.CommissionPercent,
	}
	if req.FiscalYearID != "" {
		id := uuid.MustParse(req.FiscalYearID)
		in.FiscalYearID = &id
	}
	rule, err := h.service.CreateRule(c.Request.Context(), in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toRuleResponse(rule))
}

// ActivateRule godoc
// @Summary      Return a commission tier to selection
// @Tags         commission-rules
// @Produce      json
// @Param        id path string true "Rule ID" format(uuid)
// @Success      200 {object} dto.Response{data=RuleResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /commission-rules/{id}/activate [post]
func (h *CommissionHandler) ActivateRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid rule ID format")
		return
	}
	rule, err := h.service.ActivateRule(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toRuleResponse(rule))
}

// DeactivateRule godoc
// @Summary      Withdraw a commission tier from selection
// @Tags         commission-rules
// @Produce      json
// @Param        id path string true "Rule ID" format(uuid)
// @Success      200 {object} dto.Response{data=RuleResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /commission-rules/{id}/deactivate [post]
func (h *CommissionHandler) DeactivateRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid rule ID format")
		return
	}
	rule, err := h.service.DeactivateRule(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toRuleResponse(rule))
}

// CreateFiscalYear godoc
// @Summary      Register a fiscal year
// @Tags         fiscal-years
// @Accept       json
// @Produce      json
// @Param        request body CreateFiscalYearRequest true "Fiscal year"
// @Success      201 {object} dto.Response{data=FiscalYearResponse}
// @Router       /fiscal-years [post]
func (h *CommissionHandler) CreateFiscalYear(c *gin.Context) {
	var req CreateFiscalYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	from, err := commission.ParseDate(req.DateFrom)
	if err != nil {
		h.BadRequest(c, "Invalid date_from")
		return
	}
	to, err := commission.ParseDate(req.DateTo)
	if err != nil {
		h.BadRequest(c, "Invalid date_to")
		return
	}
	fy, err := h.service.CreateFiscalYear(c.Request.Context(), appcommission.CreateFiscalYearInput{
		Name:      req.Name,
		CompanyID: req.CompanyID,
		DateFrom:  from,
		DateTo:    to,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, FiscalYearResponse{
		ID:        fy.ID.String(),
		Name:      fy.Name,
		CompanyID: fy.CompanyID,
		DateFrom:  fy.DateFrom.Format(time.DateOnly),
		DateTo:    fy.DateTo.Format(time.DateOnly),
	})
}

// ---------------------------------------------------------------------------
// Activity
// ---------------------------------------------------------------------------

// RecordActivity godoc
// @Summary      Record accounting activity and publish its event
// @Tags         activity
// @Accept       json
// @Produce      json
// @Param        request body RecordActivityRequest true "Activity"
// @Success      201 {object} dto.Response{data=ActivityResponse}
// @Router       /activity [post]
func (h *CommissionHandler) RecordActivity(c *gin.Context) {
	var req RecordActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	date, err := commission.ParseDate(req.Date)
	if err != nil {
		h.BadRequest(c, "Invalid date")
		return
	}
	in := appcommission.RecordActivityInput{
		Kind:      commission.ActivityKind(req.Kind),
		PartnerID: req.PartnerID,
		CompanyID: req.CompanyID,
		Date:      date,
		Amount:    req.Amount,
		Reference: req.Reference,
	}
	if req.DocumentID != "" {
		id := uuid.MustParse(req.DocumentID)
		in.DocumentID = &id
	}

	entry, err := h.service.RecordActivity(c.Request.Context(), in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, ActivityResponse{
		ID:        entry.ID.String(),
		Kind:      string(entry.Kind),
		PartnerID: entry.PartnerID,
		CompanyID: entry.CompanyID,
		Date:      entry.Date.Format(time.DateOnly),
		Amount:    entry.Amount,
		Reference: entry.Reference,
	})
}

func (h *CommissionHandler) recordID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid commission ID format")
		return uuid.Nil, false
	}
	return id, true
}

func toCommissionResponse(r *commission.Record) CommissionResponse {
	resp := CommissionResponse{
		ID:               r.ID.String(),
		Name:             r.Name(),
		PartnerID:        r.PartnerID,
		PartnerName:      r.PartnerName,
		FiscalYearID:     r.FiscalYearID.String(),
		FiscalYearName:   r.FiscalYearName,
		CompanyID:        r.CompanyID,
		State:            string(r.State),
		CommissionAmount: r.CommissionAmount,
		TotalPurchase:    r.TotalPurchase,
		TotalInvoiced:    r.TotalInvoiced,
		TotalPaid:        r.TotalPaid,
		TotalDue:         r.TotalDue,
		PayoutSettled:    r.PayoutSettled,
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.RuleID != nil {
		s := r.RuleID.String()
		resp.RuleID = &s
	}
	if r.PaymentDate != nil {
		s := r.PaymentDate.Format(time.DateOnly)
		resp.PaymentDate = &s
	}
	if r.PayoutDocumentID != nil {
		s := r.PayoutDocumentID.String()
		resp.PayoutDocumentID = &s
	}
	return resp
}

func toRuleResponse(r *commission.Rule) RuleResponse {
	resp := RuleResponse{
		ID:                r.ID.String(),
		Name:              r.Name(),
		CompanyID:         r.CompanyID,
		PurchaseTarget:    r.PurchaseTarget,
		CommissionPercent: r.CommissionPercent,
		Active:            r.Active,
	}
	if r.FiscalYearID != nil {
		s := r.FiscalYearID.String()
		resp.FiscalYearID = &s
	}
	return resp
}
