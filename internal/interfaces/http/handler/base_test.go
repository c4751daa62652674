package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/erp/salesync/internal/domain/replication"
	"github.com/erp/salesync/internal/domain/shared"
	"github.com/erp/salesync/internal/interfaces/http/dto"
	"github.com/erp/salesync/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter mounts registrar under /api/v1 behind the request id middleware
func newTestRouter(registrar interface{ RegisterRoutes(*gin.RouterGroup) }) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	registrar.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"domain not found", shared.NewDomainError("NOT_FOUND", "gone"), http.StatusNotFound, dto.ErrCodeNotFound},
		{"domain duplicate", replication.NewDuplicateNameError(replication.EntityPartner, "Acme"), http.StatusConflict, dto.ErrCodeAlreadyExists},
		{"domain invalid state", shared.NewDomainError("INVALID_STATE", "paid"), http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"wrapped domain error", fmt.Errorf("saving: %w", shared.NewDomainError("INVALID_INPUT", "bad")), http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"local record missing", fmt.Errorf("%w: partner 7", replication.ErrRecordNotFound), http.StatusNotFound, dto.ErrCodeNotFound},
		{"unknown type", replication.ErrUnknownEntityType, http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"malformed key", replication.ErrMalformedNaturalKey, http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"lookup only", replication.ErrLookupOnly, http.StatusUnprocessableEntity, dto.ErrCodeBusinessRule},
		{"identity conflict", replication.ErrIdentityConflict, http.StatusConflict, dto.ErrCodeConflict},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			r := gin.New()
			r.Use(middleware.RequestID())
			r.GET("/", func(c *gin.Context) { h.HandleError(c, tt.err) })

			w := doJSON(t, r, http.MethodGet, "/", nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
		})
	}
}

func TestBaseHandler_HandleError_LogsUnexpected(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := &BaseHandler{}
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("logger", zap.New(core))
		c.Next()
	})
	r.GET("/", func(c *gin.Context) { h.HandleError(c, errors.New("boom")) })

	w := doJSON(t, r, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "boom", logs.All()[0].ContextMap()["error"])
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestBaseHandler_HandleError_Nil(t *testing.T) {
	h := &BaseHandler{}
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		h.HandleError(c, nil)
		h.Success(c, "ok")
	})

	w := doJSON(t, r, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBaseHandler_Responses(t *testing.T) {
	h := &BaseHandler{}
	r := gin.New()
	r.GET("/created", func(c *gin.Context) { h.Created(c, map[string]int{"id": 1}) })
	r.GET("/none", func(c *gin.Context) { h.NoContent(c) })
	r.GET("/page", func(c *gin.Context) { h.SuccessWithMeta(c, []int{1, 2}, 12, 2, 5) })

	w := doJSON(t, r, http.MethodGet, "/created", nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, decodeResponse(t, w).Success)

	w = doJSON(t, r, http.MethodGet, "/none", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, http.MethodGet, "/page", nil)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(12), resp.Meta.Total)
	assert.Equal(t, 3, resp.Meta.TotalPages)
}
