package apiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/prodflow/prodflow/pkg/auth"
	"github.com/prodflow/prodflow/pkg/config"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/store/postgres"
	"github.com/prodflow/prodflow/pkg/store/storetest"
	"github.com/prodflow/prodflow/pkg/tenant"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

type harness struct {
	t      *testing.T
	db     *postgres.Store
	server *Server
	tokens *auth.TokenManager
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	db := storetest.New(t)
	tokens := auth.NewTokenManager([]byte("test-secret"), time.Hour, "prodflow-test")
	return &harness{
		t:      t,
		db:     db,
		server: NewServer(db, nil, nil, tokens, cfg, zaptest.NewLogger(t)),
		tokens: tokens,
	}
}

func (h *harness) token(company uuid.UUID, roles ...tenant.Role) string {
	h.t.Helper()
	tok, err := h.tokens.Generate(tenant.Actor{ID: "user-" + company.String()[:8], CompanyID: company, Roles: roles})
	require.NoError(h.t, err)
	return tok
}

func (h *harness) do(method, path, token string, body interface{}) (int, envelope) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.server.Router().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, "ok", res.Checks["database"])
	assert.NotContains(t, res.Checks, "redis")
}

func TestAPIAuthRequired(t *testing.T) {
	h := newHarness(t, nil)

	code, env := h.do(http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "missing authorization", env.Message)

	code, env = h.do(http.MethodGet, "/api/v1/products", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid or expired token", env.Message)
}

func TestGroupDeleteBlockedByRoleOverHTTP(t *testing.T) {
	h := newHarness(t, nil)
	admin := h.token(uuid.New(), tenant.RoleCompanyAdmin)

	code, env := h.do(http.MethodPost, "/api/v1/groups", admin, map[string]string{"name": "Line A"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	group := decode[model.Group](t, env)

	code, env = h.do(http.MethodPost, "/api/v1/roles", admin, map[string]string{"name": "Operator"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	role := decode[model.Role](t, env)

	code, env = h.do(http.MethodPost, "/api/v1/groups/"+group.ID.String()+"/roles", admin, map[string]string{"role_id": role.ID.String()})
	require.Equal(t, http.StatusCreated, code, env.Message)

	code, env = h.do(http.MethodDelete, "/api/v1/groups/"+group.ID.String(), admin, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", env.Error)
	assert.Equal(t, "Cannot delete group: it is associated with roles", env.Message)

	code, _ = h.do(http.MethodDelete, "/api/v1/groups/"+group.ID.String()+"/roles/"+role.ID.String(), admin, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = h.do(http.MethodDelete, "/api/v1/groups/"+group.ID.String(), admin, nil)
	assert.Equal(t, http.StatusOK, code, env.Message)

	code, _ = h.do(http.MethodGet, "/api/v1/groups/"+group.ID.String(), admin, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = h.do(http.MethodGet, "/api/v1/groups/"+group.ID.String()+"?include_inactive=true", admin, nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.False(t, decode[model.Group](t, env).Status)
}

func TestGroupWritesNeedAdmin(t *testing.T) {
	h := newHarness(t, nil)
	user := h.token(uuid.New(), tenant.RoleUser)

	code, env := h.do(http.MethodPost, "/api/v1/groups", user, map[string]string{"name": "Line A"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", env.Error)
}

func TestQualityGateOverHTTP(t *testing.T) {
	h := newHarness(t, nil)
	company := uuid.New()
	tok := h.token(company, tenant.RoleUser)

	ctx := context.Background()
	product := &model.Product{Base: model.NewBase(company, "seed"), Code: "P-1", Name: "Bread", Unit: "pcs"}
	recipe := &model.Recipe{Base: model.NewBase(company, "seed"), Code: "R-1", Name: "Bread", ProductID: &product.ID, Unit: "pcs"}
	require.NoError(t, h.db.Insert(ctx, product))
	require.NoError(t, h.db.Insert(ctx, recipe))

	code, env := h.do(http.MethodPost, "/api/v1/orders", tok, map[string]interface{}{
		"code": "PO-1", "product_id": product.ID, "recipe_id": recipe.ID, "quantity": "50",
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	order := decode[model.ProductionOrder](t, env)

	code, env = h.do(http.MethodPost, "/api/v1/stages", tok, map[string]interface{}{
		"production_order_id": order.ID, "name": "Bake", "quality_check_required": true,
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	stage := decode[model.ProductionStage](t, env)
	assert.Equal(t, 10, stage.SequenceNumber)

	stagePath := "/api/v1/stages/" + stage.ID.String()
	check := map[string]interface{}{"production_stage_id": stage.ID, "passed": true}

	code, env = h.do(http.MethodPost, "/api/v1/quality-checks", tok, check)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "precondition_failed", env.Error)

	code, env = h.do(http.MethodPost, stagePath+"/status", tok, map[string]string{"status": "in_progress"})
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = h.do(http.MethodPost, stagePath+"/status", tok, map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "precondition_failed", env.Error)

	code, env = h.do(http.MethodPost, "/api/v1/quality-checks", tok, check)
	require.Equal(t, http.StatusCreated, code, env.Message)
	first := decode[model.QualityCheck](t, env)

	code, env = h.do(http.MethodDelete, "/api/v1/quality-checks/"+first.ID.String(), tok, nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	code, env = h.do(http.MethodGet, stagePath, tok, nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.False(t, decode[model.ProductionStage](t, env).QualityApproved)

	code, env = h.do(http.MethodPost, stagePath+"/status", tok, map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusBadRequest, code, "deleting the approving check reopens the gate")

	code, env = h.do(http.MethodPost, "/api/v1/quality-checks", tok, check)
	require.Equal(t, http.StatusCreated, code, env.Message)

	code, env = h.do(http.MethodPost, stagePath+"/status", tok, map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, code, env.Message)
	done := decode[model.ProductionStage](t, env)
	assert.Equal(t, model.StageCompleted, done.StageStatus)
	assert.True(t, done.QualityApproved)

	code, env = h.do(http.MethodPost, stagePath+"/status", tok, map[string]string{"status": "in_progress"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_state", env.Error)
}

func TestOtherCompanyRowsAreNotFound(t *testing.T) {
	h := newHarness(t, nil)
	owner := h.token(uuid.New(), tenant.RoleUser)
	other := h.token(uuid.New(), tenant.RoleUser)

	code, env := h.do(http.MethodPost, "/api/v1/products", owner, map[string]string{"code": "P-1", "name": "Bread"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	product := decode[model.Product](t, env)

	code, _ = h.do(http.MethodGet, "/api/v1/products/"+product.ID.String(), other, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = h.do(http.MethodGet, "/api/v1/products", other, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]model.Product](t, env))

	code, _ = h.do(http.MethodDelete, "/api/v1/products/"+product.ID.String(), other, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestInvalidPathID(t *testing.T) {
	h := newHarness(t, nil)
	tok := h.token(uuid.New(), tenant.RoleUser)

	code, env := h.do(http.MethodGet, "/api/v1/orders/not-a-uuid", tok, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", env.Error)
}

func TestRateLimitPerCompany(t *testing.T) {
	h := newHarness(t, &config.Config{RateLimit: config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}})
	busy := h.token(uuid.New(), tenant.RoleUser)
	quiet := h.token(uuid.New(), tenant.RoleUser)

	code, _ := h.do(http.MethodGet, "/api/v1/products", busy, nil)
	assert.Equal(t, http.StatusOK, code)
	code, env := h.do(http.MethodGet, "/api/v1/products", busy, nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate_limited", env.Error)

	code, _ = h.do(http.MethodGet, "/api/v1/products", quiet, nil)
	assert.Equal(t, http.StatusOK, code)
}
