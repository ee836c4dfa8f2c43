package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/licentia/internal/catalog/domain"
	"github.com/smallbiznis/licentia/internal/clock"
	"github.com/smallbiznis/licentia/internal/config"
	creditdomain "github.com/smallbiznis/licentia/internal/credit/domain"
	creditservice "github.com/smallbiznis/licentia/internal/credit/service"
	directorydomain "github.com/smallbiznis/licentia/internal/directory/domain"
	"github.com/smallbiznis/licentia/internal/identity"
	invitedomain "github.com/smallbiznis/licentia/internal/invite/domain"
	inviteservice "github.com/smallbiznis/licentia/internal/invite/service"
	licensedomain "github.com/smallbiznis/licentia/internal/license/domain"
	licenseservice "github.com/smallbiznis/licentia/internal/license/service"
	"github.com/smallbiznis/licentia/internal/notify"
	pricingservice "github.com/smallbiznis/licentia/internal/pricing/service"
	"github.com/smallbiznis/licentia/internal/provision"
	tenantdomain "github.com/smallbiznis/licentia/internal/tenant/domain"
	tenantservice "github.com/smallbiznis/licentia/internal/tenant/service"
	"github.com/smallbiznis/licentia/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type staticRegistry struct{ conn *gorm.DB }

func (r staticRegistry) Open(host, port, name string) (*gorm.DB, error) { return r.conn, nil }
func (r staticRegistry) Close() error                                   { return nil }

type noopProvisioner struct{}

func (noopProvisioner) Provision(ctx context.Context, req provision.Request) error { return nil }
func (noopProvisioner) Drop(ctx context.Context, host, port, name string) error    { return nil }

type serverTestEnv struct {
	engine   *gin.Engine
	core     *gorm.DB
	tenant   *gorm.DB
	tenantID snowflake.ID
	node     *snowflake.Node
}

func openServerTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(models...))
	return conn
}

func newServerTestEnv(t *testing.T) *serverTestEnv {
	t.Helper()

	core := openServerTestDB(t,
		&tenantdomain.Business{},
		&tenantdomain.User{},
		&tenantdomain.TenantMembership{},
		&invitedomain.Invite{},
	)
	tenant := openServerTestDB(t,
		&directorydomain.RoleRecord{},
		&directorydomain.Department{},
		&directorydomain.Dealer{},
		&directorydomain.Executive{},
		&domain.Product{},
		&domain.ProductVariant{},
		&licensedomain.LicenseDetail{},
		&licensedomain.LicenseStatus{},
		&licensedomain.LicenseTransaction{},
		&licensedomain.AddonStatus{},
		&creditdomain.DealerCreditTran{},
	)

	node, _ := snowflake.NewNode(1)
	clk := clock.NewFakeClock(time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	tenantID := node.Generate()
	require.NoError(t, core.Create(&tenantdomain.Business{
		ID:     tenantID,
		Name:   "Acme Traders",
		DBHost: "localhost",
		DBPort: "5432",
		DBName: "acme-traders",
	}).Error)

	registry := staticRegistry{conn: tenant}
	resolver := identity.StaticResolver{Actor: identity.Actor{
		UserID:   42,
		Email:    "owner@acme.test",
		TenantID: tenantID,
		Role:     directorydomain.RoleBusinessAdmin,
	}}
	dispatcher := notify.NewDispatcher(log,
		notify.NewLogEmailProvider(log),
		notify.NewLogWhatsappProvider(log),
	)

	creditSvc := creditservice.NewService(log, node, clk)
	licenseSvc := licenseservice.NewService(log, node, clk, creditSvc)
	pricingSvc := pricingservice.NewService(log, node)
	inviteSvc := inviteservice.NewService(log, node, clk, core, registry, resolver, dispatcher)
	tenantSvc := tenantservice.NewService(log, node, clk,
		config.Config{TenantDBHost: "localhost", TenantDBPort: "5432"},
		core, resolver, noopProvisioner{})

	metrics := telemetry.NewMetrics()
	engine := NewEngine(metrics)
	NewServer(ServerParams{
		Gin:        engine,
		Log:        log,
		Metrics:    metrics,
		Clk:        clk,
		GenID:      node,
		Core:       core,
		Registry:   registry,
		Resolver:   resolver,
		TenantSvc:  tenantSvc,
		InviteSvc:  inviteSvc,
		LicenseSvc: licenseSvc,
		PricingSvc: pricingSvc,
		CreditSvc:  creditSvc,
	})

	return &serverTestEnv{engine: engine, core: core, tenant: tenant, tenantID: tenantID, node: node}
}

func (env *serverTestEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (bool, string, map[string]any) {
	t.Helper()
	var resp struct {
		Status  bool           `json:"status"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Status, resp.Message, resp.Data
}

func (env *serverTestEnv) seedProduct(t *testing.T) (snowflake.ID, snowflake.ID) {
	t.Helper()
	productID := env.node.Generate()
	variantID := env.node.Generate()
	require.NoError(t, env.tenant.Create(&domain.Product{
		ID:            productID,
		Name:          "Ledger Pro",
		LicensePrefix: "LP",
	}).Error)
	require.NoError(t, env.tenant.Create(&domain.ProductVariant{
		ID:           variantID,
		ProductID:    productID,
		Name:         "Standard",
		UserCount:    5,
		ValidityDays: 365,
		GraceDays:    30,
	}).Error)
	return productID, variantID
}

func TestHealthEndpoint(t *testing.T) {
	env := newServerTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerateLicense_SuccessEnvelope(t *testing.T) {
	env := newServerTestEnv(t)
	productID, variantID := env.seedProduct(t)

	rec := env.do(t, http.MethodPost, "/license/generate", map[string]any{
		"product_id":  strconv.FormatInt(int64(productID), 10),
		"variant_id":  strconv.FormatInt(int64(variantID), 10),
		"holder_name": "Globex",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	status, message, data := decodeEnvelope(t, rec)
	assert.True(t, status)
	assert.Equal(t, "license generated", message)

	detail, ok := data["Detail"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "LP10051", detail["LicenseNo"])
}

func TestGenerateLicense_ValidationEnvelope(t *testing.T) {
	env := newServerTestEnv(t)

	rec := env.do(t, http.MethodPost, "/license/generate", map[string]any{
		"holder_name": "Globex",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	status, message, _ := decodeEnvelope(t, rec)
	assert.False(t, status)
	assert.Equal(t, "product is required", message)
}

func TestValidateLicense_UnknownIsNotFound(t *testing.T) {
	env := newServerTestEnv(t)
	env.seedProduct(t)

	rec := env.do(t, http.MethodPost, "/license/validate", map[string]any{
		"license_no": "ZZ99999",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	status, _, _ := decodeEnvelope(t, rec)
	assert.False(t, status)
}

func TestMetricsEndpoint_CountsRequestsAndIssuance(t *testing.T) {
	env := newServerTestEnv(t)
	productID, variantID := env.seedProduct(t)

	rec := env.do(t, http.MethodPost, "/license/generate", map[string]any{
		"product_id":  strconv.FormatInt(int64(productID), 10),
		"variant_id":  strconv.FormatInt(int64(variantID), 10),
		"holder_name": "Globex",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `licentia_licenses_issued_total{prefix="LP"} 1`)
	assert.Contains(t, body, `licentia_api_requests_total{method="POST",route="/license/generate",status="200"} 1`)
}

func TestTenantConn_CoreStoreOutageIsNotNotFound(t *testing.T) {
	env := newServerTestEnv(t)
	env.seedProduct(t)

	sqlDB, err := env.core.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	rec := env.do(t, http.MethodPost, "/license/validate", map[string]any{
		"license_no": "LP10051",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	status, _, _ := decodeEnvelope(t, rec)
	assert.False(t, status)
}
