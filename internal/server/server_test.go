package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	catalogdomain "github.com/andinolabs/canje/internal/catalog/domain"
	catalogrepo "github.com/andinolabs/canje/internal/catalog/repository"
	catalogservice "github.com/andinolabs/canje/internal/catalog/service"
	"github.com/andinolabs/canje/internal/clock"
	"github.com/andinolabs/canje/internal/config"
	ledgerdomain "github.com/andinolabs/canje/internal/ledger/domain"
	ledgerrepo "github.com/andinolabs/canje/internal/ledger/repository"
	ledgerservice "github.com/andinolabs/canje/internal/ledger/service"
	"github.com/andinolabs/canje/internal/providers/pdf"
	redemptiondomain "github.com/andinolabs/canje/internal/redemption/domain"
	redemptionrepo "github.com/andinolabs/canje/internal/redemption/repository"
	redemptionservice "github.com/andinolabs/canje/internal/redemption/service"
	voucherdomain "github.com/andinolabs/canje/internal/voucher/domain"
	voucherrepo "github.com/andinolabs/canje/internal/voucher/repository"
	voucherservice "github.com/andinolabs/canje/internal/voucher/service"
)

const testAdminToken = "test-admin-token"

type serverFixture struct {
	srv        *Server
	clk        *clock.FakeClock
	ledgerSvc  ledgerdomain.Service
	catalogSvc catalogdomain.Service
	voucherSvc voucherdomain.Service
}

func setupServer(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.PointBalance{},
		&ledgerdomain.LedgerEntry{},
		&catalogdomain.Partner{},
		&catalogdomain.Reward{},
		&catalogdomain.PartnerAPIKey{},
		&voucherdomain.Voucher{},
		&redemptiondomain.RedemptionRequest{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: ledgerrepo.Provide(),
	})
	catalogSvc := catalogservice.NewService(catalogservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: catalogrepo.Provide(),
	})
	voucherSvc := voucherservice.NewService(voucherservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: voucherrepo.Provide(),
	})
	redemptionSvc := redemptionservice.NewService(redemptionservice.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      clk,
		Repo:       redemptionrepo.Provide(),
		LedgerSvc:  ledgerSvc,
		CatalogSvc: catalogSvc,
		VoucherSvc: voucherSvc,
	})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	srv := NewServer(ServerParams{
		Gin:           engine,
		Cfg:           config.Config{AdminToken: testAdminToken},
		DB:            db,
		Clock:         clk,
		LedgerSvc:     ledgerSvc,
		CatalogSvc:    catalogSvc,
		VoucherSvc:    voucherSvc,
		RedemptionSvc: redemptionSvc,
		PDFProvider:   pdf.New(),
	})

	return &serverFixture{
		srv:        srv,
		clk:        clk,
		ledgerSvc:  ledgerSvc,
		catalogSvc: catalogSvc,
		voucherSvc: voucherSvc,
	}
}

func (f *serverFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	f.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) credit(t *testing.T, userID string, amount int64) {
	t.Helper()
	_, err := f.ledgerSvc.Credit(context.Background(), ledgerdomain.CreditRequest{
		UserID: userID,
		Amount: amount,
		Reason: ledgerdomain.ReasonAdminAdjustment,
	})
	require.NoError(t, err)
}

func (f *serverFixture) createReward(t *testing.T, cost, stock int64) (*catalogdomain.Partner, *catalogdomain.Reward) {
	t.Helper()
	ctx := context.Background()
	partner, err := f.catalogSvc.CreatePartner(ctx, &catalogdomain.Partner{
		Name:    fmt.Sprintf("Partner %d", time.Now().UnixNano()),
		Address: "Av. Principal 100",
	})
	require.NoError(t, err)

	reward, err := f.catalogSvc.CreateReward(ctx, catalogdomain.CreateRewardRequest{
		PartnerID:  partner.ID,
		Name:       fmt.Sprintf("Reward %d", time.Now().UnixNano()),
		PointsCost: cost,
		Stock:      stock,
	})
	require.NoError(t, err)
	return partner, reward
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	return parsed
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	parsed := decodeBody(t, rec)
	errObj, ok := parsed["error"].(map[string]any)
	require.True(t, ok, "response has no error object: %s", rec.Body.String())
	typ, _ := errObj["type"].(string)
	return typ
}

func TestRedeemEndpoint(t *testing.T) {
	f := setupServer(t)

	f.credit(t, "user-1", 200)
	_, reward := f.createReward(t, 120, 3)

	body := map[string]any{
		"user_id":    "user-1",
		"reward_id":  reward.ID.String(),
		"request_id": "req-1",
	}

	rec := f.do(t, http.MethodPost, "/api/redemptions", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	parsed := decodeBody(t, rec)
	data := parsed["data"].(map[string]any)
	require.Equal(t, float64(80), data["balance"])
	require.Equal(t, float64(2), data["reward_stock"])
	require.Equal(t, false, data["replayed"])

	voucher := data["voucher"].(map[string]any)
	require.Equal(t, "issued", voucher["state"])
	require.NotEmpty(t, voucher["code"])

	// Same request again is a replay, not a second redemption.
	rec = f.do(t, http.MethodPost, "/api/redemptions", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	replay := decodeBody(t, rec)["data"].(map[string]any)
	require.Equal(t, true, replay["replayed"])
	require.Equal(t, voucher["id"], replay["voucher"].(map[string]any)["id"])
}

func TestRedeemEndpointRejectsBadRequests(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, "/api/redemptions", map[string]any{"user_id": "user-1"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	f.credit(t, "user-2", 10)
	_, reward := f.createReward(t, 120, 3)

	rec = f.do(t, http.MethodPost, "/api/redemptions", map[string]any{
		"user_id":    "user-2",
		"reward_id":  reward.ID.String(),
		"request_id": "req-poor",
	}, nil)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	require.Equal(t, "insufficient_balance", errorType(t, rec))
}

func TestRedeemEndpointConflictOnParameterReuse(t *testing.T) {
	f := setupServer(t)

	f.credit(t, "user-1", 500)
	_, rewardA := f.createReward(t, 100, 5)
	_, rewardB := f.createReward(t, 100, 5)

	rec := f.do(t, http.MethodPost, "/api/redemptions", map[string]any{
		"user_id":    "user-1",
		"reward_id":  rewardA.ID.String(),
		"request_id": "req-reuse",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/redemptions", map[string]any{
		"user_id":    "user-1",
		"reward_id":  rewardB.ID.String(),
		"request_id": "req-reuse",
	}, nil)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	require.Equal(t, "request_conflict", errorType(t, rec))
}

func TestAdminSurfaceRequiresToken(t *testing.T) {
	f := setupServer(t)

	body := map[string]any{"amount": 50, "reason": "review_bonus"}

	rec := f.do(t, http.MethodPost, "/api/users/user-1/credits", body, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/users/user-1/credits", body, map[string]string{
		"X-Admin-Token": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/users/user-1/credits", body, map[string]string{
		"X-Admin-Token": testAdminToken,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/users/user-1/balance", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	require.Equal(t, float64(50), data["balance"])
}

func TestCreditEndpointRejectsEngineReasons(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, "/api/users/user-1/credits", map[string]any{
		"amount": 50,
		"reason": "redemption",
	}, map[string]string{"X-Admin-Token": testAdminToken})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestPartnerConfirmationChannel(t *testing.T) {
	f := setupServer(t)
	ctx := context.Background()

	f.credit(t, "user-1", 200)
	partner, reward := f.createReward(t, 100, 3)

	rec := f.do(t, http.MethodPost, "/api/redemptions", map[string]any{
		"user_id":    "user-1",
		"reward_id":  reward.ID.String(),
		"request_id": "req-confirm",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	code := decodeBody(t, rec)["data"].(map[string]any)["voucher"].(map[string]any)["code"].(string)

	plainKey, _, err := f.catalogSvc.IssueAPIKey(ctx, partner.ID,
		[]string{catalogdomain.ScopePresent, catalogdomain.ScopeConsume}, nil)
	require.NoError(t, err)

	// No key at all.
	rec = f.do(t, http.MethodPost, "/partner/vouchers/"+code+"/present", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Present, then consume.
	auth := map[string]string{"Authorization": "Bearer " + plainKey}
	rec = f.do(t, http.MethodPost, "/partner/vouchers/"+code+"/present", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "presented", decodeBody(t, rec)["data"].(map[string]any)["state"])

	rec = f.do(t, http.MethodPost, "/partner/vouchers/"+code+"/consume", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "consumed", decodeBody(t, rec)["data"].(map[string]any)["state"])

	// Consuming twice is an invalid transition.
	rec = f.do(t, http.MethodPost, "/partner/vouchers/"+code+"/consume", nil, auth)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	require.Equal(t, "invalid_transition", errorType(t, rec))
}

func TestPartnerChannelIsolatesPartners(t *testing.T) {
	f := setupServer(t)
	ctx := context.Background()

	f.credit(t, "user-1", 200)
	_, reward := f.createReward(t, 100, 3)
	otherPartner, _ := f.createReward(t, 100, 3)

	rec := f.do(t, http.MethodPost, "/api/redemptions", map[string]any{
		"user_id":    "user-1",
		"reward_id":  reward.ID.String(),
		"request_id": "req-isolate",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	code := decodeBody(t, rec)["data"].(map[string]any)["voucher"].(map[string]any)["code"].(string)

	// A key for another partner cannot see the voucher.
	otherKey, _, err := f.catalogSvc.IssueAPIKey(ctx, otherPartner.ID,
		[]string{catalogdomain.ScopePresent}, nil)
	require.NoError(t, err)
	rec = f.do(t, http.MethodPost, "/partner/vouchers/"+code+"/present", nil, map[string]string{
		"Authorization": "Bearer " + otherKey,
	})
	require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestPartnerChannelEnforcesScopes(t *testing.T) {
	f := setupServer(t)
	ctx := context.Background()

	f.credit(t, "user-1", 200)
	partner, reward := f.createReward(t, 100, 3)

	rec := f.do(t, http.MethodPost, "/api/redemptions", map[string]any{
		"user_id":    "user-1",
		"reward_id":  reward.ID.String(),
		"request_id": "req-scope",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	code := decodeBody(t, rec)["data"].(map[string]any)["voucher"].(map[string]any)["code"].(string)

	presentOnly, _, err := f.catalogSvc.IssueAPIKey(ctx, partner.ID,
		[]string{catalogdomain.ScopePresent}, nil)
	require.NoError(t, err)
	auth := map[string]string{"Authorization": "Bearer " + presentOnly}

	rec = f.do(t, http.MethodPost, "/partner/vouchers/"+code+"/present", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/partner/vouchers/"+code+"/consume", nil, auth)
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
}

func TestCancelVoucherEndpoint(t *testing.T) {
	f := setupServer(t)

	f.credit(t, "user-1", 200)
	_, reward := f.createReward(t, 120, 3)

	rec := f.do(t, http.MethodPost, "/api/redemptions", map[string]any{
		"user_id":    "user-1",
		"reward_id":  reward.ID.String(),
		"request_id": "req-cancel",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	voucherID := decodeBody(t, rec)["data"].(map[string]any)["voucher"].(map[string]any)["id"].(string)

	rec = f.do(t, http.MethodPost, "/api/vouchers/"+voucherID+"/cancel", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	admin := map[string]string{"X-Admin-Token": testAdminToken}
	rec = f.do(t, http.MethodPost, "/api/vouchers/"+voucherID+"/cancel", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeBody(t, rec)["data"].(map[string]any)
	require.Equal(t, float64(120), data["refunded"])
	require.Equal(t, false, data["replayed"])

	// Balance is back and the replayed cancel is a no-op success.
	rec = f.do(t, http.MethodGet, "/api/users/user-1/balance", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(200), decodeBody(t, rec)["data"].(map[string]any)["balance"])

	rec = f.do(t, http.MethodPost, "/api/vouchers/"+voucherID+"/cancel", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, true, decodeBody(t, rec)["data"].(map[string]any)["replayed"])
}

func TestVoucherPDFEndpoint(t *testing.T) {
	f := setupServer(t)

	f.credit(t, "user-1", 200)
	_, reward := f.createReward(t, 100, 3)

	rec := f.do(t, http.MethodPost, "/api/redemptions", map[string]any{
		"user_id":    "user-1",
		"reward_id":  reward.ID.String(),
		"request_id": "req-pdf",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	voucherID := decodeBody(t, rec)["data"].(map[string]any)["voucher"].(map[string]any)["id"].(string)

	rec = f.do(t, http.MethodGet, "/api/vouchers/"+voucherID+"/pdf", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.NotZero(t, rec.Body.Len())
}

func TestRewardCatalogEndpoints(t *testing.T) {
	f := setupServer(t)

	partner, reward := f.createReward(t, 100, 3)

	rec := f.do(t, http.MethodGet, "/api/rewards", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rewards := decodeBody(t, rec)["data"].([]any)
	require.Len(t, rewards, 1)

	rec = f.do(t, http.MethodGet, "/api/rewards/"+reward.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/rewards/123456789", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/partners/"+partner.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Admin patch: raise the cost.
	rec = f.do(t, http.MethodPatch, "/api/rewards/"+reward.ID.String(), map[string]any{
		"points_cost": 150,
	}, map[string]string{"X-Admin-Token": testAdminToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/rewards/"+reward.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody(t, rec)["data"].(map[string]any)
	require.Equal(t, float64(150), updated["points_cost"])
}
