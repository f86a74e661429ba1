package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartration/ration-engine/api"
	"github.com/smartration/ration-engine/engine"
	"github.com/smartration/ration-engine/ledger"
	"github.com/smartration/ration-engine/notify"
	"github.com/smartration/ration-engine/ration"
	"github.com/smartration/ration-engine/ration/store"
	"github.com/smartration/ration-engine/reservation"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	calc := ration.NewCalculator(0)
	m := store.NewMemory(calc)
	chain := ledger.New(m, ledger.WithDifficulty(0))
	dispatcher := notify.NewLogDispatcher(log)
	manager := reservation.NewManager(m, m, m, dispatcher, log)

	eng := engine.New(engine.Config{
		Households:   m,
		Balances:     m,
		Calculator:   calc,
		Ledger:       chain,
		Reservations: manager,
		Dispatcher:   dispatcher,
		Log:          log,
		Metrics:      engine.NewMetrics(prometheus.NewRegistry()),
	})

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(eng, manager, log)))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func registerHousehold(t *testing.T, srv *httptest.Server) api.HouseholdDTO {
	t.Helper()

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/households", api.RegisterHouseholdRequest{
		CardType:    string(ration.CardSubsidizedLowest),
		MemberCount: 2,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var dto api.HouseholdDTO
	require.NoError(t, json.Unmarshal(body, &dto))
	return dto
}

// =============================================================================
// HOUSEHOLDS AND BALANCES
// =============================================================================

func TestAPI_RegisterAndGetHousehold(t *testing.T) {
	srv := newTestServer(t)

	h := registerHousehold(t, srv)
	assert.NotEmpty(t, h.ID)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/households/"+h.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got api.HouseholdDTO
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "subsidized-lowest", got.CardType)
	assert.Equal(t, 2, got.MemberCount)
}

func TestAPI_RegisterHousehold_BadCardType(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/households", api.RegisterHouseholdRequest{
		CardType: "platinum",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetBalance(t *testing.T) {
	srv := newTestServer(t)
	h := registerHousehold(t, srv)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/households/"+h.ID+"/balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var dto api.BalanceDTO
	require.NoError(t, json.Unmarshal(body, &dto))
	assert.Equal(t, "10", dto.Entitlement["rice"])
	assert.Equal(t, "10", dto.Remaining["rice"])
	assert.Equal(t, "4", dto.Remaining["kerosene"])
}

func TestAPI_GetBalance_UnknownHousehold(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/households/missing/balance", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// DISTRIBUTIONS
// =============================================================================

func TestAPI_Distribute_HappyPath(t *testing.T) {
	srv := newTestServer(t)
	h := registerHousehold(t, srv)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/distributions", api.DistributeRequest{
		HouseholdID:   h.ID,
		Items:         map[string]float64{"rice": 5, "sugar": 1},
		PaymentMethod: "upi",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var dto api.DistributionDTO
	require.NoError(t, json.Unmarshal(body, &dto))
	assert.Equal(t, "35", dto.TotalAmount, "5kg rice @3 + 1kg sugar @20")
	assert.Len(t, dto.Items, 2)
	assert.NotEmpty(t, dto.ContentHash)

	// History shows it
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/households/"+h.ID+"/distributions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []api.DistributionDTO
	require.NoError(t, json.Unmarshal(body, &history))
	require.Len(t, history, 1)
	assert.Equal(t, dto.ID, history[0].ID)

	// Verification passes
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/distributions/"+dto.ID+"/verify", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var verification struct {
		Verified bool `json:"verified"`
	}
	require.NoError(t, json.Unmarshal(body, &verification))
	assert.True(t, verification.Verified)
}

func TestAPI_Distribute_InsufficientReturns409WithShortfalls(t *testing.T) {
	srv := newTestServer(t)
	h := registerHousehold(t, srv)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/distributions", api.DistributeRequest{
		HouseholdID: h.ID,
		Items:       map[string]float64{"rice": 11},
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var errResp api.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, "1", errResp.Shortfalls["rice"])
}

func TestAPI_Distribute_UnknownCommodity(t *testing.T) {
	srv := newTestServer(t)
	h := registerHousehold(t, srv)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/distributions", api.DistributeRequest{
		HouseholdID: h.ID,
		Items:       map[string]float64{"salt": 1},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_VerifyDistribution_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/distributions/missing/verify", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func TestAPI_ReservationLifecycle(t *testing.T) {
	srv := newTestServer(t)
	h := registerHousehold(t, srv)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/reservations", api.ReserveRequest{
		HouseholdID: h.ID,
		ShopID:      "shop-7",
		Items:       map[string]float64{"rice": 4},
		TargetDate:  "2026-09-15",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var res api.ReservationDTO
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, "held", res.Status)
	assert.Equal(t, "2026-09-15", res.TargetDate)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/reservations/"+res.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, "cancelled", res.Status)

	// Cancelling again conflicts
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/reservations/"+res.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_Reserve_BadDate(t *testing.T) {
	srv := newTestServer(t)
	h := registerHousehold(t, srv)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/reservations", api.ReserveRequest{
		HouseholdID: h.ID,
		Items:       map[string]float64{"rice": 1},
		TargetDate:  "15-09-2026",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// CHAIN
// =============================================================================

func TestAPI_ChainHeadAndValidate(t *testing.T) {
	srv := newTestServer(t)
	h := registerHousehold(t, srv)

	for i := 0; i < 2; i++ {
		resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/distributions", api.DistributeRequest{
			HouseholdID: h.ID,
			Items:       map[string]float64{"wheat": 1},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, fmt.Sprintf("append %d: %s", i, body))
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/chain/head", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var head api.BlockDTO
	require.NoError(t, json.Unmarshal(body, &head))
	assert.Equal(t, int64(2), head.Index)
	assert.Equal(t, 1, head.EntryCount)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/chain/validate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var validation api.ChainValidationDTO
	require.NoError(t, json.Unmarshal(body, &validation))
	assert.True(t, validation.Valid)
	assert.Equal(t, int64(3), validation.Blocks)
}

func TestAPI_Health(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_Metrics(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
