package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehicle-rental-backend/internal/domain"
	"vehicle-rental-backend/internal/logger"
	"vehicle-rental-backend/internal/repository/memory"
	"vehicle-rental-backend/internal/security"
	"vehicle-rental-backend/internal/service"
)

const (
	testSecret  = "0123456789abcdef0123456789abcdef"
	testWebhook = "whsec_test"
)

func TestMain(m *testing.M) {
	logger.InitializeWithWriter(io.Discard, "error", "text")
	os.Exit(m.Run())
}

type apiFixture struct {
	server *httptest.Server
	tokens security.TokenManager
	store  *memory.Store
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	store := memory.NewStore()
	store.PutVehicle(&domain.Vehicle{ID: 1, CurrentMileage: 1000, DailyRateCents: 10000, UnlimitedMileage: true})

	bookings := service.NewBookingService(store.BookingRepo, store.DriverRepo, store.VehicleRepo, nil, nil, service.DefaultBookingPolicy())
	drivers := service.NewVerificationService(store.DriverRepo, bookings)
	tokens := security.NewTokenManager(testSecret, "identity")

	srv := httptest.NewServer(NewRouter(bookings, drivers, tokens, testWebhook))
	t.Cleanup(srv.Close)
	return &apiFixture{server: srv, tokens: tokens, store: store}
}

func (f *apiFixture) token(t *testing.T, a domain.Actor) string {
	t.Helper()
	tok, err := f.tokens.GenerateAccessToken(a, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, f.server.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp, out
}

func TestRouter_Health(t *testing.T) {
	f := newAPI(t)
	resp, body := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_RequiresToken(t *testing.T) {
	f := newAPI(t)

	resp, body := f.do(t, http.MethodGet, "/api/v1/bookings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", body["error"])

	resp, _ = f.do(t, http.MethodGet, "/api/v1/bookings", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouter_BookingFlow(t *testing.T) {
	f := newAPI(t)
	customer := f.token(t, domain.Actor{ID: 10, Role: domain.RoleCustomer})
	verifier := f.token(t, domain.Actor{ID: 20, Role: domain.RoleVerifier})

	resp, drv := f.do(t, http.MethodPost, "/api/v1/drivers", customer, map[string]any{"name": "Sam"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	driverID := int32(drv["id"].(float64))

	expires := time.Now().AddDate(1, 0, 0).UTC().Format(time.RFC3339)
	for _, doc := range []string{"license", "insurance"} {
		resp, _ = f.do(t, http.MethodPut, "/api/v1/drivers/1/documents/"+doc, customer, map[string]any{
			"identifier": "X-1", "issuer": "DMV", "expires_on": expires,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, doc)
	}

	pickup := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Second)
	resp, b := f.do(t, http.MethodPost, "/api/v1/bookings", customer, map[string]any{
		"vehicle_id":      1,
		"pickup_at":       pickup.Format(time.RFC3339),
		"return_at":       pickup.Add(48 * time.Hour).Format(time.RFC3339),
		"pickup_location": "Downtown",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "license_required", b["status"])
	assert.Equal(t, float64(20000), b["total_price_cents"])

	resp, b = f.do(t, http.MethodPost, "/api/v1/bookings/1/driver", customer, map[string]any{"driver_id": driverID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "verification_pending", b["status"])

	resp, v := f.do(t, http.MethodGet, "/api/v1/drivers/1/verification", customer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, v["fully_verified"])

	for _, doc := range []string{"license", "insurance"} {
		resp, _ = f.do(t, http.MethodPost, "/api/v1/drivers/1/documents/"+doc+"/verify", verifier, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, doc)
	}

	resp, v = f.do(t, http.MethodGet, "/api/v1/drivers/1/verification", customer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, v["fully_verified"])

	stranger := f.token(t, domain.Actor{ID: 11, Role: domain.RoleCustomer})
	resp, _ = f.do(t, http.MethodGet, "/api/v1/drivers/1/verification", stranger, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, b = f.do(t, http.MethodGet, "/api/v1/bookings/1", customer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "payment_pending", b["status"])

	// Payment processor callback.
	req, _ := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/payments/webhook",
		bytes.NewBufferString(`{"booking_id":1,"amount_cents":20000,"charge_id":"ch_9","method":"card"}`))
	req.Header.Set(WebhookSecretHeader, testWebhook)
	whResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	whResp.Body.Close()
	assert.Equal(t, http.StatusOK, whResp.StatusCode)

	resp, q := f.do(t, http.MethodGet, "/api/v1/bookings/1/cancellation", customer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "full_refund", q["tier"])

	resp, b = f.do(t, http.MethodPost, "/api/v1/bookings/1/cancellation", customer, map[string]any{"reason": "sick"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", b["status"])

	resp, e := f.do(t, http.MethodPost, "/api/v1/bookings/1/cancellation", customer, map[string]any{"reason": "again"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_state", e["error"])
	assert.Equal(t, "cancelled", e["status"])
}

func TestRouter_Errors(t *testing.T) {
	f := newAPI(t)
	customer := f.token(t, domain.Actor{ID: 10, Role: domain.RoleCustomer})

	t.Run("Validation Fields", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/api/v1/bookings", customer, map[string]any{"vehicle_id": 1})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "validation_failed", body["error"])
		assert.NotEmpty(t, body["fields"])
	})

	t.Run("Unknown Field", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/api/v1/bookings", customer, map[string]any{"colour": "red"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "bad_request", body["error"])
	})

	t.Run("Not Found", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/api/v1/bookings/999", customer, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "not_found", body["error"])
	})

	t.Run("Customer Cannot Check In", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/api/v1/bookings/1/check-in", customer, map[string]any{"mileage": 1000, "fuel_level": "full"})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("Bad Document Type", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPut, "/api/v1/drivers/1/documents/passport", customer, map[string]any{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "validation_failed", body["error"])
	})

	t.Run("Wrong Webhook Secret", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/payments/webhook", bytes.NewBufferString(`{}`))
		req.Header.Set(WebhookSecretHeader, "nope")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		code int
		name string
	}{
		{&domain.InvalidMileageError{Mileage: 1, Minimum: 2}, http.StatusUnprocessableEntity, "unprocessable"},
		{&domain.ConcurrentModificationError{Resource: "booking", ID: 1}, http.StatusConflict, "concurrent_modification"},
		{&domain.AlreadyCheckedInError{BookingID: 1, Status: domain.BookingStatusActive}, http.StatusConflict, "invalid_state"},
		{&domain.PaymentDeclinedError{Reason: "card"}, http.StatusPaymentRequired, "payment_declined"},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		code, resp := classify(tt.err)
		assert.Equal(t, tt.code, code, tt.name)
		assert.Equal(t, tt.name, resp.Error)
	}
}
