package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	accessdomain "github.com/smallbiznis/railzway-checkout/internal/access/domain"
	accessservice "github.com/smallbiznis/railzway-checkout/internal/access/service"
	checkoutdomain "github.com/smallbiznis/railzway-checkout/internal/checkout/domain"
	"github.com/smallbiznis/railzway-checkout/internal/config"
	ledgerdomain "github.com/smallbiznis/railzway-checkout/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/railzway-checkout/internal/payment/domain"
	pricingdomain "github.com/smallbiznis/railzway-checkout/internal/pricing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeCheckout struct {
	calls []checkoutdomain.CreateCheckoutInput
	out   *checkoutdomain.CreateCheckoutOutput
	err   error
}

func (f *fakeCheckout) CreateCheckout(ctx context.Context, in checkoutdomain.CreateCheckoutInput) (*checkoutdomain.CreateCheckoutOutput, error) {
	f.calls = append(f.calls, in)
	return f.out, f.err
}

type fakeLedger struct {
	entries []ledgerdomain.LedgerEntry
}

func (f *fakeLedger) EnsurePaymentEntries(ctx context.Context, db *gorm.DB, in ledgerdomain.PaymentEntriesInput) (int, error) {
	return 0, nil
}

func (f *fakeLedger) ListByPayment(ctx context.Context, paymentID string) ([]ledgerdomain.LedgerEntry, error) {
	var out []ledgerdomain.LedgerEntry
	for _, e := range f.entries {
		if e.PaymentID == paymentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeLedger) PaymentBalance(ctx context.Context, paymentID string) (ledgerdomain.Balance, error) {
	b := ledgerdomain.Balance{PaymentID: paymentID}
	for _, e := range f.entries {
		if e.PaymentID != paymentID {
			continue
		}
		b.Currency = e.Currency
		b.Amount += e.Amount
		b.Entries++
	}
	return b, nil
}

type fakeInvites struct {
	req accessservice.IssueInviteRequest
}

func (f *fakeInvites) Issue(ctx context.Context, req accessservice.IssueInviteRequest) (string, error) {
	f.req = req
	return "plain-token", nil
}

type testServer struct {
	engine   *gin.Engine
	checkout *fakeCheckout
	ledger   *fakeLedger
	invites  *fakeInvites
}

func newTestServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()

	ts := &testServer{
		checkout: &fakeCheckout{},
		ledger:   &fakeLedger{},
		invites:  &fakeInvites{},
	}
	engine := NewEngine(zap.NewNop())
	NewServer(ServerParams{
		Gin:      engine,
		Cfg:      cfg,
		Log:      zap.NewNop(),
		Checkout: ts.checkout,
		Ledger:   ts.ledger,
		Invites:  ts.invites,
	})
	ts.engine = engine
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestCreateCheckoutCreated(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	hash := "abc"
	ts.checkout.out = &checkoutdomain.CreateCheckoutOutput{
		PaymentID:           "pay_1",
		Status:              paymentdomain.StatusCreated,
		PricingSnapshotHash: &hash,
	}

	rec := ts.do(t, http.MethodPost, "/v1/checkouts", map[string]any{
		"sourceType": "tournament_registration",
		"sourceId":   "reg_1",
	}, map[string]string{idempotencyKeyHeader: " key-1 "})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, ts.checkout.calls, 1)
	in := ts.checkout.calls[0]
	assert.Equal(t, pricingdomain.SourceTypePadelRegistration, in.SourceType)
	assert.Equal(t, "reg_1", in.SourceID)
	assert.Equal(t, "key-1", in.IdempotencyKey)

	var resp createCheckoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pay_1", resp.PaymentID)
	assert.Equal(t, string(paymentdomain.StatusCreated), resp.Status)
	require.NotNil(t, resp.PricingSnapshotHash)
	assert.Equal(t, "abc", *resp.PricingSnapshotHash)
	assert.False(t, resp.Replayed)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-Id"))
}

func TestCreateCheckoutReplayReturnsOK(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	ts.checkout.out = &checkoutdomain.CreateCheckoutOutput{
		PaymentID: "pay_1",
		Status:    paymentdomain.StatusCreated,
		Replayed:  true,
	}

	rec := ts.do(t, http.MethodPost, "/v1/checkouts", map[string]any{
		"sourceType":     "BOOKING",
		"sourceId":       "42",
		"idempotencyKey": "body-key",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ts.checkout.calls, 1)
	assert.Equal(t, "body-key", ts.checkout.calls[0].IdempotencyKey)
}

func TestCreateCheckoutHeaderKeyWins(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	ts.checkout.out = &checkoutdomain.CreateCheckoutOutput{PaymentID: "pay_1", Status: paymentdomain.StatusCreated}

	rec := ts.do(t, http.MethodPost, "/v1/checkouts", map[string]any{
		"sourceType":     "BOOKING",
		"sourceId":       "42",
		"idempotencyKey": "body-key",
	}, map[string]string{idempotencyKeyHeader: "header-key"})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "header-key", ts.checkout.calls[0].IdempotencyKey)
}

func TestCreateCheckoutErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"key required", checkoutdomain.ErrIdempotencyKeyRequired, http.StatusBadRequest, "IDEMPOTENCY_KEY_REQUIRED"},
		{"not in mvp", pricingdomain.ErrSourceTypeNotAllowedInMVP, http.StatusUnprocessableEntity, "SOURCE_TYPE_NOT_ALLOWED_IN_MVP"},
		{"not found", pricingdomain.ErrSourceNotFound, http.StatusNotFound, "SOURCE_NOT_FOUND"},
		{"wrapped invite", errors.Join(errors.New("gate"), accessdomain.ErrInviteTokenRequired), http.StatusForbidden, "INVITE_TOKEN_REQUIRED"},
		{"internal", errors.New("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, config.Config{})
			ts.checkout.err = tc.err

			rec := ts.do(t, http.MethodPost, "/v1/checkouts", map[string]any{
				"sourceType": "BOOKING",
				"sourceId":   "42",
			}, map[string]string{idempotencyKeyHeader: "k"})

			require.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeError(t, rec).Code)
		})
	}
}

func TestCreateCheckoutRejectsMalformedBody(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/checkouts", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Type)
	assert.Empty(t, ts.checkout.calls)
}

func TestGetPaymentLedger(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ts.ledger.entries = []ledgerdomain.LedgerEntry{
		{ID: snowflake.ID(1), PaymentID: "pay_1", EntryType: ledgerdomain.EntryTypeGross, Amount: 5430, Currency: "IDR", CausationID: "k:gross", CorrelationID: "k", CreatedAt: now},
		{ID: snowflake.ID(2), PaymentID: "pay_1", EntryType: ledgerdomain.EntryTypePlatformFee, Amount: -430, Currency: "IDR", CausationID: "k:platform_fee", CorrelationID: "k", CreatedAt: now},
	}

	rec := ts.do(t, http.MethodGet, "/v1/payments/pay_1/ledger", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp paymentLedgerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(5000), resp.Balance)
	assert.Equal(t, "IDR", resp.Currency)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "k:platform_fee", resp.Entries[1].CausationID)

	rec = ts.do(t, http.MethodGet, "/v1/payments/missing/ledger", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoutesDisabledWithoutToken(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	rec := ts.do(t, http.MethodPost, "/admin/events/77/invites", map[string]any{"email": "a@b.c"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIssueInvite(t *testing.T) {
	ts := newTestServer(t, config.Config{AdminAPIToken: "s3cret"})

	rec := ts.do(t, http.MethodPost, "/admin/events/77/invites", map[string]any{"email": "a@b.c"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/admin/events/77/invites", map[string]any{"email": "a@b.c"},
		map[string]string{"Authorization": "Bearer wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/admin/events/77/invites", map[string]any{
		"email":      " a@b.c ",
		"ttlSeconds": 60,
	}, map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp issueInviteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "plain-token", resp.Token)
	assert.Equal(t, int64(77), resp.EventID)
	assert.Equal(t, int64(77), ts.invites.req.EventID)
	assert.Equal(t, "a@b.c", ts.invites.req.Email)
	assert.Equal(t, time.Minute, ts.invites.req.TTL)

	rec = ts.do(t, http.MethodPost, "/admin/events/abc/invites", map[string]any{"email": "a@b.c"},
		map[string]string{adminTokenHeader: "s3cret"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	rec := ts.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
