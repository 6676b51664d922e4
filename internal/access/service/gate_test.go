package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/railzway-checkout/internal/access/domain"
	"github.com/smallbiznis/railzway-checkout/internal/access/repository"
	"github.com/smallbiznis/railzway-checkout/internal/clock"
	"github.com/smallbiznis/railzway-checkout/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type gateFixture struct {
	db      *gorm.DB
	gate    *Gate
	invites *InviteService
	clock   *clock.FakeClock
}

func newGateFixture(t *testing.T, evaluator domain.Evaluator) gateFixture {
	t.Helper()

	db := testsupport.OpenDB(t)
	repo := repository.Provide()
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	invites := NewInviteService(InviteParams{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: testsupport.NewNode(t),
		Repo:  repo,
		Clock: clk,
	})
	if evaluator == nil {
		evaluator = NewPolicyEvaluator(repo)
	}
	gate := NewGate(GateParams{
		Log:       zap.NewNop(),
		Repo:      repo,
		Evaluator: evaluator,
		Invites:   invites,
	})
	return gateFixture{db: db, gate: gate, invites: invites, clock: clk}
}

func seedPolicy(t *testing.T, db *gorm.DB, eventID int64, version int, mode string, guest, invites bool, match string) {
	testsupport.Exec(t, db,
		`INSERT INTO event_access_policies (id, event_id, policy_version, mode, guest_checkout_allowed, invite_token_allowed, invite_identity_match)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		eventID*100+int64(version), eventID, version, mode, guest, invites, match,
	)
}

func seedIdentity(t *testing.T, db *gorm.DB, id, email string, userID *string) {
	testsupport.Exec(t, db, `INSERT INTO email_identities (id, email_normalized, user_id) VALUES (?, ?, ?)`, id, email, userID)
}

func ptr[T any](v T) *T { return &v }

func TestGateRequiresEventID(t *testing.T) {
	f := newGateFixture(t, nil)
	err := f.gate.Check(context.Background(), f.db, CheckRequest{})
	assert.ErrorIs(t, err, domain.ErrEventIDRequired)
}

func TestGateWithoutPolicy(t *testing.T) {
	f := newGateFixture(t, nil)
	ctx := context.Background()

	assert.NoError(t, f.gate.Check(ctx, f.db, CheckRequest{EventID: ptr(int64(1))}))

	err := f.gate.Check(ctx, f.db, CheckRequest{EventID: ptr(int64(1)), InviteToken: ptr("tok")})
	assert.ErrorIs(t, err, domain.ErrInviteTokenInvalid)
}

func TestGateInviteOnlyWithoutToken(t *testing.T) {
	f := newGateFixture(t, nil)
	seedPolicy(t, f.db, 10, 1, domain.ModeInviteOnly, true, true, domain.IdentityMatchEmail)

	err := f.gate.Check(context.Background(), f.db, CheckRequest{EventID: ptr(int64(10))})
	assert.ErrorIs(t, err, domain.ErrInviteTokenRequired)
}

func TestGateUsesLatestPolicyVersion(t *testing.T) {
	f := newGateFixture(t, nil)
	seedPolicy(t, f.db, 10, 1, domain.ModeInviteOnly, true, true, domain.IdentityMatchEmail)
	seedPolicy(t, f.db, 10, 2, domain.ModePublic, true, false, domain.IdentityMatchEmail)

	assert.NoError(t, f.gate.Check(context.Background(), f.db, CheckRequest{EventID: ptr(int64(10))}))
}

func TestGateRejectsTokenWhenNotAllowed(t *testing.T) {
	ctx := context.Background()

	f := newGateFixture(t, nil)
	seedPolicy(t, f.db, 11, 1, domain.ModePublic, true, false, domain.IdentityMatchEmail)
	err := f.gate.Check(ctx, f.db, CheckRequest{EventID: ptr(int64(11)), InviteToken: ptr("tok")})
	assert.ErrorIs(t, err, domain.ErrInviteTokenInvalid)

	f = newGateFixture(t, nil)
	seedPolicy(t, f.db, 12, 1, domain.ModeInviteOnly, true, true, domain.IdentityMatchUsername)
	err = f.gate.Check(ctx, f.db, CheckRequest{EventID: ptr(int64(12)), InviteToken: ptr("tok")})
	assert.ErrorIs(t, err, domain.ErrInviteTokenInvalid)
}

func TestGateGuestCheckout(t *testing.T) {
	ctx := context.Background()
	f := newGateFixture(t, nil)
	seedPolicy(t, f.db, 13, 1, domain.ModePublic, false, false, domain.IdentityMatchEmail)
	seedIdentity(t, f.db, "idn_guest", "guest@example.com", nil)
	seedIdentity(t, f.db, "idn_user", "user@example.com", ptr("usr_1"))

	err := f.gate.Check(ctx, f.db, CheckRequest{EventID: ptr(int64(13))})
	assert.ErrorIs(t, err, domain.ErrGuestCheckoutNotAllowed)

	err = f.gate.Check(ctx, f.db, CheckRequest{EventID: ptr(int64(13)), BuyerIdentityRef: ptr("idn_guest")})
	assert.ErrorIs(t, err, domain.ErrGuestCheckoutNotAllowed)

	err = f.gate.Check(ctx, f.db, CheckRequest{EventID: ptr(int64(13)), BuyerIdentityRef: ptr("idn_missing")})
	assert.ErrorIs(t, err, domain.ErrInviteTokenInvalid)

	assert.NoError(t, f.gate.Check(ctx, f.db, CheckRequest{EventID: ptr(int64(13)), BuyerIdentityRef: ptr("idn_user")}))
}

func TestGateConsumesInviteOnce(t *testing.T) {
	ctx := context.Background()
	f := newGateFixture(t, nil)
	seedPolicy(t, f.db, 20, 1, domain.ModeInviteOnly, true, true, domain.IdentityMatchEmail)
	seedIdentity(t, f.db, "idn_buyer", "buyer@example.com", ptr("usr_buyer"))

	token, err := f.invites.Issue(ctx, IssueInviteRequest{
		EventID:      20,
		Email:        "Buyer@Example.com",
		TicketTypeID: ptr(int64(2)),
		TTL:          time.Hour,
	})
	require.NoError(t, err)

	req := CheckRequest{
		EventID:          ptr(int64(20)),
		TicketTypeIDs:    []int64{1, 2},
		BuyerIdentityRef: ptr("idn_buyer"),
		InviteToken:      ptr(token),
	}
	require.NoError(t, f.gate.Check(ctx, f.db, req))

	stored, err := repository.Provide().FindInviteToken(ctx, f.db, HashToken(token))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotNil(t, stored.UsedAt)
	require.NotNil(t, stored.UsedByIdentityID)
	assert.Equal(t, "idn_buyer", *stored.UsedByIdentityID)

	err = f.gate.Check(ctx, f.db, req)
	assert.ErrorIs(t, err, domain.ErrInviteTokenInvalid)
}

func TestGateInviteScope(t *testing.T) {
	ctx := context.Background()
	f := newGateFixture(t, nil)
	seedPolicy(t, f.db, 21, 1, domain.ModeInviteOnly, true, true, domain.IdentityMatchEmail)
	seedIdentity(t, f.db, "idn_other", "other@example.com", ptr("usr_other"))
	seedIdentity(t, f.db, "idn_buyer", "buyer@example.com", ptr("usr_buyer"))

	token, err := f.invites.Issue(ctx, IssueInviteRequest{EventID: 21, Email: "buyer@example.com", TicketTypeID: ptr(int64(9)), TTL: time.Hour})
	require.NoError(t, err)

	wrongEmail := CheckRequest{EventID: ptr(int64(21)), TicketTypeIDs: []int64{9}, BuyerIdentityRef: ptr("idn_other"), InviteToken: ptr(token)}
	assert.ErrorIs(t, f.gate.Check(ctx, f.db, wrongEmail), domain.ErrInviteTokenInvalid)

	wrongTicketType := CheckRequest{EventID: ptr(int64(21)), TicketTypeIDs: []int64{1}, BuyerIdentityRef: ptr("idn_buyer"), InviteToken: ptr(token)}
	assert.ErrorIs(t, f.gate.Check(ctx, f.db, wrongTicketType), domain.ErrInviteTokenInvalid)

	f.clock.Advance(2 * time.Hour)
	expired := CheckRequest{EventID: ptr(int64(21)), TicketTypeIDs: []int64{9}, BuyerIdentityRef: ptr("idn_buyer"), InviteToken: ptr(token)}
	assert.ErrorIs(t, f.gate.Check(ctx, f.db, expired), domain.ErrInviteTokenInvalid)
}

func TestGateTokenWithoutBuyer(t *testing.T) {
	f := newGateFixture(t, nil)
	seedPolicy(t, f.db, 22, 1, domain.ModeInviteOnly, true, true, domain.IdentityMatchEmail)

	err := f.gate.Check(context.Background(), f.db, CheckRequest{EventID: ptr(int64(22)), InviteToken: ptr("tok")})
	assert.ErrorIs(t, err, domain.ErrInviteTokenInvalid)
}

type mockEvaluator struct {
	mock.Mock
}

func (m *mockEvaluator) Evaluate(ctx context.Context, db *gorm.DB, req domain.EvaluateRequest) (domain.Decision, error) {
	args := m.Called(ctx, db, req)
	return args.Get(0).(domain.Decision), args.Error(1)
}

func TestGateMapsEvaluatorReasons(t *testing.T) {
	cases := []struct {
		reason string
		want   error
	}{
		{reason: domain.ReasonInviteOnly, want: domain.ErrInviteTokenRequired},
		{reason: "GUEST_CHECKOUT_NOT_ALLOWED", want: domain.ErrGuestCheckoutNotAllowed},
		{reason: "EVENT_CLOSED", want: domain.ErrAccessDenied},
		{reason: "", want: domain.ErrAccessDenied},
	}

	for _, tc := range cases {
		t.Run(tc.reason, func(t *testing.T) {
			evaluator := &mockEvaluator{}
			f := newGateFixture(t, evaluator)
			seedPolicy(t, f.db, 30, 1, domain.ModePublic, true, false, domain.IdentityMatchEmail)

			evaluator.On("Evaluate", mock.Anything, mock.Anything, domain.EvaluateRequest{EventID: 30, Intent: domain.IntentView}).
				Return(domain.Decision{Allowed: false, ReasonCode: tc.reason}, nil).Once()

			err := f.gate.Check(context.Background(), f.db, CheckRequest{EventID: ptr(int64(30))})
			assert.ErrorIs(t, err, tc.want)
			evaluator.AssertExpectations(t)
		})
	}
}

func TestPolicyEvaluator(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenDB(t)
	evaluator := NewPolicyEvaluator(repository.Provide())

	decision, err := evaluator.Evaluate(ctx, db, domain.EvaluateRequest{EventID: 1, Intent: domain.IntentView})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	seedPolicy(t, db, 1, 1, domain.ModeInviteOnly, false, true, domain.IdentityMatchEmail)

	decision, err = evaluator.Evaluate(ctx, db, domain.EvaluateRequest{EventID: 1, Intent: domain.IntentView})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, domain.ReasonInviteOnly, decision.ReasonCode)

	decision, err = evaluator.Evaluate(ctx, db, domain.EvaluateRequest{EventID: 1, Intent: domain.IntentInviteToken})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}
