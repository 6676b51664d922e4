package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/railzway-checkout/internal/payment/domain"
	"github.com/smallbiznis/railzway-checkout/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newPayment(id, key string) *domain.Payment {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	hash := "abc"
	return &domain.Payment{
		ID:                  id,
		OrganizationID:      1,
		SourceType:          "BOOKING",
		SourceID:            "42",
		Status:              domain.StatusCreated,
		Currency:            "USD",
		TotalCents:          1_030,
		FeePolicyVersion:    "fpv",
		PricingSnapshot:     datatypes.JSON(`{"gross":1000}`),
		PricingSnapshotHash: &hash,
		IdempotencyKey:      key,
		ProcessorFeesStatus: "PENDING",
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func TestInsertAndFind(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenDB(t)
	repo := Provide()

	require.NoError(t, repo.Insert(ctx, db, newPayment("pay_1", "key_1")))

	byID, err := repo.FindByID(ctx, db, "pay_1")
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "key_1", byID.IdempotencyKey)
	assert.Equal(t, domain.StatusCreated, byID.Status)
	assert.JSONEq(t, `{"gross":1000}`, string(byID.PricingSnapshot))
	require.NotNil(t, byID.PricingSnapshotHash)
	assert.Equal(t, "abc", *byID.PricingSnapshotHash)

	byKey, err := repo.FindByIdempotencyKey(ctx, db, "key_1")
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, "pay_1", byKey.ID)

	missing, err := repo.FindByID(ctx, db, "pay_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInsertConflicts(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenDB(t)
	repo := Provide()

	require.NoError(t, repo.Insert(ctx, db, newPayment("pay_1", "key_1")))

	assert.ErrorIs(t, repo.Insert(ctx, db, newPayment("pay_2", "key_1")), domain.ErrPaymentConflict)
	assert.ErrorIs(t, repo.Insert(ctx, db, newPayment("pay_1", "key_2")), domain.ErrPaymentConflict)
	assert.Equal(t, int64(1), testsupport.Count(t, db, `SELECT COUNT(*) FROM payments`))
}

func TestInsertRejectsIncompletePayment(t *testing.T) {
	db := testsupport.OpenDB(t)
	assert.ErrorIs(t, Provide().Insert(context.Background(), db, newPayment("", "key")), domain.ErrInvalidPayment)
}
