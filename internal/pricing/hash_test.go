package pricing

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/smallbiznis/railzway-checkout/internal/pricing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() domain.PricingSnapshot {
	total := int64(2000)
	ticketType := int64(7)
	return domain.PricingSnapshot{
		Currency:            "USD",
		Gross:               2000,
		PlatformFee:         190,
		Total:               2190,
		NetToOrgPending:     1810,
		ProcessorFeesStatus: domain.ProcessorFeesPending,
		FeeMode:             domain.FeeModeAdded,
		FeeBps:              800,
		FeeFixed:            30,
		FeePolicyVersion:    FeePolicyVersion(domain.FeeModeAdded, 800, 30),
		SourceType:          domain.SourceTypeTicketOrder,
		SourceID:            "to_1",
		LineItems: []domain.LineItem{
			{Quantity: 2, UnitPriceCents: 1000, TotalAmountCents: &total, Currency: "USD", SourceLineID: "1", TicketTypeID: &ticketType},
		},
	}
}

func TestFeePolicyVersionMatchesFixedFieldOrder(t *testing.T) {
	sum := sha256.Sum256([]byte(`{"feeMode":"ADDED","feeBps":800,"feeFixed":30}`))
	assert.Equal(t, hex.EncodeToString(sum[:]), FeePolicyVersion(domain.FeeModeAdded, 800, 30))
	assert.NotEqual(t, FeePolicyVersion(domain.FeeModeAdded, 800, 30), FeePolicyVersion(domain.FeeModeIncluded, 800, 30))
}

func TestCanonicalizeSortsKeysRecursively(t *testing.T) {
	a := map[string]any{"b": 1, "a": map[string]any{"z": true, "y": []any{map[string]any{"d": 1, "c": nil}}}}
	b := map[string]any{"a": map[string]any{"y": []any{map[string]any{"c": nil, "d": 1}}, "z": true}, "b": 1}

	ca, err := Canonicalize(a)
	require.NoError(t, err)
	cb, err := Canonicalize(b)
	require.NoError(t, err)

	assert.Equal(t, `{"a":{"y":[{"c":null,"d":1}],"z":true},"b":1}`, string(ca))
	assert.Equal(t, ca, cb)
}

func TestCanonicalizeKeepsArrayOrderAndHTML(t *testing.T) {
	out, err := Canonicalize(map[string]any{"list": []any{3, 1, 2}, "label": "a<b&c"})
	require.NoError(t, err)
	assert.Equal(t, `{"label":"a<b&c","list":[3,1,2]}`, string(out))
}

func TestHashSnapshotDeterministic(t *testing.T) {
	first, err := HashSnapshot(sampleSnapshot())
	require.NoError(t, err)
	second, err := HashSnapshot(sampleSnapshot())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestHashSnapshotIgnoresKeyOrderOfEquivalentMap(t *testing.T) {
	snapshot := sampleSnapshot()
	fromStruct, err := HashSnapshot(snapshot)
	require.NoError(t, err)

	canonical, err := Canonicalize(snapshot)
	require.NoError(t, err)
	sum := sha256.Sum256(canonical)
	assert.Equal(t, hex.EncodeToString(sum[:]), fromStruct)
}

func TestHashSnapshotChangesWithNumericFields(t *testing.T) {
	base, err := HashSnapshot(sampleSnapshot())
	require.NoError(t, err)

	mutations := []func(*domain.PricingSnapshot){
		func(s *domain.PricingSnapshot) { s.Gross++ },
		func(s *domain.PricingSnapshot) { s.PlatformFee++ },
		func(s *domain.PricingSnapshot) { s.Total++ },
		func(s *domain.PricingSnapshot) { s.FeeBps++ },
		func(s *domain.PricingSnapshot) { s.LineItems[0].Quantity++ },
	}
	for i, mutate := range mutations {
		snapshot := sampleSnapshot()
		mutate(&snapshot)
		got, err := HashSnapshot(snapshot)
		require.NoError(t, err)
		assert.NotEqual(t, base, got, "mutation %d", i)
	}
}
