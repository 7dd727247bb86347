package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenTyson/evercraft-sub001/pkg/config"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestSplit_Scenario(t *testing.T) {
	t.Parallel()

	splitter, err := NewSplitter(dec("0.065"))
	require.NoError(t, err)

	split, err := splitter.Split(dec("100"), dec("5"))
	require.NoError(t, err)

	assert.True(t, split.Donation.Equal(dec("5.00")), "donation %s", split.Donation)
	assert.True(t, split.PlatformFee.Equal(dec("6.50")), "platform fee %s", split.PlatformFee)
	assert.True(t, split.SellerPayout.Equal(dec("88.50")), "seller payout %s", split.SellerPayout)
	assert.True(t, split.Total().Equal(dec("100")))
}

func TestSplit_NoDonation(t *testing.T) {
	t.Parallel()

	splitter, err := NewSplitter(dec("0.065"))
	require.NoError(t, err)

	split, err := splitter.Split(dec("19.99"), decimal.Zero)
	require.NoError(t, err)

	assert.True(t, split.Donation.IsZero())
	assert.True(t, split.PlatformFee.Equal(dec("1.29935")))
	assert.True(t, split.SellerPayout.Equal(dec("18.69065")))
	assert.True(t, split.Total().Equal(dec("19.99")))

	rounded := split.Rounded()
	assert.Equal(t, "1.3", rounded.PlatformFee.String())
	assert.Equal(t, "18.69", rounded.SellerPayout.String())
}

func TestSplit_SumAcrossShopsMatchesOrderSubtotal(t *testing.T) {
	t.Parallel()

	splitter, err := NewSplitter(dec("0.065"))
	require.NoError(t, err)

	shops := []struct {
		subtotal string
		percent  string
	}{
		{"33.33", "2.5"},
		{"0.01", "10"},
		{"1234.57", "7"},
		{"49.99", "0"},
	}

	orderSubtotal := decimal.Zero
	parts := decimal.Zero
	for _, shop := range shops {
		split, err := splitter.Split(dec(shop.subtotal), dec(shop.percent))
		require.NoError(t, err)
		orderSubtotal = orderSubtotal.Add(dec(shop.subtotal))
		parts = parts.Add(split.Rounded().Total())
	}

	tolerance := dec("0.01").Mul(decimal.NewFromInt(int64(len(shops))))
	assert.True(t, parts.Sub(orderSubtotal).Abs().LessThanOrEqual(tolerance),
		"rounded parts %s drifted from subtotal %s", parts, orderSubtotal)
}

func TestSplit_Validation(t *testing.T) {
	t.Parallel()

	splitter, err := NewSplitter(dec("0.065"))
	require.NoError(t, err)

	cases := []struct {
		name     string
		subtotal string
		percent  string
	}{
		{"negative subtotal", "-1", "0"},
		{"negative percent", "10", "-1"},
		{"percent above 100", "10", "100.01"},
		{"fee plus donation above subtotal", "10", "95"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := splitter.Split(dec(tc.subtotal), dec(tc.percent))
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}
}

func TestNewSplitter_RejectsRate(t *testing.T) {
	t.Parallel()

	_, err := NewSplitter(dec("1"))
	require.Error(t, err)
	_, err = NewSplitter(dec("-0.01"))
	require.Error(t, err)
}

func TestNewSplitterFromConfig(t *testing.T) {
	t.Parallel()

	splitter, err := NewSplitterFromConfig(config.SettlementConfig{PlatformFeeRate: "0.10"})
	require.NoError(t, err)
	assert.True(t, splitter.PlatformFeeRate().Equal(dec("0.1")))

	_, err = NewSplitterFromConfig(config.SettlementConfig{PlatformFeeRate: "ten percent"})
	require.Error(t, err)
}

func TestProRata(t *testing.T) {
	t.Parallel()

	share := ProRata(dec("25"), dec("100"), dec("5"))
	assert.True(t, share.Equal(dec("1.25")))
	assert.True(t, ProRata(dec("25"), decimal.Zero, dec("5")).IsZero())
	assert.True(t, ProRata(dec("25"), dec("100"), decimal.Zero).IsZero())
}
