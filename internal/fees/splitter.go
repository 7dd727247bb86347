// Package fees splits a shop subtotal into platform fee, nonprofit donation and
// seller payout.
package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/BenTyson/evercraft-sub001/pkg/config"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Split is the per-shop money breakdown. Values are unrounded.
type Split struct {
	Subtotal     decimal.Decimal
	PlatformFee  decimal.Decimal
	Donation     decimal.Decimal
	SellerPayout decimal.Decimal
}

// Rounded returns the split at cent precision for submission to the payout rail.
func (s Split) Rounded() Split {
	return Split{
		Subtotal:     s.Subtotal.Round(2),
		PlatformFee:  s.PlatformFee.Round(2),
		Donation:     s.Donation.Round(2),
		SellerPayout: s.SellerPayout.Round(2),
	}
}

// Total is PlatformFee + Donation + SellerPayout.
func (s Split) Total() decimal.Decimal {
	return s.PlatformFee.Add(s.Donation).Add(s.SellerPayout)
}

// Splitter holds the platform fee rate as a fraction (0.065 == 6.5%).
type Splitter struct {
	platformFeeRate decimal.Decimal
}

// NewSplitter validates the fee rate up front.
func NewSplitter(platformFeeRate decimal.Decimal) (*Splitter, error) {
	if platformFeeRate.IsNegative() || platformFeeRate.GreaterThanOrEqual(one) {
		return nil, fmt.Errorf("platform fee rate must be in [0,1), got %s", platformFeeRate)
	}
	return &Splitter{platformFeeRate: platformFeeRate}, nil
}

// NewSplitterFromConfig builds a splitter from the settlement config section.
func NewSplitterFromConfig(cfg config.SettlementConfig) (*Splitter, error) {
	rate, err := cfg.FeeRate()
	if err != nil {
		return nil, err
	}
	return NewSplitter(rate)
}

// PlatformFeeRate exposes the configured rate.
func (s *Splitter) PlatformFeeRate() decimal.Decimal {
	return s.platformFeeRate
}

// Split computes the breakdown for one shop. donationPercent is 0-100.
func (s *Splitter) Split(subtotal, donationPercent decimal.Decimal) (Split, error) {
	if subtotal.IsNegative() {
		return Split{}, pkgerrors.New(pkgerrors.CodeValidation, "shop subtotal must not be negative")
	}
	if donationPercent.IsNegative() || donationPercent.GreaterThan(hundred) {
		return Split{}, pkgerrors.New(pkgerrors.CodeValidation, "donation percentage must be between 0 and 100")
	}
	if s.platformFeeRate.Add(donationPercent.Div(hundred)).GreaterThan(one) {
		return Split{}, pkgerrors.New(pkgerrors.CodeValidation, "platform fee and donation exceed the shop subtotal")
	}

	donation := subtotal.Mul(donationPercent).Div(hundred)
	platformFee := subtotal.Mul(s.platformFeeRate)
	return Split{
		Subtotal:     subtotal,
		PlatformFee:  platformFee,
		Donation:     donation,
		SellerPayout: subtotal.Sub(platformFee).Sub(donation),
	}, nil
}

// ProRata allocates shopAmount to one item by its share of the shop subtotal.
func ProRata(itemSubtotal, shopSubtotal, shopAmount decimal.Decimal) decimal.Decimal {
	if shopSubtotal.IsZero() || shopAmount.IsZero() {
		return decimal.Zero
	}
	return shopAmount.Mul(itemSubtotal).Div(shopSubtotal)
}
