package voucher

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInstrumentInactive is returned when the instrument has been disabled by its issuer.
	ErrInstrumentInactive = errors.New("voucher not active")
	// ErrInstrumentUsed indicates the instrument was already consumed by a committed order.
	ErrInstrumentUsed = errors.New("voucher already used")
	// ErrMinimumSpendUnmet indicates the order subtotal did not meet the voucher requirement.
	ErrMinimumSpendUnmet = errors.New("voucher minimum spend not met")
)

// Kind selects how an instrument derives its discount.
type Kind string

const (
	KindFixed   Kind = "FIXED"
	KindPercent Kind = "PERCENT"
)

// ParseKind normalises user supplied kinds. Unknown values yield false.
func ParseKind(value string) (Kind, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "FIXED", "FIXED_AMOUNT":
		return KindFixed, true
	case "PERCENT", "PERCENTAGE":
		return KindPercent, true
	default:
		return "", false
	}
}

var hundred = decimal.NewFromInt(100)

// Instrument is a redeemed voucher sitting in a customer's wallet.
type Instrument struct {
	ID              string          `json:"id"`
	Code            string          `json:"code,omitempty"`
	Kind            Kind            `json:"kind"`
	FixedAmount     int64           `json:"fixedAmount,omitempty"`
	PercentRate     decimal.Decimal `json:"percentRate"`
	CapAmount       *int64          `json:"capAmount,omitempty"`
	MinimumSubtotal *int64          `json:"minimumSubtotal,omitempty"`
	Active          bool            `json:"active"`
	Used            bool            `json:"used"`
}

// Validate reports why the instrument cannot be applied to an order of the given subtotal.
func (in Instrument) Validate(subtotal int64) error {
	if !in.Active {
		return ErrInstrumentInactive
	}
	if in.Used {
		return ErrInstrumentUsed
	}
	if in.MinimumSubtotal != nil && subtotal < *in.MinimumSubtotal {
		return ErrMinimumSpendUnmet
	}
	return nil
}

// Eligible is the boolean form of Validate.
func (in Instrument) Eligible(subtotal int64) bool {
	return in.Validate(subtotal) == nil
}

// Compute determines the discount the instrument grants on subtotal. The result is
// always within [0, subtotal]. Eligibility is not checked here.
func (in Instrument) Compute(subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}
	var discount int64
	switch in.Kind {
	case KindFixed:
		discount = in.FixedAmount
	case KindPercent:
		rate := in.PercentRate
		if rate.Sign() <= 0 {
			return 0
		}
		if rate.GreaterThan(hundred) {
			rate = hundred
		}
		discount = decimal.NewFromInt(subtotal).Mul(rate).Shift(-2).Floor().IntPart()
		if in.CapAmount != nil && *in.CapAmount >= 0 && discount > *in.CapAmount {
			discount = *in.CapAmount
		}
	default:
		return 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		return 0
	}
	return discount
}
