package enums

// PaymentStatus tracks a per-shop Payment row and the Order's payment state.
type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "PAID"
	PaymentStatusFailed PaymentStatus = "FAILED"
)

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool {
	return member(p, PaymentStatusPaid, PaymentStatusFailed)
}
