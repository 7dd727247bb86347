package enums

import "strings"

// PayoutStatus is the payout state machine: pending -> paid | failed.
type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "pending"
	PayoutStatusPaid    PayoutStatus = "paid"
	PayoutStatusFailed  PayoutStatus = "failed"
)

func (s PayoutStatus) String() string { return string(s) }

func (s PayoutStatus) IsValid() bool {
	return member(s, PayoutStatusPending, PayoutStatusPaid, PayoutStatusFailed)
}

// IsTerminal reports whether no further transition is allowed.
func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusPaid || s == PayoutStatusFailed
}

// ParsePayoutStatus accepts the canonical names in any case, so query
// strings like ?status=PAID work.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	return Parse[PayoutStatus](strings.ToLower(strings.TrimSpace(value)))
}
