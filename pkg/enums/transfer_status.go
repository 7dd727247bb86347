package enums

// TransferStatus is the outcome of a transfer submission to the payout rail.
type TransferStatus string

const (
	TransferStatusPending  TransferStatus = "pending"
	TransferStatusAccepted TransferStatus = "accepted"
	TransferStatusSkipped  TransferStatus = "skipped"
	TransferStatusFailed   TransferStatus = "failed"
	// TransferStatusReversed is terminal: the processor clawed the funds back
	// and the transfer must never be resubmitted automatically.
	TransferStatusReversed TransferStatus = "reversed"
)

func (s TransferStatus) IsValid() bool {
	return member(s, TransferStatusPending, TransferStatusAccepted, TransferStatusSkipped, TransferStatusFailed, TransferStatusReversed)
}

