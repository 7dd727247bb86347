package enums

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder           OutboxAggregateType = "order"
	AggregatePayment         OutboxAggregateType = "payment"
	AggregateSellerPayout    OutboxAggregateType = "seller_payout"
	AggregateTransfer        OutboxAggregateType = "transfer"
	AggregateNonprofitPayout OutboxAggregateType = "nonprofit_payout"
)

func (a OutboxAggregateType) IsValid() bool {
	return member(a, AggregateOrder, AggregatePayment, AggregateSellerPayout, AggregateTransfer, AggregateNonprofitPayout)
}

// OutboxEventType maps to the event_type column of outbox_events and the
// event_type message attribute on the bus.
type OutboxEventType string

const (
	EventOrderSettled        OutboxEventType = "order_settled"
	EventTransferRequested   OutboxEventType = "transfer_requested"
	EventTransferFailed      OutboxEventType = "transfer_failed"
	EventPayoutCreated       OutboxEventType = "payout_created"
	EventPayoutPaid          OutboxEventType = "payout_paid"
	EventPayoutFailed        OutboxEventType = "payout_failed"
	EventNonprofitPayoutPaid OutboxEventType = "nonprofit_payout_paid"
)

func (e OutboxEventType) IsValid() bool {
	return member(e,
		EventOrderSettled,
		EventTransferRequested,
		EventTransferFailed,
		EventPayoutCreated,
		EventPayoutPaid,
		EventPayoutFailed,
		EventNonprofitPayoutPaid,
	)
}

// OutboxDLQErrorReason records why a row left the outbox for the DLQ.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return member(r, OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable)
}
