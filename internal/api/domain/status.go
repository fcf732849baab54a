package domain

// JobPostStatus values mirror job_posts.status.
type JobPostStatus string

const (
	JobPostStatusDraft          JobPostStatus = "draft"
	JobPostStatusPendingPayment JobPostStatus = "pending_payment"
	JobPostStatusPosted         JobPostStatus = "posted"
)

// PaymentStatus values mirror job_posts.payment_status.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// TransactionStatus values mirror payment_transactions.status.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusSucceeded TransactionStatus = "succeeded"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCanceled  TransactionStatus = "canceled"
)

// IsTerminal reports whether no further transition may leave s. A failed
// attempt is not terminal: the customer may retry on the same intent.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusSucceeded, TransactionStatusCanceled:
		return true
	}
	return false
}

// PaymentEvent is the processor event kind after mapping to our vocabulary.
type PaymentEvent string

const (
	EventSucceeded     PaymentEvent = "succeeded"
	EventPaymentFailed PaymentEvent = "payment_failed"
	EventCanceled      PaymentEvent = "canceled"
	EventUnknown       PaymentEvent = "unknown"
)

// ParsePaymentEvent maps a processor event type to a PaymentEvent. Anything
// other than the three payment-intent outcomes is EventUnknown.
func ParsePaymentEvent(eventType string) PaymentEvent {
	switch eventType {
	case "payment_intent.succeeded":
		return EventSucceeded
	case "payment_intent.payment_failed":
		return EventPaymentFailed
	case "payment_intent.canceled":
		return EventCanceled
	}
	return EventUnknown
}
