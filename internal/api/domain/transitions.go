// Package domain defines the payment state machines for job posts and
// payment transactions.
//
// Job post graph (status / payment_status):
//
//	draft ──► pending_payment ──succeeded──────► posted / completed
//	  ▲              │
//	  │              ├──payment_failed──► draft / failed
//	  │              └──canceled────────► draft / pending
//	  └──(Initiator re-opens payment)
//
// A draft whose payment is not completed may still move to posted when a
// late succeeded event arrives for its current intent. posted is terminal.
//
// Transaction graph:
//
//	pending ──► succeeded | failed | canceled
//	failed  ──► succeeded                        (retry on the same intent)
//
// succeeded and canceled are terminal.
package domain

import "fmt"

// JobPostState is the pair of columns the reconciler moves together.
type JobPostState struct {
	Status        JobPostStatus
	PaymentStatus PaymentStatus
}

func (s JobPostState) String() string {
	return fmt.Sprintf("%s/%s", s.Status, s.PaymentStatus)
}

var jobPostTargets = map[PaymentEvent]JobPostState{
	EventSucceeded:     {Status: JobPostStatusPosted, PaymentStatus: PaymentStatusCompleted},
	EventPaymentFailed: {Status: JobPostStatusDraft, PaymentStatus: PaymentStatusFailed},
	EventCanceled:      {Status: JobPostStatusDraft, PaymentStatus: PaymentStatusPending},
}

var jobPostAllowedFrom = map[PaymentEvent][]JobPostStatus{
	EventSucceeded:     {JobPostStatusPendingPayment, JobPostStatusDraft},
	EventPaymentFailed: {JobPostStatusPendingPayment},
	EventCanceled:      {JobPostStatusPendingPayment},
}

var transactionTargets = map[PaymentEvent]TransactionStatus{
	EventSucceeded:     TransactionStatusSucceeded,
	EventPaymentFailed: TransactionStatusFailed,
	EventCanceled:      TransactionStatusCanceled,
}

var transactionAllowedFrom = map[PaymentEvent][]TransactionStatus{
	EventSucceeded:     {TransactionStatusPending, TransactionStatusFailed},
	EventPaymentFailed: {TransactionStatusPending},
	EventCanceled:      {TransactionStatusPending},
}

// NextJobPostState returns the state a job post moves to when ev is applied
// to current.
//
// ErrNoTransition is returned when current already equals the target, which
// is how a redelivered event shows up. ErrInvalidTransition is returned for
// every move the graph does not contain, including anything out of posted.
func NextJobPostState(current JobPostState, ev PaymentEvent) (JobPostState, error) {
	target, ok := jobPostTargets[ev]
	if !ok {
		return current, fmt.Errorf("%w: no job post transition for event %q", ErrInvalidTransition, ev)
	}
	if current == target {
		return current, ErrNoTransition
	}
	if current.Status == JobPostStatusPosted || current.PaymentStatus == PaymentStatusCompleted {
		return current, fmt.Errorf("%w: job post %s is final, cannot apply %s", ErrInvalidTransition, current, ev)
	}
	for _, from := range jobPostAllowedFrom[ev] {
		if current.Status == from {
			return target, nil
		}
	}
	return current, fmt.Errorf("%w: job post %s cannot apply %s", ErrInvalidTransition, current, ev)
}

// NextTransactionStatus returns the status a payment transaction moves to
// when ev is applied to current. pending accepts every outcome; failed only
// accepts succeeded.
func NextTransactionStatus(current TransactionStatus, ev PaymentEvent) (TransactionStatus, error) {
	target, ok := transactionTargets[ev]
	if !ok {
		return current, fmt.Errorf("%w: no transaction transition for event %q", ErrInvalidTransition, ev)
	}
	if current == target {
		return current, ErrNoTransition
	}
	for _, from := range transactionAllowedFrom[ev] {
		if current == from {
			return target, nil
		}
	}
	return current, fmt.Errorf("%w: transaction is %s, cannot apply %s", ErrInvalidTransition, current, ev)
}
