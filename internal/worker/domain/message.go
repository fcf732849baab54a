package domain

import "time"

// Acker settles a broker delivery. amqp091 deliveries satisfy it.
type Acker interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// OutboxDelivery is a broker message pointing at one outbox row.
type OutboxDelivery struct {
	OutboxID    string
	DeliveryTag uint64
	Acker       Acker
}

// StagedJobPost is an unpaid job post old enough to raise a no-sale alert.
type StagedJobPost struct {
	ID        string    `db:"id"`
	ClientID  string    `db:"client_id"`
	CreatedAt time.Time `db:"created_at"`
}
