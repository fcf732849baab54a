package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobpost-payments/internal/api/domain"
	"github.com/cuongbtq/jobpost-payments/internal/outbox"
	"github.com/google/uuid"
)

// WelcomeWindow is how long after registration a client still gets the
// welcome alert.
const WelcomeWindow = 30 * time.Minute

// Welcome sends the client_registered alert once per client.
type Welcome struct {
	store     WelcomeStore
	publisher outbox.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewWelcome(store WelcomeStore, publisher outbox.Publisher, logger *slog.Logger) *Welcome {
	return &Welcome{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Send enqueues the alert for a recently registered client. It reports
// false when the alert was already sent or the client registered too long
// ago.
func (s *Welcome) Send(ctx context.Context, clientID string) (bool, error) {
	if _, err := uuid.Parse(clientID); err != nil {
		return false, domain.ErrClientNotFound
	}

	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return false, domain.NewPersistenceError("get client", err)
	}
	if client.WelcomeEmailSent {
		return false, nil
	}

	msg, err := outbox.New(outbox.KindClientRegisteredAlert, clientID, outbox.ClientAlertPayload{ClientID: clientID})
	if err != nil {
		return false, err
	}

	ids, sent, err := s.store.MarkWelcomeSent(ctx, clientID, s.now().Add(-WelcomeWindow), msg)
	if err != nil {
		return false, domain.NewPersistenceError("mark welcome sent", err)
	}
	if !sent {
		s.logger.Info("Client welcome skipped", slog.String("client_id", clientID))
		return false, nil
	}

	outbox.PublishIDs(ctx, s.publisher, ids, s.logger)
	s.logger.Info("Client welcome enqueued", slog.String("client_id", clientID))
	return true, nil
}
