package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/jobpost-payments/internal/api/domain"
	"github.com/cuongbtq/jobpost-payments/internal/api/model"
	"github.com/cuongbtq/jobpost-payments/internal/api/storage"
	"github.com/cuongbtq/jobpost-payments/internal/outbox"
	"github.com/cuongbtq/jobpost-payments/shared/stripeclient"
	"github.com/google/uuid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory stand-in for storage.Storage with the same
// conditional-update behaviour.
type memStore struct {
	mu       sync.Mutex
	jobPosts map[string]*model.JobPost
	txs      map[string]*model.PaymentTransaction
	clients  map[string]*model.Client
	outbox   map[string]*outbox.Message

	createErr    error
	setIntentErr error
	insertTxErr  error
	jobPostErr   error
}

func newMemStore() *memStore {
	return &memStore{
		jobPosts: map[string]*model.JobPost{},
		txs:      map[string]*model.PaymentTransaction{},
		clients:  map[string]*model.Client{},
		outbox:   map[string]*outbox.Message{},
	}
}

func (s *memStore) CreateJobPost(_ context.Context, jp *model.JobPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	jp.ID = uuid.NewString()
	jp.CreatedAt = time.Now()
	jp.UpdatedAt = jp.CreatedAt
	cp := *jp
	s.jobPosts[jp.ID] = &cp
	return nil
}

func (s *memStore) UpdateJobPostForPayment(_ context.Context, jp *model.JobPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.jobPosts[jp.ID]
	if !ok || cur.ClientID != jp.ClientID {
		return domain.ErrJobPostNotFound
	}
	if cur.Status == domain.JobPostStatusPosted {
		return domain.ErrJobPostAlreadyPosted
	}
	intent := cur.StripePaymentIntentID
	cp := *jp
	cp.StripePaymentIntentID = intent
	cp.CreatedAt = cur.CreatedAt
	s.jobPosts[jp.ID] = &cp
	return nil
}

func (s *memStore) SetJobPostPaymentIntent(_ context.Context, jobPostID, intentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setIntentErr != nil {
		return s.setIntentErr
	}
	jp, ok := s.jobPosts[jobPostID]
	if !ok {
		return domain.ErrJobPostNotFound
	}
	id := intentID
	jp.StripePaymentIntentID = &id
	return nil
}

func (s *memStore) InsertPaymentTransaction(_ context.Context, tx *model.PaymentTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertTxErr != nil {
		return s.insertTxErr
	}
	tx.ID = uuid.NewString()
	cp := *tx
	s.txs[tx.StripePaymentIntentID] = &cp
	return nil
}

func (s *memStore) GetJobPostByIntent(_ context.Context, intentID string) (*model.JobPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobPostErr != nil {
		return nil, s.jobPostErr
	}
	for _, jp := range s.jobPosts {
		if jp.StripePaymentIntentID != nil && *jp.StripePaymentIntentID == intentID {
			cp := *jp
			return &cp, nil
		}
	}
	return nil, domain.ErrJobPostNotFound
}

func (s *memStore) GetTransactionByIntent(_ context.Context, intentID string) (*model.PaymentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[intentID]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *memStore) ApplyJobPostTransition(_ context.Context, t storage.JobPostTransition) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jp, ok := s.jobPosts[t.JobPostID]
	if !ok || jp.StripePaymentIntentID == nil || *jp.StripePaymentIntentID != t.IntentID || jp.State() != t.From {
		return nil, domain.ErrStaleState
	}
	jp.Status = t.To.Status
	jp.PaymentStatus = t.To.PaymentStatus
	if t.To.Status == domain.JobPostStatusPosted {
		now := time.Now()
		jp.PostedAt = &now
	}

	var ids []string
	for _, m := range t.Outbox {
		if _, dup := s.outbox[m.DedupeKey]; dup {
			continue
		}
		s.outbox[m.DedupeKey] = m
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (s *memStore) ApplyTransactionTransition(_ context.Context, u storage.TransactionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[u.IntentID]
	if !ok || tx.Status != u.From {
		return domain.ErrStaleState
	}
	tx.Status = u.To
	if u.ChargeID != nil {
		tx.StripeChargeID = u.ChargeID
	}
	if u.PaymentMethod != nil {
		tx.PaymentMethod = u.PaymentMethod
	}
	if u.To == domain.TransactionStatusSucceeded {
		tx.FailureReason = nil
	} else if u.FailureReason != nil {
		tx.FailureReason = u.FailureReason
	}
	now := time.Now()
	tx.ProcessedAt = &now
	return nil
}

func (s *memStore) GetClient(_ context.Context, clientID string) (*model.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok {
		return nil, domain.ErrClientNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) MarkWelcomeSent(_ context.Context, clientID string, createdAfter time.Time, msg *outbox.Message) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok || c.WelcomeEmailSent || c.CreatedAt.Before(createdAfter) {
		return nil, false, nil
	}
	c.WelcomeEmailSent = true
	s.outbox[msg.DedupeKey] = msg
	return []string{msg.ID}, true, nil
}

// seedPending stores a job post and pending transaction waiting on intentID.
func (s *memStore) seedPending(intentID string) *model.JobPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := intentID
	jp := &model.JobPost{
		ID:                    uuid.NewString(),
		ClientID:              uuid.NewString(),
		Title:                 "Site Foreman",
		Classification:        "STANDARD",
		Status:                domain.JobPostStatusPendingPayment,
		PaymentStatus:         domain.PaymentStatusPending,
		AmountCents:           50000,
		StripePaymentIntentID: &id,
	}
	s.jobPosts[jp.ID] = jp
	s.txs[intentID] = &model.PaymentTransaction{
		ID:                    uuid.NewString(),
		JobPostID:             jp.ID,
		StripePaymentIntentID: intentID,
		AmountCents:           50000,
		Currency:              "usd",
		Status:                domain.TransactionStatusPending,
	}
	return jp
}

func (s *memStore) jobPost(id string) model.JobPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobPosts[id]
}

func (s *memStore) tx(intentID string) model.PaymentTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.txs[intentID]
}

func (s *memStore) outboxKinds() map[outbox.Kind]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[outbox.Kind]int{}
	for _, m := range s.outbox {
		out[m.Kind]++
	}
	return out
}

type fakeProcessor struct {
	calls []stripeclient.IntentRequest
	err   error
}

func (p *fakeProcessor) CreatePaymentIntent(_ context.Context, req stripeclient.IntentRequest) (*stripeclient.Intent, error) {
	p.calls = append(p.calls, req)
	if p.err != nil {
		return nil, p.err
	}
	n := len(p.calls)
	id := "pi_test_" + string(rune('a'+n-1))
	return &stripeclient.Intent{
		ID:           id,
		ClientSecret: id + "_secret_xyz",
		Status:       "requires_payment_method",
		AmountCents:  req.AmountCents,
		Currency:     req.Currency,
	}, nil
}

type secretVerifier struct {
	secret string
}

func (v secretVerifier) ConstructEvent(payload []byte, header string) (*stripeclient.Event, error) {
	return stripeclient.ConstructEvent(payload, header, v.secret)
}

type memEvents struct {
	mu   sync.Mutex
	ids  map[string]bool
	fail bool
}

func newMemEvents() *memEvents {
	return &memEvents{ids: map[string]bool{}}
}

func (e *memEvents) Seen(_ context.Context, id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail {
		return false, errors.New("redis: connection refused")
	}
	return e.ids[id], nil
}

func (e *memEvents) Remember(_ context.Context, id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail {
		return false, errors.New("redis: connection refused")
	}
	if e.ids[id] {
		return false, nil
	}
	e.ids[id] = true
	return true, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []outbox.Envelope
}

func (p *recordingPublisher) PublishJSON(_ context.Context, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, v.(outbox.Envelope))
	return nil
}
