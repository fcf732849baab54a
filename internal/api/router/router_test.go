package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/jobpost-payments/internal/api/domain"
	"github.com/cuongbtq/jobpost-payments/internal/api/dto"
	"github.com/cuongbtq/jobpost-payments/internal/api/handler"
	"github.com/cuongbtq/jobpost-payments/internal/api/model"
	"github.com/cuongbtq/jobpost-payments/internal/api/service"
	"github.com/cuongbtq/jobpost-payments/internal/api/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeInitiator struct {
	got *dto.CreatePaymentIntentRequest
	err error
}

func (f *fakeInitiator) CreateOrUpdateJobPayment(_ context.Context, req *dto.CreatePaymentIntentRequest) (*dto.CreatePaymentIntentResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.CreatePaymentIntentResponse{
		ClientSecret:    "pi_1_secret_abc",
		JobPostID:       "jp-1",
		PaymentIntentID: "pi_1",
	}, nil
}

type fakeReconciler struct {
	body      []byte
	signature string
	err       error
}

func (f *fakeReconciler) HandleWebhookEvent(_ context.Context, payload []byte, signature string) (*service.Outcome, error) {
	f.body = payload
	f.signature = signature
	if f.err != nil {
		return nil, f.err
	}
	return &service.Outcome{EventID: "evt_1"}, nil
}

type fakeWelcome struct {
	sent bool
	err  error
}

func (f *fakeWelcome) Send(context.Context, string) (bool, error) {
	return f.sent, f.err
}

type fakeReader struct {
	posts  []model.JobPost
	txs    []model.PaymentTransaction
	filter storage.JobPostFilter
}

func (f *fakeReader) GetJobPost(_ context.Context, id string) (*model.JobPost, error) {
	for i := range f.posts {
		if f.posts[i].ID == id {
			return &f.posts[i], nil
		}
	}
	return nil, domain.ErrJobPostNotFound
}

func (f *fakeReader) ListJobPosts(_ context.Context, filter storage.JobPostFilter) ([]model.JobPost, error) {
	f.filter = filter
	n := filter.PageSize + 1
	if n > len(f.posts) {
		n = len(f.posts)
	}
	return f.posts[:n], nil
}

func (f *fakeReader) ListTransactionsByJobPost(context.Context, string) ([]model.PaymentTransaction, error) {
	return f.txs, nil
}

type fixture struct {
	init    *fakeInitiator
	rec     *fakeReconciler
	welcome *fakeWelcome
	reader  *fakeReader
	deps    *handler.Dependencies
}

func newFixture() *fixture {
	f := &fixture{
		init:    &fakeInitiator{},
		rec:     &fakeReconciler{},
		welcome: &fakeWelcome{},
		reader:  &fakeReader{},
	}
	f.deps = &handler.Dependencies{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Initiator:   f.init,
		Reconciler:  f.rec,
		Welcome:     f.welcome,
		JobPosts:    f.reader,
		ServiceName: "jobpost-payments-api",
	}
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	r, err := SetupRouter(f.deps)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestPreflight(t *testing.T) {
	for _, path := range []string{"/stripe-webhook", "/create-payment-intent"} {
		t.Run(path, func(t *testing.T) {
			w := newFixture().do(t, http.MethodOptions, path, "", map[string]string{
				"Origin":                        "https://app.example.com",
				"Access-Control-Request-Method": http.MethodPost,
			})

			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
			assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Stripe-Signature")
		})
	}
}

func TestCreatePaymentIntent(t *testing.T) {
	clientID := uuid.NewString()
	valid := `{"jobPostData":{"title":"Site Foreman","type":"full-time","classification":"STANDARD","amount":1},"companyData":{"name":"Acme"},"clientId":"` + clientID + `"}`

	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
		wantError  string
	}{
		{
			name:       "success",
			body:       valid,
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing job data",
			body:       `{"clientId":"` + clientID + `"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing required fields",
		},
		{
			name:       "missing client id",
			body:       `{"jobPostData":{"title":"x","classification":"STANDARD"}}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing required fields",
		},
		{
			name:       "empty body",
			body:       ``,
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing required fields",
		},
		{
			name:       "unknown classification",
			body:       `{"jobPostData":{"title":"x","classification":"GOLD"},"clientId":"` + clientID + `"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid job classification",
		},
		{
			name:       "not json",
			body:       `{jobPostData`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid request body",
		},
		{
			name:       "ownership mismatch",
			body:       valid,
			serviceErr: domain.ErrJobPostNotFound,
			wantStatus: http.StatusBadRequest,
			wantError:  "job post not found",
		},
		{
			name:       "processor failure",
			body:       valid,
			serviceErr: &domain.ProcessorError{Op: "create payment intent", Err: errors.New("api down")},
			wantStatus: http.StatusBadGateway,
			wantError:  "Payment processor error",
		},
		{
			name:       "persistence failure",
			body:       valid,
			serviceErr: &domain.PersistenceError{Op: "create job post", Err: errors.New("conn reset")},
			wantStatus: http.StatusInternalServerError,
			wantError:  "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.init.err = tt.serviceErr

			w := f.do(t, http.MethodPost, "/create-payment-intent", tt.body, map[string]string{"Content-Type": "application/json"})
			assert.Equal(t, tt.wantStatus, w.Code)

			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, errorBody(t, w))
				return
			}

			var resp dto.CreatePaymentIntentResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "pi_1_secret_abc", resp.ClientSecret)
			assert.Equal(t, "jp-1", resp.JobPostID)
			assert.Equal(t, "pi_1", resp.PaymentIntentID)
			assert.Equal(t, "Acme", f.init.got.CompanyData.Name)
			assert.Equal(t, "full-time", f.init.got.JobPostData.Type)
		})
	}
}

func TestCreatePaymentIntent_RateLimited(t *testing.T) {
	f := newFixture()
	f.deps.RateLimitRPS = 0.001
	f.deps.RateBurst = 1
	r, err := SetupRouter(f.deps)
	require.NoError(t, err)

	body := `{"jobPostData":{"title":"x","classification":"STANDARD"},"clientId":"` + uuid.NewString() + `"}`
	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/create-payment-intent", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestCreatePaymentIntent_RateLimitIgnoresForwardedFor(t *testing.T) {
	tests := []struct {
		name      string
		trusted   []string
		wantCodes []int
	}{
		{"untrusted peer cannot pick its own key", nil, []int{http.StatusOK, http.StatusTooManyRequests}},
		{"trusted proxy forwards the client address", []string{"192.0.2.0/24"}, []int{http.StatusOK, http.StatusOK}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.deps.RateLimitRPS = 0.001
			f.deps.RateBurst = 1
			f.deps.TrustedProxies = tt.trusted
			r, err := SetupRouter(f.deps)
			require.NoError(t, err)

			body := `{"jobPostData":{"title":"x","classification":"STANDARD"},"clientId":"` + uuid.NewString() + `"}`
			codes := make([]int, 0, 2)
			for _, forwarded := range []string{"203.0.113.10", "203.0.113.11"} {
				req := httptest.NewRequest(http.MethodPost, "/create-payment-intent", strings.NewReader(body))
				req.RemoteAddr = "192.0.2.1:40000"
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("X-Forwarded-For", forwarded)
				w := httptest.NewRecorder()
				r.ServeHTTP(w, req)
				codes = append(codes, w.Code)
			}
			assert.Equal(t, tt.wantCodes, codes)
		})
	}
}

func TestSetupRouter_InvalidTrustedProxy(t *testing.T) {
	f := newFixture()
	f.deps.TrustedProxies = []string{"not-an-ip"}

	_, err := SetupRouter(f.deps)
	assert.Error(t, err)
}

func TestStripeWebhook(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"accepted", nil, http.StatusOK, ""},
		{"missing signature", domain.ErrMissingSignature, http.StatusBadRequest, "missing webhook signature"},
		{"invalid signature", errors.Join(domain.ErrInvalidSignature, errors.New("hmac mismatch")), http.StatusBadRequest, "invalid webhook signature"},
		{"malformed", domain.ErrMalformedEvent, http.StatusBadRequest, "malformed webhook event"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.rec.err = tt.err

			w := f.do(t, http.MethodPost, "/stripe-webhook", `{"id":"evt_1"}`, map[string]string{"Stripe-Signature": "t=1,v1=abc"})
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, `{"id":"evt_1"}`, string(f.rec.body))
			assert.Equal(t, "t=1,v1=abc", f.rec.signature)

			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, errorBody(t, w))
				return
			}
			assert.JSONEq(t, `{"received":true}`, w.Body.String())
		})
	}
}

func TestStripeWebhook_BodyTooLarge(t *testing.T) {
	f := newFixture()
	f.deps.MaxBodyBytes = 8

	w := f.do(t, http.MethodPost, "/stripe-webhook", `{"id":"evt_too_large"}`, map[string]string{"Stripe-Signature": "t=1,v1=abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, f.rec.body)
}

func TestListJobPosts(t *testing.T) {
	base := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	posts := make([]model.JobPost, 3)
	for i := range posts {
		posts[i] = model.JobPost{
			ID:            uuid.NewString(),
			Title:         "Job",
			Status:        domain.JobPostStatusPosted,
			PaymentStatus: domain.PaymentStatusCompleted,
			CreatedAt:     base.Add(-time.Duration(i) * time.Hour),
		}
	}

	t.Run("first page returns cursor", func(t *testing.T) {
		f := newFixture()
		f.reader.posts = posts

		w := f.do(t, http.MethodGet, "/api/v1/job-posts?page_size=2&status=posted", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.ListJobPostsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.JobPosts, 2)
		assert.Equal(t, "posted", f.reader.filter.Status)
		require.NotEmpty(t, resp.NextCursor)

		cursor, err := handler.DecodeJobPostCursor(resp.NextCursor)
		require.NoError(t, err)
		assert.Equal(t, posts[1].ID, cursor.ID)
		assert.True(t, posts[1].CreatedAt.Equal(cursor.CreatedAt))
	})

	t.Run("last page has no cursor", func(t *testing.T) {
		f := newFixture()
		f.reader.posts = posts

		w := f.do(t, http.MethodGet, "/api/v1/job-posts", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.ListJobPostsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.JobPosts, 3)
		assert.Empty(t, resp.NextCursor)
		assert.Equal(t, 20, f.reader.filter.PageSize)
	})

	t.Run("bad parameters", func(t *testing.T) {
		for _, q := range []string{"status=archived", "client_id=nope", "page_size=500", "cursor=bm90LWEtY3Vyc29y"} {
			w := newFixture().do(t, http.MethodGet, "/api/v1/job-posts?"+q, "", nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, q)
		}
	})
}

func TestGetJobPost(t *testing.T) {
	id := uuid.NewString()
	charge := "ch_1"
	f := newFixture()
	f.reader.posts = []model.JobPost{{ID: id, Title: "Foreman", Status: domain.JobPostStatusPosted}}
	f.reader.txs = []model.PaymentTransaction{{ID: "tx-1", StripePaymentIntentID: "pi_1", StripeChargeID: &charge, Status: domain.TransactionStatusSucceeded}}

	w := f.do(t, http.MethodGet, "/api/v1/job-posts/"+id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.JobPostDetailResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Foreman", resp.JobPost.Title)
	require.Len(t, resp.Transactions, 1)
	assert.Equal(t, "ch_1", *resp.Transactions[0].StripeChargeID)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/job-posts/"+uuid.NewString(), "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/job-posts/42", "", nil).Code)
}

func TestPricing(t *testing.T) {
	w := newFixture().do(t, http.MethodGet, "/api/v1/pricing", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Currency string               `json:"currency"`
		Tiers    []dto.PricingTierDTO `json:"tiers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "usd", resp.Currency)
	require.Len(t, resp.Tiers, 2)
	assert.Equal(t, "STANDARD", resp.Tiers[0].Classification)
	assert.Equal(t, "500.00", resp.Tiers[0].Price)
	assert.Equal(t, int64(150000), resp.Tiers[1].PriceCents)
}

func TestSendWelcome(t *testing.T) {
	tests := []struct {
		name       string
		sent       bool
		err        error
		wantStatus int
		wantBody   string
	}{
		{"sent", true, nil, http.StatusOK, `{"sent":true}`},
		{"already sent", false, nil, http.StatusOK, `{"sent":false}`},
		{"unknown client", false, domain.ErrClientNotFound, http.StatusBadRequest, `{"error":"client not found"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.welcome.sent = tt.sent
			f.welcome.err = tt.err

			w := f.do(t, http.MethodPost, "/api/v1/clients/"+uuid.NewString()+"/welcome", "", nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestHealth(t *testing.T) {
	f := newFixture()
	f.deps.HealthChecks = []handler.HealthCheck{
		{Name: "postgres", Check: func(context.Context) error { return nil }},
		{Name: "redis", Check: func(context.Context) error { return errors.New("dial tcp: refused") }},
	}

	w := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "ok", resp.Checks["postgres"])
	assert.Contains(t, resp.Checks["redis"], "refused")
}

func TestRequestID(t *testing.T) {
	f := newFixture()

	w := f.do(t, http.MethodGet, "/api/v1/pricing", "", map[string]string{"X-Request-ID": "req-123"})
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	w = f.do(t, http.MethodGet, "/api/v1/pricing", "", nil)
	_, err := uuid.Parse(w.Header().Get("X-Request-ID"))
	assert.NoError(t, err)
}

func TestIPRateLimiter(t *testing.T) {
	rl := NewIPRateLimiter(1, 2)
	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("10.0.0.1"))

	now = now.Add(time.Hour)
	rl.Allow("10.0.0.3")
	assert.Len(t, rl.limiters, 1)
}
