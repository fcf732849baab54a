package dto

type ListJobPostsRequest struct {
	ClientID      string `form:"client_id" binding:"omitempty,uuid"`
	Status        string `form:"status" binding:"omitempty,oneof=draft pending_payment posted"`
	PaymentStatus string `form:"payment_status" binding:"omitempty,oneof=pending completed failed"`
	PageSize      int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Cursor        string `form:"cursor"`
}

type ListJobPostsResponse struct {
	JobPosts   []JobPostDTO `json:"job_posts"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type JobPostDTO struct {
	ID                    string  `json:"id"`
	ClientID              string  `json:"client_id"`
	Title                 string  `json:"title"`
	JobType               string  `json:"job_type"`
	Classification        string  `json:"classification"`
	Location              string  `json:"location"`
	Salary                string  `json:"salary"`
	CompanyName           string  `json:"company_name"`
	Status                string  `json:"status"`
	PaymentStatus         string  `json:"payment_status"`
	AmountCents           int64   `json:"amount_cents"`
	StripePriceID         string  `json:"stripe_price_id"`
	StripePaymentIntentID *string `json:"stripe_payment_intent_id"`
	PostedAt              *string `json:"posted_at"`
	CreatedAt             string  `json:"created_at"`
	UpdatedAt             string  `json:"updated_at"`
}

type PaymentTransactionDTO struct {
	ID                    string  `json:"id"`
	StripePaymentIntentID string  `json:"stripe_payment_intent_id"`
	StripeChargeID        *string `json:"stripe_charge_id"`
	AmountCents           int64   `json:"amount_cents"`
	Currency              string  `json:"currency"`
	Status                string  `json:"status"`
	PaymentMethod         *string `json:"payment_method"`
	FailureReason         *string `json:"failure_reason"`
	ProcessedAt           *string `json:"processed_at"`
	CreatedAt             string  `json:"created_at"`
}

type JobPostDetailResponse struct {
	JobPost      JobPostDTO              `json:"job_post"`
	Transactions []PaymentTransactionDTO `json:"transactions"`
}

type PricingTierDTO struct {
	Classification string `json:"classification"`
	PriceCents     int64  `json:"price_cents"`
	Price          string `json:"price"`
	Label          string `json:"label"`
	Description    string `json:"description"`
}

type WelcomeResponse struct {
	Sent bool `json:"sent"`
}
