package dto

// JobPostData is the job portion of a payment request. Classification is a
// pricing selector; any amount a client sends is ignored.
type JobPostData struct {
	Title          string `json:"title" binding:"required"`
	Type           string `json:"type"`
	Classification string `json:"classification" binding:"required,classification"`
	Location       string `json:"location"`
	Salary         string `json:"salary"`
	Description    string `json:"description"`
	Requirements   string `json:"requirements"`
	Benefits       string `json:"benefits"`
}

// CompanyData is the company snapshot copied onto the job post.
type CompanyData struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Website     string `json:"website"`
	Description string `json:"description"`
}

type CreatePaymentIntentRequest struct {
	JobPostData   *JobPostData `json:"jobPostData" binding:"required"`
	CompanyData   *CompanyData `json:"companyData"`
	ClientID      string       `json:"clientId" binding:"required"`
	ExistingJobID string       `json:"existingJobId"`
}

type CreatePaymentIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	JobPostID       string `json:"jobPostId"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type WebhookResponse struct {
	Received bool `json:"received"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
