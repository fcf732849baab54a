package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/jobpost-payments/internal/outbox"
	"github.com/cuongbtq/jobpost-payments/internal/pricing"
	"github.com/cuongbtq/jobpost-payments/shared/mailer"
)

const emailTypeInvoice = "invoice"

//go:embed templates/invoice.html
var templateFS embed.FS

var invoiceTemplate = template.Must(template.ParseFS(templateFS, "templates/invoice.html"))

// Invoice is the data rendered into the receipt.
type Invoice struct {
	InvoiceNumber  string
	Date           string
	Amount         string
	Currency       string
	PaymentMethod  string
	TransactionID  string
	JobTitle       string
	Classification string
	CompanyName    string
	ClientName     string
}

// InvoiceNumber derives the receipt number from a payment intent id.
func InvoiceNumber(intentID string) string {
	tail := intentID
	if len(tail) > 8 {
		tail = tail[len(tail)-8:]
	}
	return "INV-" + strings.ToUpper(tail)
}

// PaymentMethodLabel is the first payment method type upper-cased, or CARD.
func PaymentMethodLabel(types []string) string {
	if len(types) == 0 || strings.TrimSpace(types[0]) == "" {
		return "CARD"
	}
	return strings.ToUpper(types[0])
}

// BuildInvoice assembles receipt fields from the payment facts and the job
// post context.
func BuildInvoice(p outbox.InvoicePayload, jc *JobPostContext) Invoice {
	currency := p.Currency
	if currency == "" {
		currency = pricing.Currency
	}
	clientName := jc.ClientName
	if clientName == "" {
		clientName = "there"
	}
	return Invoice{
		InvoiceNumber:  InvoiceNumber(p.IntentID),
		Date:           p.PaidAt.UTC().Format("January 2, 2006"),
		Amount:         pricing.FormatAmount(p.AmountCents),
		Currency:       strings.ToUpper(currency),
		PaymentMethod:  PaymentMethodLabel(p.PaymentMethodTypes),
		TransactionID:  p.IntentID,
		JobTitle:       jc.Title,
		Classification: jc.Classification,
		CompanyName:    jc.CompanyName,
		ClientName:     clientName,
	}
}

// RenderInvoice renders inv as HTML.
func RenderInvoice(inv Invoice) (string, error) {
	var buf bytes.Buffer
	if err := invoiceTemplate.Execute(&buf, inv); err != nil {
		return "", fmt.Errorf("render invoice: %w", err)
	}
	return buf.String(), nil
}

// SendInvoice emails the receipt for a completed payment to the client's
// account address. A receipt already recorded for the intent is not sent
// again.
func (f *Fanout) SendInvoice(ctx context.Context, p outbox.InvoicePayload) error {
	log := f.logger.With(
		slog.String("payment_intent_id", p.IntentID),
		slog.String("job_post_id", p.JobPostID),
	)

	done, err := f.dir.HasEmailNotification(ctx, emailTypeInvoice, p.IntentID)
	if err != nil {
		return fmt.Errorf("check invoice delivery: %w", err)
	}
	if done {
		log.Info("Invoice already delivered, skipping")
		return nil
	}

	jc, err := f.dir.JobPostContext(ctx, p.JobPostID)
	if err != nil {
		return fmt.Errorf("load job post for invoice: %w", err)
	}
	if jc.ClientEmail == "" {
		return fmt.Errorf("%w: client %s has no email", ErrNotDeliverable, jc.ClientID)
	}

	inv := BuildInvoice(p, jc)
	html, err := RenderInvoice(inv)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotDeliverable, err)
	}

	subject := fmt.Sprintf("Payment Receipt %s - %s", inv.InvoiceNumber, inv.JobTitle)
	providerID, err := f.mailer.Send(ctx, mailer.Message{
		From:    f.fromAddress,
		To:      []string{jc.ClientEmail},
		Subject: subject,
		HTML:    html,
		Tags:    map[string]string{"email_type": emailTypeInvoice},
	})
	if err != nil {
		return fmt.Errorf("send invoice: %w", err)
	}

	if providerID == "" {
		log.Info("Invoice logged, provider not configured", slog.String("invoice", inv.InvoiceNumber))
		return nil
	}

	if err := f.dir.RecordEmailNotification(ctx, EmailRecord{
		ClientID:          jc.ClientID,
		RecipientEmail:    jc.ClientEmail,
		EmailType:         emailTypeInvoice,
		Subject:           subject,
		ProviderMessageID: providerID,
		Reference:         p.IntentID,
	}); err != nil {
		// The email is out; a failed record only weakens the resend guard.
		log.Error("Failed to record invoice delivery", slog.Any("error", err))
	}

	log.Info("Invoice sent",
		slog.String("invoice", inv.InvoiceNumber),
		slog.String("provider_id", providerID),
		slog.Time("paid_at", p.PaidAt.Truncate(time.Second)),
	)
	return nil
}
