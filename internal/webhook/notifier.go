// Package webhook delivers best-effort invoice notifications to the
// accounting integration service.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	invoicedomain "github.com/smallbiznis/metering/internal/invoice/domain"
	"github.com/smallbiznis/metering/internal/orgcontext"
)

// Notifier posts invoice-created events to the notifier service. Delivery
// is fire-and-forget: a failed post is logged and dropped, never propagated
// to the invoice write path.
type Notifier struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
	wg         sync.WaitGroup
}

type payload struct {
	InvoiceID      int64           `json:"invoiceId"`
	OrganizationID int64           `json:"organizationId"`
	CustomerID     int64           `json:"customerId"`
	InvoiceNumber  string          `json:"invoiceNumber"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	JWTToken       string          `json:"jwtToken"`
}

type Option func(*Notifier)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(n *Notifier) { n.httpClient = httpClient }
}

func New(baseURL string, log *zap.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.Named("webhook.notifier"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// InvoiceCreated delivers the notification asynchronously. The caller's
// context may already be done by the time the post runs, so delivery uses
// its own deadline and only carries over the tenant scope.
func (n *Notifier) InvoiceCreated(ctx context.Context, invoice *invoicedomain.Invoice) {
	credential := orgcontext.CredentialFromContext(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		deliverCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		n.deliver(deliverCtx, invoice, credential)
	}()
}

// Resync re-posts every invoice of the tenant bound to ctx and returns how
// many deliveries succeeded.
func (n *Notifier) Resync(ctx context.Context, invoices []invoicedomain.Invoice) int {
	credential := orgcontext.CredentialFromContext(ctx)
	var delivered int
	for i := range invoices {
		if n.deliver(ctx, &invoices[i], credential) {
			delivered++
		}
	}
	n.log.Info("invoice resync finished",
		zap.Int("total", len(invoices)),
		zap.Int("delivered", delivered),
	)
	return delivered
}

// Flush blocks until all in-flight deliveries finish.
func (n *Notifier) Flush() {
	n.wg.Wait()
}

func (n *Notifier) deliver(ctx context.Context, invoice *invoicedomain.Invoice, credential string) bool {
	body, err := json.Marshal(payload{
		InvoiceID:      int64(invoice.ID),
		OrganizationID: invoice.OrganizationID,
		CustomerID:     invoice.CustomerID,
		InvoiceNumber:  invoice.InvoiceNumber,
		TotalAmount:    invoice.TotalAmount,
		JWTToken:       credential,
	})
	if err != nil {
		n.log.Warn("encode webhook payload failed", zap.Error(err))
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/webhook/invoice-created", bytes.NewReader(body))
	if err != nil {
		n.log.Warn("build webhook request failed", zap.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.log.Warn("invoice webhook delivery failed",
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.Error(err),
		)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.log.Warn("invoice webhook rejected",
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.Int("status", resp.StatusCode),
		)
		return false
	}

	n.log.Info("invoice webhook delivered",
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.Int64("org_id", invoice.OrganizationID),
	)
	return true
}
