package renderer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/quotation-engine/internal/domain"
)

const defaultRenderTimeout = 15 * time.Second

type renderRequest struct {
	QuotationID     string       `json:"quotationId"`
	DocumentNumber  string       `json:"documentNumber"`
	ClientEmail     string       `json:"clientEmail"`
	IssueDate       string       `json:"issueDate"`
	ValidUntil      string       `json:"validUntil"`
	Subtotal        string       `json:"subtotal"`
	DiscountPercent string       `json:"discountPercent"`
	Discount        string       `json:"discount"`
	Tax             string       `json:"tax"`
	Total           string       `json:"total"`
	Notes           string       `json:"notes,omitempty"`
	Lines           []renderLine `json:"lines"`
}

type renderLine struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	Amount      string `json:"amount"`
}

// HTTPRenderer calls an external document render service and returns the
// produced PDF bytes.
type HTTPRenderer struct {
	client   *resty.Client
	endpoint string
}

func NewHTTPRenderer(endpoint string) (*HTTPRenderer, error) {
	client := resty.New()
	client.SetTimeout(defaultRenderTimeout)
	client.SetRetryCount(0)

	return NewHTTPRendererWithClient(endpoint, client)
}

func NewHTTPRendererWithClient(endpoint string, client *resty.Client) (*HTTPRenderer, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("render endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid render endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultRenderTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPRenderer{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (r *HTTPRenderer) Render(ctx context.Context, q domain.Quotation) ([]byte, error) {
	if r == nil || r.client == nil {
		return nil, fmt.Errorf("renderer is not initialized")
	}

	response, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/pdf").
		SetBody(toRenderRequest(q)).
		Post(r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: render request failed: %v", domain.ErrExternal, err)
	}
	if response == nil {
		return nil, fmt.Errorf("%w: render service returned empty response", domain.ErrExternal)
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: render service returned status %d", domain.ErrExternal, statusCode)
	}

	body := response.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: render service returned empty document", domain.ErrExternal)
	}

	return body, nil
}

func toRenderRequest(q domain.Quotation) renderRequest {
	lines := make([]renderLine, 0, len(q.Lines))
	for i := range q.Lines {
		lines = append(lines, renderLine{
			Description: q.Lines[i].Description,
			Quantity:    q.Lines[i].Quantity.String(),
			UnitPrice:   q.Lines[i].UnitPrice.String(),
			Amount:      q.Lines[i].Amount.String(),
		})
	}

	return renderRequest{
		QuotationID:     q.ID,
		DocumentNumber:  q.DocumentNumber,
		ClientEmail:     q.ClientEmail,
		IssueDate:       q.IssueDate.Format("2006-01-02"),
		ValidUntil:      q.ValidUntil.Format("2006-01-02"),
		Subtotal:        q.Subtotal.String(),
		DiscountPercent: q.DiscountPercent.String(),
		Discount:        q.Discount.String(),
		Tax:             q.Tax.String(),
		Total:           q.Total.String(),
		Notes:           q.Notes,
		Lines:           lines,
	}
}
