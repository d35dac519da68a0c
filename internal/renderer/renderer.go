package renderer

import (
	"context"

	"github.com/kursadbilgin/quotation-engine/internal/domain"
)

// Renderer produces the client-facing document for a quotation. Render
// must be idempotent for identical quotation state and must fail loudly
// rather than return a partial artifact.
type Renderer interface {
	Render(ctx context.Context, q domain.Quotation) ([]byte, error)
}
