package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/quotation-engine/internal/domain"
	"github.com/kursadbilgin/quotation-engine/internal/observability"
	"github.com/kursadbilgin/quotation-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	maxAllocateAttempts   = 10
	fallbackSuffixLength  = 6
	defaultDocumentPrefix = "QT"
)

// SequenceAllocator produces document numbers of the form PREFIX-YEAR-NNNNNN.
// Numbers are unique but not guaranteed gapless; under contention or a
// degraded store the allocator falls back to a random suffix rather than
// blocking document creation.
type SequenceAllocator struct {
	quotations repository.QuotationRepository
	logger     *zap.Logger
	metrics    *observability.Metrics
	prefix     string
	randSuffix func() string
}

func NewSequenceAllocator(
	quotations repository.QuotationRepository,
	prefix string,
	logger *zap.Logger,
) (*SequenceAllocator, error) {
	if quotations == nil {
		return nil, fmt.Errorf("quotation repository is required")
	}
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = defaultDocumentPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SequenceAllocator{
		quotations: quotations,
		logger:     logger,
		prefix:     prefix,
		randSuffix: randomSuffix,
	}, nil
}

func (a *SequenceAllocator) SetMetrics(metrics *observability.Metrics) {
	if a == nil {
		return
	}
	a.metrics = metrics
}

// Allocate returns a document number for the given period. A missing or
// unreachable store degrades to the random-suffix path instead of failing.
func (a *SequenceAllocator) Allocate(ctx context.Context, at time.Time) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	year := at.UTC().Year()

	highest, err := a.quotations.HighestDocumentNumber(ctx, a.prefix, year)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		a.logger.Warn("document numbering degraded to random suffix",
			zap.String("prefix", a.prefix),
			zap.Int("year", year),
			zap.Error(err),
		)
		a.metrics.IncSequenceFallback()
		return a.fallbackNumber(year), nil
	}

	next := 1
	if err == nil {
		next = parseSuffix(highest) + 1
	}

	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		candidate := fmt.Sprintf("%s-%d-%06d", a.prefix, year, next+attempt)

		exists, existsErr := a.quotations.DocumentNumberExists(ctx, candidate)
		if existsErr != nil {
			a.logger.Warn("document numbering degraded to random suffix",
				zap.String("candidate", candidate),
				zap.Error(existsErr),
			)
			a.metrics.IncSequenceFallback()
			return a.fallbackNumber(year), nil
		}
		if !exists {
			return candidate, nil
		}
	}

	a.logger.Warn("document numbering exhausted sequential attempts",
		zap.String("prefix", a.prefix),
		zap.Int("year", year),
		zap.Int("attempts", maxAllocateAttempts),
	)
	a.metrics.IncSequenceFallback()
	return a.fallbackNumber(year), nil
}

func (a *SequenceAllocator) fallbackNumber(year int) string {
	return fmt.Sprintf("%s-%d-%s", a.prefix, year, a.randSuffix())
}

// parseSuffix extracts the numeric suffix of an existing document number;
// zero means no usable suffix.
func parseSuffix(documentNumber string) int {
	idx := strings.LastIndex(documentNumber, "-")
	if idx < 0 || idx == len(documentNumber)-1 {
		return 0
	}
	n, err := strconv.Atoi(documentNumber[idx+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func randomSuffix() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(id[:fallbackSuffixLength])
}
