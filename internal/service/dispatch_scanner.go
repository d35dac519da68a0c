package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/kursadbilgin/quotation-engine/internal/notifier"
	"github.com/kursadbilgin/quotation-engine/internal/observability"
	"github.com/kursadbilgin/quotation-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultDispatchScanInterval = 30 * time.Second
	defaultDispatchScanLimit    = 100
	defaultDispatchMaxRetries   = 5
	baseDispatchRetryDelay      = time.Minute
	maxDispatchRetryDelay       = time.Hour
	maxDispatchJitterMillis     = 250
)

// DispatchRetryScanner redelivers failed best-effort notifications (owner
// and reminder mails). The atomic client send and the portal passcode path
// never pass through here.
type DispatchRetryScanner struct {
	dispatches repository.DispatchRepository
	uow        repository.UnitOfWork
	notify     notifier.Notifier
	logger     *zap.Logger
	metrics    *observability.Metrics
	interval   time.Duration
	limit      int
	maxRetries int
	now        func() time.Time
	randIntn   func(n int) int
}

func NewDispatchRetryScanner(
	dispatches repository.DispatchRepository,
	uow repository.UnitOfWork,
	notify notifier.Notifier,
	interval time.Duration,
	maxRetries int,
	logger *zap.Logger,
) (*DispatchRetryScanner, error) {
	if dispatches == nil {
		return nil, fmt.Errorf("dispatch repository is required")
	}
	if uow == nil {
		return nil, fmt.Errorf("unit of work is required")
	}
	if notify == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if interval <= 0 {
		interval = defaultDispatchScanInterval
	}
	if maxRetries <= 0 {
		maxRetries = defaultDispatchMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchRetryScanner{
		dispatches: dispatches,
		uow:        uow,
		notify:     notify,
		logger:     logger,
		interval:   interval,
		limit:      defaultDispatchScanLimit,
		maxRetries: maxRetries,
		now:        time.Now,
		randIntn:   rand.Intn,
	}, nil
}

func (s *DispatchRetryScanner) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *DispatchRetryScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Initial scan so already-due retries do not wait for the first tick.
	if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("dispatch retry initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("dispatch retry scan failed", zap.Error(err))
			}
		}
	}
}

func (s *DispatchRetryScanner) scanDue(ctx context.Context) error {
	due, err := s.dispatches.GetDueForRetry(ctx, s.now().UTC(), s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch due dispatch retries: %w", err)
	}

	for i := range due {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.redeliver(ctx, due[i].ID); err != nil {
			s.logger.Error("dispatch redelivery failed",
				zap.String("attemptId", due[i].ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// redeliver claims one attempt under a row lock and retries delivery
// inside the same transaction, so concurrent scanner instances never
// double-send.
func (s *DispatchRetryScanner) redeliver(ctx context.Context, attemptID string) error {
	return s.uow.Do(ctx, func(tx *repository.Set) error {
		attempt, err := tx.Dispatches.LockForDelivery(ctx, attemptID)
		if err != nil {
			return err
		}
		// Nil means a concurrent scanner claimed it or the attempt went
		// terminal; skip.
		if attempt == nil {
			return nil
		}

		attemptNumber := attempt.AttemptNumber + 1
		s.metrics.IncDispatchRetry()

		ref, sendErr := s.notify.SendEmail(ctx, notifier.Email{
			To:       attempt.Recipient,
			Subject:  attempt.Subject,
			HTMLBody: attempt.Body,
		})
		if sendErr == nil {
			s.logger.Info("dispatch redelivered",
				zap.String("attemptId", attempt.ID),
				zap.String("quotationId", attempt.QuotationID),
				zap.Int("attemptNumber", attemptNumber),
			)
			return tx.Dispatches.MarkDelivered(ctx, attempt.ID, ref)
		}

		if !notifier.IsTransient(sendErr) || attemptNumber >= s.maxRetries {
			s.logger.Warn("dispatch permanently failed",
				zap.String("attemptId", attempt.ID),
				zap.String("quotationId", attempt.QuotationID),
				zap.Int("attemptNumber", attemptNumber),
				zap.Error(sendErr),
			)
			return tx.Dispatches.MarkPermanentlyFailed(ctx, attempt.ID, sendErr.Error())
		}

		nextRetryAt := s.now().UTC().Add(s.retryDelay(attemptNumber))
		return tx.Dispatches.MarkFailed(ctx, attempt.ID, attemptNumber, sendErr.Error(), nextRetryAt)
	})
}

func (s *DispatchRetryScanner) retryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := baseDispatchRetryDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxDispatchRetryDelay {
			delay = maxDispatchRetryDelay
			break
		}
	}

	jitterMillis := 0
	if s.randIntn != nil && maxDispatchJitterMillis > 0 {
		jitterMillis = s.randIntn(maxDispatchJitterMillis + 1)
	}
	return delay + time.Duration(jitterMillis)*time.Millisecond
}
