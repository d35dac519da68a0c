package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/quotation-engine/internal/cache"
	"github.com/kursadbilgin/quotation-engine/internal/domain"
	"github.com/kursadbilgin/quotation-engine/internal/notifier"
	"github.com/kursadbilgin/quotation-engine/internal/observability"
	"github.com/kursadbilgin/quotation-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSweepInterval  = 24 * time.Hour
	defaultUnviewedAfter  = 3 * 24 * time.Hour
	defaultFollowUpAfter  = 7 * 24 * time.Hour
	reminderDedupeTTL     = 48 * time.Hour
	reminderDedupeDayspec = "2006-01-02"
)

// ReminderScheduler runs the two idempotent reminder sweeps. Sweeps read
// and notify only; they never mutate quotation or link state, so re-running
// them is always safe. A per-day cache key keeps reruns within the same
// day from duplicating notifications.
type ReminderScheduler struct {
	quotations repository.QuotationRepository
	links      repository.AccessLinkRepository
	dispatches repository.DispatchRepository
	notify     notifier.Notifier
	dedupe     cache.Cache
	logger     *zap.Logger
	metrics    *observability.Metrics

	interval      time.Duration
	unviewedAfter time.Duration
	followUpAfter time.Duration
	now           func() time.Time
	inFlight      atomic.Bool
}

func NewReminderScheduler(
	quotations repository.QuotationRepository,
	links repository.AccessLinkRepository,
	dispatches repository.DispatchRepository,
	notify notifier.Notifier,
	dedupe cache.Cache,
	interval, unviewedAfter, followUpAfter time.Duration,
	logger *zap.Logger,
) (*ReminderScheduler, error) {
	if quotations == nil {
		return nil, fmt.Errorf("quotation repository is required")
	}
	if links == nil {
		return nil, fmt.Errorf("access link repository is required")
	}
	if notify == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if dedupe == nil {
		return nil, fmt.Errorf("dedupe cache is required")
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if unviewedAfter <= 0 {
		unviewedAfter = defaultUnviewedAfter
	}
	if followUpAfter <= 0 {
		followUpAfter = defaultFollowUpAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReminderScheduler{
		quotations:    quotations,
		links:         links,
		dispatches:    dispatches,
		notify:        notify,
		dedupe:        dedupe,
		logger:        logger,
		interval:      interval,
		unviewedAfter: unviewedAfter,
		followUpAfter: followUpAfter,
		now:           time.Now,
	}, nil
}

func (s *ReminderScheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start runs both sweeps on a ticker until context cancellation. A tick
// arriving while the previous run is still in flight is skipped.
func (s *ReminderScheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *ReminderScheduler) runOnce(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Warn("reminder sweep still in flight, skipping tick")
		return
	}
	defer s.inFlight.Store(false)

	now := s.now()
	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.RunUnviewedSweep(groupCtx, now)
		return err
	})
	g.Go(func() error {
		_, err := s.RunFollowUpSweep(groupCtx, now)
		return err
	})
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		s.logger.Error("reminder sweep failed", zap.Error(err))
	}
}

// RunUnviewedSweep reminds owners of quotations still SENT whose latest
// active link was delivered before the threshold and never viewed. One
// reminder per quotation per calendar day.
func (s *ReminderScheduler) RunUnviewedSweep(ctx context.Context, now time.Time) (int, error) {
	start := s.now()
	defer func() {
		s.metrics.ObserveSweepDuration("unviewed", s.now().Sub(start))
	}()

	cutoff := now.UTC().Add(-s.unviewedAfter)
	today := now.UTC().Truncate(24 * time.Hour)

	stale, err := s.links.FindStaleUnviewed(ctx, cutoff, today)
	if err != nil {
		return 0, fmt.Errorf("failed to query unviewed links: %w", err)
	}

	sent := 0
	for i := range stale {
		row := stale[i]
		won, err := s.claimDay(ctx, "unviewed", row.QuotationID, now)
		if err != nil {
			s.logger.Warn("reminder dedupe check failed",
				zap.String("quotationId", row.QuotationID),
				zap.Error(err),
			)
			continue
		}
		if !won {
			continue
		}

		subject := fmt.Sprintf("Quotation %s has not been viewed yet", row.DocumentNumber)
		body := fmt.Sprintf(
			"<p>Quotation <strong>%s</strong> was sent to %s on %s and has not been opened.</p>",
			row.DocumentNumber, row.ClientEmail, row.SentAt.Format("2 Jan 2006"),
		)
		if s.deliverReminder(ctx, row.QuotationID, domain.DispatchKindUnviewedReminder, row.OwnerEmail, subject, body) {
			s.metrics.IncReminderSent("unviewed")
			sent++
		}
	}

	s.logger.Info("unviewed reminder sweep finished",
		zap.Int("eligible", len(stale)),
		zap.Int("sent", sent),
	)
	return sent, nil
}

// RunFollowUpSweep nudges owners about quotations first viewed before the
// threshold that still have no recorded response.
func (s *ReminderScheduler) RunFollowUpSweep(ctx context.Context, now time.Time) (int, error) {
	start := s.now()
	defer func() {
		s.metrics.ObserveSweepDuration("follow_up", s.now().Sub(start))
	}()

	viewedBefore := now.UTC().Add(-s.followUpAfter)
	today := now.UTC().Truncate(24 * time.Hour)

	awaiting, err := s.quotations.FindAwaitingResponse(ctx, viewedBefore, today)
	if err != nil {
		return 0, fmt.Errorf("failed to query quotations awaiting response: %w", err)
	}

	sent := 0
	for i := range awaiting {
		row := awaiting[i]
		won, err := s.claimDay(ctx, "follow_up", row.QuotationID, now)
		if err != nil {
			s.logger.Warn("reminder dedupe check failed",
				zap.String("quotationId", row.QuotationID),
				zap.Error(err),
			)
			continue
		}
		if !won {
			continue
		}

		subject := fmt.Sprintf("Quotation %s is awaiting a response", row.DocumentNumber)
		body := fmt.Sprintf(
			"<p>Quotation <strong>%s</strong> was first viewed by %s on %s and has no response yet. A follow-up call may help.</p>",
			row.DocumentNumber, row.ClientEmail, row.FirstViewedAt.Format("2 Jan 2006"),
		)
		if s.deliverReminder(ctx, row.QuotationID, domain.DispatchKindFollowUp, row.OwnerEmail, subject, body) {
			s.metrics.IncReminderSent("follow_up")
			sent++
		}
	}

	s.logger.Info("follow-up sweep finished",
		zap.Int("eligible", len(awaiting)),
		zap.Int("sent", sent),
	)
	return sent, nil
}

// claimDay wins at most once per (kind, quotation, calendar day).
func (s *ReminderScheduler) claimDay(ctx context.Context, kind, quotationID string, now time.Time) (bool, error) {
	key := fmt.Sprintf("reminder:%s:%s:%s", kind, quotationID, now.UTC().Format(reminderDedupeDayspec))
	return s.dedupe.SetNX(ctx, key, "1", reminderDedupeTTL)
}

func (s *ReminderScheduler) deliverReminder(ctx context.Context, quotationID string, kind domain.DispatchKind, recipient, subject, body string) bool {
	attempt := &domain.DispatchAttempt{
		ID:          uuid.NewString(),
		QuotationID: quotationID,
		Kind:        kind,
		Channel:     domain.DispatchChannelEmail,
		Status:      domain.DispatchStatusPending,
		Recipient:   recipient,
		Subject:     subject,
		Body:        body,
	}
	if s.dispatches != nil {
		if err := s.dispatches.Create(ctx, attempt); err != nil {
			s.logger.Warn("failed to record reminder attempt",
				zap.String("quotationId", quotationID),
				zap.Error(err),
			)
			attempt = nil
		}
	} else {
		attempt = nil
	}

	ref, err := s.notify.SendEmail(ctx, notifier.Email{
		To:       recipient,
		Subject:  subject,
		HTMLBody: body,
	})
	if err != nil {
		s.logger.Warn("reminder delivery failed",
			zap.String("quotationId", quotationID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		if attempt != nil {
			retryAt := s.now().UTC().Add(time.Minute)
			if markErr := s.dispatches.MarkFailed(ctx, attempt.ID, 1, err.Error(), retryAt); markErr != nil {
				s.logger.Warn("failed to mark reminder attempt failed",
					zap.String("attemptId", attempt.ID),
					zap.Error(markErr),
				)
			}
		}
		return false
	}

	if attempt != nil {
		if err := s.dispatches.MarkDelivered(ctx, attempt.ID, ref); err != nil {
			s.logger.Warn("failed to mark reminder attempt delivered",
				zap.String("attemptId", attempt.ID),
				zap.Error(err),
			)
		}
	}
	return true
}
