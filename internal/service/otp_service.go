package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/quotation-engine/internal/domain"
	"github.com/kursadbilgin/quotation-engine/internal/notifier"
	"github.com/kursadbilgin/quotation-engine/internal/observability"
	"github.com/kursadbilgin/quotation-engine/internal/ratelimit"
	"github.com/kursadbilgin/quotation-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultOTPTTL         = 10 * time.Minute
	defaultOTPMaxAttempts = 5
)

// OtpAuthenticator issues and verifies the second factor layered on an
// access link. Codes are stored hashed, expire quickly, and are strictly
// single use.
type OtpAuthenticator struct {
	passcodes   repository.PasscodeRepository
	dispatches  repository.DispatchRepository
	uow         repository.UnitOfWork
	tokens      TokenIssuer
	notify      notifier.Notifier
	limiter     ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewOtpAuthenticator(
	passcodes repository.PasscodeRepository,
	dispatches repository.DispatchRepository,
	uow repository.UnitOfWork,
	tokens TokenIssuer,
	notify notifier.Notifier,
	limiter ratelimit.RateLimiter,
	ttl time.Duration,
	maxAttempts int,
	logger *zap.Logger,
) (*OtpAuthenticator, error) {
	if passcodes == nil {
		return nil, fmt.Errorf("passcode repository is required")
	}
	if uow == nil {
		return nil, fmt.Errorf("unit of work is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	if notify == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if ttl <= 0 {
		ttl = defaultOTPTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultOTPMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OtpAuthenticator{
		passcodes:   passcodes,
		dispatches:  dispatches,
		uow:         uow,
		tokens:      tokens,
		notify:      notify,
		limiter:     limiter,
		logger:      logger,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}, nil
}

func (s *OtpAuthenticator) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Issue supersedes every unused passcode for the pair, mints a fresh one,
// and emails the plaintext code. The code is returned for same-process
// confirmation only and is never logged.
func (s *OtpAuthenticator) Issue(ctx context.Context, link *domain.AccessLink, ip string) (string, error) {
	if link == nil {
		return "", fmt.Errorf("%w: link is required", domain.ErrValidation)
	}

	allowed, err := s.limiter.Allow(ctx, "otp:issue:"+link.ID)
	if err != nil {
		return "", fmt.Errorf("rate limiter check failed: %w", err)
	}
	if !allowed {
		s.logger.Info("passcode issue throttled",
			zap.String("linkId", link.ID),
			zap.String("quotationId", link.QuotationID),
		)
		return "", fmt.Errorf("%w: too many passcode requests", domain.ErrDenied)
	}

	code, err := s.tokens.NumericCode(domain.OTPDigits)
	if err != nil {
		return "", err
	}
	salt, err := s.tokens.NewSalt()
	if err != nil {
		return "", err
	}

	issuedAt := s.now().UTC()
	passcode := &domain.OneTimePasscode{
		ID:           uuid.NewString(),
		AccessLinkID: link.ID,
		Email:        link.Email,
		CodeHash:     domain.HashOTPCode(salt, code),
		Salt:         salt,
		ExpiresAt:    issuedAt.Add(s.ttl),
		IssuedIP:     ip,
	}

	// Supersede and create commit together so two concurrent issues can
	// never leave an older passcode live next to a newer one.
	err = s.uow.Do(ctx, func(tx *repository.Set) error {
		if err := tx.Passcodes.SupersedeUnused(ctx, link.ID, link.Email); err != nil {
			return fmt.Errorf("failed to supersede prior passcodes: %w", err)
		}
		if err := tx.Passcodes.Create(ctx, passcode); err != nil {
			return fmt.Errorf("failed to store passcode: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if err := s.deliverCode(ctx, link, code); err != nil {
		// An undeliverable code must not stay verifiable.
		if markErr := s.passcodes.MarkUsed(ctx, passcode.ID); markErr != nil {
			s.logger.Error("failed to void passcode after delivery failure",
				zap.String("passcodeId", passcode.ID),
				zap.Error(markErr),
			)
		}
		return "", err
	}

	s.metrics.IncOTPIssued()
	return code, nil
}

// Verify checks a supplied code against the newest unused passcode for
// the pair. It fails closed on every anomaly and burns an attempt before
// comparing, so concurrent guesses cannot exceed the ceiling.
func (s *OtpAuthenticator) Verify(ctx context.Context, link *domain.AccessLink, suppliedCode, ip string) (bool, error) {
	if link == nil {
		return false, fmt.Errorf("%w: link is required", domain.ErrValidation)
	}
	suppliedCode = strings.TrimSpace(suppliedCode)
	if suppliedCode == "" {
		s.metrics.IncOTPVerification("missing_code")
		return false, nil
	}

	allowed, err := s.limiter.Allow(ctx, "otp:verify:"+link.ID)
	if err != nil {
		return false, fmt.Errorf("rate limiter check failed: %w", err)
	}
	if !allowed {
		s.logger.Info("passcode verification throttled",
			zap.String("linkId", link.ID),
			zap.String("quotationId", link.QuotationID),
		)
		return false, fmt.Errorf("%w: too many verification attempts", domain.ErrDenied)
	}

	verified := false
	result := "no_match"
	err = s.uow.Do(ctx, func(tx *repository.Set) error {
		passcode, err := tx.Passcodes.LockLatestUnused(ctx, link.ID, link.Email)
		if errors.Is(err, domain.ErrNotFound) || (err == nil && passcode == nil) {
			// No live passcode for the pair, including after the single
			// use was consumed. Deny, never surface a lookup error.
			result = "no_passcode"
			return nil
		}
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if passcode.IsExpired(now) {
			result = "expired"
			return tx.Passcodes.MarkUsed(ctx, passcode.ID)
		}
		if passcode.Attempts >= s.maxAttempts {
			result = "locked"
			return tx.Passcodes.MarkUsed(ctx, passcode.ID)
		}

		bumped, err := tx.Passcodes.IncrementAttempts(ctx, passcode.ID, passcode.Attempts)
		if err != nil {
			return err
		}
		if !bumped {
			result = "contended"
			return nil
		}

		if !passcode.Matches(suppliedCode) {
			return nil
		}

		if err := tx.Passcodes.MarkUsed(ctx, passcode.ID); err != nil {
			return err
		}
		if err := tx.Passcodes.MarkVerified(ctx, passcode.ID, now); err != nil {
			return err
		}
		verified = true
		result = "ok"
		return nil
	})
	if err != nil {
		return false, err
	}

	if !verified {
		s.logger.Info("passcode verification failed",
			zap.String("linkId", link.ID),
			zap.String("quotationId", link.QuotationID),
			zap.String("ip", ip),
			zap.String("reason", result),
		)
	}
	s.metrics.IncOTPVerification(result)
	return verified, nil
}

// HasRecentVerification reports whether the pair verified a passcode
// within the window. Gates the portal response endpoint.
func (s *OtpAuthenticator) HasRecentVerification(ctx context.Context, link *domain.AccessLink, window time.Duration) (bool, error) {
	if link == nil {
		return false, fmt.Errorf("%w: link is required", domain.ErrValidation)
	}
	since := s.now().UTC().Add(-window)
	return s.passcodes.HasRecentVerified(ctx, link.ID, link.Email, since)
}

func (s *OtpAuthenticator) deliverCode(ctx context.Context, link *domain.AccessLink, code string) error {
	attempt := &domain.DispatchAttempt{
		ID:          uuid.NewString(),
		QuotationID: link.QuotationID,
		Kind:        domain.DispatchKindOTP,
		Channel:     domain.DispatchChannelEmail,
		Status:      domain.DispatchStatusPending,
		Recipient:   link.Email,
		Subject:     "Your verification code",
	}
	if s.dispatches != nil {
		if err := s.dispatches.Create(ctx, attempt); err != nil {
			s.logger.Warn("failed to record passcode dispatch attempt",
				zap.String("linkId", link.ID),
				zap.Error(err),
			)
			attempt = nil
		}
	} else {
		attempt = nil
	}

	ref, err := s.notify.SendEmail(ctx, notifier.Email{
		To:        link.Email,
		Subject:   "Your verification code",
		HTMLBody:  fmt.Sprintf("<p>Your verification code is <strong>%s</strong>. It expires in %d minutes.</p>", code, int(s.ttl.Minutes())),
		PlainText: fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(s.ttl.Minutes())),
	})
	if err != nil {
		if attempt != nil {
			if markErr := s.dispatches.MarkPermanentlyFailed(ctx, attempt.ID, err.Error()); markErr != nil {
				s.logger.Warn("failed to mark passcode dispatch failed",
					zap.String("attemptId", attempt.ID),
					zap.Error(markErr),
				)
			}
		}
		return fmt.Errorf("%w: passcode delivery failed: %v", domain.ErrExternal, err)
	}

	if attempt != nil {
		if markErr := s.dispatches.MarkDelivered(ctx, attempt.ID, ref); markErr != nil {
			s.logger.Warn("failed to mark passcode dispatch delivered",
				zap.String("attemptId", attempt.ID),
				zap.Error(markErr),
			)
		}
	}
	return nil
}
