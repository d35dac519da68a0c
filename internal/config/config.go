package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN      string `env:"DATABASE_DSN,required=true"`
	RedisURL         string `env:"REDIS_URL,required=true"`
	RenderServiceURL string `env:"RENDER_SERVICE_URL,required=true"`
	SendGridAPIKey   string `env:"SENDGRID_API_KEY,required=true"`
	SenderName       string `env:"SENDER_NAME,default=Quotations"`
	SenderEmail      string `env:"SENDER_EMAIL,required=true"`
	PortalBaseURL    string `env:"PORTAL_BASE_URL,required=true"`

	DocumentPrefix   string `env:"DOCUMENT_PREFIX,default=QT"`
	LinkExpiryDays   int    `env:"LINK_EXPIRY_DAYS,default=90"`
	OTPTTLMinutes    int    `env:"OTP_TTL_MINUTES,default=10"`
	OTPMaxAttempts   int    `env:"OTP_MAX_ATTEMPTS,default=5"`
	OTPRatePerMinute int    `env:"OTP_RATE_PER_MINUTE,default=5"`

	ManagerDiscountThreshold float64 `env:"MANAGER_DISCOUNT_THRESHOLD,default=10"`
	AdminDiscountThreshold   float64 `env:"ADMIN_DISCOUNT_THRESHOLD,default=25"`
	TaxRatePercent           float64 `env:"TAX_RATE_PERCENT,default=18"`
	CompanyTaxCode           string  `env:"COMPANY_TAX_CODE"`

	UnviewedReminderDays  int `env:"UNVIEWED_REMINDER_DAYS,default=3"`
	FollowUpReminderDays  int `env:"FOLLOW_UP_REMINDER_DAYS,default=7"`
	SweepIntervalHours    int `env:"SWEEP_INTERVAL_HOURS,default=24"`
	DispatchRetryInterval int `env:"DISPATCH_RETRY_INTERVAL_SEC,default=30"`
	DispatchMaxRetries    int `env:"DISPATCH_MAX_RETRIES,default=5"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
