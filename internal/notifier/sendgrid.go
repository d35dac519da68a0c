package notifier

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const defaultSendTimeout = 10 * time.Second

// SendGridNotifier delivers email through the SendGrid v3 API.
type SendGridNotifier struct {
	client    *sendgrid.Client
	fromName  string
	fromEmail string
	timeout   time.Duration
}

func NewSendGridNotifier(apiKey, fromName, fromEmail string) (*SendGridNotifier, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if strings.TrimSpace(fromEmail) == "" {
		return nil, fmt.Errorf("sender email is required")
	}

	return &SendGridNotifier{
		client:    sendgrid.NewSendClient(apiKey),
		fromName:  strings.TrimSpace(fromName),
		fromEmail: strings.TrimSpace(fromEmail),
		timeout:   defaultSendTimeout,
	}, nil
}

func (n *SendGridNotifier) SendEmail(ctx context.Context, msg Email) (string, error) {
	if n == nil || n.client == nil {
		return "", fmt.Errorf("notifier is not initialized")
	}
	if strings.TrimSpace(msg.To) == "" {
		return "", &NotifyError{Message: "recipient is required"}
	}

	message := buildMessage(n.fromName, n.fromEmail, msg)

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	response, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		return "", &NotifyError{
			Message:   "provider request failed",
			Transient: ctx.Err() != context.Canceled,
			Cause:     err,
		}
	}
	if response == nil {
		return "", &NotifyError{Message: "provider returned empty response", Transient: true}
	}

	if response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices {
		return messageReference(response.Headers), nil
	}

	return "", &NotifyError{
		StatusCode: response.StatusCode,
		Message:    strings.TrimSpace(response.Body),
		Transient:  isTransientHTTPStatus(response.StatusCode),
	}
}

func buildMessage(fromName, fromEmail string, msg Email) *mail.SGMailV3 {
	from := mail.NewEmail(fromName, fromEmail)

	message := mail.NewV3Mail()
	message.SetFrom(from)
	message.Subject = msg.Subject

	personalization := mail.NewPersonalization()
	personalization.AddTos(mail.NewEmail("", msg.To))
	for _, cc := range msg.Cc {
		if strings.TrimSpace(cc) != "" {
			personalization.AddCCs(mail.NewEmail("", cc))
		}
	}
	for _, bcc := range msg.Bcc {
		if strings.TrimSpace(bcc) != "" {
			personalization.AddBCCs(mail.NewEmail("", bcc))
		}
	}
	message.AddPersonalizations(personalization)

	if msg.PlainText != "" {
		message.AddContent(mail.NewContent("text/plain", msg.PlainText))
	}
	if msg.HTMLBody != "" {
		message.AddContent(mail.NewContent("text/html", msg.HTMLBody))
	}

	if len(msg.Attachment) > 0 {
		attachment := mail.NewAttachment()
		attachment.SetContent(base64.StdEncoding.EncodeToString(msg.Attachment))
		attachment.SetFilename(msg.AttachName)
		if msg.AttachMime != "" {
			attachment.SetType(msg.AttachMime)
		}
		attachment.SetDisposition("attachment")
		message.AddAttachment(attachment)
	}

	return message
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func messageReference(headers map[string][]string) string {
	for _, key := range []string{"X-Message-Id", "X-Message-ID"} {
		if values, ok := headers[key]; ok && len(values) > 0 && strings.TrimSpace(values[0]) != "" {
			return values[0]
		}
	}
	return ""
}
