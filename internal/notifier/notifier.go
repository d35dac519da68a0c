package notifier

import "context"

// Email is one outbound message. Bodies are rendered upstream; the
// notifier only delivers.
type Email struct {
	To         string
	Cc         []string
	Bcc        []string
	Subject    string
	HTMLBody   string
	PlainText  string
	Attachment []byte
	AttachName string
	AttachMime string
}

// Notifier is the outbound email delivery port. Implementations must
// report success or failure unambiguously; a returned reference identifies
// the message at the provider.
type Notifier interface {
	SendEmail(ctx context.Context, msg Email) (string, error)
}
