// Package mail delivers the transactional emails sent by the directory:
// password reset codes and email verification codes.
package mail

import (
	"context"
	"strings"

	"directory-api/internal/observability"
)

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of delivering them. It is used
// when no email provider is configured.
type LogMailer struct {
	logger      *observability.Logger
	includeBody bool
}

func NewLogMailer(logger *observability.Logger, includeBody bool) *LogMailer {
	return &LogMailer{logger: logger, includeBody: includeBody}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	fields := map[string]any{
		"to":      maskAddress(msg.To),
		"subject": msg.Subject,
	}
	if m.includeBody {
		fields["to"] = msg.To
		fields["body"] = msg.Text
	}
	m.logger.Info("mail_logged", fields)
	return nil
}

func maskAddress(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return "***"
	}
	if at <= 1 {
		return "***" + address[at:]
	}
	return address[:1] + "***" + address[at:]
}
