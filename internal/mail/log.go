package mail

import (
	"context"

	"go.uber.org/zap"
)

// LogMailer stands in when no SMTP relay is configured. It records that a
// message would have been sent; the link itself is not logged because it
// embeds a raw one-time secret.
type LogMailer struct {
	logger *zap.Logger
}

var _ Mailer = (*LogMailer)(nil)

func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.L()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, to string, tmpl Template, payload Payload) error {
	m.logger.Info("mail delivery skipped (no SMTP configured)",
		zap.String("to", to),
		zap.String("template", string(tmpl)),
	)
	return nil
}
