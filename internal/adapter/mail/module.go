package mail

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/orderpipeline/internal/config"
)

// Module exposes the notification sender to fx graph.
var Module = fx.Provide(newSender)

type senderParams struct {
	fx.In

	Config *config.Config
	Logger *slog.Logger
}

func newSender(p senderParams) (Sender, error) {
	if p.Config.SMTPHost == "" {
		p.Logger.Warn("SMTP_HOST not set, notifications are written to the log")
		return NewLogSender(p.Logger), nil
	}
	return NewSMTPSender(SMTPOptions{
		Host:      p.Config.SMTPHost,
		Port:      p.Config.SMTPPort,
		Username:  p.Config.SMTPUsername,
		Password:  p.Config.SMTPPassword,
		From:      p.Config.SenderEmail,
		Recipient: p.Config.RecipientEmail,
	})
}
