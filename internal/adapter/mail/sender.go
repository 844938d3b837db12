package mail

import (
	"context"
	"fmt"
	"log/slog"

	gomail "github.com/wneessen/go-mail"
)

// Sender delivers a notification email.
type Sender interface {
	Send(ctx context.Context, subject, body string) error
}

type smtpDialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// SMTPSender delivers plain text mail from a fixed sender to a fixed recipient.
type SMTPSender struct {
	dialer    smtpDialer
	from      string
	recipient string
}

// SMTPOptions configures the SMTP transport.
type SMTPOptions struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	Recipient string
}

// NewSMTPSender creates sender with opportunistic TLS and optional PLAIN auth.
func NewSMTPSender(opts SMTPOptions) (*SMTPSender, error) {
	if opts.From == "" || opts.Recipient == "" {
		return nil, fmt.Errorf("sender and recipient addresses must be provided")
	}

	clientOpts := []gomail.Option{
		gomail.WithPort(opts.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if opts.Username != "" {
		clientOpts = append(clientOpts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(opts.Username),
			gomail.WithPassword(opts.Password),
		)
	}

	client, err := gomail.NewClient(opts.Host, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTPSender{dialer: client, from: opts.From, recipient: opts.Recipient}, nil
}

// Send composes and delivers one message. Errors are returned so the delivery is retried.
func (s *SMTPSender) Send(ctx context.Context, subject, body string) error {
	msg, err := compose(s.from, s.recipient, subject, body)
	if err != nil {
		return err
	}
	if err := s.dialer.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func compose(from, to, subject, body string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)
	return msg, nil
}

// LogSender writes notifications to the log instead of sending them.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a sender for runs without SMTP.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, subject, body string) error {
	s.logger.Info("notification", slog.String("subject", subject), slog.String("body", body))
	return nil
}
