// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/wneessen/go-mail"

	"github.com/holomush/accounts/internal/account"
)

// SMTPConfig configures SMTPNotifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLS is one of "mandatory", "opportunistic" or "none".
	TLS     string
	Timeout time.Duration
	// Logger receives delivery logs. Nil means slog.Default().
	Logger *slog.Logger
}

// sender abstracts the mail client for tests.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPNotifier sends password-reset email over SMTP.
type SMTPNotifier struct {
	from   string
	client sender
	logger *slog.Logger
}

var _ account.Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier builds a notifier from cfg. Credentials are optional; when
// a username is set PLAIN auth is used.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("sender address is required")
	}
	policy, err := tlsPolicy(cfg.TLS)
	if err != nil {
		return nil, err
	}

	opts := []mail.Option{mail.WithTLSPolicy(policy)}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").With("host", cfg.Host).Wrap(err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPNotifier{from: cfg.From, client: client, logger: logger}, nil
}

func tlsPolicy(name string) (mail.TLSPolicy, error) {
	switch name {
	case "", "opportunistic":
		return mail.TLSOpportunistic, nil
	case "mandatory":
		return mail.TLSMandatory, nil
	case "none":
		return mail.NoTLS, nil
	default:
		return mail.NoTLS, oops.Code("NOTIFY_CONFIG_INVALID").
			With("tls", name).
			Errorf("unknown tls policy %q", name)
	}
}

// SendPasswordReset implements account.Notifier.
func (n *SMTPNotifier) SendPasswordReset(ctx context.Context, msg account.ResetMessage) error {
	m, err := n.compose(msg)
	if err != nil {
		return err
	}
	if err := n.client.DialAndSendWithContext(ctx, m); err != nil {
		return oops.Code("NOTIFY_SEND_FAILED").With("to", msg.To).Wrap(err)
	}
	n.logger.InfoContext(ctx, "password reset email sent", "to", msg.To)
	return nil
}

func (n *SMTPNotifier) compose(msg account.ResetMessage) (*mail.Msg, error) {
	body, err := renderResetBody(msg)
	if err != nil {
		return nil, err
	}

	m := mail.NewMsg()
	if err := m.From(n.from); err != nil {
		return nil, oops.Code("NOTIFY_ADDRESS_INVALID").With("from", n.from).Wrap(err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, oops.Code("NOTIFY_ADDRESS_INVALID").With("to", msg.To).Wrap(err)
	}
	m.Subject(ResetSubject)
	m.SetBodyString(mail.TypeTextPlain, body)
	return m, nil
}
