// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/holomush/accounts/internal/account"
)

// LogNotifier logs reset messages instead of sending them.
type LogNotifier struct {
	logger *slog.Logger
}

var _ account.Notifier = (*LogNotifier)(nil)

// NewLogNotifier returns a LogNotifier writing to logger, or the default
// logger when nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// SendPasswordReset implements account.Notifier. It never fails.
func (n *LogNotifier) SendPasswordReset(ctx context.Context, msg account.ResetMessage) error {
	body, err := renderResetBody(msg)
	if err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "password reset email",
		"to", msg.To,
		"subject", ResetSubject,
		"link", msg.Link,
		"body", body)
	return nil
}
