// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"time"
)

// ResetMessage is the content of a password reset notification.
type ResetMessage struct {
	To        string
	Username  string
	FirstName string
	Link      string
	ExpiresAt time.Time
}

// Notifier delivers outbound messages to users.
type Notifier interface {
	SendPasswordReset(ctx context.Context, msg ResetMessage) error
}
