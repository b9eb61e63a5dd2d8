// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify delivers password-reset messages. SMTPNotifier sends real
// email; LogNotifier writes the message to the structured log for local
// development.
package notify
