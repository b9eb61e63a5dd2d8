// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package account implements the credential lifecycle of a user account:
// registration, authentication and password recovery by emailed link.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates a User with fresh identifiers and a password hash
//   - NewPasswordReset - creates a PasswordReset with validated user and expiry
//
// # Ports
//
// The Service depends on three ports that callers inject at construction:
//   - UserRepository and PasswordResetRepository, implemented by the
//     postgres, mongo and memory subpackages
//   - Notifier, implemented by internal/notify
//
// Errors returned by the Service carry oops codes; KindOf maps them onto the
// small taxonomy the HTTP surface turns into status codes.
package account
