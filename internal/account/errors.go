// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by repositories when a record with the same
// identity tuple already exists.
var ErrDuplicate = errors.New("duplicate record")

// Error codes attached to errors returned by the Service.
const (
	CodeDuplicate          = "ACCOUNT_DUPLICATE"
	CodeInvalidCredentials = "ACCOUNT_INVALID_CREDENTIALS"
	CodeNotFound           = "ACCOUNT_NOT_FOUND"
	CodeTokenInvalid       = "RESET_TOKEN_INVALID"
	CodeTokenExpired       = "RESET_TOKEN_EXPIRED"
	CodeResetUserNotFound  = "RESET_USER_NOT_FOUND"
	CodeNotifyFailed       = "NOTIFY_FAILED"
	CodeFormInvalid        = "WEB_FORM_INVALID"
)

// Kind classifies an error for callers at the transport boundary.
type Kind int

// Error kinds.
const (
	KindPersistence Kind = iota
	KindDuplicate
	KindAuth
	KindNotFound
	KindTokenExpired
	KindValidation
	KindNotification
)

// String returns the lowercase kind name used in metrics labels.
func (k Kind) String() string {
	switch k {
	case KindDuplicate:
		return "duplicate"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindTokenExpired:
		return "token_expired"
	case KindValidation:
		return "validation"
	case KindNotification:
		return "notification"
	default:
		return "persistence"
	}
}

// KindOf classifies err by its oops code. oops reports the deepest code in a
// wrap chain, so domain failures are raised as fresh errors rather than
// wrapping repository errors. Errors without a known code are persistence
// failures.
func KindOf(err error) Kind {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindPersistence
	}
	switch fmt.Sprint(oopsErr.Code()) {
	case CodeDuplicate:
		return KindDuplicate
	case CodeInvalidCredentials:
		return KindAuth
	case CodeNotFound, CodeTokenInvalid, CodeResetUserNotFound:
		return KindNotFound
	case CodeTokenExpired:
		return KindTokenExpired
	case CodeFormInvalid:
		return KindValidation
	case CodeNotifyFailed:
		return KindNotification
	default:
		return KindPersistence
	}
}
