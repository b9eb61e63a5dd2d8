// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"strings"
	"text/template"

	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/account"
)

// ResetSubject is the subject line of password-reset email.
const ResetSubject = "Password reset"

var resetBody = template.Must(template.New("reset").Parse(
	`To reset your password, open this link: {{ .Link }}
{{ if not .ExpiresAt.IsZero }}
The link expires at {{ .ExpiresAt.UTC.Format "2006-01-02 15:04 MST" }}.
{{ end }}`))

// renderResetBody produces the plain-text body for msg.
func renderResetBody(msg account.ResetMessage) (string, error) {
	var b strings.Builder
	if err := resetBody.Execute(&b, msg); err != nil {
		return "", oops.Code("NOTIFY_RENDER_FAILED").With("to", msg.To).Wrap(err)
	}
	return b.String(), nil
}
