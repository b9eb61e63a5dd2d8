// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/account"
	"github.com/holomush/accounts/pkg/errutil"
)

// CodeOK is the code reported with successful results.
const CodeOK = "OK"

// codeInternal is reported when a failure carries no oops code.
const codeInternal = "INTERNAL"

// Result is the structured body of every POST response.
type Result struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps a failure kind to its HTTP status.
func statusFor(kind account.Kind) int {
	switch kind {
	case account.KindDuplicate:
		return http.StatusConflict
	case account.KindAuth:
		return http.StatusUnauthorized
	case account.KindNotFound:
		return http.StatusNotFound
	case account.KindTokenExpired:
		return http.StatusGone
	case account.KindValidation:
		return http.StatusBadRequest
	case account.KindNotification:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// wantsJSON reports whether the Accept header names a JSON media type.
func wantsJSON(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") {
			return true
		}
	}
	return false
}

// writeResult renders res as JSON or plain text depending on Accept.
func writeResult(w http.ResponseWriter, r *http.Request, status int, res Result) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		//nolint:errcheck // client may disconnect
		json.NewEncoder(w).Encode(res)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	w.Write([]byte(res.Message))
}

// failure converts err into a Result. Persistence failures name the
// operation and carry the underlying message.
func failure(operation string, err error) (int, Result) {
	kind := account.KindOf(err)
	code := codeInternal
	if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() != nil {
		code = fmt.Sprint(oopsErr.Code())
	}

	msg := err.Error()
	if kind == account.KindPersistence {
		msg = fmt.Sprintf("%s failed: %s", operation, err.Error())
	}
	return statusFor(kind), Result{Code: code, Message: msg}
}

// writeError logs err once and writes the matching response.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op operation, err error) {
	status, res := failure(op.label, err)
	kind := account.KindOf(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	errutil.LogErrorContext(r.Context(), h.logger, level, op.label+" failed", err)
	h.metrics.RecordOperation(op.name, kind.String())

	writeResult(w, r, status, res)
}
