// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/account"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/pkg/errutil"
)

// maxFormBytes caps POST bodies.
const maxFormBytes = 64 << 10

//go:embed templates/*.html
var templatesFS embed.FS

var pages = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// Accounts is the account service the handlers drive.
type Accounts interface {
	Register(ctx context.Context, in account.RegisterInput) (*account.User, error)
	Authenticate(ctx context.Context, identity account.Identity, password string) (*account.User, error)
	RequestReset(ctx context.Context, identity account.Identity) error
	ValidateResetToken(ctx context.Context, token string) (*account.PasswordReset, error)
	ApplyReset(ctx context.Context, token, newPassword string) error
}

type operation struct {
	name  string // metric label
	label string // human-readable prefix
}

var (
	opRegister      = operation{name: "register", label: "registration"}
	opAuthenticate  = operation{name: "authenticate", label: "authentication"}
	opRequestReset  = operation{name: "request_reset", label: "password reset request"}
	opApplyReset    = operation{name: "apply_reset", label: "password reset"}
	opValidateReset = operation{name: "validate_reset", label: "reset link check"}
)

// Success messages.
const (
	msgRegistered   = "user registered successfully"
	msgLoggedIn     = "login successful"
	msgResetSent    = "a password-reset email has been sent to your email address"
	msgResetApplied = "password has been reset successfully"
)

// Handler serves the signup, login and password-reset pages.
type Handler struct {
	accounts Accounts
	logger   *slog.Logger
	metrics  *observability.Metrics
	validate *validator.Validate
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// WithMetrics records request and operation metrics.
func WithMetrics(m *observability.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler creates a Handler over accounts.
func NewHandler(accounts Accounts, opts ...HandlerOption) *Handler {
	h := &Handler{
		accounts: accounts,
		logger:   slog.Default(),
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the routed handler wrapped in logging and metrics middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /signup", h.page("signup.html", "Sign up"))
	mux.HandleFunc("POST /signup", h.signup)
	mux.HandleFunc("GET /login", h.page("login.html", "Log in"))
	mux.HandleFunc("POST /login", h.login)
	mux.HandleFunc("GET /forgot-password", h.page("forgot-password.html", "Forgot password"))
	mux.HandleFunc("POST /forgot-password", h.forgotPassword)
	mux.HandleFunc("GET "+account.ResetPath, h.resetPasswordPage)
	mux.HandleFunc("POST "+account.ResetPath, h.resetPassword)
	return h.observe(mux)
}

type pageData struct {
	Title  string
	Notice string
	ID     string
}

func (h *Handler) page(name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.render(w, r, name, pageData{Title: title})
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		h.logger.ErrorContext(r.Context(), "render page failed", "page", name, "error", err)
	}
}

// readForm parses the urlencoded body, bounded by maxFormBytes.
func readForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return oops.Code(account.CodeFormInvalid).Errorf("malformed form body: %v", err)
	}
	return nil
}

func (h *Handler) succeed(w http.ResponseWriter, r *http.Request, op operation, status int, msg string) {
	h.metrics.RecordOperation(op.name, observability.OutcomeOK)
	writeResult(w, r, status, Result{Code: CodeOK, Message: msg})
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	if err := readForm(w, r); err != nil {
		h.writeError(w, r, opRegister, err)
		return
	}
	form := parseCredentials(r.PostForm)
	if err := validateForm(h.validate, form); err != nil {
		h.writeError(w, r, opRegister, err)
		return
	}

	user, err := h.accounts.Register(r.Context(), account.RegisterInput{
		Identity: form.identity(),
		Password: form.Password,
	})
	if err != nil {
		h.writeError(w, r, opRegister, err)
		return
	}
	h.logger.InfoContext(r.Context(), "user registered", "user_id", user.ID.String())
	h.succeed(w, r, opRegister, http.StatusCreated, msgRegistered)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if err := readForm(w, r); err != nil {
		h.writeError(w, r, opAuthenticate, err)
		return
	}
	form := parseCredentials(r.PostForm)
	if err := validateForm(h.validate, form); err != nil {
		h.writeError(w, r, opAuthenticate, err)
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), form.identity(), form.Password)
	if err != nil {
		h.writeError(w, r, opAuthenticate, err)
		return
	}
	h.logger.InfoContext(r.Context(), "user authenticated", "user_id", user.ID.String())
	h.succeed(w, r, opAuthenticate, http.StatusOK, msgLoggedIn)
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	if err := readForm(w, r); err != nil {
		h.writeError(w, r, opRequestReset, err)
		return
	}
	form := parseIdentity(r.PostForm)
	if err := validateForm(h.validate, form); err != nil {
		h.writeError(w, r, opRequestReset, err)
		return
	}

	if err := h.accounts.RequestReset(r.Context(), form.identity()); err != nil {
		h.writeError(w, r, opRequestReset, err)
		return
	}
	h.succeed(w, r, opRequestReset, http.StatusOK, msgResetSent)
}

// resetPasswordPage always renders the form. A token that is already
// unusable is reported as a notice so the visitor can request a new one.
func (h *Handler) resetPasswordPage(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: "Reset password", ID: r.URL.Query().Get("id")}

	if data.ID != "" {
		_, err := h.accounts.ValidateResetToken(r.Context(), data.ID)
		outcome := observability.OutcomeOK
		if err != nil {
			outcome = account.KindOf(err).String()
		}
		h.metrics.RecordOperation(opValidateReset.name, outcome)

		switch kind := account.KindOf(err); {
		case err == nil:
		case kind == account.KindTokenExpired:
			data.Notice = "This password reset link has expired. Request a new one."
		case kind == account.KindNotFound:
			data.Notice = "This password reset link is not valid. Request a new one."
		default:
			errutil.LogErrorContext(r.Context(), h.logger, slog.LevelError, opValidateReset.label+" failed", err)
		}
	}
	h.render(w, r, "reset-password.html", data)
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	if err := readForm(w, r); err != nil {
		h.writeError(w, r, opApplyReset, err)
		return
	}
	form := parseReset(r.PostForm)
	if err := validateForm(h.validate, form); err != nil {
		h.writeError(w, r, opApplyReset, err)
		return
	}

	if err := h.accounts.ApplyReset(r.Context(), form.ID, form.Password); err != nil {
		h.writeError(w, r, opApplyReset, err)
		return
	}
	h.succeed(w, r, opApplyReset, http.StatusOK, msgResetApplied)
}
