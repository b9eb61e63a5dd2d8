// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/account"
	"github.com/holomush/accounts/internal/account/memory"
	"github.com/holomush/accounts/internal/account/mocks"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/internal/web"
)

var cheapParams = account.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, SaltLen: 16, KeyLen: 32}

// outbox records reset messages and can be told to fail.
type outbox struct {
	mu   sync.Mutex
	sent []account.ResetMessage
	err  error
}

func (o *outbox) SendPasswordReset(_ context.Context, msg account.ResetMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) last(t *testing.T) account.ResetMessage {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent, "no reset message sent")
	return o.sent[len(o.sent)-1]
}

type fixture struct {
	handler http.Handler
	outbox  *outbox
	metrics *observability.Metrics
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	f := &fixture{outbox: &outbox{}, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := account.NewService(store, store.Resets(), account.NewArgon2idHasherWithParams(cheapParams), f.outbox,
		account.ServiceConfig{
			BaseURL: "http://localhost:3000",
			Clock:   func() time.Time { return f.now },
		})
	require.NoError(t, err)

	f.metrics = observability.NewMetrics(prometheus.NewRegistry())
	f.handler = web.NewHandler(svc, web.WithMetrics(f.metrics)).Routes()
	return f
}

func aliceForm(password string) url.Values {
	v := url.Values{
		"username":    {"alice"},
		"email":       {"a@x.com"},
		"firstName":   {"Alice"},
		"dateOfBirth": {"2000-01-01"},
	}
	if password != "" {
		v.Set("password", password)
	}
	return v
}

func (f *fixture) do(t *testing.T, method, target string, form url.Values, accept string) *http.Response {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec.Result()
}

func (f *fixture) post(t *testing.T, path string, form url.Values) (int, string) {
	t.Helper()
	resp := f.do(t, http.MethodPost, path, form, "")
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func (f *fixture) postJSON(t *testing.T, path string, form url.Values) (int, web.Result) {
	t.Helper()
	resp := f.do(t, http.MethodPost, path, form, "application/json")
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
	var res web.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return resp.StatusCode, res
}

func tokenFrom(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/reset-password", u.Path)
	return u.Query().Get("id")
}

func TestAccountLifecycle(t *testing.T) {
	f := newFixture(t)

	code, body := f.post(t, "/signup", aliceForm("pw1"))
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "user registered successfully", body)

	code, body = f.post(t, "/login", aliceForm("pw1"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "login successful", body)

	code, body = f.post(t, "/login", aliceForm("wrong"))
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "incorrect username, first name, or password", body)

	code, _ = f.post(t, "/forgot-password", aliceForm(""))
	assert.Equal(t, http.StatusOK, code)
	msg := f.outbox.last(t)
	assert.Equal(t, "a@x.com", msg.To)
	assert.True(t, strings.HasPrefix(msg.Link, "http://localhost:3000/reset-password?id="))
	token := tokenFrom(t, msg.Link)

	code, body = f.post(t, "/reset-password", url.Values{"id": {token}, "password": {"pw2"}})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "password has been reset successfully", body)

	code, _ = f.post(t, "/login", aliceForm("pw2"))
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.post(t, "/login", aliceForm("pw1"))
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = f.post(t, "/reset-password", url.Values{"id": {token}, "password": {"pw3"}})
	assert.Equal(t, http.StatusNotFound, code, "a reset link works once")
	assert.Equal(t, "user not found", body)

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.OperationsTotal.WithLabelValues("register", "ok")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(f.metrics.OperationsTotal.WithLabelValues("authenticate", "auth")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.HTTPRequestsTotal.WithLabelValues("POST /signup", "201")), 0)
}

func TestSignup_Duplicate(t *testing.T) {
	f := newFixture(t)
	code, _ := f.post(t, "/signup", aliceForm("pw1"))
	require.Equal(t, http.StatusCreated, code)

	code, res := f.postJSON(t, "/signup", aliceForm("different"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, account.CodeDuplicate, res.Code)
	assert.Equal(t, "username, email and first name are already registered", res.Message)

	other := aliceForm("pw1")
	other.Set("dateOfBirth", "2000-01-02")
	code, _ = f.post(t, "/signup", other)
	assert.Equal(t, http.StatusCreated, code, "a differing identity field is a new account")
}

func TestSignup_LegacyFirstNameField(t *testing.T) {
	f := newFixture(t)
	form := aliceForm("pw1")
	form.Del("firstName")
	form.Set("prenume", "Alice")

	code, _ := f.post(t, "/signup", form)
	require.Equal(t, http.StatusCreated, code)

	code, _ = f.post(t, "/login", aliceForm("pw1"))
	assert.Equal(t, http.StatusOK, code)
}

func TestSignup_EmptyPassword(t *testing.T) {
	f := newFixture(t)
	code, _ := f.post(t, "/signup", aliceForm(""))
	require.Equal(t, http.StatusCreated, code)

	code, body := f.post(t, "/login", aliceForm(""))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "login successful", body)

	code, _ = f.post(t, "/login", aliceForm("pw1"))
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestSignup_MultibyteFieldTooLong(t *testing.T) {
	f := newFixture(t)
	form := aliceForm("pw1")
	form.Set("firstName", strings.Repeat("名", 201))

	code, res := f.postJSON(t, "/signup", form)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, account.CodeFormInvalid, res.Code)
	assert.Equal(t, "field 'firstName' must be at most 600 bytes long", res.Message)

	form.Set("firstName", strings.Repeat("名", 200))
	code, _ = f.post(t, "/signup", form)
	assert.Equal(t, http.StatusCreated, code)
}

func TestSignup_FieldTooLong(t *testing.T) {
	f := newFixture(t)
	form := aliceForm("pw1")
	form.Set("username", strings.Repeat("a", 257))

	code, res := f.postJSON(t, "/signup", form)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, account.CodeFormInvalid, res.Code)
	assert.Equal(t, "field 'username' must be at most 256 characters long", res.Message)
}

func TestLogin_EachFieldMatters(t *testing.T) {
	f := newFixture(t)
	code, _ := f.post(t, "/signup", aliceForm("pw1"))
	require.Equal(t, http.StatusCreated, code)

	for _, field := range []string{"username", "email", "firstName", "dateOfBirth", "password"} {
		t.Run(field, func(t *testing.T) {
			form := aliceForm("pw1")
			form.Set(field, form.Get(field)+"x")
			code, body := f.post(t, "/login", form)
			assert.Equal(t, http.StatusUnauthorized, code)
			assert.Equal(t, "incorrect username, first name, or password", body)
		})
	}
}

func TestForgotPassword_UnknownIdentity(t *testing.T) {
	f := newFixture(t)
	code, res := f.postJSON(t, "/forgot-password", aliceForm(""))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, account.CodeNotFound, res.Code)
	assert.Equal(t, "no user with this data", res.Message)
	assert.Empty(t, f.outbox.sent)
}

func TestForgotPassword_NotifierFailure(t *testing.T) {
	f := newFixture(t)
	code, _ := f.post(t, "/signup", aliceForm("pw1"))
	require.Equal(t, http.StatusCreated, code)
	f.outbox.err = errors.New("smtp: connection refused")

	code, res := f.postJSON(t, "/forgot-password", aliceForm(""))
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, account.CodeNotifyFailed, res.Code)
	assert.Equal(t, "error sending the password-reset email", res.Message)
}

func TestResetPassword_Expired(t *testing.T) {
	f := newFixture(t)
	code, _ := f.post(t, "/signup", aliceForm("pw1"))
	require.Equal(t, http.StatusCreated, code)
	code, _ = f.post(t, "/forgot-password", aliceForm(""))
	require.Equal(t, http.StatusOK, code)
	token := tokenFrom(t, f.outbox.last(t).Link)

	f.now = f.now.Add(2 * time.Hour)

	resp := f.do(t, http.MethodGet, "/reset-password?id="+token, nil, "")
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(page), "This password reset link has expired.")

	code, res := f.postJSON(t, "/reset-password", url.Values{"id": {token}, "password": {"pw2"}})
	assert.Equal(t, http.StatusGone, code)
	assert.Equal(t, account.CodeTokenExpired, res.Code)
}

func TestResetPassword_RequiresFields(t *testing.T) {
	f := newFixture(t)
	code, res := f.postJSON(t, "/reset-password", url.Values{"password": {"pw2"}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "field 'id' is required", res.Message)

}

func TestResetPassword_EmptyPassword(t *testing.T) {
	f := newFixture(t)
	code, _ := f.post(t, "/signup", aliceForm("pw1"))
	require.Equal(t, http.StatusCreated, code)
	code, _ = f.post(t, "/forgot-password", aliceForm(""))
	require.Equal(t, http.StatusOK, code)
	token := tokenFrom(t, f.outbox.last(t).Link)

	code, _ = f.post(t, "/reset-password", url.Values{"id": {token}})
	require.Equal(t, http.StatusOK, code)

	code, _ = f.post(t, "/login", aliceForm(""))
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.post(t, "/login", aliceForm("pw1"))
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestResetPassword_UnknownToken(t *testing.T) {
	f := newFixture(t)
	code, body := f.post(t, "/reset-password", url.Values{"id": {"01HZZZZZZZZZZZZZZZZZZZZZZZ"}, "password": {"pw2"}})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "user not found", body)
}

func TestResetPage_RecordsLinkChecks(t *testing.T) {
	f := newFixture(t)
	code, _ := f.post(t, "/signup", aliceForm("pw1"))
	require.Equal(t, http.StatusCreated, code)
	code, _ = f.post(t, "/forgot-password", aliceForm(""))
	require.Equal(t, http.StatusOK, code)
	token := tokenFrom(t, f.outbox.last(t).Link)

	get := func(id string) {
		resp := f.do(t, http.MethodGet, "/reset-password?id="+id, nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	get(token)
	get("not-a-token")
	f.now = f.now.Add(2 * time.Hour)
	get(token)

	checks := func(outcome string) float64 {
		return testutil.ToFloat64(f.metrics.OperationsTotal.WithLabelValues("validate_reset", outcome))
	}
	assert.InDelta(t, 1, checks("ok"), 0)
	assert.InDelta(t, 1, checks("not_found"), 0)
	assert.InDelta(t, 1, checks("token_expired"), 0)
}

func TestGetPages(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		path   string
		action string
	}{
		{"/signup", `action="/signup"`},
		{"/login", `action="/login"`},
		{"/forgot-password", `action="/forgot-password"`},
		{"/reset-password?id=abc", `name="id" value="abc"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := f.do(t, http.MethodGet, tt.path, nil, "")
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
			assert.Contains(t, string(body), tt.action)
		})
	}
}

func TestResetPage_EscapesID(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/reset-password?id="+url.QueryEscape(`"><script>`), nil, "")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "<script>")
	assert.Contains(t, string(body), "This password reset link is not valid.")
}

func TestUnknownRouteAndMethod(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/nope", nil, "").StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodDelete, "/login", nil, "").StatusCode)
}

func TestSignup_PersistenceFailure(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	resets := mocks.NewMockPasswordResetRepository(t)
	svc, err := account.NewService(users, resets, account.NewArgon2idHasherWithParams(cheapParams), &outbox{},
		account.ServiceConfig{BaseURL: "http://localhost:3000"})
	require.NoError(t, err)
	handler := web.NewHandler(svc).Routes()

	users.On("FindByIdentity", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset by peer"))

	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(aliceForm("pw1").Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "registration failed: connection reset by peer", rec.Body.String())
}
