package authapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"reptrack/cmd/identity"
	"reptrack/cmd/internal/auth/actiontoken"
	"reptrack/cmd/internal/auth/ledger"
	"reptrack/cmd/internal/auth/mail"
	"reptrack/cmd/internal/auth/token"
)

type capturingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (c *capturingMailer) Send(_ context.Context, m mail.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, m)
	return nil
}

func (c *capturingMailer) last(t *testing.T) mail.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		t.Fatalf("no mail sent")
	}
	return c.sent[len(c.sent)-1]
}

type testEnv struct {
	mux      *http.ServeMux
	handler  *Handler
	accounts *identity.MemoryStore
	revoked  *ledger.MemoryStore
	mailer   *capturingMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tokCfg := token.DefaultConfig()
	tokCfg.Secret = []byte("0123456789abcdef0123456789abcdef")
	tokens, err := token.NewManager(tokCfg)
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}

	actCfg := actiontoken.DefaultConfig()
	actCfg.Secret = []byte("fedcba9876543210fedcba9876543210")
	actions, err := actiontoken.NewCodec(actCfg)
	if err != nil {
		t.Fatalf("action codec: %v", err)
	}

	accounts := identity.NewMemoryStore()
	revoked := ledger.NewMemoryStore()
	mailer := &capturingMailer{}

	cfg := DefaultConfig()
	cfg.BackendURL = "http://api.test"
	cfg.FrontendURL = "http://app.test"

	h, err := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg, accounts, tokens, revoked, actions, WithMailer(mailer))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)

	return &testEnv{mux: mux, handler: h, accounts: accounts, revoked: revoked, mailer: mailer}
}

func (e *testEnv) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "192.0.2.10:50000"
	for _, c := range cookies {
		if c != nil {
			req.AddCookie(c)
		}
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func cookieByName(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

// register creates an inactive account and returns the verification
// link path extracted from the email.
func (e *testEnv) register(t *testing.T, email, password string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/users/register/",
		fmt.Sprintf(`{"email":%q,"password":%q}`, email, password))
	if w.Code != http.StatusCreated {
		t.Fatalf("register: status %d body %s", w.Code, w.Body.String())
	}
	return linkPath(t, e.mailer.last(t).Body)
}

func (e *testEnv) registerActive(t *testing.T, email, password string) {
	t.Helper()
	verify := e.register(t, email, password)
	w := e.do(t, http.MethodGet, verify, "")
	if w.Code != http.StatusFound {
		t.Fatalf("verify: status %d", w.Code)
	}
	if loc := w.Header().Get("Location"); !strings.Contains(loc, "verified=true") {
		t.Fatalf("verify redirect: %q", loc)
	}
}

func (e *testEnv) login(t *testing.T, email, password string) (access, refresh *http.Cookie) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/users/login/",
		fmt.Sprintf(`{"email":%q,"password":%q}`, email, password))
	if w.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", w.Code, w.Body.String())
	}
	return cookieByName(t, w, "access_token"), cookieByName(t, w, "refresh_token")
}

func linkPath(t *testing.T, body string) string {
	t.Helper()
	i := strings.Index(body, "http")
	if i < 0 {
		t.Fatalf("no link in mail body: %q", body)
	}
	raw := strings.TrimSpace(body[i:])
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse link %q: %v", raw, err)
	}
	return u.Path
}

func TestRegisterVerifyLoginLogoutLifecycle(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	verify := e.register(t, "a@x.com", "pw12345678")

	// Inactive account cannot log in yet.
	w := e.do(t, http.MethodPost, "/api/v1/users/login/", `{"email":"a@x.com","password":"pw12345678"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("pre-verify login: status %d", w.Code)
	}

	w = e.do(t, http.MethodGet, verify, "")
	if w.Code != http.StatusFound || !strings.Contains(w.Header().Get("Location"), "verified=true") {
		t.Fatalf("verify: status %d location %q", w.Code, w.Header().Get("Location"))
	}

	// Replaying the consumed verification link must not report success.
	w = e.do(t, http.MethodGet, verify, "")
	if !strings.Contains(w.Header().Get("Location"), "verified=expired") {
		t.Fatalf("verify replay: location %q", w.Header().Get("Location"))
	}

	access, refresh := e.login(t, "a@x.com", "pw12345678")
	for _, c := range []*http.Cookie{access, refresh} {
		if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteNoneMode {
			t.Fatalf("cookie %s flags: httponly=%t secure=%t samesite=%v", c.Name, c.HttpOnly, c.Secure, c.SameSite)
		}
	}
	if access.Path != "/" || access.MaxAge != 900 {
		t.Fatalf("access cookie scoping: path=%q max-age=%d", access.Path, access.MaxAge)
	}
	if refresh.Path != "/api/v1/users/" || refresh.MaxAge != 86400 {
		t.Fatalf("refresh cookie scoping: path=%q max-age=%d", refresh.Path, refresh.MaxAge)
	}

	// The access token resolves back to the registered identity.
	w = e.do(t, http.MethodGet, "/api/v1/users/profile/", "", access)
	if w.Code != http.StatusOK {
		t.Fatalf("profile: status %d body %s", w.Code, w.Body.String())
	}
	var profile struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &profile); err != nil {
		t.Fatalf("profile decode: %v", err)
	}
	if profile.Email != "a@x.com" {
		t.Fatalf("profile email: %q", profile.Email)
	}

	w = e.do(t, http.MethodPost, "/api/v1/users/logout/", "", refresh)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: status %d", w.Code)
	}
	for _, name := range []string{"access_token", "refresh_token"} {
		c := cookieByName(t, w, name)
		if c.Value != "" || c.MaxAge >= 0 {
			t.Fatalf("cookie %s not cleared: value=%q max-age=%d", name, c.Value, c.MaxAge)
		}
	}

	// The logged-out refresh token is dead.
	w = e.do(t, http.MethodPost, "/api/v1/users/token/refresh/", "", refresh)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: status %d", w.Code)
	}
}

func TestLoginAntiEnumerationBodiesAreIdentical(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	e.registerActive(t, "known@x.com", "pw12345678")
	e.register(t, "inactive@x.com", "pw12345678")

	unknown := e.do(t, http.MethodPost, "/api/v1/users/login/", `{"email":"ghost@x.com","password":"pw12345678"}`)
	wrongPW := e.do(t, http.MethodPost, "/api/v1/users/login/", `{"email":"known@x.com","password":"wrong-password"}`)
	inactive := e.do(t, http.MethodPost, "/api/v1/users/login/", `{"email":"inactive@x.com","password":"pw12345678"}`)

	for name, w := range map[string]*httptest.ResponseRecorder{
		"unknown": unknown, "wrong password": wrongPW, "inactive": inactive,
	} {
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status %d", name, w.Code)
		}
	}
	if unknown.Body.String() != wrongPW.Body.String() || wrongPW.Body.String() != inactive.Body.String() {
		t.Fatalf("401 bodies differ:\n%q\n%q\n%q", unknown.Body, wrongPW.Body, inactive.Body)
	}
}

func TestRefreshRotationRevokesOldToken(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	e.registerActive(t, "r@x.com", "pw12345678")
	_, refresh := e.login(t, "r@x.com", "pw12345678")

	first := e.do(t, http.MethodPost, "/api/v1/users/token/refresh/", "", refresh)
	if first.Code != http.StatusOK {
		t.Fatalf("first refresh: status %d body %s", first.Code, first.Body.String())
	}
	rotated := cookieByName(t, first, "refresh_token")
	if rotated.Value == refresh.Value {
		t.Fatalf("refresh token not rotated")
	}

	// Replaying the original token must fail: its jti is ledgered.
	second := e.do(t, http.MethodPost, "/api/v1/users/token/refresh/", "", refresh)
	if second.Code != http.StatusUnauthorized {
		t.Fatalf("second refresh with spent token: status %d", second.Code)
	}
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "Invalid refresh token." {
		t.Fatalf("error body: %q", resp.Error)
	}

	// The rotated token still works.
	third := e.do(t, http.MethodPost, "/api/v1/users/token/refresh/", "", rotated)
	if third.Code != http.StatusOK {
		t.Fatalf("rotated token refresh: status %d", third.Code)
	}
}

func TestRefreshErrorsDistinguishMissingCookie(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	noCookie := e.do(t, http.MethodPost, "/api/v1/users/token/refresh/", "")
	if noCookie.Code != http.StatusUnauthorized {
		t.Fatalf("no cookie: status %d", noCookie.Code)
	}
	if !strings.Contains(noCookie.Body.String(), "No refresh token cookie found.") {
		t.Fatalf("no-cookie body: %s", noCookie.Body.String())
	}

	garbage := e.do(t, http.MethodPost, "/api/v1/users/token/refresh/", "",
		&http.Cookie{Name: "refresh_token", Value: "garbage"})
	if garbage.Code != http.StatusUnauthorized {
		t.Fatalf("garbage: status %d", garbage.Code)
	}
	if !strings.Contains(garbage.Body.String(), "Invalid refresh token.") {
		t.Fatalf("garbage body: %s", garbage.Body.String())
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	// Cookie-less logout twice in a row: 200 both times.
	for i := 0; i < 2; i++ {
		w := e.do(t, http.MethodPost, "/api/v1/users/logout/", "")
		if w.Code != http.StatusOK {
			t.Fatalf("logout %d: status %d", i, w.Code)
		}
		if !strings.Contains(w.Body.String(), "Logged out successfully.") {
			t.Fatalf("logout body: %s", w.Body.String())
		}
	}

	e.registerActive(t, "l@x.com", "pw12345678")
	_, refresh := e.login(t, "l@x.com", "pw12345678")
	for i := 0; i < 2; i++ {
		w := e.do(t, http.MethodPost, "/api/v1/users/logout/", "", refresh)
		if w.Code != http.StatusOK {
			t.Fatalf("logout with cookie %d: status %d", i, w.Code)
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	e.register(t, "dup@x.com", "pw12345678")
	w := e.do(t, http.MethodPost, "/api/v1/users/register/", `{"email":"DUP@X.COM","password":"pw12345678"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register: status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "A user with that email already exists.") {
		t.Fatalf("duplicate body: %s", w.Body.String())
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/v1/users/register/", `{"email":"s@x.com","password":"short"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("short password: status %d body %s", w.Code, w.Body.String())
	}
}

func TestVerifyEmailBadLink(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	// Garbage uid routes to the register page.
	w := e.do(t, http.MethodGet, "/api/v1/users/verify-email/!!!/whatever/", "")
	if !strings.Contains(w.Header().Get("Location"), "/register/?verified=invalid") {
		t.Fatalf("bad uid location: %q", w.Header().Get("Location"))
	}

	// Valid uid with a forged token routes to login as expired.
	verify := e.register(t, "v@x.com", "pw12345678")
	parts := strings.Split(strings.Trim(verify, "/"), "/")
	uid := parts[len(parts)-2]
	w = e.do(t, http.MethodGet, "/api/v1/users/verify-email/"+uid+"/1x-forged/", "")
	if !strings.Contains(w.Header().Get("Location"), "/login/?verified=expired") {
		t.Fatalf("forged token location: %q", w.Header().Get("Location"))
	}
}

func TestResendVerification(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/v1/users/resend-verification/", `{"email":"nobody@x.com"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown email: status %d", w.Code)
	}

	e.register(t, "pending@x.com", "pw12345678")
	w = e.do(t, http.MethodPost, "/api/v1/users/resend-verification/", `{"email":"pending@x.com"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("resend: status %d body %s", w.Code, w.Body.String())
	}

	e.registerActive(t, "done@x.com", "pw12345678")
	w = e.do(t, http.MethodPost, "/api/v1/users/resend-verification/", `{"email":"done@x.com"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("already active: status %d", w.Code)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	e.registerActive(t, "reset@x.com", "pw12345678")

	// Unknown email: identical success detail, no mail.
	w := e.do(t, http.MethodPost, "/api/v1/users/password-reset/", `{"email":"ghost@x.com"}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "reset link has been sent") {
		t.Fatalf("unknown email reset: status %d body %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodPost, "/api/v1/users/password-reset/", `{"email":"reset@x.com"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("reset request: status %d", w.Code)
	}
	link := linkPath(t, e.mailer.last(t).Body)
	parts := strings.Split(strings.Trim(link, "/"), "/")
	uid, tok := parts[len(parts)-2], parts[len(parts)-1]

	confirmPath := "/api/v1/users/password-reset-confirm/" + uid + "/" + tok + "/"
	w = e.do(t, http.MethodPost, confirmPath, `{"password":"newpw123456"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("reset confirm: status %d body %s", w.Code, w.Body.String())
	}

	// The consumed link is spent: the fingerprint moved with the hash.
	w = e.do(t, http.MethodPost, confirmPath, `{"password":"anotherpw123"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("reset replay: status %d", w.Code)
	}

	// Old password dead, new password works.
	w = e.do(t, http.MethodPost, "/api/v1/users/login/", `{"email":"reset@x.com","password":"pw12345678"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("old password login: status %d", w.Code)
	}
	e.login(t, "reset@x.com", "newpw123456")
}

func TestPasswordResetInactiveAccount(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	e.register(t, "cold@x.com", "pw12345678")
	w := e.do(t, http.MethodPost, "/api/v1/users/password-reset/", `{"email":"cold@x.com"}`)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Inactive account.") {
		t.Fatalf("inactive reset: status %d body %s", w.Code, w.Body.String())
	}
}

func TestChangePassword(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	e.registerActive(t, "c@x.com", "pw12345678")
	access, _ := e.login(t, "c@x.com", "pw12345678")

	w := e.do(t, http.MethodPost, "/api/v1/users/change-password/",
		`{"old_password":"wrong","new_password":"newpw123456"}`, access)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Old password is incorrect.") {
		t.Fatalf("wrong old password: status %d body %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodPost, "/api/v1/users/change-password/",
		`{"old_password":"pw12345678","new_password":"newpw123456"}`, access)
	if w.Code != http.StatusOK {
		t.Fatalf("change password: status %d body %s", w.Code, w.Body.String())
	}

	e.login(t, "c@x.com", "newpw123456")
}

func TestChangePasswordRequiresPrincipal(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/v1/users/change-password/",
		`{"old_password":"a","new_password":"newpw123456"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no cookie: status %d", w.Code)
	}

	w = e.do(t, http.MethodPost, "/api/v1/users/change-password/",
		`{"old_password":"a","new_password":"newpw123456"}`,
		&http.Cookie{Name: "access_token", Value: "garbage"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status %d", w.Code)
	}
}

func TestProfileUpdate(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	e.registerActive(t, "p@x.com", "pw12345678")
	access, _ := e.login(t, "p@x.com", "pw12345678")

	w := e.do(t, http.MethodPut, "/api/v1/users/profile/",
		`{"first_name":"Ada","last_name":"Lovelace"}`, access)
	if w.Code != http.StatusOK {
		t.Fatalf("profile put: status %d body %s", w.Code, w.Body.String())
	}
	var resp profileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.FirstName != "Ada" || resp.LastName != "Lovelace" || resp.Email != "p@x.com" {
		t.Fatalf("profile response: %+v", resp)
	}

	// Blank fields are rejected rather than erased.
	w = e.do(t, http.MethodPut, "/api/v1/users/profile/", `{"first_name":""}`, access)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank field: status %d", w.Code)
	}
}

func TestLoginRateLimiterFailOpen(t *testing.T) {
	t.Parallel()

	// A limiter with no redis backend must never block logins.
	l := NewLoginLimiter(slog.New(slog.NewTextHandler(io.Discard, nil)), nil, 5, time.Minute)
	if !l.Allow(context.Background(), "192.0.2.1", time.Now()) {
		t.Fatalf("nil-backend limiter blocked a request")
	}
}

func TestAccessTokenResolvesSameAccount(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	e.registerActive(t, "id@x.com", "pw12345678")
	access, _ := e.login(t, "id@x.com", "pw12345678")

	stored, err := e.accounts.GetByEmail(context.Background(), "id@x.com")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	claims, err := e.handler.tokens.VerifyAccess(access.Value, time.Now().UTC())
	if err != nil {
		t.Fatalf("verify access cookie: %v", err)
	}
	if claims.AccountID() != stored.ID {
		t.Fatalf("access token subject %q != account id %q", claims.AccountID(), stored.ID)
	}
}
