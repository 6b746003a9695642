package authapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"reptrack/cmd/identity"
	"reptrack/cmd/internal/auth/actiontoken"
	"reptrack/cmd/internal/auth/ledger"
	"reptrack/cmd/internal/auth/mail"
	"reptrack/cmd/internal/auth/token"

	"github.com/prometheus/client_golang/prometheus"
)

// Response strings are part of the contract with the existing web
// client; do not reword them.
const (
	msgLoginFailed     = "No active account found with the given credentials"
	msgLoginOK         = "Login successful"
	msgRefreshNoCookie = "No refresh token cookie found."
	msgRefreshInvalid  = "Invalid refresh token."
	msgRefreshOK       = "Token refreshed successfully."
	msgLogoutOK        = "Logged out successfully."
	msgRegisterOK      = "Check your email to verify your account."
	msgDuplicateEmail  = "A user with that email already exists."
	msgResetRequested  = "If that email is registered, a reset link has been sent."
)

// Handler wires the account and session HTTP endpoints.
type Handler struct {
	log *slog.Logger
	cfg Config

	accounts identity.Store
	tokens   *token.Manager
	revoked  ledger.Store
	actions  *actiontoken.Codec

	mailer  mail.Mailer
	limiter *LoginLimiter
	metrics *metrics

	dummyHash string
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithMailer overrides the default log-only mailer.
func WithMailer(m mail.Mailer) HandlerOption {
	return func(h *Handler) {
		if m != nil {
			h.mailer = m
		}
	}
}

// WithLoginLimiter enables per-IP login throttling.
func WithLoginLimiter(l *LoginLimiter) HandlerOption {
	return func(h *Handler) { h.limiter = l }
}

// WithMetrics registers auth counters on reg.
func WithMetrics(reg prometheus.Registerer) HandlerOption {
	return func(h *Handler) {
		if reg != nil {
			h.metrics = newMetrics(reg)
		}
	}
}

// NewHandler constructs the auth Handler.
func NewHandler(
	log *slog.Logger,
	cfg Config,
	accounts identity.Store,
	tokens *token.Manager,
	revoked ledger.Store,
	actions *actiontoken.Codec,
	opts ...HandlerOption,
) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if accounts == nil || tokens == nil || revoked == nil || actions == nil {
		return nil, fmt.Errorf("auth: missing dependency")
	}

	h := &Handler{
		log:      log,
		cfg:      cfg.withDefaults(),
		accounts: accounts,
		tokens:   tokens,
		revoked:  revoked,
		actions:  actions,
		mailer:   mail.LogMailer{Log: log},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	// Dummy hash for timing-resistant login checks on unknown emails.
	if hash, err := identity.HashPassword("dummy-password-for-timing-only"); err == nil {
		h.dummyHash = hash
	}

	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/users/login/{$}", h.handleLogin)
	mux.HandleFunc("POST /api/v1/users/token/refresh/{$}", h.handleRefresh)
	mux.HandleFunc("POST /api/v1/users/logout/{$}", h.handleLogout)
	mux.HandleFunc("POST /api/v1/users/register/{$}", h.handleRegister)
	mux.HandleFunc("GET /api/v1/users/verify-email/{uid}/{token}/{$}", h.handleVerifyEmail)
	mux.HandleFunc("POST /api/v1/users/resend-verification/{$}", h.handleResendVerification)
	mux.HandleFunc("POST /api/v1/users/password-reset/{$}", h.handlePasswordReset)
	mux.HandleFunc("POST /api/v1/users/password-reset-confirm/{uid}/{token}/{$}", h.handlePasswordResetConfirm)
	mux.HandleFunc("POST /api/v1/users/change-password/{$}", h.handleChangePassword)
	mux.HandleFunc("GET /api/v1/users/profile/{$}", h.handleProfileGet)
	mux.HandleFunc("PUT /api/v1/users/profile/{$}", h.handleProfilePut)
}

// ---- session endpoints ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)

	if h.limiter != nil && !h.limiter.Allow(ctx, ip, now) {
		h.metrics.throttle()
		w.Header().Set("Retry-After", strconv.Itoa(int(h.cfg.LoginWindow.Seconds())))
		writeDetail(w, http.StatusTooManyRequests, "Request was throttled.")
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	a, err := h.accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		// Timing resistance: burn a verify even when the account is missing.
		if h.dummyHash != "" {
			identity.VerifyPassword(req.Password, h.dummyHash)
		}
		h.metrics.login("fail")
		writeDetail(w, http.StatusUnauthorized, msgLoginFailed)
		return
	}

	// Unknown email, wrong password and inactive account are all the
	// same byte-identical 401 to block enumeration.
	if !identity.VerifyPassword(req.Password, a.PasswordHash) || !a.Active {
		h.metrics.login("fail")
		writeDetail(w, http.StatusUnauthorized, msgLoginFailed)
		return
	}

	if err := h.accounts.TouchLastLogin(ctx, a.ID, now); err != nil {
		h.log.Error("auth.login.touch_last_login.fail", "err", err, "account_id", a.ID)
	}

	access, _, err := h.tokens.IssueAccess(a.ID, now)
	if err != nil {
		h.log.Error("auth.login.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "Unable to log in.")
		return
	}
	refresh, _, _, err := h.tokens.IssueRefresh(a.ID, now)
	if err != nil {
		h.log.Error("auth.login.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "Unable to log in.")
		return
	}

	h.metrics.login("ok")
	h.setSessionCookies(w, access, refresh)
	writeDetail(w, http.StatusOK, msgLoginOK)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	raw, ok := h.refreshTokenFromCookie(r)
	if !ok {
		h.metrics.refresh("no_cookie")
		writeError(w, http.StatusUnauthorized, msgRefreshNoCookie)
		return
	}

	claims, err := h.tokens.VerifyRefresh(raw, now)
	if err != nil {
		h.metrics.refresh("invalid")
		writeError(w, http.StatusUnauthorized, msgRefreshInvalid)
		return
	}

	revoked, err := h.revoked.Contains(ctx, claims.ID)
	if err != nil {
		// Fail closed: without the ledger we cannot prove the token is live.
		h.log.Error("auth.refresh.ledger.fail", "err", err)
		h.metrics.refresh("invalid")
		writeError(w, http.StatusUnauthorized, msgRefreshInvalid)
		return
	}
	if revoked {
		h.metrics.refresh("revoked")
		writeError(w, http.StatusUnauthorized, msgRefreshInvalid)
		return
	}

	access, _, err := h.tokens.IssueAccess(claims.AccountID(), now)
	if err != nil {
		h.log.Error("auth.refresh.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "Unable to refresh token.")
		return
	}
	newRefresh, _, _, err := h.tokens.IssueRefresh(claims.AccountID(), now)
	if err != nil {
		h.log.Error("auth.refresh.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "Unable to refresh token.")
		return
	}

	// Rotation-on-use: the old grant dies before the new one leaves the
	// building. If the ledger write fails the client keeps its old
	// token and nothing rotated.
	if err := h.revoked.Add(ctx, ledger.Entry{
		JTI:       claims.ID,
		AccountID: claims.AccountID(),
		ExpiresAt: claims.ExpiresAt.Time,
		RevokedAt: now,
	}); err != nil {
		h.log.Error("auth.refresh.revoke.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "Unable to refresh token.")
		return
	}

	h.metrics.refresh("ok")
	h.setSessionCookies(w, access, newRefresh)
	writeDetail(w, http.StatusOK, msgRefreshOK)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	// Best-effort revocation: any parse or store failure is swallowed,
	// logout always succeeds from the client's perspective.
	if raw, ok := h.refreshTokenFromCookie(r); ok {
		if claims, err := h.tokens.VerifyRefresh(raw, now); err == nil {
			if err := h.revoked.Add(ctx, ledger.Entry{
				JTI:       claims.ID,
				AccountID: claims.AccountID(),
				ExpiresAt: claims.ExpiresAt.Time,
				RevokedAt: now,
			}); err != nil {
				h.log.Error("auth.logout.revoke.fail", "err", err)
			}
		}
	}

	h.clearSessionCookies(w)
	writeDetail(w, http.StatusOK, msgLogoutOK)
}

// ---- registration and verification ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required.")
		return
	}
	if msg := passwordPolicyError(req.Password); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	hash, err := identity.HashPassword(req.Password)
	if err != nil {
		h.log.Error("auth.register.hash.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "Unable to register.")
		return
	}

	a, err := h.accounts.CreateAccount(ctx, identity.CreateAccountInput{
		Email:        req.Email,
		PasswordHash: hash,
		Now:          now,
	})
	if err != nil {
		if identity.IsConflict(err) {
			writeError(w, http.StatusBadRequest, msgDuplicateEmail)
			return
		}
		if identity.IsInvalidInput(err) {
			writeError(w, http.StatusBadRequest, "Invalid input.")
			return
		}
		h.log.Error("auth.register.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "Unable to register.")
		return
	}

	h.metrics.registered()
	h.sendVerificationMail(r, a, now)
	writeDetail(w, http.StatusCreated, msgRegisterOK)
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	id, err := actiontoken.DecodeUID(r.PathValue("uid"))
	if err != nil {
		http.Redirect(w, r, h.cfg.FrontendURL+"/register/?verified=invalid", http.StatusFound)
		return
	}
	a, err := h.accounts.GetByID(ctx, id)
	if err != nil {
		http.Redirect(w, r, h.cfg.FrontendURL+"/register/?verified=invalid", http.StatusFound)
		return
	}

	if err := h.actions.Validate(actiontoken.EmailVerification, a, r.PathValue("token"), now); err != nil {
		// Stale and forged tokens get the same retriable outcome.
		http.Redirect(w, r, h.cfg.FrontendURL+"/login/?verified=expired", http.StatusFound)
		return
	}

	if err := h.accounts.Activate(ctx, a.ID, now); err != nil {
		h.log.Error("auth.verify_email.activate.fail", "err", err, "account_id", a.ID)
		http.Redirect(w, r, h.cfg.FrontendURL+"/login/?verified=expired", http.StatusFound)
		return
	}

	h.log.Info("auth.verify_email.ok", "account_id", a.ID)
	http.Redirect(w, r, h.cfg.FrontendURL+"/login/?verified=true", http.StatusFound)
}

func (h *Handler) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	var req emailRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required.")
		return
	}

	a, err := h.accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		writeError(w, http.StatusNotFound, "User with this email does not exist.")
		return
	}
	if a.Active {
		writeDetail(w, http.StatusBadRequest, "This account is already verified.")
		return
	}

	h.sendVerificationMail(r, a, now)
	writeDetail(w, http.StatusOK, "Verification email resent. Check your inbox.")
}

// ---- password reset and change ----

func (h *Handler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	var req emailRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required.")
		return
	}

	a, err := h.accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		// Anti-enumeration: unknown emails get the success detail.
		writeDetail(w, http.StatusOK, msgResetRequested)
		return
	}
	if !a.Active {
		writeError(w, http.StatusBadRequest, "Inactive account.")
		return
	}

	tok, err := h.actions.Issue(actiontoken.PasswordReset, a, now)
	if err != nil {
		h.log.Error("auth.password_reset.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "Unable to send reset link.")
		return
	}
	link := fmt.Sprintf("%s/reset-password/%s/%s/", h.cfg.FrontendURL, actiontoken.EncodeUID(a.ID), tok)
	h.sendMail(r, mail.Message{
		To:      a.Email,
		Subject: "Reset your RepTracker password",
		Body:    "Use the following link to reset your password:\n\n" + link,
	})

	writeDetail(w, http.StatusOK, msgResetRequested)
}

func (h *Handler) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	id, err := actiontoken.DecodeUID(r.PathValue("uid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid link.")
		return
	}
	a, err := h.accounts.GetByID(ctx, id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid link.")
		return
	}

	if err := h.actions.Validate(actiontoken.PasswordReset, a, r.PathValue("token"), now); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired token.")
		return
	}

	var req resetConfirmRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "Password is required.")
		return
	}
	if msg := passwordPolicyError(req.Password); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	hash, err := identity.HashPassword(req.Password)
	if err != nil {
		h.log.Error("auth.password_reset.hash.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "Unable to reset password.")
		return
	}
	// Setting the password changes the reset fingerprint, so this link
	// is spent the moment the write lands.
	if err := h.accounts.SetPassword(ctx, a.ID, hash); err != nil {
		h.log.Error("auth.password_reset.set.fail", "err", err, "account_id", a.ID)
		writeError(w, http.StatusInternalServerError, "Unable to reset password.")
		return
	}

	h.log.Info("auth.password_reset.ok", "account_id", a.ID)
	writeDetail(w, http.StatusOK, "Password has been reset successfully.")
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	a, ok := h.RequireAuth(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	if !identity.VerifyPassword(req.OldPassword, a.PasswordHash) {
		writeError(w, http.StatusBadRequest, "Old password is incorrect.")
		return
	}
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "New password is required.")
		return
	}
	if msg := passwordPolicyError(req.NewPassword); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	hash, err := identity.HashPassword(req.NewPassword)
	if err != nil {
		h.log.Error("auth.change_password.hash.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "Unable to change password.")
		return
	}
	if err := h.accounts.SetPassword(ctx, a.ID, hash); err != nil {
		h.log.Error("auth.change_password.set.fail", "err", err, "account_id", a.ID)
		writeError(w, http.StatusInternalServerError, "Unable to change password.")
		return
	}

	writeDetail(w, http.StatusOK, "Password changed successfully.")
}

// ---- profile ----

func (h *Handler) handleProfileGet(w http.ResponseWriter, r *http.Request) {
	a, ok := h.RequireAuth(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(a))
}

func (h *Handler) handleProfilePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	a, ok := h.RequireAuth(w, r)
	if !ok {
		return
	}

	var req profileUpdateRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if (req.FirstName != nil && *req.FirstName == "") ||
		(req.LastName != nil && *req.LastName == "") {
		writeError(w, http.StatusBadRequest, "This field may not be blank.")
		return
	}

	updated, err := h.accounts.UpdateProfile(ctx, a.ID, identity.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.log.Error("auth.profile.update.fail", "err", err, "account_id", a.ID)
		writeError(w, http.StatusInternalServerError, "Unable to update profile.")
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(updated))
}

// ---- helpers ----

// RequireAuth resolves the request principal from the access cookie.
// The account is returned explicitly; nothing is stashed in context.
// Other route groups (the calendar API) reuse it as their gate.
func (h *Handler) RequireAuth(w http.ResponseWriter, r *http.Request) (identity.Account, bool) {
	raw, ok := h.accessTokenFromCookie(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
		return identity.Account{}, false
	}

	claims, err := h.tokens.VerifyAccess(raw, time.Now().UTC())
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Given token not valid for any token type")
		return identity.Account{}, false
	}

	a, err := h.accounts.GetByID(r.Context(), claims.AccountID())
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "User not found")
		return identity.Account{}, false
	}
	if !a.Active {
		writeDetail(w, http.StatusUnauthorized, "User is inactive")
		return identity.Account{}, false
	}
	return a, true
}

func (h *Handler) sendVerificationMail(r *http.Request, a identity.Account, now time.Time) {
	tok, err := h.actions.Issue(actiontoken.EmailVerification, a, now)
	if err != nil {
		h.log.Error("auth.verify_email.issue.fail", "err", err, "account_id", a.ID)
		return
	}
	link := fmt.Sprintf("%s/api/v1/users/verify-email/%s/%s/",
		h.cfg.BackendURL, actiontoken.EncodeUID(a.ID), tok)
	h.sendMail(r, mail.Message{
		To:      a.Email,
		Subject: "Verify your email",
		Body:    "Click the link to verify your account: " + link,
	})
}

func (h *Handler) sendMail(r *http.Request, m mail.Message) {
	if err := h.mailer.Send(r.Context(), m); err != nil {
		h.log.Error("auth.mail.send.fail", "err", err, "to", m.To)
	}
}

func passwordPolicyError(pw string) string {
	if len(pw) < identity.MinPasswordLength() {
		return fmt.Sprintf("This password is too short. It must contain at least %d characters.",
			identity.MinPasswordLength())
	}
	return ""
}

func toProfileResponse(a identity.Account) profileResponse {
	resp := profileResponse{ID: a.ID, Email: a.Email}
	if a.FirstName != nil {
		resp.FirstName = *a.FirstName
	}
	if a.LastName != nil {
		resp.LastName = *a.LastName
	}
	return resp
}
