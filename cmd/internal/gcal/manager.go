package gcal

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reptrack/cmd/identity"

	"golang.org/x/oauth2"
)

// ErrNotConnected means the account has no usable calendar credentials.
// Callers translate it to the 401 authorization-required response.
var ErrNotConnected = errors.New("gcal: google calendar not connected")

// Event is a workout to be placed on the calendar.
type Event struct {
	Summary     string
	Location    string
	Description string
	StartTime   string
	EndTime     string
}

// Manager owns the credential lifecycle and the calendar API calls.
type Manager struct {
	log      *slog.Logger
	cfg      Config
	accounts identity.Store
	states   StateStore
	client   *http.Client
}

// NewManager constructs a Manager.
func NewManager(log *slog.Logger, cfg Config, accounts identity.Store, states StateStore) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}
	if accounts == nil || states == nil {
		return nil, fmt.Errorf("gcal: missing dependency")
	}
	cfg = cfg.withDefaults()
	return &Manager{
		log:      log,
		cfg:      cfg,
		accounts: accounts,
		states:   states,
		client:   &http.Client{Timeout: cfg.HTTPTimeout},
	}, nil
}

// BeginAuth stashes a fresh anti-forgery state for the account and
// returns the Google consent URL. disconnected -> authorizing.
func (m *Manager) BeginAuth(ctx context.Context, accountID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("gcal: state entropy: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(buf)

	if err := m.states.Put(ctx, state, accountID, m.cfg.StateTTL); err != nil {
		return "", fmt.Errorf("gcal: stash state: %w", err)
	}

	// Offline access with a forced consent prompt so Google returns a
	// refresh token even for repeat authorizations.
	return m.cfg.oauth().AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	), nil
}

// CompleteAuth redeems the callback. The echoed state must match a
// stashed one; on any miss we fail closed and never guess the account.
// authorizing -> connected.
func (m *Manager) CompleteAuth(ctx context.Context, state, code string) error {
	if state == "" || code == "" {
		return ErrStateNotFound
	}
	accountID, err := m.states.Take(ctx, state)
	if err != nil {
		return err
	}

	cctx, cancel := m.googleContext(ctx)
	defer cancel()

	tok, err := m.cfg.oauth().Exchange(cctx, code)
	if err != nil {
		return fmt.Errorf("gcal: code exchange: %w", err)
	}
	if tok.RefreshToken == "" {
		return fmt.Errorf("gcal: exchange returned no refresh token")
	}

	expiry := tok.Expiry.UTC()
	creds := identity.GoogleCredentials{
		AccessToken:  &tok.AccessToken,
		RefreshToken: &tok.RefreshToken,
		Expiry:       &expiry,
	}
	if err := m.accounts.SetGoogleCredentials(ctx, accountID, creds); err != nil {
		return fmt.Errorf("gcal: persist bundle: %w", err)
	}

	m.log.Info("gcal.connect.ok", "account_id", accountID)
	return nil
}

// liveToken returns an access token that is valid right now, refreshing
// just in time when the stored one has expired. connected -> refreshing
// -> connected on success; any refresh failure clears the bundle and
// reports disconnected instead of surfacing the upstream error.
func (m *Manager) liveToken(ctx context.Context, a identity.Account) (string, error) {
	now := time.Now().UTC()

	switch bundleState(a.Google, now) {
	case StateConnected:
		return *a.Google.AccessToken, nil
	case StateRefreshing:
		return m.refresh(ctx, a)
	default:
		return "", ErrNotConnected
	}
}

func (m *Manager) refresh(ctx context.Context, a identity.Account) (string, error) {
	cctx, cancel := m.googleContext(ctx)
	defer cancel()

	src := m.cfg.oauth().TokenSource(cctx, &oauth2.Token{RefreshToken: *a.Google.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		m.log.Warn("gcal.refresh.fail", "err", err, "account_id", a.ID)
		m.clearBundle(ctx, a.ID)
		return "", ErrNotConnected
	}

	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		// Google usually omits the refresh token on renewal; keep ours.
		refreshToken = *a.Google.RefreshToken
	}
	expiry := tok.Expiry.UTC()
	creds := identity.GoogleCredentials{
		AccessToken:  &tok.AccessToken,
		RefreshToken: &refreshToken,
		Expiry:       &expiry,
	}
	if err := m.accounts.SetGoogleCredentials(ctx, a.ID, creds); err != nil {
		return "", fmt.Errorf("gcal: persist refreshed bundle: %w", err)
	}
	return tok.AccessToken, nil
}

// Probe reports whether the account's credentials actually work by
// making a trivial authenticated call. Stored-but-dead tokens are not
// healthy: any failure clears the bundle.
func (m *Manager) Probe(ctx context.Context, a identity.Account) bool {
	tok, err := m.liveToken(ctx, a)
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		m.cfg.CalendarAPIBase+"/users/me/calendarList?maxResults=1", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := m.client.Do(req)
	if err != nil {
		m.log.Warn("gcal.probe.fail", "err", err, "account_id", a.ID)
		m.clearBundle(ctx, a.ID)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		m.log.Warn("gcal.probe.rejected", "status", resp.StatusCode, "account_id", a.ID)
		m.clearBundle(ctx, a.ID)
		return false
	}
	return true
}

// CreateEvent inserts ev into the account's primary calendar and
// returns the created event id.
func (m *Manager) CreateEvent(ctx context.Context, a identity.Account, ev Event) (string, error) {
	tok, err := m.liveToken(ctx, a)
	if err != nil {
		return "", err
	}

	if ev.Summary == "" {
		ev.Summary = "Workout"
	}
	body, err := json.Marshal(map[string]any{
		"summary":     ev.Summary,
		"location":    ev.Location,
		"description": ev.Description,
		"start":       map[string]string{"dateTime": ev.StartTime, "timeZone": "UTC"},
		"end":         map[string]string{"dateTime": ev.EndTime, "timeZone": "UTC"},
	})
	if err != nil {
		return "", fmt.Errorf("gcal: encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.cfg.CalendarAPIBase+"/calendars/primary/events", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gcal: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gcal: insert event: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Credentials revoked upstream; same outcome as a failed refresh.
		io.Copy(io.Discard, resp.Body)
		m.clearBundle(ctx, a.ID)
		return "", ErrNotConnected
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("gcal: insert event: status %d", resp.StatusCode)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("gcal: decode event response: %w", err)
	}
	return created.ID, nil
}

// Disconnect revokes the token at Google best-effort and always clears
// the stored bundle. any -> disconnected.
func (m *Manager) Disconnect(ctx context.Context, a identity.Account) error {
	if a.Google.AccessToken != nil && *a.Google.AccessToken != "" {
		form := url.Values{"token": {*a.Google.AccessToken}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			m.cfg.RevokeURL, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if resp, err := m.client.Do(req); err != nil {
				m.log.Warn("gcal.revoke.fail", "err", err, "account_id", a.ID)
			} else {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}
	}

	if err := m.accounts.ClearGoogleCredentials(ctx, a.ID); err != nil {
		return fmt.Errorf("gcal: clear bundle: %w", err)
	}
	m.log.Info("gcal.disconnect.ok", "account_id", a.ID)
	return nil
}

func (m *Manager) clearBundle(ctx context.Context, accountID string) {
	if err := m.accounts.ClearGoogleCredentials(ctx, accountID); err != nil {
		m.log.Error("gcal.clear_bundle.fail", "err", err, "account_id", accountID)
	}
}

// googleContext bounds a Google round trip and routes the oauth2
// machinery through the manager's HTTP client.
func (m *Manager) googleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)
	return context.WithTimeout(ctx, m.cfg.HTTPTimeout)
}
