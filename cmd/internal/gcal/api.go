package gcal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"reptrack/cmd/identity"
)

// Authenticator resolves the request principal from the access cookie.
// It writes the 401 response itself when authentication fails, so a
// false return means the handler is done.
type Authenticator func(w http.ResponseWriter, r *http.Request) (identity.Account, bool)

// API exposes the calendar HTTP endpoints.
type API struct {
	log  *slog.Logger
	mgr  *Manager
	auth Authenticator

	maxBodyBytes int64
}

// NewAPI constructs the calendar API.
func NewAPI(log *slog.Logger, mgr *Manager, auth Authenticator) (*API, error) {
	if log == nil {
		log = slog.Default()
	}
	if mgr == nil || auth == nil {
		return nil, errors.New("gcal: missing dependency")
	}
	return &API{log: log, mgr: mgr, auth: auth, maxBodyBytes: 1 << 20}, nil
}

// Register wires calendar routes onto the provided mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/workouts/google-calendar/auth-start/{$}", a.handleAuthStart)
	mux.HandleFunc("GET /api/v1/workouts/google-calendar/oauth2callback/{$}", a.handleCallback)
	mux.HandleFunc("POST /api/v1/workouts/google-calendar/create-event/{$}", a.handleCreateEvent)
	mux.HandleFunc("GET /api/v1/workouts/google-calendar/status/{$}", a.handleStatus)
	mux.HandleFunc("POST /api/v1/workouts/google-calendar/disconnect/{$}", a.handleDisconnect)
}

func (a *API) handleAuthStart(w http.ResponseWriter, r *http.Request) {
	acct, ok := a.auth(w, r)
	if !ok {
		return
	}

	consentURL, err := a.mgr.BeginAuth(r.Context(), acct.ID)
	if err != nil {
		a.log.Error("gcal.auth_start.fail", "err", err, "account_id", acct.ID)
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"detail": "Unable to start Google authorization.",
		})
		return
	}
	http.Redirect(w, r, consentURL, http.StatusFound)
}

func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	err := a.mgr.CompleteAuth(r.Context(), q.Get("state"), q.Get("code"))
	switch {
	case err == nil:
		http.Redirect(w, r, a.mgr.cfg.FrontendProfileURL, http.StatusFound)
	case errors.Is(err, ErrStateNotFound):
		a.writeJSON(w, http.StatusBadRequest, map[string]string{
			"detail": "User session not found.",
		})
	default:
		a.log.Error("gcal.callback.fail", "err", err)
		a.writeJSON(w, http.StatusBadGateway, map[string]string{
			"detail": "Google authorization failed.",
		})
	}
}

func (a *API) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	acct, ok := a.auth(w, r)
	if !ok {
		return
	}

	var req struct {
		Summary     string `json:"summary"`
		Location    string `json:"location"`
		Description string `json:"description"`
		StartTime   string `json:"start_time"`
		EndTime     string `json:"end_time"`
	}
	body := http.MaxBytesReader(w, r.Body, a.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{
			"detail": "Invalid request body.",
		})
		return
	}

	eventID, err := a.mgr.CreateEvent(r.Context(), acct, Event{
		Summary:     req.Summary,
		Location:    req.Location,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	})
	switch {
	case err == nil:
		a.writeJSON(w, http.StatusOK, map[string]string{
			"detail":   "Event created",
			"event_id": eventID,
		})
	case errors.Is(err, ErrNotConnected):
		a.writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Google Calendar authorization required.",
		})
	default:
		a.log.Error("gcal.create_event.fail", "err", err, "account_id", acct.ID)
		a.writeJSON(w, http.StatusBadGateway, map[string]string{
			"detail": "Unable to create event.",
		})
	}
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	acct, ok := a.auth(w, r)
	if !ok {
		return
	}

	connected := a.mgr.Probe(r.Context(), acct)
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	a.writeJSON(w, http.StatusOK, map[string]bool{"connected": connected})
}

func (a *API) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	acct, ok := a.auth(w, r)
	if !ok {
		return
	}

	if err := a.mgr.Disconnect(r.Context(), acct); err != nil {
		a.log.Error("gcal.disconnect.fail", "err", err, "account_id", acct.ID)
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"detail": "Unable to disconnect Google Calendar.",
		})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{
		"message": "Google Calendar disconnected",
	})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
