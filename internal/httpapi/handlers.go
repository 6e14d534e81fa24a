package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nexteach.org/internal/authz"
	"nexteach.org/internal/obs"
)

// ReadyProbe is a simple readiness check (for example, a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the middleware knobs for Handler.
type Options struct {
	MaxBodyBytes    int64
	RateLimitPerSec int
	RateLimitBurst  int
}

// API is the HTTP layer over the organization authorization subsystem.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	opts       Options

	catalog     *authz.Catalog
	roles       *authz.RoleService
	assignments *authz.AssignmentService
	resolver    *authz.Resolver
	keys        *authz.APIKeyService
	sessions    *SessionVerifier
}

// New wires the API routes.
func New(rp ReadyProbe, version string, opts Options,
	catalog *authz.Catalog,
	roles *authz.RoleService,
	assignments *authz.AssignmentService,
	resolver *authz.Resolver,
	keys *authz.APIKeyService,
	sessions *SessionVerifier,
) *API {
	a := &API{
		mux:         http.NewServeMux(),
		readyProbe:  rp,
		version:     version,
		opts:        opts,
		catalog:     catalog,
		roles:       roles,
		assignments: assignments,
		resolver:    resolver,
		keys:        keys,
		sessions:    sessions,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/permissions", a.handlePermissions)
	a.mux.HandleFunc("/v1/orgs/", a.handleOrgScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	if a.opts.MaxBodyBytes > 0 {
		h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	}
	if a.opts.RateLimitPerSec > 0 {
		h = RateLimit(h, a.opts.RateLimitBurst, a.opts.RateLimitPerSec)
	}
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "nexteach-authz",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "nexteach-authz",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// handleOrgScoped dispatches /v1/orgs/{orgID}/... paths.
func (a *API) handleOrgScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/orgs/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	orgID := parts[0]
	if !a.ensureOrgAccess(w, r, orgID) {
		return
	}
	switch parts[1] {
	case "roles":
		switch len(parts) {
		case 2:
			a.handleRoleCollection(w, r, orgID)
		case 3:
			a.handleRoleResource(w, r, orgID, parts[2])
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	case "members":
		if len(parts) == 4 && parts[3] == "role" {
			a.handleMemberRole(w, r, orgID, parts[2])
			return
		}
		if len(parts) == 4 && parts[3] == "permissions" {
			a.handleMemberPermissions(w, r, orgID, parts[2])
			return
		}
		writeError(w, r, http.StatusNotFound, "resource not found")
	case "role-history":
		if len(parts) != 2 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.handleRoleHistory(w, r, orgID)
	case "role-counts":
		if len(parts) != 2 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.handleRoleCounts(w, r, orgID)
	case "api-keys":
		switch {
		case len(parts) == 2:
			a.handleKeyCollection(w, r, orgID)
		case len(parts) == 3:
			a.handleKeyResource(w, r, orgID, parts[2])
		case len(parts) == 4 && parts[3] == "revoke":
			a.handleKeyRevoke(w, r, orgID, parts[2])
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("value must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("value out of range")
	}
	return val, nil
}

// handleAuthzError maps the domain taxonomy to status codes. Store failures
// stay generic: driver detail never reaches the caller.
func handleAuthzError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, authz.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, authz.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, authz.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, authz.ErrInvalidCredential):
		writeError(w, r, http.StatusUnauthorized, "invalid credential")
	default:
		obs.LogError("httpapi.internal", err, map[string]any{
			"path":       r.URL.Path,
			"request_id": RequestIDFromContext(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
