package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"nexteach.org/internal/authz"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth establishes the caller identity: a platform API key (recognized
// by its ne_ prefix) or a session token from the identity service. The
// subsystem itself never decides who the caller is beyond this translation.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		var identity authz.Identity
		if strings.HasPrefix(token, authz.KeyPrefix+"_") {
			validated, err := a.keys.ValidateAPIKey(r.Context(), token)
			if err != nil {
				if errors.Is(err, authz.ErrInvalidCredential) {
					writeError(w, r, http.StatusUnauthorized, "invalid credential")
				} else {
					writeError(w, r, http.StatusInternalServerError, "authentication error")
				}
				return
			}
			identity = authz.Identity{
				UserID:         validated.Key.UserID,
				OrganizationID: validated.Key.OrganizationID,
				Key:            validated.Key,
			}
		} else {
			if a.sessions == nil {
				writeError(w, r, http.StatusUnauthorized, "session authentication disabled")
				return
			}
			userID, orgID, err := a.sessions.Verify(token)
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, "invalid session")
				return
			}
			identity = authz.Identity{UserID: userID, OrganizationID: orgID}
		}

		ctx := authz.ContextWithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ensureOrgAccess confirms the caller belongs to the organization in the
// path. Mismatches read as not-found so foreign resources never confirm
// their existence.
func (a *API) ensureOrgAccess(w http.ResponseWriter, r *http.Request, organizationID string) bool {
	identity, ok := authz.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if identity.OrganizationID != organizationID {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return false
	}
	return true
}

// ensurePermission gates a protected operation: session callers go through
// the resolver, bearer keys check their own scopes.
func (a *API) ensurePermission(w http.ResponseWriter, r *http.Request, code string) bool {
	identity, ok := authz.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if identity.IsAPIKey() {
		if !authz.HasScope(identity.Key.Scopes, code) {
			writeError(w, r, http.StatusForbidden, "insufficient scope")
			return false
		}
		return true
	}
	if !a.resolver.HasPermission(r.Context(), identity.UserID, identity.OrganizationID, code) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
