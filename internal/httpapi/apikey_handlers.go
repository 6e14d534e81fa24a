package httpapi

import (
	"net/http"

	"nexteach.org/internal/audit"
	"nexteach.org/internal/authz"
)

type createKeyRequest struct {
	Name          string   `json:"name"`
	Scopes        []string `json:"scopes"`
	Environment   string   `json:"environment"`
	ExpiresInDays int      `json:"expires_in_days"`
}

func (a *API) handleKeyCollection(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, authz.PermAPIKeysRead) {
			return
		}
		keys, err := a.keys.ListAPIKeys(r.Context(), orgID)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"api_keys": keys})
	case http.MethodPost:
		if !a.ensurePermission(w, r, authz.PermAPIKeysManage) {
			return
		}
		var req createKeyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		identity, _ := authz.IdentityFromContext(r.Context())
		created, err := a.keys.CreateAPIKey(r.Context(), authz.CreateKeyInput{
			OrganizationID: orgID,
			UserID:         identity.UserID,
			Name:           req.Name,
			Scopes:         req.Scopes,
			Environment:    req.Environment,
			ExpiresInDays:  req.ExpiresInDays,
		})
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "authz.apikey.create", map[string]any{
			"key_id": created.Key.ID,
			"name":   created.Key.Name,
		})
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleKeyResource(w http.ResponseWriter, r *http.Request, orgID, keyID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.ensurePermission(w, r, authz.PermAPIKeysManage) {
		return
	}
	if err := a.keys.DeleteAPIKey(r.Context(), orgID, keyID); err != nil {
		handleAuthzError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "authz.apikey.delete", map[string]any{
		"key_id": keyID,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleKeyRevoke deactivates a key without deleting its row, so the record
// stays visible in listings.
func (a *API) handleKeyRevoke(w http.ResponseWriter, r *http.Request, orgID, keyID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermission(w, r, authz.PermAPIKeysManage) {
		return
	}
	if err := a.keys.RevokeAPIKey(r.Context(), orgID, keyID); err != nil {
		handleAuthzError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "authz.apikey.revoke", map[string]any{
		"key_id": keyID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"revoked": true})
}
