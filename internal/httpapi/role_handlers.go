package httpapi

import (
	"fmt"
	"net/http"

	"nexteach.org/internal/audit"
	"nexteach.org/internal/authz"
)

type createRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Color       string   `json:"color"`
	Permissions []string `json:"permissions"`
	IsDefault   bool     `json:"is_default"`
}

type updateRoleRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Color       *string  `json:"color"`
	Permissions []string `json:"permissions"`
	IsDefault   *bool    `json:"is_default"`
}

type assignRoleRequest struct {
	RoleID *string `json:"role_id"`
}

// handlePermissions serves the read-only catalog. ?grouped=true returns the
// category→permissions mapping. The availability flag lets the dashboard
// tell an empty catalog apart from an unreachable one.
func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if r.URL.Query().Get("grouped") == "true" {
		writeJSON(w, http.StatusOK, map[string]any{
			"categories": a.catalog.ListByCategory(r.Context()),
		})
		return
	}
	perms, available := a.catalog.Snapshot(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"permissions": perms,
		"available":   available,
	})
}

func (a *API) handleRoleCollection(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, authz.PermOrgRead) {
			return
		}
		roles, err := a.roles.ListRoles(r.Context(), orgID)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		if !a.ensurePermission(w, r, authz.PermOrgManage) {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		identity, _ := authz.IdentityFromContext(r.Context())
		role, err := a.roles.CreateRole(r.Context(), orgID, identity.UserID, authz.RoleInput{
			Name:        req.Name,
			Description: req.Description,
			Color:       req.Color,
			Permissions: req.Permissions,
			IsDefault:   req.IsDefault,
		})
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "authz.role.create", map[string]any{
			"role_id": role.ID,
			"name":    role.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/orgs/%s/roles/%s", orgID, role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request, orgID, roleID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, authz.PermOrgRead) {
			return
		}
		role, err := a.roles.GetRole(r.Context(), orgID, roleID)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodPatch:
		if !a.ensurePermission(w, r, authz.PermOrgManage) {
			return
		}
		var req updateRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.roles.UpdateRole(r.Context(), orgID, roleID, authz.RoleUpdate{
			Name:        req.Name,
			Description: req.Description,
			Color:       req.Color,
			Permissions: req.Permissions,
			IsDefault:   req.IsDefault,
		})
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "authz.role.update", map[string]any{
			"role_id": role.ID,
		})
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		if !a.ensurePermission(w, r, authz.PermOrgManage) {
			return
		}
		if err := a.roles.DeleteRole(r.Context(), orgID, roleID); err != nil {
			handleAuthzError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "authz.role.delete", map[string]any{
			"role_id": roleID,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// handleMemberRole assigns, changes or removes a member's role. A null
// role_id removes it; history derives the action server-side.
func (a *API) handleMemberRole(w http.ResponseWriter, r *http.Request, orgID, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensurePermission(w, r, authz.PermMembersManageRoles) {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	identity, _ := authz.IdentityFromContext(r.Context())
	entry, err := a.assignments.AssignRole(r.Context(), orgID, userID, req.RoleID, identity.UserID)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "authz.member.role_change", map[string]any{
		"member_id": userID,
		"action":    string(entry.Action),
	})
	writeJSON(w, http.StatusOK, entry)
}

// handleMemberPermissions exposes the resolved permission set for a member.
func (a *API) handleMemberPermissions(w http.ResponseWriter, r *http.Request, orgID, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, authz.PermMembersRead) {
		return
	}
	set := a.resolver.GetUserPermissions(r.Context(), userID, orgID)
	codes := make([]string, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"permissions": codes,
	})
}

func (a *API) handleRoleHistory(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, authz.PermMembersRead) {
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 50, 1, 200)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := parsePositiveInt(r.URL.Query().Get("offset"), 0, 0, 1<<30)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	history, err := a.assignments.GetHistory(r.Context(), orgID, authz.HistoryFilter{
		UserID: r.URL.Query().Get("user_id"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (a *API) handleRoleCounts(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, authz.PermMembersRead) {
		return
	}
	counts, err := a.assignments.CountMembersByRole(r.Context(), orgID)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
}
