package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"fitapp.dev/internal/audit"
	"fitapp.dev/internal/auth"
)

type meResponse struct {
	Username  string   `json:"username"`
	Roles     []int    `json:"roles"`
	RoleNames []string `json:"role_names"`
}

type setRolesRequest struct {
	Roles []int `json:"roles"`
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		Username:  id.Username,
		Roles:     id.Roles.Codes(),
		RoleNames: id.Roles.Strings(),
	})
}

func (a *API) handleSetRoles(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.PathValue("username"))
	var req setRolesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	roles, err := auth.RolesFromCodes(req.Roles)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unknown role code")
		return
	}
	rec, err := a.auth.SetRoles(r.Context(), username, roles)
	audit.Result(r.Context(), "admin.roles.update", err,
		zap.String("target", username),
		zap.Ints("roles", roles.Codes()),
	)
	if err != nil {
		a.writeServiceError(w, r, "set roles", err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{
		Username: rec.Username,
		Roles:    rec.Roles.Codes(),
	})
}

func (a *API) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.PathValue("username"))
	err := a.auth.RevokeSession(r.Context(), username)
	audit.Result(r.Context(), "admin.session.revoke", err, zap.String("target", username))
	if err != nil {
		a.writeServiceError(w, r, "revoke session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
