package httpapi

import (
	"fmt"
	"net/http"

	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
)

type application int

const (
	applicationVerification application = iota
	applicationVendor
)

type rolesResponse struct {
	UserID      string        `json:"user_id"`
	PrimaryRole domain.Role   `json:"primary_role"`
	ActiveRole  domain.Role   `json:"active_role"`
	Roles       []domain.Role `json:"roles"`
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if _, ok := a.actingOn(w, r, userID); !ok {
		return
	}
	u, err := a.engine.GetUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if _, ok := a.actingOn(w, r, userID); !ok {
		return
	}
	a.writeRoles(w, r, http.StatusOK, userID)
}

func (a *API) writeRoles(w http.ResponseWriter, r *http.Request, code int, userID string) {
	u, err := a.engine.GetUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	held, err := a.engine.AvailableRoles(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if held == nil {
		held = []domain.Role{}
	}
	writeJSON(w, code, rolesResponse{
		UserID:      u.ID,
		PrimaryRole: u.PrimaryRole,
		ActiveRole:  u.CurrentRole(),
		Roles:       held,
	})
}

func (a *API) handleHasRole(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if _, ok := a.actingOn(w, r, userID); !ok {
		return
	}
	role, err := domain.ParseRole(r.PathValue("role"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	has, err := a.engine.UserHasRole(r.Context(), userID, role)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "role": role, "has_role": has})
}

func (a *API) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	p, ok := a.privileged(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID := r.PathValue("id")
	g, err := a.engine.GrantRole(r.Context(), userID, domain.Role(req.Role), p.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s/roles/%s", userID, g.Role))
	writeJSON(w, http.StatusCreated, g)
}

func (a *API) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.privileged(w, r); !ok {
		return
	}
	role, err := domain.ParseRole(r.PathValue("role"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := a.engine.RevokeRole(r.Context(), r.PathValue("id"), role); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSwitchActiveRole(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if _, ok := a.actingOn(w, r, userID); !ok {
		return
	}
	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.engine.SwitchActiveRole(r.Context(), userID, domain.Role(req.Role)); err != nil {
		writeDomainError(w, r, err)
		return
	}
	a.writeRoles(w, r, http.StatusOK, userID)
}

// handleApplication lets users file a pending application for themselves.
// Approval and rejection need an admin.
func (a *API) handleApplication(kind application) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("id")
		p, ok := a.actingOn(w, r, userID)
		if !ok {
			return
		}
		var req statusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		status := domain.ApplicationStatus(req.Status)
		if status != domain.StatusPending {
			if p, ok = a.privileged(w, r); !ok {
				return
			}
		}

		var err error
		switch kind {
		case applicationVerification:
			err = a.engine.SetVerificationStatus(r.Context(), userID, status, p.UserID)
		case applicationVendor:
			err = a.engine.SetVendorStatus(r.Context(), userID, status, p.UserID)
		}
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		u, err := a.engine.GetUser(r.Context(), userID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}
