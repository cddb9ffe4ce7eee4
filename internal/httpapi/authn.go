package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rasyiqi-code/breaktool-sub003/internal/auth"
	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
)

const (
	authHeader    = "Authorization"
	bearer        = "Bearer "
	devUserHeader = "X-User-ID"
)

var publicPaths = []string{
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/v1/badges",
}

// withAuth resolves the bearer token into a principal. Protected handlers
// reject requests that reach them without one. Without a verifier the
// caller is identified by X-User-ID and carries the roles the store grants.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if a.verifier == nil {
			a.withDevPrincipal(next).ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := a.verifier.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), auth.PrincipalFromClaims(claims))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) withDevPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(devUserHeader))
		if userID == "" {
			writeError(w, r, http.StatusUnauthorized, "missing "+devUserHeader+" header")
			return
		}
		p := auth.Principal{UserID: userID}
		held, err := a.engine.AvailableRoles(r.Context(), userID)
		if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
			writeDomainError(w, r, err)
			return
		}
		p.Roles = held
		ctx := auth.ContextWithPrincipal(r.Context(), p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actingOn returns the principal if it is userID or privileged, writing 401/403 otherwise.
func (a *API) actingOn(w http.ResponseWriter, r *http.Request, userID string) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}
	if p.UserID != "" && p.UserID == userID {
		return p, true
	}
	return a.checkPrivileged(w, r, p, "not allowed to act on this user")
}

// privileged returns the principal if its active role is admin or super_admin.
func (a *API) privileged(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}
	return a.checkPrivileged(w, r, p, "admin role required")
}

func (a *API) checkPrivileged(w http.ResponseWriter, r *http.Request, p auth.Principal, denied string) (auth.Principal, bool) {
	ok, err := auth.Privileged(r.Context(), a.engine, p)
	if err != nil {
		writeDomainError(w, r, err)
		return auth.Principal{}, false
	}
	if !ok {
		writeError(w, r, http.StatusForbidden, denied)
		return auth.Principal{}, false
	}
	return p, true
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
