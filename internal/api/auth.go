package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/marinraf/StimuliApp-sub001/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	// RoleAdmin may abort a run.
	RoleAdmin Role = "admin"
	// RoleOperator may watch a run, pause it and type responses.
	RoleOperator Role = "operator"
)

type credentials struct {
	user string
	pass string
}

func (c credentials) set() bool {
	return c.user != "" && c.pass != ""
}

func (c credentials) match(user, pass string) bool {
	return c.set() && secureCompare(user, c.user) && secureCompare(pass, c.pass)
}

type authConfig struct {
	admin    credentials
	operator credentials
}

var auth *authConfig

// InitAuth loads basic auth credentials from STIMULI_ADMIN_USER/PASS and
// STIMULI_OPERATOR_USER/PASS (or their *_FILE variants). Without admin
// credentials authentication is disabled.
func InitAuth() error {
	s, err := config.ResolveSecrets(
		"STIMULI_ADMIN_USER", "STIMULI_ADMIN_PASS",
		"STIMULI_OPERATOR_USER", "STIMULI_OPERATOR_PASS",
	)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	auth = &authConfig{
		admin:    credentials{s["STIMULI_ADMIN_USER"], s["STIMULI_ADMIN_PASS"]},
		operator: credentials{s["STIMULI_OPERATOR_USER"], s["STIMULI_OPERATOR_PASS"]},
	}
	return nil
}

// IsAuthEnabled returns true if authentication is configured.
func IsAuthEnabled() bool {
	return auth != nil && auth.admin.set()
}

// authenticate returns the role of the request, or "" if its credentials
// are missing or wrong.
func authenticate(r *http.Request) Role {
	if !IsAuthEnabled() {
		return RoleAdmin
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}
	if auth.admin.match(user, pass) {
		return RoleAdmin
	}
	if auth.operator.match(user, pass) {
		return RoleOperator
	}
	return ""
}

// secureCompare performs constant-time string comparison.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="stimuli"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// RequireRole wraps a handler and requires one of the specified roles.
func RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}
		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}
		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

// RequireAnyRole wraps a handler requiring admin OR operator role.
func RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin, RoleOperator)
}

// RequireAdmin wraps a handler requiring admin role only.
func RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin)
}
