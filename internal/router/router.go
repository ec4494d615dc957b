// Package router decides which view a navigation request lands on given the
// caller's session state.
package router

import (
	"net/url"
	"path"
	"strings"

	"marketplace/internal/models"
)

type ViewKind string

const (
	ViewLoading   ViewKind = "loading"
	ViewPublic    ViewKind = "public"
	ViewAuth      ViewKind = "auth"
	ViewDashboard ViewKind = "dashboard"
	ViewNotFound  ViewKind = "not_found"
	ViewRedirect  ViewKind = "redirect"
)

const LoginPath = "/auth/login"

// Decision is the outcome of one navigation request.
type Decision struct {
	View     ViewKind    `json:"view"`
	Path     string      `json:"path"`
	Redirect string      `json:"redirect,omitempty"`
	Role     models.Role `json:"role,omitempty"`
}

var publicRoutes = map[string]bool{
	"/":             true,
	"/services":     true,
	"/about":        true,
	"/contact":      true,
	"/how-it-works": true,
}

var roleTrees = map[string]models.Role{
	"admin":    models.RoleAdmin,
	"provider": models.RoleProvider,
	"customer": models.RoleCustomer,
}

// Resolve maps (state, session, path) to a view or redirect. session is only
// consulted when state is authenticated.
func Resolve(state models.SessionState, session *models.Session, rawPath string) Decision {
	p := clean(rawPath)

	if state == models.SessionLoading {
		return Decision{View: ViewLoading, Path: p}
	}

	authenticated := state == models.SessionAuthenticated && session != nil && session.Role != ""
	var role models.Role
	if authenticated {
		role = session.Role
	}

	switch {
	case isPublic(p):
		return Decision{View: ViewPublic, Path: p, Role: role}

	case p == "/auth" || strings.HasPrefix(p, "/auth/"):
		if authenticated {
			return redirect(p, role.DashboardPath(), role)
		}
		return Decision{View: ViewAuth, Path: p}

	case p == "/dashboard":
		if !authenticated {
			return redirect(p, loginRedirect(p), "")
		}
		return redirect(p, role.DashboardPath(), role)
	}

	treeRole, ok := roleTrees[firstSegment(p)]
	if !ok {
		return Decision{View: ViewNotFound, Path: p, Role: role}
	}
	if !authenticated {
		return redirect(p, loginRedirect(p), "")
	}
	if treeRole != role {
		return redirect(p, role.DashboardPath(), role)
	}
	if p == "/"+string(treeRole) {
		return redirect(p, role.DashboardPath(), role)
	}
	return Decision{View: ViewDashboard, Path: p, Role: role}
}

func redirect(from, to string, role models.Role) Decision {
	return Decision{View: ViewRedirect, Path: from, Redirect: to, Role: role}
}

func loginRedirect(next string) string {
	return LoginPath + "?next=" + url.QueryEscape(next)
}

func isPublic(p string) bool {
	return publicRoutes[p] || strings.HasPrefix(p, "/services/")
}

func firstSegment(p string) string {
	trimmed := strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i]
	}
	return trimmed
}

// clean drops query and fragment and normalizes the path.
func clean(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return path.Clean(raw)
}
