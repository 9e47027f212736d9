package obs

import "strings"

// CanonicalPath collapses per-entity URL segments so metric labels stay
// low-cardinality. Unknown paths pass through unchanged.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) >= 3 && parts[0] == "api" && parts[1] == "admin" && parts[2] == "users":
		switch len(parts) {
		case 4:
			return "/api/admin/users/:id"
		case 5:
			if parts[4] == "roles" {
				return "/api/admin/users/:id/roles"
			}
			if parts[4] == "status" {
				return "/api/admin/users/:id/status"
			}
		case 6:
			if parts[4] == "roles" {
				return "/api/admin/users/:id/roles/:role"
			}
		}
	case len(parts) == 3 && parts[0] == "api" && parts[1] == "config":
		return "/api/config/:key"
	case len(parts) >= 3 && parts[0] == "api" && parts[1] == "auth" && parts[2] == "sso":
		if len(parts) == 4 {
			return "/api/auth/sso/:provider"
		}
		if len(parts) == 5 && parts[4] == "callback" {
			return "/api/auth/sso/:provider/callback"
		}
	}
	return path
}
