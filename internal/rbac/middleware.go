package rbac

import (
	"net/http"
)

var defaultChecker = NewChecker(nil)

// Require admits requests whose role holds at least one of perms under the
// default policy.
func Require(perms ...string) func(http.Handler) http.Handler {
	return defaultChecker.Require(perms...)
}

func (c *Checker) Require(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := PrincipalFromContext(r.Context()).Role
			if role == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !c.Any(role, perms...) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
