package rbac

import (
	"context"
	"strings"
)

// Checker evaluates a role policy. Grants ending in "*" cover every
// permission with that prefix; a bare "*" covers everything.
type Checker struct {
	exact    map[string]map[string]bool
	prefixes map[string][]string
}

func NewChecker(policy map[string][]string) *Checker {
	if policy == nil {
		policy = RolePermissions
	}
	c := &Checker{exact: map[string]map[string]bool{}, prefixes: map[string][]string{}}
	for role, grants := range policy {
		c.exact[role] = map[string]bool{}
		for _, g := range grants {
			if strings.HasSuffix(g, "*") {
				c.prefixes[role] = append(c.prefixes[role], strings.TrimSuffix(g, "*"))
				continue
			}
			c.exact[role][g] = true
		}
	}
	return c
}

func (c *Checker) Has(role, perm string) bool {
	if c.exact[role][perm] {
		return true
	}
	for _, p := range c.prefixes[role] {
		if strings.HasPrefix(perm, p) {
			return true
		}
	}
	return false
}

func (c *Checker) Any(role string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

// CanOpenAttempt reports whether p may read or act on an attempt owned by
// examTakerID. Exam takers are limited to their own attempts; roles holding
// session:view-all see every attempt.
func (c *Checker) CanOpenAttempt(p Principal, examTakerID string) bool {
	if p.Subject == "" {
		return false
	}
	if c.Has(p.Role, PermSessionViewAll) {
		return true
	}
	return p.Subject == examTakerID && c.Any(p.Role, PermSessionTake, PermSessionView)
}

// CanOpenAttempt applies the default policy to the caller on ctx.
func CanOpenAttempt(ctx context.Context, examTakerID string) bool {
	return defaultChecker.CanOpenAttempt(PrincipalFromContext(ctx), examTakerID)
}
