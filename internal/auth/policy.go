package auth

import (
	"net/http"
	"strings"
)

// Policy determines the roles allowed to make a request.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds a default policy with exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt returns true when a request should skip auth/RBAC.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// AllowedRoles resolves the roles admitted for the request. An empty set
// admits any authenticated role; ownership checks happen in the handlers.
func (p Policy) AllowedRoles(r *http.Request) ([]Role, bool) {
	if r == nil {
		return nil, false
	}
	path := r.URL.Path
	method := r.Method

	switch {
	case path == "/api/v1/checkout":
		return []Role{RoleBuyer}, true
	case strings.HasPrefix(path, "/api/v1/orders/"):
		if method == http.MethodGet {
			return nil, true
		}
		return []Role{RoleBuyer, RoleAdmin}, true
	case strings.HasPrefix(path, "/api/v1/suborders/"):
		switch {
		case strings.HasSuffix(path, "/dispute"):
			return []Role{RoleBuyer, RoleAdmin}, true
		default:
			return []Role{RoleAdmin}, true
		}
	case strings.HasPrefix(path, "/api/v1/milestones/"):
		return []Role{RoleBuyer, RoleVendor, RoleInstaller, RoleAdmin}, true
	case strings.HasPrefix(path, "/api/v1/reports/"):
		return []Role{RoleVendor, RoleAdmin}, true
	}

	if strings.HasPrefix(path, "/api/") {
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			return nil, true
		}
		return []Role{RoleAdmin}, true
	}
	return nil, false
}
