package model

import (
	"fmt"
	"strings"
)

// VarType distinguishes literal variables from resolver-backed ones.
type VarType string

const (
	VarTypeStatic  VarType = "static"
	VarTypeDynamic VarType = "dynamic"
)

// Valid reports whether t is one of the closed set of variable types.
func (t VarType) Valid() bool {
	return t == VarTypeStatic || t == VarTypeDynamic
}

// Variable is one named binding referenced by node templates.
//
// Static variables carry their literal value in Value. Dynamic variables
// carry a probe/query string in Value and a Resolver URI of the form
// "scheme://target-id" naming the external capability and target.
type Variable struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Type     VarType `json:"type"`
	Value    string  `json:"value"`
	Resolver string  `json:"resolver,omitempty"`
}

// ResolverScheme returns the scheme portion of the variable's resolver URI,
// or "" when no resolver is set. The remainder after "://" is opaque to the
// engine and interpreted by the selected capability.
func (v Variable) ResolverScheme() string {
	r := strings.TrimSpace(v.Resolver)
	scheme, _, ok := strings.Cut(r, "://")
	if !ok {
		return ""
	}
	return strings.TrimSpace(scheme)
}

// ResolverTarget returns the opaque target portion of the resolver URI
// (everything after "://"), or "" when no resolver is set.
func (v Variable) ResolverTarget() string {
	r := strings.TrimSpace(v.Resolver)
	_, target, ok := strings.Cut(r, "://")
	if !ok {
		return ""
	}
	return target
}

// ValidateVariables checks variable preconditions for a render request.
// Duplicate names are rejected outright: template lookup by name would
// otherwise be order-dependent, and silently picking the first match hides
// authoring mistakes.
func ValidateVariables(vars []Variable) error {
	seen := make(map[string]bool, len(vars))
	for i, v := range vars {
		name := strings.TrimSpace(v.Name)
		if name == "" {
			return fmt.Errorf("variable[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("variable[%d]: duplicate variable name %q", i, name)
		}
		seen[name] = true
		if !v.Type.Valid() {
			return fmt.Errorf("variable[%d] %q: unknown type %q", i, name, v.Type)
		}
	}
	return nil
}
