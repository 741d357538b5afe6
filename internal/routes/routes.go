// Package routes maps request paths onto access classes.
//
// Protected and admin entries match on path-segment prefixes, so "/admin"
// covers "/admin" and "/admin/users" but not "/administrator". Auth-only
// entries match exactly. Admin is checked first; every admin route is also
// protected.
package routes

import (
	"fmt"
	"os"
	"path"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Class is the access class of a route
type Class int

const (
	Public Class = iota
	AuthOnly
	Protected
	Admin
)

func (c Class) String() string {
	switch c {
	case AuthOnly:
		return "auth_only"
	case Protected:
		return "protected"
	case Admin:
		return "admin"
	default:
		return "public"
	}
}

// Protected reports whether the class requires an authenticated session
func (c Class) Protected() bool {
	return c == Protected || c == Admin
}

// Policy holds the route lists used for classification
type Policy struct {
	Protected []string `yaml:"protected"`
	Admin     []string `yaml:"admin"`
	AuthOnly  []string `yaml:"auth_only"`
}

// DefaultPolicy returns the built-in route lists
func DefaultPolicy() Policy {
	return Policy{
		Protected: []string{"/dashboard", "/admin"},
		Admin:     []string{"/admin"},
		AuthOnly:  []string{"/signin", "/register"},
	}
}

// LoadPolicy reads a YAML policy file. A list present in the file replaces
// the built-in list of the same name, it does not extend it; lists missing
// from the file keep their defaults. For example
//
//	protected: [/dashboard, /admin, /reports]
//	auth_only: [/signin, /register, /reset]
//
// keeps /dashboard gated only because it is listed again.
func LoadPolicy(file string) (Policy, error) {
	policy := DefaultPolicy()
	if file == "" {
		return policy, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return policy, fmt.Errorf("failed to read route policy: %w", err)
	}

	var override Policy
	if err := yaml.Unmarshal(data, &override); err != nil {
		return policy, fmt.Errorf("failed to parse route policy: %w", err)
	}

	if override.Protected != nil {
		policy.Protected = override.Protected
	}
	if override.Admin != nil {
		policy.Admin = override.Admin
	}
	if override.AuthOnly != nil {
		policy.AuthOnly = override.AuthOnly
	}

	return policy, policy.validate()
}

// UncoveredDefaults lists the built-in protected and admin routes that p no
// longer gates at their built-in level
func (p Policy) UncoveredDefaults() []string {
	c := NewClassifier(p)
	defaults := DefaultPolicy()

	var uncovered []string
	for _, route := range defaults.Admin {
		if c.Classify(route) != Admin {
			uncovered = append(uncovered, route)
		}
	}
	for _, route := range defaults.Protected {
		if !c.Classify(route).Protected() && !slices.Contains(uncovered, route) {
			uncovered = append(uncovered, route)
		}
	}
	return uncovered
}

func (p Policy) validate() error {
	for _, list := range [][]string{p.Protected, p.Admin, p.AuthOnly} {
		for _, route := range list {
			if !strings.HasPrefix(route, "/") {
				return fmt.Errorf("route %q must start with /", route)
			}
		}
	}
	return nil
}

// Classifier is an immutable, concurrency-safe route classifier
type Classifier struct {
	protected []string
	admin     []string
	authOnly  map[string]struct{}
}

// NewClassifier builds a classifier from policy
func NewClassifier(policy Policy) *Classifier {
	c := &Classifier{authOnly: make(map[string]struct{}, len(policy.AuthOnly))}
	for _, r := range policy.Protected {
		c.protected = append(c.protected, Normalize(r))
	}
	for _, r := range policy.Admin {
		c.admin = append(c.admin, Normalize(r))
	}
	for _, r := range policy.AuthOnly {
		c.authOnly[Normalize(r)] = struct{}{}
	}
	return c
}

// Classify returns the access class of a request path
func (c *Classifier) Classify(requestPath string) Class {
	p := Normalize(requestPath)

	if matchesAny(p, c.admin) {
		return Admin
	}
	if matchesAny(p, c.protected) {
		return Protected
	}
	if _, ok := c.authOnly[p]; ok {
		return AuthOnly
	}
	return Public
}

// Normalize cleans a request path: leading slash, no dot segments, no
// trailing slash.
func Normalize(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func matchesAny(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if hasSegmentPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func hasSegmentPrefix(p, prefix string) bool {
	if prefix == "/" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}
