// Package auth authenticates frontends connecting to the bridge.
package auth

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Audience and Issuer are the registered claims every frontend token must carry.
const (
	Audience = "sim-bridge"
	Issuer   = "authorizer"
)

// Claims is the JWT payload presented by a frontend.
type Claims struct {
	// Frontend names the connecting frontend in logs.
	Frontend string `json:"frontend"`
	// Extensions lists the protocol extensions the frontend may negotiate.
	// Empty means no restriction.
	Extensions []string `json:"extensions,omitempty"`
	jwt.RegisteredClaims
}

// Copy returns a deep copy of claims to avoid sharing state across goroutines.
func (c *Claims) Copy() *Claims {
	if c == nil {
		return nil
	}
	out := *c
	out.Extensions = slices.Clone(c.Extensions)
	out.Audience = slices.Clone(c.Audience)
	return &out
}

// AllowedExtensions intersects offered with the extensions the token permits,
// keeping the order of offered.
func (c *Claims) AllowedExtensions(offered []string) []string {
	if c == nil || len(c.Extensions) == 0 {
		return slices.Clone(offered)
	}
	var out []string
	for _, ext := range offered {
		if slices.Contains(c.Extensions, ext) {
			out = append(out, ext)
		}
	}
	return out
}

// Name returns the frontend name, falling back to the token subject.
func (c *Claims) Name() string {
	if c == nil {
		return ""
	}
	if c.Frontend != "" {
		return c.Frontend
	}
	return c.Subject
}
