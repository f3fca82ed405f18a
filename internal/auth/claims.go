// Package auth resolves the bearer token sent to the remote and the user it
// identifies.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims are the claims read from a remote access token.
// The user id is the standard subject; some issuers put it in user_id instead.
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
}

// User returns the user the token was issued for.
func (c *AccessClaims) User() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.UserID
}
