package executor

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agentcore/nexuscore/pkg/models"
)

// profileTokenExpired reports whether p's OAuth credential is no longer
// usable: an explicit ExpiresAt takes precedence, falling back to the
// "exp" claim decoded from the token itself when the profile was
// recorded without one. Profiles with a bare API key, or an OAuth token
// this can't introspect, are never treated as expired here — signing
// errors and unexpected claim shapes are the credential's problem to
// surface at call time, not this check's.
func profileTokenExpired(p models.AuthProfile, now time.Time) bool {
	if p.Variant != models.CredentialOAuth || p.OAuth == nil {
		return false
	}
	if !p.OAuth.ExpiresAt.IsZero() {
		return !now.Before(p.OAuth.ExpiresAt)
	}
	return jwtExpired(p.OAuth.Token, now)
}

// jwtExpired decodes (without verifying a signature we have no key for)
// the "exp" claim of an OAuth access token and reports whether it is
// past now. A token that isn't a parseable JWT, or carries no
// expiration claim, is treated as not expired — its provider's own
// response will surface an auth error if it really is.
func jwtExpired(token string, now time.Time) bool {
	if token == "" {
		return true
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
