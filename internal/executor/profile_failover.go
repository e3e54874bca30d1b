package executor

import (
	"context"
	"errors"
	"time"
)

// ErrNoCompatibleProfile is returned when the multi-profile path has no
// profile left to try.
var ErrNoCompatibleProfile = errors.New("executor: no compatible auth profile available")

// ProfileRecorder records the outcome of trying one auth profile by id.
type ProfileRecorder interface {
	RecordProfileSuccess(id string)
	RecordProfileFailure(id string, now time.Time, errMsg string)
}

// profileOp is the operation executed against one resolved credential.
type profileOp func(ctx context.Context, apiKey string) (string, error)

// ExecuteWithProfileFailover implements spec.md §4.6's multi-profile
// path: when the agent has no literal/secret-bound key, it walks the
// compatible profiles in order, trying op against each. A credential-
// like failure (matched via isCredentialError) records failure on that
// profile and moves to the next; any other error is propagated
// immediately without trying further profiles.
func ExecuteWithProfileFailover(ctx context.Context, profiles ProfileLookup, provider string, recorder ProfileRecorder, now time.Time, op profileOp) (string, error) {
	if profiles == nil {
		return "", ErrNoCompatibleProfile
	}

	tried := false
	for _, p := range profiles(provider) {
		if p.Disabled || !p.Health.IsAvailable(now) || profileTokenExpired(p, now) {
			continue
		}
		tried = true
		key := credentialFromProfile(p)
		val, err := op(ctx, key)
		if err == nil {
			if recorder != nil {
				recorder.RecordProfileSuccess(p.ID)
			}
			return val, nil
		}
		if !isCredentialError(err.Error()) {
			return "", err
		}
		if recorder != nil {
			recorder.RecordProfileFailure(p.ID, now, err.Error())
		}
	}
	if !tried {
		return "", ErrNoCompatibleProfile
	}
	return "", ErrNoCompatibleProfile
}
