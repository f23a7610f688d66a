package google

import (
	"errors"
	"fmt"
)

// Reason classifies why an ID token was rejected.
type Reason string

const (
	ReasonKeysUnavailable Reason = "keys_unavailable"
	ReasonMalformed       Reason = "malformed"
	ReasonBadSignature    Reason = "bad_signature"
	ReasonExpired         Reason = "expired"
	ReasonWrongIssuer     Reason = "wrong_issuer"
	ReasonWrongAudience   Reason = "wrong_audience"
)

// Sentinels for errors.Is against a *VerifyError.
var (
	ErrKeysUnavailable = errors.New("google signing keys unavailable")
	ErrMalformed       = errors.New("malformed id token")
	ErrBadSignature    = errors.New("invalid id token signature")
	ErrExpired         = errors.New("id token expired")
	ErrWrongIssuer     = errors.New("id token issuer is not google")
	ErrWrongAudience   = errors.New("id token audience does not match client id")
)

var reasonSentinels = map[Reason]error{
	ReasonKeysUnavailable: ErrKeysUnavailable,
	ReasonMalformed:       ErrMalformed,
	ReasonBadSignature:    ErrBadSignature,
	ReasonExpired:         ErrExpired,
	ReasonWrongIssuer:     ErrWrongIssuer,
	ReasonWrongAudience:   ErrWrongAudience,
}

// VerifyError is returned by Verifier.Verify for every rejected token.
type VerifyError struct {
	Reason Reason
	Err    error
}

func (e *VerifyError) Error() string {
	msg := reasonSentinels[e.Reason].Error()
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *VerifyError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's reason.
func (e *VerifyError) Is(target error) bool {
	return reasonSentinels[e.Reason] == target
}

func verifyErr(reason Reason, err error) *VerifyError {
	return &VerifyError{Reason: reason, Err: err}
}
