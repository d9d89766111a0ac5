// Package consent implements the capability token gating chat-history
// disclosure: issuance, constant-time validation, and passive expiry.
package consent

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"mindspace-server/internal/apperrors"
	"mindspace-server/internal/models"
)

// tokenBytes is the entropy of an access token. 32 bytes (256 bits) hex-encode
// to a 64-character opaque secret.
const tokenBytes = 32

// NewToken generates a cryptographically random opaque token.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate consent token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Matches compares a stored token against a presented one in constant time.
func Matches(stored, presented string) bool {
	if stored == "" || len(stored) != len(presented) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

// IssueCheck validates the preconditions for issuing a new consent token on
// the appointment. It returns (alreadyPending=true, nil) when an unexpired
// request is outstanding, in which case the caller must not rotate the token.
func IssueCheck(appt *models.Appointment, now time.Time) (alreadyPending bool, err error) {
	if !appt.Status.IsApproved() {
		return false, apperrors.InvalidState("chat history can only be requested for approved appointments")
	}
	if appt.ChatHistoryAccessStatus == models.ConsentApproved {
		return false, apperrors.InvalidState("chat history access is already approved")
	}
	if appt.HasPendingConsentToken(now) {
		return true, nil
	}
	return false, nil
}

// Validate checks a presented token against the appointment's outstanding
// request: the sub-state must be pending, the token must match in constant
// time, and the expiry must not have passed. Failures are reported with a
// generic InvalidTokenError so callers cannot probe whether a token exists.
// State is never mutated here; consuming the token is the store's conditional
// update, so a legitimate retry with the correct token stays possible until
// expiry.
func Validate(appt *models.Appointment, presented string, now time.Time) error {
	if appt.ChatHistoryAccessStatus != models.ConsentPending {
		return apperrors.InvalidToken()
	}
	if !Matches(appt.ChatHistoryAccessToken, presented) {
		return apperrors.InvalidToken()
	}
	if appt.ChatHistoryAccessTokenExpires == nil || !appt.ChatHistoryAccessTokenExpires.After(now) {
		return apperrors.InvalidToken()
	}
	return nil
}
