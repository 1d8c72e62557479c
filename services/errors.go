package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Stable rejection reasons. Handlers map these to HTTP statuses; the
// error string is the wire-visible reason code, so it never changes.
var (
	ErrMalformedCode           = errors.New("malformed_code")
	ErrCodeNotFound            = errors.New("code_not_found")
	ErrSelfReferral            = errors.New("self_referral")
	ErrCycleDetected           = errors.New("cycle_detected")
	ErrAlreadyBound            = errors.New("already_bound")
	ErrParticipantNotFound     = errors.New("participant_not_found")
	ErrCodeGenerationExhausted = errors.New("code_generation_exhausted")
	ErrInvalidTier             = errors.New("invalid_tier")
	ErrInvalidAmount           = errors.New("invalid_amount")
	ErrDailyAlreadyClaimed     = errors.New("daily_already_claimed")
	ErrTransactionAborted      = errors.New("transaction_aborted")
)

var rejectionErrors = []error{
	ErrMalformedCode,
	ErrCodeNotFound,
	ErrSelfReferral,
	ErrCycleDetected,
	ErrAlreadyBound,
	ErrParticipantNotFound,
	ErrCodeGenerationExhausted,
	ErrInvalidTier,
	ErrInvalidAmount,
	ErrDailyAlreadyClaimed,
}

// isDuplicateKeyError reports whether err is a unique-constraint
// violation. Postgres raises SQLSTATE 23505; SQLite reports a failed
// UNIQUE constraint.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// isRetryableTxError reports whether a transaction failed due to a
// transient conflict rather than a validation rejection. Postgres signals
// serialization failures with SQLSTATE 40001 and deadlocks with 40P01;
// SQLite (tests) reports a locked database.
func isRetryableTxError(err error) bool {
	if err == nil {
		return false
	}
	for _, rejection := range rejectionErrors {
		if errors.Is(err, rejection) {
			return false
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "40001") ||
		strings.Contains(msg, "40P01") ||
		strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
