package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// ReferralCodeLength is the fixed code length: 4 random bytes as hex.
const ReferralCodeLength = 8

// GenerateReferralCode returns a random 8-character uppercase hex code.
// Collisions are possible, so callers must re-check uniqueness against
// storage before assigning the code.
func GenerateReferralCode() (string, error) {
	buf := make([]byte, ReferralCodeLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// IsValidReferralCode reports whether code is exactly 8 hex characters,
// case-insensitive.
func IsValidReferralCode(code string) bool {
	if len(code) != ReferralCodeLength {
		return false
	}
	for _, r := range code {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// NormalizeReferralCode upper-cases a code for storage and lookup.
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
