package validation

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ValidateHexKey validates a Nostr public key or event id in hex form.
func ValidateHexKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	// Check length (64 hex characters = 32 bytes)
	if len(key) != 64 {
		return fmt.Errorf("invalid key length: expected 64 characters, got %d", len(key))
	}

	// Validate hex format
	if _, err := hex.DecodeString(key); err != nil {
		return fmt.Errorf("invalid hex key: %w", err)
	}

	return nil
}

// NormalizeHexKey converts a hex key to lowercase.
func NormalizeHexKey(key string) string {
	return strings.ToLower(key)
}

// ValidateAndNormalizeHexKey validates a hex key and returns its normalized form.
func ValidateAndNormalizeHexKey(key string) (string, error) {
	if err := ValidateHexKey(key); err != nil {
		return "", err
	}
	return NormalizeHexKey(key), nil
}

// ValidateWeekKey validates an ISO week key of the form "2025-W36".
func ValidateWeekKey(week string) error {
	if len(week) != 8 || week[4] != '-' || week[5] != 'W' {
		return fmt.Errorf("invalid week key format: expected YYYY-Www, got %q", week)
	}
	for _, i := range []int{0, 1, 2, 3, 6, 7} {
		if week[i] < '0' || week[i] > '9' {
			return fmt.Errorf("invalid week key format: expected YYYY-Www, got %q", week)
		}
	}
	return nil
}
