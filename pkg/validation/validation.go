package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ParticipantIDRegex validates participant ID format
	ParticipantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// ChannelKeyRegex validates the "<id>|<id>" channel key format
	ChannelKeyRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+\|[a-zA-Z0-9_-]+$`)
)

// ValidateParticipantID validates a participant ID
func ValidateParticipantID(id string) error {
	if id == "" {
		return fmt.Errorf("participant ID is required")
	}
	if len(id) > 100 {
		return fmt.Errorf("participant ID is too long (max 100 characters)")
	}
	if !ParticipantIDRegex.MatchString(id) {
		return fmt.Errorf("invalid participant ID format")
	}
	return nil
}

// ValidateChannelKey validates a signaling channel key
func ValidateChannelKey(key string) error {
	if key == "" {
		return fmt.Errorf("channel key is required")
	}
	if len(key) > 201 {
		return fmt.Errorf("channel key is too long")
	}
	if !ChannelKeyRegex.MatchString(key) {
		return fmt.Errorf("invalid channel key format")
	}
	parts := strings.SplitN(key, "|", 2)
	if parts[0] > parts[1] {
		return fmt.Errorf("channel key participants must be in sorted order")
	}
	return nil
}

// ValidateTipAmount validates a tip amount in minor currency units.
// A max of zero means no upper bound.
func ValidateTipAmount(amount, max int64) error {
	if amount <= 0 {
		return fmt.Errorf("tip amount must be positive")
	}
	if max > 0 && amount > max {
		return fmt.Errorf("tip amount is too high (max %d)", max)
	}
	return nil
}

// ValidateUsername validates username
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(username) < 3 {
		return fmt.Errorf("username must be at least 3 characters")
	}
	if len(username) > 50 {
		return fmt.Errorf("username is too long (max 50 characters)")
	}
	if !ParticipantIDRegex.MatchString(username) {
		return fmt.Errorf("username contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}
