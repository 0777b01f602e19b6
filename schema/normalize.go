package schema

import "strings"

// NormalizeMessage trims a user message and rejects empty input.
func NormalizeMessage(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}
	return trimmed, nil
}

// NormalizeSession trims both fields and enforces the token/display name pairing.
// A token without a display name gets DefaultDisplayName.
func NormalizeSession(token, displayName string) (Session, error) {
	token = strings.TrimSpace(token)
	displayName = strings.TrimSpace(displayName)
	if token == "" {
		return Session{}, ErrInvalidSession
	}
	if displayName == "" {
		displayName = DefaultDisplayName
	}
	return Session{Token: token, DisplayName: displayName}, nil
}
