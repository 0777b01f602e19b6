package schema

import "strings"

// SubmissionID identifies one accepted message-send cycle.
type SubmissionID string

// ItemID identifies an item in the message log.
type ItemID int

// Role identifies who produced a message log item.
type Role string

const (
	// RoleUser marks text typed by the user.
	RoleUser Role = "user"
	// RoleAssistant marks replies from the service.
	RoleAssistant Role = "assistant"
	// RoleSystem marks client-side notices (errors, session state).
	RoleSystem Role = "system"
)

// DefaultDisplayName is used when the service does not report a username.
const DefaultDisplayName = "User"

// Session holds the credential used for chat requests.
// Token and DisplayName are set together or both empty.
type Session struct {
	Token       string `json:"token"`
	DisplayName string `json:"display_name"`
}

// Valid reports whether the session carries both a token and a display name.
func (s Session) Valid() bool {
	return strings.TrimSpace(s.Token) != "" && strings.TrimSpace(s.DisplayName) != ""
}

// Intent captures the output modalities requested by a message.
type Intent struct {
	WantsImage  bool
	WantsSpeech bool
}

// OutgoingMessage is the classified form of a user message.
type OutgoingMessage struct {
	Text string
	Intent
}

// MoodStats is the mood history returned by the service.
type MoodStats struct {
	Status string    `json:"status"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}
