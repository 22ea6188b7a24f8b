package identity

import "os"

// sessionOverride is set via SetSessionID when --session flag is provided.
var sessionOverride string

// SetSessionID sets an explicit session ID override (from --session flag).
func SetSessionID(id string) {
	sessionOverride = id
}

// SessionID returns the current session ID.
// Priority: explicit override > CLAUDE_SESSION_ID env var.
func SessionID() string {
	if sessionOverride != "" {
		return sessionOverride
	}
	return os.Getenv("CLAUDE_SESSION_ID")
}
