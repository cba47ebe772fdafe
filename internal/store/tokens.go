package store

// TokenStore binds bearer tokens to chat session ids. Tokens identify a
// browser tab's session; they carry no user identity.
type TokenStore interface {
	// Issue creates a token for a session id.
	Issue(sessionID string) (string, error)
	// SessionID resolves a token. ok is false for unknown or expired tokens.
	SessionID(token string) (string, bool, error)
	// Revoke invalidates a token where the backing store supports it.
	Revoke(token string) error
}
