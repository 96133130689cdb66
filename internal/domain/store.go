package domain

// KeyValueStore is the local storage substrate for favorites.
// It mirrors a browser's localStorage: opaque values under string keys, and a Set
// replaces the whole value atomically.
type KeyValueStore interface {
	// Get returns the stored value and whether the key exists
	Get(key string) ([]byte, bool, error)

	// Set overwrites the value stored under key
	Set(key string, value []byte) error

	// Delete removes the key; deleting a missing key is not an error
	Delete(key string) error

	Close() error
}

// FavoritesEvent reports a change to the favorites collection.
type FavoritesEvent struct {
	Key   string // storage key of the active collection
	Count int
	// ID is the favorite that changed; empty when the whole collection was (re)loaded
	ID        string
	Favorited bool
}

// SessionEventKind names identity provider session transitions
type SessionEventKind string

const (
	SessionSignedIn       SessionEventKind = "SIGNED_IN"
	SessionSignedOut      SessionEventKind = "SIGNED_OUT"
	SessionTokenRefreshed SessionEventKind = "TOKEN_REFRESHED"
	SessionUserUpdated    SessionEventKind = "USER_UPDATED"
)

// SessionEvent is emitted by the identity client whenever the session changes.
// Session is nil for SIGNED_OUT.
type SessionEvent struct {
	Kind    SessionEventKind
	Session *Session
}
