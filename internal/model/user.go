package model

import "time"

// User represents an account record as stored in the `users` collection.
// The document id is the authentication identity (an opaque uuid), so the
// struct carries it only for convenience; it is not written into the body.
//
// Fields:
//  ID          – authentication identity.
//  Email       – normalized (lower-cased, trimmed) email address.
//  CreatedAt   – timestamp of registration.
//  LastLoginAt – refreshed on every successful sign-in (nil until then).
type User struct {
	ID          string     `json:"id,omitempty"`
	Email       string     `json:"email"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// Credential maps a normalized email to its owner and bcrypt hash.  It lives
// in the `credentials` collection keyed by the email itself, which makes the
// insert-only create the uniqueness guard for registrations.
type Credential struct {
	UserID       string `json:"userId"`
	PasswordHash string `json:"passwordHash"`
}

// Session models an entry in the `sessions` collection.  Each refresh token
// belongs to a user; only the SHA-256 hash of the raw token is used as the
// document id.
//
// Fields:
//  UserID    – owner of the token.
//  ExpiresAt – expiration timestamp of the token.
//  RevokedAt – when the token was revoked (nil if still active).
//  CreatedAt – timestamp of creation.
type Session struct {
	ID        string     `json:"id,omitempty"`
	UserID    string     `json:"userId"`
	ExpiresAt time.Time  `json:"expiresAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
