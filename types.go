package goWarden

import (
	"context"
	"errors"
)

// ErrUserNotFound is what a UserProvider returns for an unknown username.
// The engine converts it to ErrInvalidCredentials after burning the dummy
// verification.
var ErrUserNotFound = errors.New("user not found")

// UserRecord is the engine's view of a stored account. PasswordHash is the
// PHC-encoded Argon2id hash.
type UserRecord struct {
	ID           string
	Username     string
	PasswordHash string
	Roles        []string
	Groups       []string
	IsActive     bool
}

// UserProvider is the host application's account storage. The engine never
// writes users; it only reads them during login and authorization.
type UserProvider interface {
	GetUserByUsername(ctx context.Context, username string) (UserRecord, error)
}

// CredentialVerifier abstracts password verification so the engine does
// not care which hasher the host uses. DummyVerify must cost the same as a
// failed Verify; the login flow calls it for unknown usernames.
type CredentialVerifier interface {
	Verify(password, encodedHash string) (bool, error)
	DummyVerify(password string)
}

// Principal is the authenticated identity attached to an authorized
// request.
type Principal struct {
	ID       string
	Username string
	Roles    []string
	Groups   []string
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
