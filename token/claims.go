package token

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token type values carried in the typ claim. Validation never accepts a
// token of one type where the other is expected.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims is the payload of every signed token. DeviceID is mandatory for
// refresh tokens and optional for access tokens.
type Claims struct {
	TokenType string `json:"typ"`
	DeviceID  string `json:"device_id,omitempty"`
	jwt.RegisteredClaims
}
