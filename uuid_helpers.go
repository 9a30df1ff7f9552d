package accounts

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// HasUserUUID reports whether Session.GetUserUUID will succeed.
func HasUserUUID(session Session) bool {
	if session == nil {
		return false
	}
	_, err := session.GetUserUUID()
	return err == nil
}

// ensureTokenID stamps a unique jti claim so individual tokens can be told
// apart in audit trails.
func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
