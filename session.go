package accounts

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var _ Session = &SessionObject{}
var _ RoleValidator = &SessionObject{}

type SessionObject struct {
	UserID         string         `json:"user_id,omitempty"`
	Audience       []string       `json:"audience,omitempty"`
	Issuer         string         `json:"issuer,omitempty"`
	IssuedAt       *time.Time     `json:"issued_at,omitempty"`
	ExpirationDate *time.Time     `json:"expiration_date,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

func (s *SessionObject) GetUserID() string {
	return s.UserID
}

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.UserID)
}

func (s *SessionObject) GetAudience() []string {
	return s.Audience
}

func (s *SessionObject) GetIssuer() string {
	return s.Issuer
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

func (s *SessionObject) GetData() map[string]any {
	return s.Data
}

// HasRole checks if the user has a specific role
func (s *SessionObject) HasRole(role string) bool {
	return string(s.getGlobalRole()) == role
}

// IsAtLeast checks if the user's role is at least the minimum required role
func (s *SessionObject) IsAtLeast(minRole UserRole) bool {
	return RoleIsAtLeast(s.getGlobalRole(), minRole)
}

// getGlobalRole retrieves the role from session data with fallback to the
// default user role
func (s *SessionObject) getGlobalRole() UserRole {
	if s.Data != nil {
		if roleData, exists := s.Data["role"]; exists {
			if roleStr, ok := roleData.(string); ok {
				if role, valid := ParseRole(roleStr); valid {
					return role
				}
			}
		}
	}
	return RoleUser
}

type emailAwareSession interface {
	GetEmail() string
}

func getSessionEmail(session Session) string {
	if session == nil {
		return ""
	}
	if es, ok := session.(emailAwareSession); ok {
		return es.GetEmail()
	}
	return ""
}

// GetEmail returns the email carried in the session data, if any.
func (s *SessionObject) GetEmail() string {
	if s.Data == nil {
		return ""
	}
	if email, ok := s.Data["email"].(string); ok {
		return email
	}
	return ""
}

// TODO: enable only in development!
func (s SessionObject) String() string {
	issuedAt := "<nil>"
	if s.IssuedAt != nil {
		issuedAt = s.IssuedAt.Format(time.RFC1123)
	}
	return fmt.Sprintf(
		"user=%s aud=%v iss=%s iat=%s data=%v",
		s.UserID,
		s.Audience,
		s.Issuer,
		issuedAt,
		s.Data,
	)
}

// sessionFromAuthClaims creates a SessionObject from the AuthClaims interface
func sessionFromAuthClaims(claims AuthClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, ErrUnableToParseData
	}

	data := make(map[string]any)
	data["role"] = claims.Role()
	if email := claims.Email(); email != "" {
		data["email"] = email
	}

	var audience []string
	issuer := ""
	if jwtClaims, ok := claims.(*JWTClaims); ok {
		for _, aud := range jwtClaims.RegisteredClaims.Audience {
			audience = append(audience, aud)
		}
		issuer = jwtClaims.RegisteredClaims.Issuer

		if len(jwtClaims.Metadata) > 0 {
			data["metadata"] = jwtClaims.Metadata
		}
		if len(jwtClaims.Scopes) > 0 {
			data["scopes"] = jwtClaims.Scopes
		}
	}

	if issuer == "" {
		issuer = claims.Subject()
	}

	issuedAt := claims.IssuedAt()
	expiresAt := claims.Expires()

	return &SessionObject{
		UserID:         claims.UserID(),
		Audience:       audience,
		Issuer:         issuer,
		Data:           data,
		IssuedAt:       &issuedAt,
		ExpirationDate: &expiresAt,
	}, nil
}

// sessionFromClaims builds a SessionObject from raw JWT claims as stored in
// the route context by the JWT middleware.
func sessionFromClaims(claims jwt.Claims) (*SessionObject, error) {
	sub, err := claims.GetSubject()
	if err != nil {
		return nil, ErrUnableToParseData
	}

	aud, err := claims.GetAudience()
	if err != nil {
		return nil, ErrUnableToParseData
	}

	iss, err := claims.GetIssuer()
	if err != nil {
		return nil, ErrUnableToParseData
	}

	eat, err := claims.GetExpirationTime()
	if err != nil {
		return nil, ErrUnableToParseData
	}

	iat, err := claims.GetIssuedAt()
	if err != nil {
		return nil, ErrUnableToParseData
	}

	session := &SessionObject{
		UserID:   sub,
		Audience: aud,
		Issuer:   iss,
		Data:     map[string]any{},
	}

	if eat != nil {
		session.ExpirationDate = &eat.Time
	}

	if iat != nil {
		session.IssuedAt = &iat.Time
	}

	if mc, ok := claims.(jwt.MapClaims); ok {
		for _, key := range []string{"uid", "role", "email", "scopes", "metadata"} {
			if val, exists := mc[key]; exists {
				session.Data[key] = val
			}
		}
		if uid, ok := mc["uid"].(string); ok && uid != "" {
			session.UserID = uid
		}
	}

	if jc, ok := claims.(*JWTClaims); ok {
		if jc.UserRole != "" {
			session.Data["role"] = jc.UserRole
		}
		if jc.UserEmail != "" {
			session.Data["email"] = jc.UserEmail
		}
		if len(jc.Scopes) > 0 {
			session.Data["scopes"] = jc.Scopes
		}
		if len(jc.Metadata) > 0 {
			session.Data["metadata"] = jc.Metadata
		}
		if uid := jc.UserID(); uid != "" {
			session.UserID = uid
		}
	}

	return session, nil
}
