package accounts

import (
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleUser is the default role assigned on registration
	RoleUser UserRole = "user"
	// RoleAdmin can manage regular user accounts
	RoleAdmin UserRole = "admin"
	// RoleSuperAdmin can manage every account, including admins
	RoleSuperAdmin UserRole = "super_admin"
)

// UserStatus captures the lifecycle state of an account
type UserStatus = string

const (
	// UserStatusActive accounts can authenticate and use the API
	UserStatusActive UserStatus = "active"
	// UserStatusSuspended accounts are blocked until reinstated by an admin
	UserStatusSuspended UserStatus = "suspended"
	// UserStatusDeleted is terminal; the email remains reserved
	UserStatusDeleted UserStatus = "deleted"
)

// User is the account model
type User struct {
	bun.BaseModel    `bun:"table:users,alias:usr"`
	ID               uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role             UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	Status           UserStatus `bun:"status,notnull" json:"status,omitempty"`
	Email            string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash     string     `bun:"password_hash" json:"-"`
	DisplayName      string     `bun:"display_name,nullzero" json:"display_name,omitempty"`
	Bio              string     `bun:"bio,nullzero" json:"bio,omitempty"`
	AvatarURL        string     `bun:"avatar_url,nullzero" json:"avatar_url,omitempty"`
	Phone            string     `bun:"phone_number,nullzero" json:"phone_number,omitempty"`
	EmailVerified    bool       `bun:"is_email_verified" json:"is_email_verified"`
	EmailVerifiedAt  *time.Time `bun:"email_verified_at,nullzero" json:"email_verified_at,omitempty"`
	SuspensionReason string     `bun:"suspension_reason,nullzero" json:"suspension_reason,omitempty"`
	SuspendedAt      *time.Time `bun:"suspended_at,nullzero" json:"suspended_at,omitempty"`
	SuspendedBy      *uuid.UUID `bun:"suspended_by,nullzero,type:uuid" json:"suspended_by,omitempty"`
	LoginAttempts    int        `bun:"login_attempts" json:"-"`
	LoginAttemptAt   *time.Time `bun:"login_attempt_at,nullzero" json:"-"`
	LastLoginAt      *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt        *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// EnsureStatus backfills the zero value with the active status so records
// created before the status column existed keep authenticating.
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusActive
	}
}

// IsActive reports whether the account may authenticate.
func (u *User) IsActive() bool {
	u.EnsureStatus()
	return u.Status == UserStatusActive
}

// IsSuspended reports whether the account is currently suspended.
func (u *User) IsSuspended() bool {
	return u.Status == UserStatusSuspended
}

// IsDeleted reports whether the account has been soft deleted.
func (u *User) IsDeleted() bool {
	return u.Status == UserStatusDeleted
}

// IsPrivileged reports whether the account holds an admin level role.
// Privileged accounts can never be suspended through the lifecycle commands.
func (u *User) IsPrivileged() bool {
	return u.Role == RoleAdmin || u.Role == RoleSuperAdmin
}

// Sanitized returns a copy safe to hand to transport layers: the password
// hash and throttling counters are stripped.
func (u *User) Sanitized() *User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.PasswordHash = ""
	clone.LoginAttempts = 0
	clone.LoginAttemptAt = nil
	return &clone
}

// SuspensionDetails is the admin facing view of a suspended account.
type SuspensionDetails struct {
	UserID      uuid.UUID  `json:"user_id"`
	Status      UserStatus `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	SuspendedAt *time.Time `json:"suspended_at,omitempty"`
	SuspendedBy *uuid.UUID `json:"suspended_by,omitempty"`
}

// SuspensionInfo builds the suspension view for the account.
func (u *User) SuspensionInfo() SuspensionDetails {
	u.EnsureStatus()
	return SuspensionDetails{
		UserID:      u.ID,
		Status:      u.Status,
		Reason:      u.SuspensionReason,
		SuspendedAt: u.SuspendedAt,
		SuspendedBy: u.SuspendedBy,
	}
}

// NormalizeEmail lowercases and trims an email address. Every write and
// lookup goes through this so uniqueness holds across case variants.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone parses a phone number and rewrites it in E.164 form. Phone
// is optional on accounts, so empty input passes through untouched. The
// region hint only applies to numbers without a country prefix.
func NormalizePhone(raw string, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}

	if region == "" {
		region = "US"
	}

	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid phone number").
			WithTextCode("INVALID_PHONE")
	}

	if !phonenumbers.IsValidNumber(num) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithTextCode("INVALID_PHONE")
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// TokenPurpose tags what an ephemeral token may be consumed for. Tokens are
// never valid across purposes.
type TokenPurpose = string

const (
	// PurposeEmailVerification tokens confirm ownership of an email address
	PurposeEmailVerification TokenPurpose = "email_verification"
	// PurposePasswordReset tokens authorize a single password reset
	PurposePasswordReset TokenPurpose = "password_reset"
)

// EphemeralToken is a single use, expiring secret scoped to one account and
// one purpose. The raw token string is the lookup key and a bearer secret:
// it is only ever visible in plaintext at issuance.
type EphemeralToken struct {
	bun.BaseModel `bun:"table:ephemeral_tokens,alias:etk"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Token         string       `bun:"token,notnull,unique" json:"-"`
	UserID        uuid.UUID    `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User        `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Purpose       TokenPurpose `bun:"purpose,notnull" json:"purpose,omitempty"`
	ExpiresAt     time.Time    `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	UsedAt        *time.Time   `bun:"used_at,nullzero" json:"used_at,omitempty"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Consumable reports whether the token can still be spent at the given time.
func (t *EphemeralToken) Consumable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
