package accounts

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// Text codes give API clients a stable, machine checkable identifier for the
// domain errors below. The human message is never meant to be parsed.
const (
	TextCodeInvalidCreds            = "INVALID_CREDENTIALS"
	TextCodeAccountSuspended        = "ACCOUNT_SUSPENDED"
	TextCodeAccountNotFound         = "ACCOUNT_NOT_FOUND"
	TextCodeAccountNotActive        = "ACCOUNT_NOT_ACTIVE"
	TextCodeEmailTaken              = "EMAIL_ALREADY_REGISTERED"
	TextCodeInvalidCurrentPassword  = "INVALID_CURRENT_PASSWORD"
	TextCodeInvalidVerification     = "INVALID_VERIFICATION_TOKEN"
	TextCodeInvalidResetToken       = "INVALID_RESET_TOKEN"
	TextCodeSessionTokenInvalid     = "INVALID_SESSION_TOKEN"
	TextCodeTokenExpired            = "TOKEN_EXPIRED"
	TextCodeTokenMalformed          = "TOKEN_MALFORMED"
	TextCodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	TextCodeCannotSuspendAdmin      = "CANNOT_SUSPEND_ADMIN"
	TextCodeSelfSuspension          = "SELF_SUSPENSION"
	TextCodeSelfDeletion            = "SELF_DELETION"
	TextCodeInvalidTransition       = "INVALID_STATUS_TRANSITION"
	TextCodeTooManyRequests         = "TOO_MANY_REQUESTS"
	TextCodeTooManyAttempts         = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeEmptyPassword           = "EMPTY_PASSWORD"
	TextCodeImmutableClaim          = "IMMUTABLE_CLAIM_MUTATION"
	TextCodeSessionNotFound         = "SESSION_NOT_FOUND"
	TextCodeSessionDecodeError      = "SESSION_DECODE_ERROR"
	TextCodeClaimsMappingError      = "CLAIMS_MAPPING_ERROR"
	TextCodeDataParseError          = "DATA_PARSE_ERROR"
)

// GenericResetRequestedMessage is returned for every password reset request,
// whether or not the email maps to an account. The uniform response is a
// deliberate anti enumeration measure; tests assert the exact string.
const GenericResetRequestedMessage = "If an account with this email exists, a reset link has been sent"

// ErrInvalidCredentials covers both unknown email and wrong password so
// callers cannot enumerate registered addresses.
var ErrInvalidCredentials = errors.New("Invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrAccountSuspended blocks authentication for suspended accounts.
var ErrAccountSuspended = errors.New("Account is suspended", errors.CategoryAuthz).
	WithTextCode(TextCodeAccountSuspended).
	WithCode(errors.CodeForbidden)

// ErrAccountNotFound hides soft deleted accounts behind the same response an
// unknown id would produce.
var ErrAccountNotFound = errors.New("Account not found", errors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(errors.CodeNotFound)

// ErrAccountNotActive is returned when an operation requires an active
// account and the target is suspended or deleted.
var ErrAccountNotActive = errors.New("Account is not active", errors.CategoryAuthz).
	WithTextCode(TextCodeAccountNotActive).
	WithCode(errors.CodeForbidden)

// ErrEmailTaken is the registration conflict. A deleted account still
// reserves its email.
var ErrEmailTaken = errors.New("Email is already registered", errors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(errors.CodeConflict)

// ErrInvalidCurrentPassword rejects a password change when the supplied
// current password does not match.
var ErrInvalidCurrentPassword = errors.New("Invalid current password", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidCurrentPassword).
	WithCode(errors.CodeBadRequest)

// ErrInvalidVerificationToken is the uniform failure for missing, expired,
// already used, or wrong purpose verification tokens.
var ErrInvalidVerificationToken = errors.New("Invalid or expired verification token", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidVerification).
	WithCode(errors.CodeBadRequest)

// ErrInvalidResetToken is the uniform failure for every reset token problem,
// including an inactive owning account.
var ErrInvalidResetToken = errors.New("Invalid or expired reset token", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidResetToken).
	WithCode(errors.CodeBadRequest)

// ErrInvalidSessionToken is the single message the authorization gate emits
// for any token or account-state failure. Which check failed is never leaked.
var ErrInvalidSessionToken = errors.New("Invalid or expired token", errors.CategoryAuth).
	WithTextCode(TextCodeSessionTokenInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is surfaced by the token service for expired JWTs.
var ErrTokenExpired = errors.New("session token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is surfaced by the token service for structural or
// signature problems.
var ErrTokenMalformed = errors.New("session token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrInsufficientPermissions is returned by role checks after a successful
// authentication.
var ErrInsufficientPermissions = errors.New("Insufficient permissions", errors.CategoryAuthz).
	WithTextCode(TextCodeInsufficientPermissions).
	WithCode(errors.CodeForbidden)

// ErrCannotSuspendAdmin guards admin and super admin accounts from the
// suspension command.
var ErrCannotSuspendAdmin = errors.New("Cannot suspend admin users", errors.CategoryAuthz).
	WithTextCode(TextCodeCannotSuspendAdmin).
	WithCode(errors.CodeForbidden)

// ErrSelfSuspension prevents an admin from suspending their own account.
var ErrSelfSuspension = errors.New("Cannot suspend your own account", errors.CategoryAuthz).
	WithTextCode(TextCodeSelfSuspension).
	WithCode(errors.CodeForbidden)

// ErrSelfDeletion prevents an admin from deleting their own account.
var ErrSelfDeletion = errors.New("Cannot delete your own account", errors.CategoryAuthz).
	WithTextCode(TextCodeSelfDeletion).
	WithCode(errors.CodeForbidden)

// ErrInvalidTransition rejects a lifecycle status change the state machine
// does not allow, or one that lost a race against a concurrent transition.
var ErrInvalidTransition = errors.New("Invalid account status transition", errors.CategoryConflict).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(errors.CodeConflict)

// ErrTooManyRequests is the rate limit failure for ephemeral token issuance.
var ErrTooManyRequests = errors.New("Too many requests, please try again later", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyRequests)

// ErrTooManyLoginAttempts throttles repeated failed logins.
var ErrTooManyLoginAttempts = errors.New("too many login attempts, try again later", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrImmutableClaimMutation is raised when a claims decorator touches a
// protected claim.
var ErrImmutableClaimMutation = errors.New("immutable claim mutated", errors.CategoryInternal).
	WithTextCode(TextCodeImmutableClaim).
	WithCode(errors.CodeInternal)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithCode(errors.CodeNotFound)

// ErrUnableToFindSession is the error when our request has no token
var ErrUnableToFindSession = errors.New("unable to find session", errors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToDecodeSession unable to decode JWT from the request
var ErrUnableToDecodeSession = errors.New("unable to decode session", errors.CategoryAuth).
	WithTextCode(TextCodeSessionDecodeError).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = errors.New("unable to map claims", errors.CategoryAuth).
	WithTextCode(TextCodeClaimsMappingError).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToParseData parse error
var ErrUnableToParseData = errors.New("unable to parse data", errors.CategoryBadInput).
	WithTextCode(TextCodeDataParseError).
	WithCode(errors.CodeBadRequest)

// statusAuthError maps a non active account status to the domain error the
// login path and the authorization checks must return.
func statusAuthError(status UserStatus) *errors.Error {
	switch status {
	case "", UserStatusActive:
		return nil
	case UserStatusSuspended:
		return ErrAccountSuspended
	case UserStatusDeleted:
		return ErrAccountNotFound
	default:
		return ErrAccountNotActive
	}
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeTokenExpired {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeTokenMalformed {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsRateLimited reports whether the error is one of the throttling failures.
func IsRateLimited(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.Category == errors.CategoryRateLimit
}
