package accounts

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// GateUserLoader is the slice of the Users repository the gate needs to
// revalidate accounts. Users satisfies it.
type GateUserLoader interface {
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*User, error)
}

// Actor is an authenticated caller: the validated claims plus the live
// account record they resolve to.
type Actor struct {
	User   *User
	Claims AuthClaims
}

// Ref converts the actor into an ActorRef for activity events.
func (a *Actor) Ref() ActorRef {
	if a == nil || a.User == nil {
		return ActorRef{Type: "unknown"}
	}
	return ActorRef{ID: a.User.ID.String(), Type: "user"}
}

// Gate authorizes requests. Token validity alone is never enough: every
// Authenticate call reloads the backing account and requires it to still be
// active, so suspending or deleting a user revokes their access immediately
// even though outstanding tokens remain cryptographically valid.
//
// All authentication failures collapse into the same uniform error so a
// caller cannot tell a bad signature from a suspended account.
type Gate struct {
	validator    TokenValidator
	users        GateUserLoader
	logger       Logger
	provider     LoggerProvider
	activitySink ActivitySink
}

// NewGate builds a Gate from a token validator and a user loader.
func NewGate(validator TokenValidator, users GateUserLoader) *Gate {
	loggerProvider, logger := ResolveLogger("accounts.gate", nil, nil)
	return &Gate{
		validator:    validator,
		users:        users,
		logger:       logger,
		provider:     loggerProvider,
		activitySink: noopActivitySink{},
	}
}

func (g *Gate) WithLogger(l Logger) *Gate {
	g.provider, g.logger = ResolveLogger("accounts.gate", g.provider, l)
	return g
}

// WithActivitySink configures an ActivitySink for gate decisions.
func (g *Gate) WithActivitySink(sink ActivitySink) *Gate {
	g.activitySink = normalizeActivitySink(sink)
	return g
}

// Authenticate validates the raw token and resolves it to a live, active
// account. Missing, malformed, expired, or forged tokens and tokens whose
// account is gone or no longer active all return ErrInvalidSessionToken.
func (g *Gate) Authenticate(ctx context.Context, rawToken string) (*Actor, error) {
	if rawToken == "" {
		return nil, ErrInvalidSessionToken
	}

	claims, err := g.validator.Validate(rawToken)
	if err != nil {
		g.logger.Debug("gate token validation failed", "error", err)
		return nil, ErrInvalidSessionToken
	}

	user, err := g.users.GetByID(ctx, claims.UserID())
	if err != nil {
		if errors.IsNotFound(err) {
			g.logger.Debug("gate account lookup miss", "user_id", claims.UserID())
			return nil, ErrInvalidSessionToken
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load account during authorization")
	}

	user.EnsureStatus()
	if !user.IsActive() {
		g.logger.Debug("gate rejected non active account",
			"user_id", user.ID.String(),
			"status", user.Status,
		)
		return nil, ErrInvalidSessionToken
	}

	return &Actor{User: user, Claims: claims}, nil
}

// RequireRole authorizes an already authenticated actor against an allow
// list of roles. It must run after Authenticate; a nil actor is treated as
// unauthenticated, not as forbidden.
func (g *Gate) RequireRole(actor *Actor, allowed ...UserRole) error {
	if actor == nil || actor.User == nil {
		return ErrInvalidSessionToken
	}

	for _, role := range allowed {
		if actor.User.Role == role {
			return nil
		}
	}

	return ErrInsufficientPermissions.Clone().WithMetadata(map[string]any{
		"role": actor.User.Role,
	})
}

// RequireAtLeast authorizes the actor using the role hierarchy instead of an
// explicit allow list.
func (g *Gate) RequireAtLeast(actor *Actor, minRole UserRole) error {
	if actor == nil || actor.User == nil {
		return ErrInvalidSessionToken
	}

	if !RoleIsAtLeast(actor.User.Role, minRole) {
		return ErrInsufficientPermissions.Clone().WithMetadata(map[string]any{
			"role":     actor.User.Role,
			"required": minRole,
		})
	}

	return nil
}

// ContextWithActor stores the actor's user and claims in the context for
// downstream handlers and commands.
func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	if actor == nil {
		return ctx
	}
	ctx = WithContext(ctx, actor.User)
	if actor.Claims != nil {
		ctx = WithClaimsContext(ctx, actor.Claims)
	}
	return ctx
}
