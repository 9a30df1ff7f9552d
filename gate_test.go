package accounts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-accounts"
)

func setupGate(t *testing.T) (accounts.RepositoryManager, accounts.TokenService, *accounts.Gate) {
	t.Helper()

	_, repo := setupTestDB(t)
	tokens := newTestTokenService()
	gate := accounts.NewGate(tokens, repo.Users())
	return repo, tokens, gate
}

func issueSessionToken(t *testing.T, tokens accounts.TokenService, user *accounts.User) string {
	t.Helper()

	token, err := tokens.Generate(&testIdentity{
		id:    user.ID.String(),
		email: user.Email,
		role:  user.Role,
	})
	require.NoError(t, err)
	return token
}

func TestGateAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("active account with a valid token passes", func(t *testing.T) {
		repo, tokens, gate := setupGate(t)
		user := mustRegisterUser(t, repo, "peperone@example.com", "secret-password-1")
		token := issueSessionToken(t, tokens, user)

		actor, err := gate.Authenticate(ctx, token)
		require.NoError(t, err)
		require.NotNil(t, actor)

		assert.Equal(t, user.ID, actor.User.ID)
		assert.Equal(t, user.ID.String(), actor.Claims.UserID())
		assert.Equal(t, accounts.ActorRef{ID: user.ID.String(), Type: "user"}, actor.Ref())
	})

	t.Run("every failure mode yields the same uniform error", func(t *testing.T) {
		repo, tokens, gate := setupGate(t)
		user := mustRegisterUser(t, repo, "peperone@example.com", "secret-password-1")
		admin := registerAdmin(t, repo, "admin@example.com")

		// empty and garbage tokens
		_, err := gate.Authenticate(ctx, "")
		assert.ErrorIs(t, err, accounts.ErrInvalidSessionToken)

		_, err = gate.Authenticate(ctx, "garbage.token.value")
		assert.ErrorIs(t, err, accounts.ErrInvalidSessionToken)

		// token signed with a different key
		forged := accounts.NewTokenService([]byte("other-key"), 24, "test-issuer", nil, nil)
		forgedToken, err := forged.Generate(&testIdentity{id: user.ID.String(), role: user.Role})
		require.NoError(t, err)

		_, err = gate.Authenticate(ctx, forgedToken)
		assert.ErrorIs(t, err, accounts.ErrInvalidSessionToken)

		// valid token whose account has since been deleted
		deleted := mustRegisterUser(t, repo, "gone@example.com", "secret-password-1")
		ghostToken := issueSessionToken(t, tokens, deleted)

		err = accounts.NewDeleteUserHandler(repo).Execute(ctx, accounts.DeleteUserMessage{
			UserID:  deleted.ID,
			ActorID: admin.ID,
		})
		require.NoError(t, err)

		_, err = gate.Authenticate(ctx, ghostToken)
		assert.ErrorIs(t, err, accounts.ErrInvalidSessionToken)
	})

	t.Run("suspension revokes outstanding tokens immediately", func(t *testing.T) {
		repo, tokens, gate := setupGate(t)
		admin := registerAdmin(t, repo, "admin@example.com")
		user := mustRegisterUser(t, repo, "peperone@example.com", "secret-password-1")
		token := issueSessionToken(t, tokens, user)

		// the token works while the account is active
		_, err := gate.Authenticate(ctx, token)
		require.NoError(t, err)

		err = accounts.NewSuspendUserHandler(repo).Execute(ctx, accounts.SuspendUserMessage{
			UserID:  user.ID,
			AdminID: admin.ID,
			Reason:  "terms violation",
		})
		require.NoError(t, err)

		// same token, same signature, no longer accepted
		_, err = gate.Authenticate(ctx, token)
		assert.ErrorIs(t, err, accounts.ErrInvalidSessionToken)
	})
}

func TestGateRoleChecks(t *testing.T) {
	adminActor := &accounts.Actor{User: &accounts.User{Role: accounts.RoleAdmin}}
	userActor := &accounts.Actor{User: &accounts.User{Role: accounts.RoleUser}}

	gate := accounts.NewGate(nil, nil)

	t.Run("RequireRole matches the allow list", func(t *testing.T) {
		assert.NoError(t, gate.RequireRole(adminActor, accounts.RoleAdmin))
		assert.NoError(t, gate.RequireRole(adminActor, accounts.RoleUser, accounts.RoleAdmin))

		err := gate.RequireRole(userActor, accounts.RoleAdmin)
		assert.ErrorIs(t, err, accounts.ErrInsufficientPermissions)
	})

	t.Run("RequireAtLeast walks the hierarchy", func(t *testing.T) {
		assert.NoError(t, gate.RequireAtLeast(adminActor, accounts.RoleUser))
		assert.NoError(t, gate.RequireAtLeast(adminActor, accounts.RoleAdmin))

		err := gate.RequireAtLeast(userActor, accounts.RoleAdmin)
		assert.ErrorIs(t, err, accounts.ErrInsufficientPermissions)
	})

	t.Run("nil actors are unauthenticated, not forbidden", func(t *testing.T) {
		assert.ErrorIs(t, gate.RequireRole(nil, accounts.RoleUser), accounts.ErrInvalidSessionToken)
		assert.ErrorIs(t, gate.RequireAtLeast(nil, accounts.RoleUser), accounts.ErrInvalidSessionToken)
		assert.ErrorIs(t, gate.RequireRole(&accounts.Actor{}, accounts.RoleUser), accounts.ErrInvalidSessionToken)
	})

	t.Run("unknown roles never pass", func(t *testing.T) {
		weird := &accounts.Actor{User: &accounts.User{Role: "astronaut"}}
		assert.Error(t, gate.RequireAtLeast(weird, accounts.RoleUser))
	})
}

func TestContextWithActor(t *testing.T) {
	user := &accounts.User{Role: accounts.RoleUser}
	claims := &accounts.JWTClaims{UID: "user-123"}

	ctx := accounts.ContextWithActor(context.Background(), &accounts.Actor{
		User:   user,
		Claims: claims,
	})

	gotUser, ok := accounts.FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, user, gotUser)

	gotClaims, ok := accounts.GetClaims(ctx)
	require.True(t, ok)
	assert.Equal(t, "user-123", gotClaims.UserID())

	t.Run("nil actor leaves the context untouched", func(t *testing.T) {
		base := context.Background()
		assert.Equal(t, base, accounts.ContextWithActor(base, nil))
	})
}

func TestActorRef(t *testing.T) {
	var missing *accounts.Actor
	assert.Equal(t, accounts.ActorRef{Type: "unknown"}, missing.Ref())
	assert.Equal(t, accounts.ActorRef{Type: "unknown"}, (&accounts.Actor{}).Ref())
}
