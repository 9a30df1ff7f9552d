package accounts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-accounts"
)

// Walks a single account through the full lifecycle against the real
// repository: register, login, suspend, reactivate, password reset, delete.
func TestAccountLifecycleIntegration(t *testing.T) {
	ctx := context.Background()
	_, repo := setupTestDB(t)

	sink := &captureSink{}
	notifier := &captureNotifier{}

	provider := accounts.NewUserProvider(repo.Users())
	auther := accounts.NewAuthenticator(provider, &testConfig{
		signingKey: "test-signing-key",
		tokenExp:   24,
		audience:   []string{"test:audience"},
		issuer:     "test-issuer",
	}).WithActivitySink(sink)

	admin := registerAdmin(t, repo, "admin@example.com")
	user := mustRegisterUser(t, repo, "peperone@example.com", "secret-password-1")

	// a fresh account can log in
	token, err := auther.Login(ctx, "peperone@example.com", "secret-password-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	session, err := auther.SessionFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), session.GetUserID())

	// suspension revokes access immediately
	suspend := accounts.NewSuspendUserHandler(repo).WithNotifier(notifier)
	err = suspend.Execute(ctx, accounts.SuspendUserMessage{
		UserID:  user.ID,
		AdminID: admin.ID,
		Reason:  "terms violation",
	})
	require.NoError(t, err)

	_, err = auther.Login(ctx, "peperone@example.com", "secret-password-1")
	assert.ErrorIs(t, err, accounts.ErrAccountSuspended)

	// reactivation restores it
	activate := accounts.NewActivateUserHandler(repo).WithNotifier(notifier)
	err = activate.Execute(ctx, accounts.ActivateUserMessage{
		UserID:  user.ID,
		AdminID: admin.ID,
	})
	require.NoError(t, err)

	token, err = auther.Login(ctx, "peperone@example.com", "secret-password-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// a password reset flow rotates the credential
	reset := accounts.NewInitializePasswordResetHandler(repo, notifier)
	err = reset.Execute(ctx, accounts.InitializePasswordResetMessage{
		Email: "peperone@example.com",
	})
	require.NoError(t, err)

	var resetToken string
	for _, n := range notifier.Sent() {
		if n.Type == accounts.NotificationPasswordReset {
			resetToken, _ = n.Data["token"].(string)
		}
	}
	require.NotEmpty(t, resetToken, "reset notification should carry the token")

	finalize := accounts.NewFinalizePasswordResetHandler(repo)
	err = finalize.Execute(ctx, accounts.FinalizePasswordResetMessage{
		Token:       resetToken,
		NewPassword: "rotated-password-1",
	})
	require.NoError(t, err)

	_, err = auther.Login(ctx, "peperone@example.com", "secret-password-1")
	assert.ErrorIs(t, err, accounts.ErrInvalidCredentials)

	token, err = auther.Login(ctx, "peperone@example.com", "rotated-password-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// deletion is terminal and the account vanishes from login
	deleteUser := accounts.NewDeleteUserHandler(repo)
	err = deleteUser.Execute(ctx, accounts.DeleteUserMessage{
		UserID:  user.ID,
		ActorID: admin.ID,
	})
	require.NoError(t, err)

	_, err = auther.Login(ctx, "peperone@example.com", "rotated-password-1")
	assert.ErrorIs(t, err, accounts.ErrAccountNotFound)

	// the email stays reserved even after deletion
	_, err = repo.Users().Register(ctx, &accounts.User{
		Email:        "peperone@example.com",
		PasswordHash: "irrelevant",
	})
	assert.ErrorIs(t, err, accounts.ErrEmailTaken)

	// the activity trail recorded the login outcomes
	var sawSuccess, sawFailure bool
	for _, ev := range sink.Events() {
		switch ev.EventType {
		case accounts.ActivityEventLoginSuccess:
			sawSuccess = true
		case accounts.ActivityEventLoginFailure:
			sawFailure = true
		}
	}
	assert.True(t, sawSuccess)
	assert.True(t, sawFailure)
}
