package accounts_test

import (
	"context"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerAdmin(t *testing.T, repo accounts.RepositoryManager, email string) *accounts.User {
	t.Helper()

	hash, err := accounts.HashPassword("admin-password-123")
	require.NoError(t, err)

	admin, err := repo.Users().Register(context.Background(), &accounts.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  "Test Admin",
		Role:         accounts.RoleAdmin,
	})
	require.NoError(t, err)
	return admin
}

func TestSuspendUserHandler(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	admin := registerAdmin(t, repo, "admin@example.com")
	user := mustRegisterUser(t, repo, "member@example.com", "secret-password-1")
	notifier := &captureNotifier{}

	handler := accounts.NewSuspendUserHandler(repo).WithNotifier(notifier)

	var resp *accounts.SuspendUserResponse
	err := handler.Execute(ctx, accounts.SuspendUserMessage{
		UserID:  user.ID,
		AdminID: admin.ID,
		Reason:  "terms of service violation",
		OnResponse: func(r *accounts.SuspendUserResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	assert.Equal(t, accounts.UserStatusSuspended, resp.User.Status)
	assert.Empty(t, resp.User.PasswordHash)

	stored, err := repo.Users().GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, accounts.UserStatusSuspended, stored.Status)
	require.NotEmpty(t, stored.SuspensionReason)
	assert.Equal(t, "terms of service violation", stored.SuspensionReason)
	require.NotNil(t, stored.SuspendedBy)
	assert.Equal(t, admin.ID, *stored.SuspendedBy)
	assert.NotNil(t, stored.SuspendedAt)

	sent := notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, accounts.NotificationAccountSuspended, sent[0].Type)
	assert.Equal(t, "terms of service violation", sent[0].Data["reason"])
}

func TestSuspendUserHandlerSelfSuspension(t *testing.T) {
	_, repo := setupTestDB(t)

	admin := registerAdmin(t, repo, "admin@example.com")
	handler := accounts.NewSuspendUserHandler(repo)

	err := handler.Execute(context.Background(), accounts.SuspendUserMessage{
		UserID:  admin.ID,
		AdminID: admin.ID,
		Reason:  "oops",
	})
	require.Error(t, err)

	var rich *errors.Error
	require.True(t, errors.As(err, &rich))
	assert.Equal(t, accounts.TextCodeSelfSuspension, rich.TextCode)
}

func TestSuspendUserHandlerProtectsAdmins(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	actor := registerAdmin(t, repo, "actor@example.com")
	target := registerAdmin(t, repo, "target@example.com")

	handler := accounts.NewSuspendUserHandler(repo)

	err := handler.Execute(ctx, accounts.SuspendUserMessage{
		UserID:  target.ID,
		AdminID: actor.ID,
		Reason:  "should never work",
	})
	require.Error(t, err)

	var rich *errors.Error
	require.True(t, errors.As(err, &rich))
	assert.Equal(t, accounts.TextCodeCannotSuspendAdmin, rich.TextCode)

	stored, err := repo.Users().GetByID(ctx, target.ID.String())
	require.NoError(t, err)
	assert.Equal(t, accounts.UserStatusActive, stored.Status)
}

func TestSuspendUserHandlerAlreadySuspended(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	admin := registerAdmin(t, repo, "admin@example.com")
	user := mustRegisterUser(t, repo, "member@example.com", "secret-password-1")

	handler := accounts.NewSuspendUserHandler(repo)

	msg := accounts.SuspendUserMessage{UserID: user.ID, AdminID: admin.ID, Reason: "spam"}
	require.NoError(t, handler.Execute(ctx, msg))

	err := handler.Execute(ctx, msg)
	require.Error(t, err)

	var rich *errors.Error
	require.True(t, errors.As(err, &rich))
	assert.Equal(t, accounts.TextCodeInvalidTransition, rich.TextCode)
}

func TestSuspendUserHandlerUnknownAccount(t *testing.T) {
	_, repo := setupTestDB(t)

	admin := registerAdmin(t, repo, "admin@example.com")
	handler := accounts.NewSuspendUserHandler(repo)

	err := handler.Execute(context.Background(), accounts.SuspendUserMessage{
		UserID:  uuid.New(),
		AdminID: admin.ID,
		Reason:  "ghost",
	})
	require.Error(t, err)

	var rich *errors.Error
	require.True(t, errors.As(err, &rich))
	assert.Equal(t, accounts.TextCodeAccountNotFound, rich.TextCode)
}

func TestActivateUserHandler(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	admin := registerAdmin(t, repo, "admin@example.com")
	user := mustRegisterUser(t, repo, "member@example.com", "secret-password-1")
	notifier := &captureNotifier{}

	_, err := repo.Users().Suspend(ctx, accounts.ActorRef{ID: admin.ID.String(), Type: "admin"}, user,
		accounts.WithTransitionReason("cooling off"))
	require.NoError(t, err)

	handler := accounts.NewActivateUserHandler(repo).WithNotifier(notifier)

	var resp *accounts.ActivateUserResponse
	err = handler.Execute(ctx, accounts.ActivateUserMessage{
		UserID:  user.ID,
		AdminID: admin.ID,
		OnResponse: func(r *accounts.ActivateUserResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	assert.Equal(t, accounts.UserStatusActive, resp.User.Status)

	stored, err := repo.Users().GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, accounts.UserStatusActive, stored.Status)
	assert.Empty(t, stored.SuspensionReason)
	assert.Nil(t, stored.SuspendedAt)
	assert.Nil(t, stored.SuspendedBy)

	sent := notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, accounts.NotificationAccountActivated, sent[0].Type)
}

func TestActivateUserHandlerRequiresSuspended(t *testing.T) {
	_, repo := setupTestDB(t)

	admin := registerAdmin(t, repo, "admin@example.com")
	user := mustRegisterUser(t, repo, "member@example.com", "secret-password-1")

	handler := accounts.NewActivateUserHandler(repo)

	err := handler.Execute(context.Background(), accounts.ActivateUserMessage{
		UserID:  user.ID,
		AdminID: admin.ID,
	})
	require.Error(t, err)

	var rich *errors.Error
	require.True(t, errors.As(err, &rich))
	assert.Equal(t, accounts.TextCodeInvalidTransition, rich.TextCode)
}

func TestDeleteUserHandler(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	admin := registerAdmin(t, repo, "admin@example.com")
	user := mustRegisterUser(t, repo, "member@example.com", "secret-password-1")
	sink := &captureSink{}

	handler := accounts.NewDeleteUserHandler(repo).WithActivitySink(sink)

	var resp *accounts.DeleteUserResponse
	err := handler.Execute(ctx, accounts.DeleteUserMessage{
		UserID:  user.ID,
		ActorID: admin.ID,
		OnResponse: func(r *accounts.DeleteUserResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	assert.Equal(t, accounts.UserStatusDeleted, resp.User.Status)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, accounts.ActivityEventUserDeleted, events[0].EventType)
	assert.Equal(t, user.ID.String(), events[0].UserID)

	// the row survives so the email stays reserved
	stored, err := repo.Users().GetByEmail(ctx, "member@example.com")
	require.NoError(t, err)
	assert.Equal(t, accounts.UserStatusDeleted, stored.Status)
}

func TestDeleteUserHandlerSelfDeletion(t *testing.T) {
	_, repo := setupTestDB(t)

	admin := registerAdmin(t, repo, "admin@example.com")
	handler := accounts.NewDeleteUserHandler(repo)

	err := handler.Execute(context.Background(), accounts.DeleteUserMessage{
		UserID:  admin.ID,
		ActorID: admin.ID,
	})
	require.Error(t, err)

	var rich *errors.Error
	require.True(t, errors.As(err, &rich))
	assert.Equal(t, accounts.TextCodeSelfDeletion, rich.TextCode)
}

func TestDeleteUserHandlerDeletedIsTerminal(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	admin := registerAdmin(t, repo, "admin@example.com")
	user := mustRegisterUser(t, repo, "member@example.com", "secret-password-1")

	deleter := accounts.NewDeleteUserHandler(repo)
	require.NoError(t, deleter.Execute(ctx, accounts.DeleteUserMessage{UserID: user.ID, ActorID: admin.ID}))

	err := accounts.NewActivateUserHandler(repo).Execute(ctx, accounts.ActivateUserMessage{
		UserID:  user.ID,
		AdminID: admin.ID,
	})
	require.Error(t, err)

	var rich *errors.Error
	require.True(t, errors.As(err, &rich))
	assert.Equal(t, accounts.TextCodeInvalidTransition, rich.TextCode)
}

func TestPurgeTokensHandler(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	user := mustRegisterUser(t, repo, "member@example.com", "secret-password-1")

	live, err := repo.EphemeralTokens().Issue(ctx, user.ID, accounts.PurposeEmailVerification, accounts.VerificationTokenTTL)
	require.NoError(t, err)

	spent, err := repo.EphemeralTokens().Issue(ctx, user.ID, accounts.PurposePasswordReset, accounts.PasswordResetTokenTTL)
	require.NoError(t, err)
	_, err = repo.EphemeralTokens().FindAndConsume(ctx, spent.Token, accounts.PurposePasswordReset)
	require.NoError(t, err)

	sink := &captureSink{}
	handler := accounts.NewPurgeTokensHandler(repo).WithActivitySink(sink)

	var resp *accounts.PurgeTokensResponse
	err = handler.Execute(ctx, accounts.PurgeTokensMessage{
		OnResponse: func(r *accounts.PurgeTokensResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Purged)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, accounts.ActivityEventTokensPurged, events[0].EventType)
	assert.Equal(t, int64(1), events[0].Metadata["purged"])

	// the live verification token survives the sweep
	_, err = repo.EphemeralTokens().Peek(ctx, live.Token, accounts.PurposeEmailVerification)
	assert.NoError(t, err)
}

func TestPurgeTokensHandlerNothingToPurge(t *testing.T) {
	_, repo := setupTestDB(t)

	sink := &captureSink{}
	handler := accounts.NewPurgeTokensHandler(repo).WithActivitySink(sink)

	var resp *accounts.PurgeTokensResponse
	err := handler.Execute(context.Background(), accounts.PurgeTokensMessage{
		OnResponse: func(r *accounts.PurgeTokensResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp.Purged)
	assert.Empty(t, sink.Events())
}
