package accounts_test

import (
	"context"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestEmailVerificationHandler(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	user := mustRegisterUser(t, repo, "verifyme@example.com", "secret-password-1")
	notifier := &captureNotifier{}

	handler := accounts.NewRequestEmailVerificationHandler(repo, notifier)

	var resp *accounts.RequestEmailVerificationResponse
	err := handler.Execute(ctx, accounts.RequestEmailVerificationMessage{
		UserID: user.ID,
		OnResponse: func(r *accounts.RequestEmailVerificationResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	assert.False(t, resp.AlreadyVerified)
	require.NotNil(t, resp.Token)
	assert.Equal(t, accounts.PurposeEmailVerification, resp.Token.Purpose)

	sent := notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, accounts.NotificationEmailVerification, sent[0].Type)
	assert.Equal(t, "verifyme@example.com", sent[0].To)
	assert.Equal(t, resp.Token.Token, sent[0].Data["token"])
}

func TestRequestEmailVerificationHandlerCooldown(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	user := mustRegisterUser(t, repo, "cooldown@example.com", "secret-password-1")
	handler := accounts.NewRequestEmailVerificationHandler(repo, &captureNotifier{})

	require.NoError(t, handler.Execute(ctx, accounts.RequestEmailVerificationMessage{UserID: user.ID}))

	err := handler.Execute(ctx, accounts.RequestEmailVerificationMessage{UserID: user.ID})
	require.Error(t, err)

	var rich *errors.Error
	require.True(t, errors.As(err, &rich))
	assert.Equal(t, accounts.TextCodeTooManyRequests, rich.TextCode)
	assert.Equal(t, errors.CategoryRateLimit, rich.Category)
}

func TestRequestEmailVerificationHandlerAlreadyVerified(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	user := mustRegisterUser(t, repo, "alreadydone@example.com", "secret-password-1")
	require.NoError(t, repo.Users().SetEmailVerified(ctx, user.ID, true))

	notifier := &captureNotifier{}
	handler := accounts.NewRequestEmailVerificationHandler(repo, notifier)

	var resp *accounts.RequestEmailVerificationResponse
	err := handler.Execute(ctx, accounts.RequestEmailVerificationMessage{
		UserID: user.ID,
		OnResponse: func(r *accounts.RequestEmailVerificationResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.AlreadyVerified)
	assert.Empty(t, notifier.Sent())
}

func TestRequestEmailVerificationHandlerNotifierFailureFails(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	user := mustRegisterUser(t, repo, "deadmail@example.com", "secret-password-1")

	notifier := &captureNotifier{failWith: errors.New("smtp down", errors.CategoryOperation)}
	handler := accounts.NewRequestEmailVerificationHandler(repo, notifier)

	// the dispatch is coupled: a failed notification fails the request
	err := handler.Execute(ctx, accounts.RequestEmailVerificationMessage{UserID: user.ID})
	require.Error(t, err)
}

func TestVerifyEmailHandler(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	user := mustRegisterUser(t, repo, "confirm@example.com", "secret-password-1")
	token, err := repo.EphemeralTokens().Issue(ctx, user.ID, accounts.PurposeEmailVerification, accounts.VerificationTokenTTL)
	require.NoError(t, err)

	sink := &captureSink{}
	handler := accounts.NewVerifyEmailHandler(repo).WithActivitySink(sink)

	var resp *accounts.VerifyEmailResponse
	err = handler.Execute(ctx, accounts.VerifyEmailMessage{
		Token: token.Token,
		OnResponse: func(r *accounts.VerifyEmailResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.User.EmailVerified)

	stored, err := repo.Users().GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified)
	require.NotNil(t, stored.EmailVerifiedAt)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, accounts.ActivityEventEmailVerified, events[0].EventType)

	// the token spent on the first pass
	err = handler.Execute(ctx, accounts.VerifyEmailMessage{Token: token.Token})
	require.Error(t, err)

	var rich *errors.Error
	require.True(t, errors.As(err, &rich))
	assert.Equal(t, accounts.TextCodeInvalidVerification, rich.TextCode)
}

func TestVerifyEmailHandlerUnknownToken(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	handler := accounts.NewVerifyEmailHandler(repo)

	err := handler.Execute(ctx, accounts.VerifyEmailMessage{Token: "no-such-token"})
	require.Error(t, err)

	var rich *errors.Error
	require.True(t, errors.As(err, &rich))
	assert.Equal(t, accounts.TextCodeInvalidVerification, rich.TextCode)
}

func TestVerifyEmailHandlerExpiredToken(t *testing.T) {
	db, repo := setupTestDB(t)
	ctx := context.Background()

	user := mustRegisterUser(t, repo, "late@example.com", "secret-password-1")

	past := time.Now().Add(-72 * time.Hour)
	aged := accounts.NewRepositoryManager(db, accounts.WithManagerTokenOptions(
		accounts.WithEphemeralTokensClock(func() time.Time { return past }),
	))
	token, err := aged.EphemeralTokens().Issue(ctx, user.ID, accounts.PurposeEmailVerification, accounts.VerificationTokenTTL)
	require.NoError(t, err)

	handler := accounts.NewVerifyEmailHandler(repo)

	err = handler.Execute(ctx, accounts.VerifyEmailMessage{Token: token.Token})
	require.Error(t, err)

	var rich *errors.Error
	require.True(t, errors.As(err, &rich))
	assert.Equal(t, accounts.TextCodeInvalidVerification, rich.TextCode)
}
