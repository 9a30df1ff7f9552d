package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token       string `json:"token" doc:"Raw reset token from the emailed link."`
	NewPassword string `json:"new_password" doc:"Replacement plaintext password."`
	OnResponse  func(resp *FinalizePasswordResetResponse)
}

func (e FinalizePasswordResetMessage) Type() string { return "account.password_reset_finalize" }

type FinalizePasswordResetResponse struct {
	User    *User
	Success bool
}

// FinalizePasswordResetHandler spends a reset token and writes the new
// password hash. Consuming the token is the race boundary: of two concurrent
// confirmations on the same token exactly one wins, the other gets the
// uniform invalid-token error.
type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	notifier Notifier
	sink     ActivitySink
	logger   Logger
}

func NewFinalizePasswordResetHandler(repo RepositoryManager) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:     repo,
		notifier: noopNotifier{},
		sink:     noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *FinalizePasswordResetHandler) WithNotifier(n Notifier) *FinalizePasswordResetHandler {
	h.notifier = normalizeNotifier(n)
	return h
}

func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.sink = normalizeActivitySink(sink)
	return h
}

func (h *FinalizePasswordResetHandler) WithLogger(l Logger) *FinalizePasswordResetHandler {
	if l != nil {
		h.logger = l
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	resp := &FinalizePasswordResetResponse{}
	var user *User

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err := h.repo.EphemeralTokens().FindAndConsumeTx(ctx, tx, event.Token, PurposePasswordReset)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrInvalidResetToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume reset token")
		}

		user, err = h.repo.Users().GetByID(ctx, token.UserID.String())
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password reset")
		}

		user.EnsureStatus()
		if !user.IsActive() {
			return ErrAccountNotActive
		}

		hash, err := HashPassword(event.NewPassword)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		return h.repo.Users().SetPasswordTx(ctx, tx, user.ID, hash)
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password reset finalization failed")
	}

	sink := normalizeActivitySink(h.sink)
	if err := sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventPasswordResetSuccess,
		Actor:      ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:     user.ID.String(),
		OccurredAt: time.Now(),
	}); err != nil {
		h.logger.Warn("password reset activity sink error: %v", err)
	}

	// best effort confirmation, a dispatcher failure never rolls this back
	notifier := normalizeNotifier(h.notifier)
	if err := notifier.Notify(ctx, Notification{
		Type: NotificationPasswordChanged,
		To:   user.Email,
		Name: user.DisplayName,
	}); err != nil {
		h.logger.Warn("password changed notification failed", "error", err)
	}

	resp.User = user.Sanitized()
	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
