package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ChangePasswordMessage struct {
	UserID          uuid.UUID `json:"user_id" doc:"Account changing its password."`
	CurrentPassword string    `json:"current_password" doc:"Current plaintext password for re-verification."`
	NewPassword     string    `json:"new_password" doc:"Replacement plaintext password."`
	OnResponse      func(resp *ChangePasswordResponse)
}

func (e ChangePasswordMessage) Type() string { return "account.change_password" }

type ChangePasswordResponse struct {
	Success bool
}

// ChangePasswordHandler rotates a password after re-verifying the current
// one. Outstanding session tokens stay valid until they expire on their own;
// there is no revocation list to invalidate them against.
type ChangePasswordHandler struct {
	repo   RepositoryManager
	sink   ActivitySink
	logger Logger
}

func NewChangePasswordHandler(repo RepositoryManager) *ChangePasswordHandler {
	return &ChangePasswordHandler{
		repo:   repo,
		sink:   noopActivitySink{},
		logger: defLogger{},
	}
}

func (h *ChangePasswordHandler) WithActivitySink(sink ActivitySink) *ChangePasswordHandler {
	h.sink = normalizeActivitySink(sink)
	return h
}

func (h *ChangePasswordHandler) WithLogger(l Logger) *ChangePasswordHandler {
	if l != nil {
		h.logger = l
	}
	return h
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, event ChangePasswordMessage) error {
	resp := &ChangePasswordResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByID(ctx, event.UserID.String())
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password change")
		}

		if err := ComparePasswordAndHash(event.CurrentPassword, user.PasswordHash); err != nil {
			return ErrInvalidCurrentPassword
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
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password change transaction failed")
	}

	sink := normalizeActivitySink(h.sink)
	if err := sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventPasswordChanged,
		Actor:      ActorRef{ID: event.UserID.String(), Type: "user"},
		UserID:     event.UserID.String(),
		OccurredAt: time.Now(),
	}); err != nil {
		h.logger.Warn("password change activity sink error: %v", err)
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
