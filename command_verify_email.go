package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type VerifyEmailMessage struct {
	Token      string `json:"token" doc:"Raw verification token from the emailed link."`
	OnResponse func(resp *VerifyEmailResponse)
}

func (e VerifyEmailMessage) Type() string { return "account.verify_email" }

type VerifyEmailResponse struct {
	User    *User
	Success bool
}

// VerifyEmailHandler consumes a verification token and flips the email
// verified flag. The consume is a single conditional update so a token spends
// exactly once even when two requests race on it.
type VerifyEmailHandler struct {
	repo   RepositoryManager
	sink   ActivitySink
	logger Logger
}

func NewVerifyEmailHandler(repo RepositoryManager) *VerifyEmailHandler {
	return &VerifyEmailHandler{
		repo:   repo,
		sink:   noopActivitySink{},
		logger: defLogger{},
	}
}

func (h *VerifyEmailHandler) WithActivitySink(sink ActivitySink) *VerifyEmailHandler {
	h.sink = normalizeActivitySink(sink)
	return h
}

func (h *VerifyEmailHandler) WithLogger(l Logger) *VerifyEmailHandler {
	if l != nil {
		h.logger = l
	}
	return h
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	resp := &VerifyEmailResponse{}
	var user *User

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err := h.repo.EphemeralTokens().FindAndConsumeTx(ctx, tx, event.Token, PurposeEmailVerification)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrInvalidVerificationToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume verification token")
		}

		user, err = h.repo.Users().GetByID(ctx, token.UserID.String())
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrInvalidVerificationToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for verification")
		}

		// already verified is success, not an error
		if user.EmailVerified {
			return nil
		}

		if err := h.repo.Users().SetEmailVerifiedTx(ctx, tx, user.ID, true); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark email verified")
		}

		now := time.Now()
		user.EmailVerified = true
		user.EmailVerifiedAt = &now
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "email verification transaction failed")
	}

	sink := normalizeActivitySink(h.sink)
	if err := sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventEmailVerified,
		Actor:      ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:     user.ID.String(),
		OccurredAt: time.Now(),
	}); err != nil {
		h.logger.Warn("email verification activity sink error: %v", err)
	}

	resp.User = user.Sanitized()
	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
