package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type ValidateResetTokenMessage struct {
	Token      string `json:"token" doc:"Raw reset token from the emailed link."`
	OnResponse func(resp *ValidateResetTokenResponse)
}

func (e ValidateResetTokenMessage) Type() string { return "account.password_reset_validate" }

type ValidateResetTokenResponse struct {
	Email   string
	Success bool
}

// ValidateResetTokenHandler checks a reset token without consuming it, so a
// UI can pre-validate before rendering the reset form. The token must be
// unused, unexpired, and its owning account must still be active; every
// failure mode collapses into the same invalid-token error.
type ValidateResetTokenHandler struct {
	repo   RepositoryManager
	logger Logger
}

func NewValidateResetTokenHandler(repo RepositoryManager) *ValidateResetTokenHandler {
	return &ValidateResetTokenHandler{
		repo:   repo,
		logger: defLogger{},
	}
}

func (h *ValidateResetTokenHandler) WithLogger(l Logger) *ValidateResetTokenHandler {
	if l != nil {
		h.logger = l
	}
	return h
}

func (h *ValidateResetTokenHandler) Execute(ctx context.Context, event ValidateResetTokenMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during reset token validation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ValidateResetTokenHandler) execute(ctx context.Context, event ValidateResetTokenMessage) error {
	resp := &ValidateResetTokenResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	token, err := h.repo.EphemeralTokens().Peek(ctx, event.Token, PurposePasswordReset)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrInvalidResetToken
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up reset token")
	}

	user, err := h.repo.Users().GetByID(ctx, token.UserID.String())
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrInvalidResetToken
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for reset token")
	}

	user.EnsureStatus()
	if !user.IsActive() {
		return ErrInvalidResetToken
	}

	resp.Email = user.Email
	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
