package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Email the reset link should go to."`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (e InitializePasswordResetMessage) Type() string { return "account.password_reset" }

type InitializePasswordResetResponse struct {
	// Message is always the same generic sentence regardless of whether the
	// email matched an account.
	Message string
	Token   *EphemeralToken
	Success bool
}

// InitializePasswordResetHandler starts a password reset. The response never
// reveals whether the email exists: unknown addresses, deleted accounts and
// suspended accounts all get the same generic message as the happy path.
// Only the rate limit error surfaces, and only for accounts that exist and
// are active.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	notifier Notifier
	logger   Logger
	cooldown time.Duration
	ttl      time.Duration
}

func NewInitializePasswordResetHandler(repo RepositoryManager, notifier Notifier) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		notifier: normalizeNotifier(notifier),
		logger:   defLogger{},
		cooldown: TokenIssueCooldown,
		ttl:      PasswordResetTokenTTL,
	}
}

func (h *InitializePasswordResetHandler) WithLogger(l Logger) *InitializePasswordResetHandler {
	if l != nil {
		h.logger = l
	}
	return h
}

// WithCooldown overrides the issuance rate limit window.
func (h *InitializePasswordResetHandler) WithCooldown(d time.Duration) *InitializePasswordResetHandler {
	if d > 0 {
		h.cooldown = d
	}
	return h
}

// WithTokenTTL overrides the reset token lifetime.
func (h *InitializePasswordResetHandler) WithTokenTTL(d time.Duration) *InitializePasswordResetHandler {
	if d > 0 {
		h.ttl = d
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{
		Message: GenericResetRequestedMessage,
	}

	var user *User

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			if goerrors.IsNotFound(err) {
				// unknown email gets the generic message, not an error
				user = nil
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password reset")
		}

		user.EnsureStatus()
		if !user.IsActive() {
			user = nil
			return nil
		}

		recent, err := h.repo.EphemeralTokens().HasRecentTokenTx(ctx, tx, user.ID, PurposePasswordReset, h.cooldown)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check reset token cooldown")
		}
		if recent {
			return ErrTooManyRequests
		}

		token, err := h.repo.EphemeralTokens().IssueTx(ctx, tx, user.ID, PurposePasswordReset, h.ttl)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue reset token")
		}

		resp.Token = token
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password reset transaction failed")
	}

	if user != nil && resp.Token != nil {
		notifier := normalizeNotifier(h.notifier)
		if err := notifier.Notify(ctx, Notification{
			Type: NotificationPasswordReset,
			To:   user.Email,
			Name: user.DisplayName,
			Data: map[string]any{
				"token": resp.Token.Token,
				"link":  "/password-reset/" + resp.Token.Token,
			},
		}); err != nil {
			h.logger.Error("reset notification failed",
				"error", err,
				"token", TruncateSecret(resp.Token.Token),
			)
		}
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
