package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RequestEmailVerificationMessage struct {
	UserID     uuid.UUID `json:"user_id" doc:"Account requesting verification of its email."`
	OnResponse func(resp *RequestEmailVerificationResponse)
}

func (e RequestEmailVerificationMessage) Type() string { return "account.verification_request" }

type RequestEmailVerificationResponse struct {
	AlreadyVerified bool
	Token           *EphemeralToken
	Success         bool
}

// RequestEmailVerificationHandler issues an email verification token and
// dispatches the verification link. Unlike the other notification paths this
// one is coupled: if the dispatcher fails the whole request fails, since a
// verification request whose email never left the building is useless to
// the user.
type RequestEmailVerificationHandler struct {
	repo     RepositoryManager
	notifier Notifier
	logger   Logger
	cooldown time.Duration
	ttl      time.Duration
}

func NewRequestEmailVerificationHandler(repo RepositoryManager, notifier Notifier) *RequestEmailVerificationHandler {
	return &RequestEmailVerificationHandler{
		repo:     repo,
		notifier: normalizeNotifier(notifier),
		logger:   defLogger{},
		cooldown: TokenIssueCooldown,
		ttl:      VerificationTokenTTL,
	}
}

func (h *RequestEmailVerificationHandler) WithLogger(l Logger) *RequestEmailVerificationHandler {
	if l != nil {
		h.logger = l
	}
	return h
}

// WithCooldown overrides the issuance rate limit window.
func (h *RequestEmailVerificationHandler) WithCooldown(d time.Duration) *RequestEmailVerificationHandler {
	if d > 0 {
		h.cooldown = d
	}
	return h
}

// WithTokenTTL overrides the verification token lifetime.
func (h *RequestEmailVerificationHandler) WithTokenTTL(d time.Duration) *RequestEmailVerificationHandler {
	if d > 0 {
		h.ttl = d
	}
	return h
}

func (h *RequestEmailVerificationHandler) Execute(ctx context.Context, event RequestEmailVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestEmailVerificationHandler) execute(ctx context.Context, event RequestEmailVerificationMessage) error {
	resp := &RequestEmailVerificationResponse{}
	var user *User

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().GetByID(ctx, event.UserID.String())
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for verification request")
		}

		// requesting verification for an already verified email is a no-op
		if user.EmailVerified {
			resp.AlreadyVerified = true
			resp.Success = true
			return nil
		}

		recent, err := h.repo.EphemeralTokens().HasRecentTokenTx(ctx, tx, user.ID, PurposeEmailVerification, h.cooldown)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check verification token cooldown")
		}
		if recent {
			return ErrTooManyRequests
		}

		token, err := h.repo.EphemeralTokens().IssueTx(ctx, tx, user.ID, PurposeEmailVerification, h.ttl)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue verification token")
		}

		resp.Token = token
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "verification request transaction failed")
	}

	if resp.AlreadyVerified {
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
		return nil
	}

	// coupled dispatch: a failed notification fails the request
	notifier := normalizeNotifier(h.notifier)
	if err := notifier.Notify(ctx, Notification{
		Type: NotificationEmailVerification,
		To:   user.Email,
		Name: user.DisplayName,
		Data: map[string]any{
			"token": resp.Token.Token,
			"link":  "/verify-email/" + resp.Token.Token,
		},
	}); err != nil {
		h.logger.Error("verification notification failed",
			"error", err,
			"token", TruncateSecret(resp.Token.Token),
		)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to dispatch verification notification")
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
