package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ActivateUserMessage struct {
	UserID     uuid.UUID `json:"user_id" doc:"Account being reinstated."`
	Reason     string    `json:"reason" doc:"Optional reinstatement context for the audit trail."`
	AdminID    uuid.UUID `json:"admin_id" doc:"Acting admin."`
	OnResponse func(resp *ActivateUserResponse)
}

func (e ActivateUserMessage) Type() string { return "account.activate" }

type ActivateUserResponse struct {
	User    *User
	Success bool
}

// ActivateUserHandler reinstates a suspended account, clearing the
// suspension reason, timestamp and acting admin in the same update.
type ActivateUserHandler struct {
	repo     RepositoryManager
	notifier Notifier
	logger   Logger
}

func NewActivateUserHandler(repo RepositoryManager) *ActivateUserHandler {
	return &ActivateUserHandler{
		repo:     repo,
		notifier: noopNotifier{},
		logger:   defLogger{},
	}
}

func (h *ActivateUserHandler) WithNotifier(n Notifier) *ActivateUserHandler {
	h.notifier = normalizeNotifier(n)
	return h
}

func (h *ActivateUserHandler) WithLogger(l Logger) *ActivateUserHandler {
	if l != nil {
		h.logger = l
	}
	return h
}

func (h *ActivateUserHandler) Execute(ctx context.Context, event ActivateUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account activation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ActivateUserHandler) execute(ctx context.Context, event ActivateUserMessage) error {
	resp := &ActivateUserResponse{}
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
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for activation")
		}

		user.EnsureStatus()
		if !user.IsSuspended() {
			return ErrInvalidTransition.Clone().WithMetadata(map[string]any{
				"from": user.Status,
				"to":   UserStatusActive,
			})
		}

		actor := ActorRef{ID: event.AdminID.String(), Type: "admin"}
		user, err = h.repo.Users().Reinstate(ctx, actor, user, WithTransitionReason(event.Reason))
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account activation failed")
	}

	notifier := normalizeNotifier(h.notifier)
	if err := notifier.Notify(ctx, Notification{
		Type: NotificationAccountActivated,
		To:   user.Email,
		Name: user.DisplayName,
	}); err != nil {
		h.logger.Warn("activation notification failed", "error", err)
	}

	resp.User = user.Sanitized()
	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
