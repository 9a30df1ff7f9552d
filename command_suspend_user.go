package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SuspendUserMessage struct {
	UserID     uuid.UUID `json:"user_id" doc:"Account being suspended."`
	Reason     string    `json:"reason" doc:"Why the account is being suspended."`
	AdminID    uuid.UUID `json:"admin_id" doc:"Acting admin."`
	OnResponse func(resp *SuspendUserResponse)
}

func (e SuspendUserMessage) Type() string { return "account.suspend" }

type SuspendUserResponse struct {
	User    *User
	Success bool
}

// SuspendUserHandler moves an account into the suspended state. Admin and
// super admin accounts can never be suspended, and an admin cannot suspend
// themselves. The notification is best effort; a dispatcher failure does not
// roll the transition back.
type SuspendUserHandler struct {
	repo     RepositoryManager
	notifier Notifier
	logger   Logger
}

func NewSuspendUserHandler(repo RepositoryManager) *SuspendUserHandler {
	return &SuspendUserHandler{
		repo:     repo,
		notifier: noopNotifier{},
		logger:   defLogger{},
	}
}

func (h *SuspendUserHandler) WithNotifier(n Notifier) *SuspendUserHandler {
	h.notifier = normalizeNotifier(n)
	return h
}

func (h *SuspendUserHandler) WithLogger(l Logger) *SuspendUserHandler {
	if l != nil {
		h.logger = l
	}
	return h
}

func (h *SuspendUserHandler) Execute(ctx context.Context, event SuspendUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account suspension",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SuspendUserHandler) execute(ctx context.Context, event SuspendUserMessage) error {
	resp := &SuspendUserResponse{}
	var user *User

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.AdminID == event.UserID {
		return ErrSelfSuspension
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().GetByID(ctx, event.UserID.String())
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for suspension")
		}

		user.EnsureStatus()
		if user.IsPrivileged() {
			return ErrCannotSuspendAdmin
		}
		if user.IsSuspended() {
			return ErrInvalidTransition.Clone().WithMetadata(map[string]any{
				"from": user.Status,
				"to":   UserStatusSuspended,
			})
		}

		actor := ActorRef{ID: event.AdminID.String(), Type: "admin"}
		user, err = h.repo.Users().Suspend(ctx, actor, user, WithTransitionReason(event.Reason))
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account suspension failed")
	}

	notifier := normalizeNotifier(h.notifier)
	if err := notifier.Notify(ctx, Notification{
		Type: NotificationAccountSuspended,
		To:   user.Email,
		Name: user.DisplayName,
		Data: map[string]any{
			"reason": event.Reason,
		},
	}); err != nil {
		h.logger.Warn("suspension notification failed", "error", err)
	}

	resp.User = user.Sanitized()
	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
