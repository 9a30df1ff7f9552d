package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type DeleteUserMessage struct {
	UserID     uuid.UUID `json:"user_id" doc:"Account being soft deleted."`
	ActorID    uuid.UUID `json:"actor_id" doc:"Acting admin or the user themselves."`
	OnResponse func(resp *DeleteUserResponse)
}

func (e DeleteUserMessage) Type() string { return "account.delete" }

type DeleteUserResponse struct {
	User    *User
	Success bool
}

// DeleteUserHandler soft deletes an account. Deleted is terminal and the row
// stays put, so the email remains reserved and there is no reverse
// transition. An admin cannot delete their own account through this path.
type DeleteUserHandler struct {
	repo   RepositoryManager
	sink   ActivitySink
	logger Logger
}

func NewDeleteUserHandler(repo RepositoryManager) *DeleteUserHandler {
	return &DeleteUserHandler{
		repo:   repo,
		sink:   noopActivitySink{},
		logger: defLogger{},
	}
}

func (h *DeleteUserHandler) WithActivitySink(sink ActivitySink) *DeleteUserHandler {
	h.sink = normalizeActivitySink(sink)
	return h
}

func (h *DeleteUserHandler) WithLogger(l Logger) *DeleteUserHandler {
	if l != nil {
		h.logger = l
	}
	return h
}

func (h *DeleteUserHandler) Execute(ctx context.Context, event DeleteUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account deletion",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeleteUserHandler) execute(ctx context.Context, event DeleteUserMessage) error {
	resp := &DeleteUserResponse{}
	var user *User

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.ActorID == event.UserID {
		return ErrSelfDeletion
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().GetByID(ctx, event.UserID.String())
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for deletion")
		}

		actor := ActorRef{ID: event.ActorID.String(), Type: "admin"}
		user, err = h.repo.Users().SoftDelete(ctx, actor, user)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account deletion failed")
	}

	sink := normalizeActivitySink(h.sink)
	if err := sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventUserDeleted,
		Actor:      ActorRef{ID: event.ActorID.String(), Type: "admin"},
		UserID:     user.ID.String(),
		OccurredAt: time.Now(),
	}); err != nil {
		h.logger.Warn("deletion activity sink error: %v", err)
	}

	resp.User = user.Sanitized()
	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
