package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Email     string `json:"email" example:"pepe.rone@example.com" doc:"Account email, unique across all accounts."`
	Password  string `json:"password" doc:"Plaintext password, hashed before storage."`
	Name      string `json:"name" example:"Pepe Rone" doc:"Optional display name."`
	Phone     string `json:"phone,omitempty" doc:"Optional phone number, stored in E.164 form."`
	UseHashid bool
	OnResponse func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "account.register" }

type RegisterUserResponse struct {
	User    *User
	Token   string
	Success bool
}

// RegisterUserHandler creates a new active account and issues its first
// session token. New accounts always start as plain users; roles are only
// ever elevated through admin tooling.
type RegisterUserHandler struct {
	repo     RepositoryManager
	tokens   TokenService
	notifier Notifier
	sink     ActivitySink
	logger   Logger
}

func NewRegisterUserHandler(repo RepositoryManager, tokens TokenService) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		tokens:   tokens,
		notifier: noopNotifier{},
		sink:     noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *RegisterUserHandler) WithNotifier(n Notifier) *RegisterUserHandler {
	h.notifier = normalizeNotifier(n)
	return h
}

func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.sink = normalizeActivitySink(sink)
	return h
}

func (h *RegisterUserHandler) WithLogger(l Logger) *RegisterUserHandler {
	if l != nil {
		h.logger = l
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	user := &User{}
	resp := &RegisterUserResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		phone, err := NormalizePhone(event.Phone, "")
		if err != nil {
			return err
		}

		user.PasswordHash = hash
		user.Email = NormalizeEmail(event.Email)
		user.DisplayName = event.Name
		user.Phone = phone
		user.Role = RoleUser
		user.Status = UserStatusActive
		if event.UseHashid {
			if id, err := hashid.NewUUID(user.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "account registration transaction failed")
	}

	token, err := h.tokens.Generate(NewIdentityFromUser(user))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue session token for new account")
	}

	h.recordActivity(ctx, user)
	h.sendWelcome(ctx, user)

	resp.User = user.Sanitized()
	resp.Token = token
	resp.Success = true

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *RegisterUserHandler) recordActivity(ctx context.Context, user *User) {
	sink := normalizeActivitySink(h.sink)
	if err := sink.Record(ctx, ActivityEvent{
		EventType:  ActivityEventUserRegistered,
		Actor:      ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:     user.ID.String(),
		OccurredAt: time.Now(),
	}); err != nil {
		h.logger.Warn("register activity sink error: %v", err)
	}
}

// sendWelcome is best effort, a mail outage never fails a registration.
func (h *RegisterUserHandler) sendWelcome(ctx context.Context, user *User) {
	notifier := normalizeNotifier(h.notifier)
	if err := notifier.Notify(ctx, Notification{
		Type: NotificationWelcome,
		To:   user.Email,
		Name: user.DisplayName,
	}); err != nil {
		h.logger.Warn("welcome notification failed", "error", err)
	}
}
