package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var SetUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"updated_at" = ?
WHERE
	"usr"."id" = ?
RETURNING *;`

// Users owns persistent account records and their state transitions.
// Lookups do not filter on status: a deleted account still reserves its
// email and remains addressable by id; interpreting status is the caller's
// concern.
type Users interface {
	repository.Repository[*User]

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByEmailTx(ctx context.Context, tx bun.IDB, email string) (bool, error)
	CountByRole(ctx context.Context, role UserRole) (int, error)

	SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	SetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
	SetEmailVerified(ctx context.Context, id uuid.UUID, verified bool) error
	SetEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, verified bool) error

	UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to UserStatus, opts ...StatusUpdateOption) (*User, error)
	TransitionStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, from, to UserStatus, opts ...StatusUpdateOption) (*User, error)
	Suspend(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error)
	Reinstate(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error)
	SoftDelete(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error)

	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error
}

type users struct {
	repository.Repository[*User]
	db                  *bun.DB
	stateMachine        UserStateMachine
	stateMachineOptions []StateMachineOption
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

type UsersOption func(*users)

func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	repoUsers := &users{
		Repository: repo,
		db:         db,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}

	return repoUsers
}

func WithUsersStateMachineOptions(options ...StateMachineOption) UsersOption {
	return func(u *users) {
		if len(options) == 0 {
			return
		}
		u.stateMachineOptions = append(u.stateMachineOptions, options...)
		u.stateMachine = nil
	}
}

func WithUsersStateMachine(sm UserStateMachine) UsersOption {
	return func(u *users) {
		u.stateMachine = sm
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	return a.CreateTx(ctx, tx, user)
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

// CreateTx normalizes the email and enforces uniqueness before inserting so
// callers see a domain conflict instead of a raw storage constraint error.
// The unique index remains the trust boundary underneath.
func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)

	taken, err := a.ExistsByEmailTx(ctx, tx, record.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}

	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": NormalizeEmail(email),
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return a.ExistsByEmailTx(ctx, a.db, email)
}

func (a *users) ExistsByEmailTx(ctx context.Context, tx bun.IDB, email string) (bool, error) {
	return tx.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Exists(ctx)
}

func (a *users) CountByRole(ctx context.Context, role UserRole) (int, error) {
	return a.db.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.user_role = ?", role).
		Count(ctx)
}

func (a *users) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.SetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) SetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, SetUserPasswordSQL, passwordHash, time.Now(), id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *users) SetEmailVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	return a.SetEmailVerifiedTx(ctx, a.db, id, verified)
}

func (a *users) SetEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, verified bool) error {
	now := time.Now()
	var verifiedAt *time.Time
	if verified {
		verifiedAt = &now
	}

	result, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"is_email_verified" = ?,
			"email_verified_at" = ?,
			"updated_at" = ?
		WHERE
			("usr".id = ?);
	`, verified, verifiedAt, now, id).Exec(ctx)
	if err != nil {
		return err
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *users) UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error) {
	return a.UpdateStatusTx(ctx, a.db, id, status, opts...)
}

func (a *users) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error) {
	return a.transitionStatusTx(ctx, tx, id, "", status, opts...)
}

func (a *users) TransitionStatus(ctx context.Context, id uuid.UUID, from, to UserStatus, opts ...StatusUpdateOption) (*User, error) {
	return a.TransitionStatusTx(ctx, a.db, id, from, to, opts...)
}

// TransitionStatusTx performs a conditional status update keyed on the
// expected prior status. Concurrent conflicting transitions (two admins
// racing a suspend against an activate) resolve to exactly one winner; the
// loser observes ErrInvalidTransition.
func (a *users) TransitionStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, from, to UserStatus, opts ...StatusUpdateOption) (*User, error) {
	if from == "" {
		return nil, ErrInvalidTransition.Clone().
			WithMetadata(map[string]any{"reason": "expected prior status is empty"})
	}
	return a.transitionStatusTx(ctx, tx, id, from, to, opts...)
}

func (a *users) transitionStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, from, to UserStatus, opts ...StatusUpdateOption) (*User, error) {
	record := &User{
		ID:     id,
		Status: to,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(record)
		}
	}

	now := time.Now()

	q := tx.NewUpdate().
		Model((*User)(nil)).
		Set("status = ?", to).
		Set("suspension_reason = ?", nullableString(record.SuspensionReason)).
		Set("suspended_at = ?", record.SuspendedAt).
		Set("suspended_by = ?", record.SuspendedBy).
		Set("updated_at = ?", now).
		Where("?TableAlias.id = ?", id)

	if from != "" {
		q = q.Where("?TableAlias.status = ?", from)
	}

	result, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// the row is missing or its status moved under us
		if from != "" {
			return nil, ErrInvalidTransition.Clone().
				WithMetadata(map[string]any{
					"id":   id.String(),
					"from": from,
					"to":   to,
				})
		}
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	record.UpdatedAt = &now
	return record, nil
}

func (a *users) Suspend(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error) {
	return a.lifecycleMachine().Transition(ctx, actor, user, UserStatusSuspended, opts...)
}

func (a *users) Reinstate(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error) {
	return a.lifecycleMachine().Transition(ctx, actor, user, UserStatusActive, opts...)
}

func (a *users) SoftDelete(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error) {
	return a.lifecycleMachine().Transition(ctx, actor, user, UserStatusDeleted, opts...)
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, user)
}

func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	// NOTE: Updating using the ORM fails due to a bug, it wont reset
	// login_attempt_at, login_attempts fields.
	lastLogin := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"last_login_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0,
			"updated_at" = ?
		WHERE
			("usr".id = ?);
	`, lastLogin, lastLogin, user.ID).Exec(ctx)

	if err == nil {
		user.LastLoginAt = &lastLogin
		user.LoginAttempts = 0
		user.LoginAttemptAt = nil
	}

	return err
}

func (a *users) TrackAttemptedLogin(ctx context.Context, user *User) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, user)
}

func (a *users) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(user.ID.String()),
	}

	record := &User{}
	record.ID = user.ID
	record.LoginAttempts = user.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.UpdateTx(ctx, tx, record, criteria...)

	return err
}

// StatusUpdateOption allows callers to mutate the user record before persisting status changes.
type StatusUpdateOption func(*User)

// WithSuspendedAt sets the SuspendedAt timestamp during a status transition.
func WithSuspendedAt(at *time.Time) StatusUpdateOption {
	return func(u *User) {
		u.SuspendedAt = at
	}
}

// WithSuspensionMeta sets the full suspension metadata during a transition.
func WithSuspensionMeta(reason string, at *time.Time, by *uuid.UUID) StatusUpdateOption {
	return func(u *User) {
		u.SuspensionReason = reason
		u.SuspendedAt = at
		u.SuspendedBy = by
	}
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.Role == "" {
		record.Role = RoleUser
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (a *users) lifecycleMachine() UserStateMachine {
	if a.stateMachine == nil {
		a.stateMachine = NewUserStateMachine(a, a.stateMachineOptions...)
	}
	return a.stateMachine
}
