package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	EphemeralTokens() EphemeralTokens
}

type mngr struct {
	db     *bun.DB
	users  Users
	tokens EphemeralTokens
}

type RepositoryManagerOption func(*mngr)

// WithManagerUsersOptions forwards options to the Users repository.
func WithManagerUsersOptions(opts ...UsersOption) RepositoryManagerOption {
	return func(m *mngr) {
		m.users = NewUsersRepository(m.db, opts...)
	}
}

// WithManagerTokenOptions forwards options to the EphemeralTokens repository.
func WithManagerTokenOptions(opts ...EphemeralTokensOption) RepositoryManagerOption {
	return func(m *mngr) {
		m.tokens = NewEphemeralTokensRepository(m.db, opts...)
	}
}

func NewRepositoryManager(db *bun.DB, opts ...RepositoryManagerOption) RepositoryManager {
	m := &mngr{
		db:     db,
		users:  NewUsersRepository(db),
		tokens: NewEphemeralTokensRepository(db),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.tokens == nil {
		return errors.New("repository ephemeralTokens should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) EphemeralTokens() EphemeralTokens {
	return m.tokens
}
