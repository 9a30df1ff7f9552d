package accounts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// EphemeralTokenBytes is the entropy of a raw token before hex encoding.
	EphemeralTokenBytes = 32

	// VerificationTokenTTL bounds the lifetime of email verification tokens.
	VerificationTokenTTL = 24 * time.Hour
	// PasswordResetTokenTTL bounds the lifetime of password reset tokens.
	PasswordResetTokenTTL = 2 * time.Hour
	// TokenIssueCooldown throttles repeated issuance requests per user and purpose.
	TokenIssueCooldown = 5 * time.Minute
)

var ConsumeEphemeralTokenSQL = `UPDATE "ephemeral_tokens" AS "etk"
SET
	"used_at" = ?
WHERE
	"etk"."token" = ?
	AND "etk"."purpose" = ?
	AND "etk"."used_at" IS NULL
	AND "etk"."expires_at" > ?
RETURNING *;`

// GenerateEphemeralToken returns a fresh random token string.
func GenerateEphemeralToken() (string, error) {
	buf := make([]byte, EphemeralTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "unable to generate token").
			WithCode(goerrors.CodeInternal)
	}
	return hex.EncodeToString(buf), nil
}

// EphemeralTokens owns single use secrets such as email verification and
// password reset tokens. Consumption is an atomic conditional update so a
// token spends exactly once no matter how many requests race on it.
type EphemeralTokens interface {
	repository.Repository[*EphemeralToken]

	Issue(ctx context.Context, userID uuid.UUID, purpose TokenPurpose, ttl time.Duration) (*EphemeralToken, error)
	IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose TokenPurpose, ttl time.Duration) (*EphemeralToken, error)
	FindAndConsume(ctx context.Context, token string, purpose TokenPurpose) (*EphemeralToken, error)
	FindAndConsumeTx(ctx context.Context, tx bun.IDB, token string, purpose TokenPurpose) (*EphemeralToken, error)
	Peek(ctx context.Context, token string, purpose TokenPurpose) (*EphemeralToken, error)
	HasRecentToken(ctx context.Context, userID uuid.UUID, purpose TokenPurpose, window time.Duration) (bool, error)
	HasRecentTokenTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose TokenPurpose, window time.Duration) (bool, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

type ephemeralTokens struct {
	repository.Repository[*EphemeralToken]
	db  *bun.DB
	now func() time.Time
}

var (
	_ EphemeralTokens                        = (*ephemeralTokens)(nil)
	_ repository.Repository[*EphemeralToken] = (*ephemeralTokens)(nil)
)

type EphemeralTokensOption func(*ephemeralTokens)

// WithEphemeralTokensClock injects a custom clock (useful for tests).
func WithEphemeralTokensClock(clock func() time.Time) EphemeralTokensOption {
	return func(e *ephemeralTokens) {
		if clock != nil {
			e.now = clock
		}
	}
}

func NewEphemeralTokensRepository(db *bun.DB, opts ...EphemeralTokensOption) EphemeralTokens {
	repo := repository.NewRepository[*EphemeralToken](db, repository.ModelHandlers[*EphemeralToken]{
		NewRecord: func() *EphemeralToken { return &EphemeralToken{} },
		GetID: func(t *EphemeralToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *EphemeralToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	tokens := &ephemeralTokens{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(tokens)
		}
	}

	return tokens
}

func (e *ephemeralTokens) Issue(ctx context.Context, userID uuid.UUID, purpose TokenPurpose, ttl time.Duration) (*EphemeralToken, error) {
	return e.IssueTx(ctx, e.db, userID, purpose, ttl)
}

// IssueTx mints a fresh token and invalidates any still unconsumed token the
// user holds for the same purpose, so at most one token per purpose is live.
func (e *ephemeralTokens) IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose TokenPurpose, ttl time.Duration) (*EphemeralToken, error) {
	raw, err := GenerateEphemeralToken()
	if err != nil {
		return nil, err
	}

	now := e.now()

	if _, err := tx.NewDelete().
		Model((*EphemeralToken)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.purpose = ?", purpose).
		Where("?TableAlias.used_at IS NULL").
		Exec(ctx); err != nil {
		return nil, err
	}

	record := &EphemeralToken{
		ID:        uuid.New(),
		Token:     raw,
		UserID:    userID,
		Purpose:   purpose,
		ExpiresAt: now.Add(ttl),
		CreatedAt: &now,
	}

	return e.Repository.CreateTx(ctx, tx, record)
}

func (e *ephemeralTokens) FindAndConsume(ctx context.Context, token string, purpose TokenPurpose) (*EphemeralToken, error) {
	return e.FindAndConsumeTx(ctx, e.db, token, purpose)
}

// FindAndConsumeTx marks the token used in a single conditional update keyed
// on used_at being NULL and the expiry still being in the future. Zero rows
// back means the token is unknown, spent, expired, or scoped to another
// purpose; callers map that to their purpose-specific uniform error.
func (e *ephemeralTokens) FindAndConsumeTx(ctx context.Context, tx bun.IDB, token string, purpose TokenPurpose) (*EphemeralToken, error) {
	now := e.now()

	res, err := e.Repository.RawTx(ctx, tx, ConsumeEphemeralTokenSQL, now, token, purpose, now)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"purpose": purpose,
			})
	}

	return res[0], nil
}

// Peek returns a consumable token without spending it.
func (e *ephemeralTokens) Peek(ctx context.Context, token string, purpose TokenPurpose) (*EphemeralToken, error) {
	record := &EphemeralToken{}
	err := e.db.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Where("?TableAlias.purpose = ?", purpose).
		Where("?TableAlias.used_at IS NULL").
		Where("?TableAlias.expires_at > ?", e.now()).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"purpose": purpose,
				})
		}
		return nil, err
	}

	return record, nil
}

func (e *ephemeralTokens) HasRecentToken(ctx context.Context, userID uuid.UUID, purpose TokenPurpose, window time.Duration) (bool, error) {
	return e.HasRecentTokenTx(ctx, e.db, userID, purpose, window)
}

func (e *ephemeralTokens) HasRecentTokenTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose TokenPurpose, window time.Duration) (bool, error) {
	cutoff := e.now().Add(-window)
	return tx.NewSelect().
		Model((*EphemeralToken)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.purpose = ?", purpose).
		Where("?TableAlias.created_at > ?", cutoff).
		Exists(ctx)
}

// PurgeExpired removes tokens that can never be consumed again.
func (e *ephemeralTokens) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := e.db.NewDelete().
		Model((*EphemeralToken)(nil)).
		WhereGroup(" OR ", func(q *bun.DeleteQuery) *bun.DeleteQuery {
			return q.
				Where("?TableAlias.expires_at <= ?", e.now()).
				WhereOr("?TableAlias.used_at IS NOT NULL")
		}).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
