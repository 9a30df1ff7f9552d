package accounts_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var sqliteMigrations = []string{
	"data/sql/migrations/sqlite/00001_create_users.up.sql",
	"data/sql/migrations/sqlite/00002_create_ephemeral_tokens.up.sql",
}

func setupTestDB(t *testing.T) (*bun.DB, accounts.RepositoryManager) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "accounts_test.db")
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	for _, name := range sqliteMigrations {
		blob, err := accounts.GetMigrationsFS().ReadFile(name)
		require.NoError(t, err)
		_, err = db.Exec(string(blob))
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db, accounts.NewRepositoryManager(db)
}

func mustRegisterUser(t *testing.T, repo accounts.RepositoryManager, email, password string) *accounts.User {
	t.Helper()

	hash, err := accounts.HashPassword(password)
	require.NoError(t, err)

	user, err := repo.Users().Register(context.Background(), &accounts.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  "Test User",
	})
	require.NoError(t, err)

	return user
}
