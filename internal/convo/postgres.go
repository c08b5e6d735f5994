package convo

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore is a Store backed by Postgres or CockroachDB, grounded on
// the same database/sql + lib/pq prepared-statement pattern used for the
// session store this package succeeds, with per-operation user scoping
// added on top.
type PostgresStore struct {
	*sqlStore
}

// NewPostgresStore opens a connection pool against dsn and returns a Store.
// Callers must call Migrate once before first use, or apply the Schema DDL
// through their own migration tooling.
func NewPostgresStore(dsn string, maxContextTokens int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("convo: open postgres: %w", err)
	}
	return &PostgresStore{sqlStore: newSQLStore(db, postgresPlaceholder, maxContextTokens)}, nil
}

// Migrate applies the conversations/messages schema. It is idempotent.
func (s *PostgresStore) Migrate() error {
	_, err := s.db.Exec(Schema)
	if err != nil {
		return fmt.Errorf("convo: migrate postgres: %w", err)
	}
	return nil
}

func postgresPlaceholder(n int) string {
	return fmt.Sprintf("$%d", n)
}
