package convo

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a Store backed by a local SQLite file, offered as a
// lightweight alternative to PostgresStore for single-node deployments and
// local development, over the same Store contract.
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore opens (or creates) the SQLite database at path.
func NewSQLiteStore(path string, maxContextTokens int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("convo: open sqlite: %w", err)
	}
	// the sqlite3 driver does not support concurrent writers; a single
	// connection avoids "database is locked" errors under load.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{sqlStore: newSQLStore(db, sqlitePlaceholder, maxContextTokens)}, nil
}

// Migrate applies the conversations/messages schema. It is idempotent.
func (s *SQLiteStore) Migrate() error {
	_, err := s.db.Exec(Schema)
	if err != nil {
		return fmt.Errorf("convo: migrate sqlite: %w", err)
	}
	return nil
}

func sqlitePlaceholder(int) string {
	return "?"
}
