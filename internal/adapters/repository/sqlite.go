package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // sqlite driver
)

// schemaV1 holds sales and the part catalog.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS axie_sales (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_hash TEXT NOT NULL,
	axie_id          INTEGER NOT NULL,
	sale_date        INTEGER NOT NULL,
	level            INTEGER NOT NULL,
	xp               INTEGER NOT NULL,
	breed_count      INTEGER NOT NULL,
	class            TEXT NOT NULL DEFAULT '',
	body_shape       TEXT NOT NULL DEFAULT '',
	collection_title TEXT NOT NULL DEFAULT '',
	image_url        TEXT NOT NULL DEFAULT '',
	back_id          TEXT NOT NULL,
	back_stage       INTEGER NOT NULL,
	ears_id          TEXT NOT NULL,
	ears_stage       INTEGER NOT NULL,
	eyes_id          TEXT NOT NULL,
	eyes_stage       INTEGER NOT NULL,
	horn_id          TEXT NOT NULL,
	horn_stage       INTEGER NOT NULL,
	mouth_id         TEXT NOT NULL,
	mouth_stage      INTEGER NOT NULL,
	tail_id          TEXT NOT NULL,
	tail_stage       INTEGER NOT NULL,
	created_at       INTEGER NOT NULL,
	modified_at      INTEGER NOT NULL,
	UNIQUE(transaction_hash, axie_id)
);
CREATE INDEX IF NOT EXISTS idx_axie_sales_axie ON axie_sales(axie_id, sale_date);

CREATE TABLE IF NOT EXISTS axie_parts (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL DEFAULT '',
	class             TEXT NOT NULL DEFAULT '',
	type              TEXT NOT NULL DEFAULT '',
	stage             INTEGER NOT NULL,
	previous_stage_id TEXT NOT NULL DEFAULT '',
	special_genes     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS versions (
	id         TEXT PRIMARY KEY,
	version    TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// NewDB opens a SQLite database at path with WAL pragmas and runs the schema
// migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), schemaV1); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}
