package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate creates all tables needed by the application. Safe to call
// multiple times, every statement uses IF NOT EXISTS.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}

	return nil
}

const schema = `
-- Users
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

-- Proposals
CREATE TABLE IF NOT EXISTS proposals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    description TEXT NOT NULL,
    category TEXT NOT NULL,
    image_url TEXT NOT NULL DEFAULT '',
    user_id INTEGER NOT NULL REFERENCES users(id),
    vote_count INTEGER NOT NULL DEFAULT 0 CHECK (vote_count >= 0),
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_proposals_user_id ON proposals(user_id);
CREATE INDEX IF NOT EXISTS idx_proposals_created_at ON proposals(created_at);

-- Votes. The primary key is the authoritative one-vote-per-user guard.
CREATE TABLE IF NOT EXISTS proposal_votes (
    proposal_id INTEGER NOT NULL REFERENCES proposals(id),
    user_id INTEGER NOT NULL REFERENCES users(id),
    wallet_address TEXT,
    tx_hash TEXT,
    voted_at TIMESTAMP NOT NULL,
    PRIMARY KEY (proposal_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_proposal_votes_user_id ON proposal_votes(user_id);

-- On-chain registration queue for the registrar worker.
CREATE TABLE IF NOT EXISTS ledger_registrations (
    proposal_id INTEGER PRIMARY KEY REFERENCES proposals(id),
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'registered', 'failed')),
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    tx_hash TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_registrations_status ON ledger_registrations(status);
`
