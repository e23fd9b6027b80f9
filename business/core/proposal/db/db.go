// Package db contains proposal related CRUD functionality.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"time"

	"github.com/civicledger/participation/business/sys/database"
	"go.uber.org/zap"
)

// Set of error variables for the store.
var (
	ErrDBNotFound  = sql.ErrNoRows
	ErrDBDuplicate = errors.New("duplicate row")
)

// Store manages the set of APIs for proposal database access.
type Store struct {
	log *zap.SugaredLogger
	db  *sql.DB
}

// NewStore constructs a data store for api access.
func NewStore(log *zap.SugaredLogger, db *sql.DB) Store {
	return Store{
		log: log,
		db:  db,
	}
}

// Create inserts a new proposal and its pending registration row in one
// transaction.
func (s Store) Create(ctx context.Context, prp Proposal) (Proposal, error) {
	tran := func(tx *sql.Tx) error {
		const q = `
		INSERT INTO proposals
			(title, description, category, image_url, user_id, vote_count, created_at)
		VALUES
			($1, $2, $3, $4, $5, 0, $6)`

		res, err := tx.ExecContext(ctx, q, prp.Title, prp.Description, prp.Category, prp.ImageURL, prp.UserID, prp.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting proposal: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("retrieving proposal id: %w", err)
		}
		prp.ID = uint64(id)

		const qReg = `
		INSERT INTO ledger_registrations
			(proposal_id, status, attempts, updated_at)
		VALUES
			($1, 'pending', 0, $2)`

		if _, err := tx.ExecContext(ctx, qReg, prp.ID, prp.CreatedAt); err != nil {
			return fmt.Errorf("inserting registration: %w", err)
		}

		return nil
	}

	if err := database.WithinTran(ctx, s.log, s.db, tran); err != nil {
		return Proposal{}, err
	}

	return prp, nil
}

// Query retrieves all proposals, newest first.
func (s Store) Query(ctx context.Context) ([]Proposal, error) {
	const q = `
	SELECT
		id, title, description, category, image_url, user_id, vote_count, created_at
	FROM
		proposals
	ORDER BY
		created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying proposals: %w", err)
	}
	defer rows.Close()

	return scanProposals(rows)
}

// QueryByID retrieves the specified proposal.
func (s Store) QueryByID(ctx context.Context, proposalID uint64) (Proposal, error) {
	const q = `
	SELECT
		id, title, description, category, image_url, user_id, vote_count, created_at
	FROM
		proposals
	WHERE
		id = $1`

	var prp Proposal
	err := s.db.QueryRowContext(ctx, q, proposalID).Scan(&prp.ID, &prp.Title, &prp.Description, &prp.Category, &prp.ImageURL, &prp.UserID, &prp.VoteCount, &prp.CreatedAt)
	if err != nil {
		return Proposal{}, err
	}

	return prp, nil
}

// QueryByUser retrieves the proposals submitted by the specified user,
// newest first.
func (s Store) QueryByUser(ctx context.Context, userID uint64) ([]Proposal, error) {
	const q = `
	SELECT
		id, title, description, category, image_url, user_id, vote_count, created_at
	FROM
		proposals
	WHERE
		user_id = $1
	ORDER BY
		created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("querying proposals: %w", err)
	}
	defer rows.Close()

	return scanProposals(rows)
}

// QueryVoters retrieves the voter identities and the ledger-confirmed wallet
// addresses for the specified proposal.
func (s Store) QueryVoters(ctx context.Context, proposalID uint64) ([]uint64, []string, error) {
	const q = `
	SELECT
		user_id, wallet_address
	FROM
		proposal_votes
	WHERE
		proposal_id = $1
	ORDER BY
		voted_at, user_id`

	rows, err := s.db.QueryContext(ctx, q, proposalID)
	if err != nil {
		return nil, nil, fmt.Errorf("querying voters: %w", err)
	}
	defer rows.Close()

	var voters []uint64
	var wallets []string
	for rows.Next() {
		var userID uint64
		var wallet sql.NullString
		if err := rows.Scan(&userID, &wallet); err != nil {
			return nil, nil, fmt.Errorf("scanning voter: %w", err)
		}

		voters = append(voters, userID)
		if wallet.Valid && wallet.String != "" {
			wallets = append(wallets, wallet.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return voters, wallets, nil
}

// HasUserVoted reports whether a vote row exists for the pair.
func (s Store) HasUserVoted(ctx context.Context, proposalID uint64, userID uint64) (bool, error) {
	const q = `
	SELECT EXISTS(
		SELECT 1 FROM proposal_votes WHERE proposal_id = $1 AND user_id = $2
	)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, q, proposalID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("querying vote: %w", err)
	}

	return exists, nil
}

// CommitVote inserts the vote row and increments the proposal's vote count
// in one transaction. The (proposal_id, user_id) primary key rejects a
// duplicate vote even when two requests race past the read-side check. The
// increment runs in SQL so concurrent votes from different users never lose
// an update.
func (s Store) CommitVote(ctx context.Context, proposalID uint64, userID uint64, wallet string, txHash string, now time.Time) (int, error) {
	var voteCount int

	tran := func(tx *sql.Tx) error {

		// The increment runs first: its zero-rows-affected result is the
		// existence check. Inserting the vote row first would trip the
		// foreign key on a missing proposal and mask the not-found case.
		const qCount = `
		UPDATE proposals SET vote_count = vote_count + 1 WHERE id = $1`

		res, err := tx.ExecContext(ctx, qCount, proposalID)
		if err != nil {
			return fmt.Errorf("incrementing vote count: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking increment: %w", err)
		}
		if affected == 0 {
			return ErrDBNotFound
		}

		const qVote = `
		INSERT INTO proposal_votes
			(proposal_id, user_id, wallet_address, tx_hash, voted_at)
		VALUES
			($1, $2, $3, $4, $5)`

		walletVal := sql.NullString{String: wallet, Valid: wallet != ""}
		txHashVal := sql.NullString{String: txHash, Valid: txHash != ""}

		if _, err := tx.ExecContext(ctx, qVote, proposalID, userID, walletVal, txHashVal, now); err != nil {
			if isUniqueViolation(err) {
				return ErrDBDuplicate
			}
			return fmt.Errorf("inserting vote: %w", err)
		}

		const qRead = `
		SELECT vote_count FROM proposals WHERE id = $1`

		if err := tx.QueryRowContext(ctx, qRead, proposalID).Scan(&voteCount); err != nil {
			return fmt.Errorf("reading vote count: %w", err)
		}

		return nil
	}

	if err := database.WithinTran(ctx, s.log, s.db, tran); err != nil {
		switch {
		case errors.Is(err, ErrDBDuplicate):
			return 0, ErrDBDuplicate
		case errors.Is(err, ErrDBNotFound):
			return 0, ErrDBNotFound
		}
		return 0, err
	}

	return voteCount, nil
}

// QueryRegistrations retrieves registration rows, optionally filtered by
// status and bounded by limit.
func (s Store) QueryRegistrations(ctx context.Context, status string, limit int) ([]Registration, error) {
	q := `
	SELECT
		proposal_id, status, attempts, last_error, tx_hash, updated_at
	FROM
		ledger_registrations`

	var args []any
	if status != "" {
		q += ` WHERE status = $1`
		args = append(args, status)
	}
	q += ` ORDER BY updated_at, proposal_id`
	if limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying registrations: %w", err)
	}
	defer rows.Close()

	var regs []Registration
	for rows.Next() {
		var reg Registration
		if err := rows.Scan(&reg.ProposalID, &reg.Status, &reg.Attempts, &reg.LastError, &reg.TxHash, &reg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning registration: %w", err)
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return regs, nil
}

// UpdateRegistration updates the registration row for the proposal, bumping
// the attempt counter.
func (s Store) UpdateRegistration(ctx context.Context, proposalID uint64, status string, lastError string, txHash string, now time.Time) error {
	const q = `
	UPDATE ledger_registrations SET
		status = $2,
		attempts = attempts + 1,
		last_error = $3,
		tx_hash = $4,
		updated_at = $5
	WHERE
		proposal_id = $1`

	res, err := s.db.ExecContext(ctx, q, proposalID, status, lastError, txHash, now)
	if err != nil {
		return fmt.Errorf("updating registration: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update: %w", err)
	}
	if affected == 0 {
		return ErrDBNotFound
	}

	return nil
}

// =============================================================================

func scanProposals(rows *sql.Rows) ([]Proposal, error) {
	var prps []Proposal
	for rows.Next() {
		var prp Proposal
		if err := rows.Scan(&prp.ID, &prp.Title, &prp.Description, &prp.Category, &prp.ImageURL, &prp.UserID, &prp.VoteCount, &prp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning proposal: %w", err)
		}
		prps = append(prps, prp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return prps, nil
}

// isUniqueViolation matches the sqlite unique constraint failure. The driver
// has no typed error for this.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
