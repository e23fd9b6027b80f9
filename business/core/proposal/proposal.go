// Package proposal provides a core business API for budget proposals: the
// submission pipeline, queries, the atomic vote commit used by the vote
// coordinator, and the on-chain registration queue drained by the registrar.
package proposal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/civicledger/participation/business/core/budget"
	"github.com/civicledger/participation/business/core/proposal/db"
	"github.com/civicledger/participation/business/core/user"
	"go.uber.org/zap"
)

// Set of error variables for CRUD operations.
var (
	ErrNotFound      = errors.New("proposal not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicateVote = errors.New("user has already voted")
)

// Registration statuses for the on-chain registration queue.
const (
	RegistrationPending    = "pending"
	RegistrationRegistered = "registered"
	RegistrationFailed     = "failed"
)

// Proposal represents an individual budget proposal.
type Proposal struct {
	ID           uint64          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Category     budget.Category `json:"category"`
	ImageURL     string          `json:"image_url"`
	UserID       uint64          `json:"user_id"`
	VoteCount    int             `json:"vote_count"`
	Voters       []uint64        `json:"voters,omitempty"`
	VotedWallets []string        `json:"voted_wallets,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewProposal contains information needed to create a new Proposal.
type NewProposal struct {
	UserID      uint64 `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	ImageURL    string `json:"image_url"`
}

// Registration represents the on-chain registration state for a proposal.
type Registration struct {
	ProposalID uint64    `json:"proposal_id"`
	Status     string    `json:"status"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	TxHash     string    `json:"tx_hash,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Core manages the set of APIs for proposal access.
type Core struct {
	log   *zap.SugaredLogger
	user  user.Core
	store db.Store
}

// NewCore constructs a core for proposal api access.
func NewCore(log *zap.SugaredLogger, sqlDB *sql.DB, usrCore user.Core) Core {
	return Core{
		log:   log,
		user:  usrCore,
		store: db.NewStore(log, sqlDB),
	}
}

// Create persists a new proposal and enqueues its on-chain registration in
// the same transaction. The caller gets the proposal back as soon as the
// store commit succeeds; chain registration happens in the background and is
// never allowed to fail a submission.
func (c Core) Create(ctx context.Context, np NewProposal, now time.Time) (Proposal, error) {
	exists, err := c.user.Exists(ctx, np.UserID)
	if err != nil {
		return Proposal{}, fmt.Errorf("checking user: %w", err)
	}
	if !exists {
		return Proposal{}, ErrUserNotFound
	}

	cat, err := budget.Parse(np.Category)
	if err != nil {
		return Proposal{}, fmt.Errorf("parsing category: %w", err)
	}

	dbPrp := db.Proposal{
		Title:       np.Title,
		Description: np.Description,
		Category:    cat.String(),
		ImageURL:    np.ImageURL,
		UserID:      np.UserID,
		CreatedAt:   now.UTC(),
	}

	dbPrp, err = c.store.Create(ctx, dbPrp)
	if err != nil {
		return Proposal{}, fmt.Errorf("create: %w", err)
	}

	return toProposal(dbPrp, nil, nil), nil
}

// Query retrieves all proposals, newest first.
func (c Core) Query(ctx context.Context) ([]Proposal, error) {
	dbPrps, err := c.store.Query(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	prps := make([]Proposal, len(dbPrps))
	for i, dbPrp := range dbPrps {
		prps[i] = toProposal(dbPrp, nil, nil)
	}

	return prps, nil
}

// QueryByID retrieves the specified proposal along with its voter identities
// and ledger-confirmed wallet addresses.
func (c Core) QueryByID(ctx context.Context, proposalID uint64) (Proposal, error) {
	dbPrp, err := c.store.QueryByID(ctx, proposalID)
	if err != nil {
		if errors.Is(err, db.ErrDBNotFound) {
			return Proposal{}, ErrNotFound
		}
		return Proposal{}, fmt.Errorf("query: %w", err)
	}

	voters, wallets, err := c.store.QueryVoters(ctx, proposalID)
	if err != nil {
		return Proposal{}, fmt.Errorf("query voters: %w", err)
	}

	return toProposal(dbPrp, voters, wallets), nil
}

// QueryByUser retrieves the proposals submitted by the specified user.
func (c Core) QueryByUser(ctx context.Context, userID uint64) ([]Proposal, error) {
	dbPrps, err := c.store.QueryByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	prps := make([]Proposal, len(dbPrps))
	for i, dbPrp := range dbPrps {
		prps[i] = toProposal(dbPrp, nil, nil)
	}

	return prps, nil
}

// HasUserVoted reports whether the user identity already appears in the
// proposal's voter set.
func (c Core) HasUserVoted(ctx context.Context, proposalID uint64, userID uint64) (bool, error) {
	voted, err := c.store.HasUserVoted(ctx, proposalID, userID)
	if err != nil {
		return false, fmt.Errorf("query vote: %w", err)
	}

	return voted, nil
}

// CommitVote atomically records the user's vote: the voter row insert and
// the vote count increment happen in one transaction, with the primary key
// on (proposal_id, user_id) re-checking the duplicate invariant race-safely.
// Only the vote coordinator calls this. The new vote count is returned.
func (c Core) CommitVote(ctx context.Context, proposalID uint64, userID uint64, wallet string, txHash string, now time.Time) (int, error) {
	voteCount, err := c.store.CommitVote(ctx, proposalID, userID, wallet, txHash, now.UTC())
	if err != nil {
		switch {
		case errors.Is(err, db.ErrDBDuplicate):
			return 0, ErrDuplicateVote
		case errors.Is(err, db.ErrDBNotFound):
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("commit vote: %w", err)
	}

	return voteCount, nil
}

// =============================================================================
// Registration queue support.

// QueryPendingRegistrations retrieves up to limit proposals still waiting
// for on-chain registration.
func (c Core) QueryPendingRegistrations(ctx context.Context, limit int) ([]Registration, error) {
	dbRegs, err := c.store.QueryRegistrations(ctx, RegistrationPending, limit)
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}

	return toRegistrations(dbRegs), nil
}

// QueryRegistrations retrieves registrations by status. An empty status
// returns all of them.
func (c Core) QueryRegistrations(ctx context.Context, status string) ([]Registration, error) {
	dbRegs, err := c.store.QueryRegistrations(ctx, status, 0)
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}

	return toRegistrations(dbRegs), nil
}

// MarkRegistered records a successful on-chain registration.
func (c Core) MarkRegistered(ctx context.Context, proposalID uint64, txHash string, now time.Time) error {
	if err := c.store.UpdateRegistration(ctx, proposalID, RegistrationRegistered, "", txHash, now.UTC()); err != nil {
		return fmt.Errorf("mark registered: %w", err)
	}

	return nil
}

// RecordRegistrationFailure bumps the attempt counter and either leaves the
// registration pending for another try or parks it as failed.
func (c Core) RecordRegistrationFailure(ctx context.Context, proposalID uint64, cause string, final bool, now time.Time) error {
	status := RegistrationPending
	if final {
		status = RegistrationFailed
	}

	if err := c.store.UpdateRegistration(ctx, proposalID, status, cause, "", now.UTC()); err != nil {
		return fmt.Errorf("record registration failure: %w", err)
	}

	return nil
}

// =============================================================================

func toProposal(dbPrp db.Proposal, voters []uint64, wallets []string) Proposal {
	return Proposal{
		ID:           dbPrp.ID,
		Title:        dbPrp.Title,
		Description:  dbPrp.Description,
		Category:     budget.Category(dbPrp.Category),
		ImageURL:     dbPrp.ImageURL,
		UserID:       dbPrp.UserID,
		VoteCount:    dbPrp.VoteCount,
		Voters:       voters,
		VotedWallets: wallets,
		CreatedAt:    dbPrp.CreatedAt,
	}
}

func toRegistrations(dbRegs []db.Registration) []Registration {
	regs := make([]Registration, len(dbRegs))
	for i, dbReg := range dbRegs {
		regs[i] = Registration{
			ProposalID: dbReg.ProposalID,
			Status:     dbReg.Status,
			Attempts:   dbReg.Attempts,
			LastError:  dbReg.LastError,
			TxHash:     dbReg.TxHash,
			UpdatedAt:  dbReg.UpdatedAt,
		}
	}

	return regs
}
