// Package vote implements the vote coordinator: it orchestrates a vote
// request across the proposal store and the ledger client, enforcing
// at-most-one-vote-per-user in the authoritative store with best-effort
// mirroring to the chain.
//
// The ordering is deliberate: the store-side duplicate check always runs
// first, all ledger work happens next, and the store commit happens last.
// A ledger failure therefore never leaves the store mutated. The reverse
// divergence, a vote confirmed on-chain that then fails to persist, cannot
// be repaired automatically and is surfaced for the operator.
package vote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/civicledger/participation/business/core/proposal"
	"github.com/civicledger/participation/foundation/ledger"
	"go.uber.org/zap"
)

// Set of error variables for the coordinator.
var (
	ErrNotFound          = errors.New("proposal not found")
	ErrAlreadyVoted      = errors.New("user has already voted")
	ErrProposalNotActive = errors.New("proposal is not active on the ledger")
	ErrLedgerTxFailed    = errors.New("ledger transaction failed")
	ErrStorePersist      = errors.New("vote confirmed on ledger but store commit failed")
)

// Ledger is the contract the coordinator needs from the chain client.
type Ledger interface {
	IsProposalActive(ctx context.Context, proposalID uint64) bool
	HasVoted(ctx context.Context, proposalID uint64, wallet string) (bool, error)
	SubmitVote(ctx context.Context, proposalID uint64) (string, error)
	AwaitConfirmation(ctx context.Context, txHash string) (ledger.Receipt, error)
}

// Storer is the contract the coordinator needs from the proposal store. The
// proposal core implements it; no other component mutates vote state.
type Storer interface {
	QueryByID(ctx context.Context, proposalID uint64) (proposal.Proposal, error)
	HasUserVoted(ctx context.Context, proposalID uint64, userID uint64) (bool, error)
	CommitVote(ctx context.Context, proposalID uint64, userID uint64, wallet string, txHash string, now time.Time) (int, error)
}

// EventHandler is called with vote activity for logging and client streams.
type EventHandler func(kind string, proposalID uint64, format string, args ...any)

// CastVote is the input to the coordinator: who is voting on what, and
// optionally the wallet address that opts the vote into ledger mirroring.
type CastVote struct {
	ProposalID    uint64
	UserID        uint64
	WalletAddress string
}

// Result carries the outcome of a successful vote.
type Result struct {
	VoteCount int
	TxHash    string
}

// Config holds the coordinator's collaborators and timeout policy.
type Config struct {
	Log            *zap.SugaredLogger
	Store          Storer
	Ledger         Ledger
	EvHandler      EventHandler
	QueryTimeout   time.Duration
	ConfirmTimeout time.Duration
}

// voteKey identifies an in-flight vote for the per-pair guard.
type voteKey struct {
	proposalID uint64
	userID     uint64
}

// lockRef is a reference counted mutex held while a (proposal, user) vote
// is in flight.
type lockRef struct {
	mu   sync.Mutex
	refs int
}

// Core coordinates vote requests across the store and the ledger.
type Core struct {
	log            *zap.SugaredLogger
	store          Storer
	ledger         Ledger
	ev             EventHandler
	queryTimeout   time.Duration
	confirmTimeout time.Duration

	mu       sync.Mutex
	inflight map[voteKey]*lockRef
}

// NewCore constructs a vote coordinator.
func NewCore(cfg Config) *Core {
	queryTimeout := cfg.QueryTimeout
	if queryTimeout == 0 {
		queryTimeout = 10 * time.Second
	}
	confirmTimeout := cfg.ConfirmTimeout
	if confirmTimeout == 0 {
		confirmTimeout = 90 * time.Second
	}

	ev := cfg.EvHandler
	if ev == nil {
		ev = func(string, uint64, string, ...any) {}
	}

	return &Core{
		log:            cfg.Log,
		store:          cfg.Store,
		ledger:         cfg.Ledger,
		ev:             ev,
		queryTimeout:   queryTimeout,
		confirmTimeout: confirmTimeout,
		inflight:       make(map[voteKey]*lockRef),
	}
}

// Cast records a vote for the user on the proposal. Supplying a wallet
// address additionally mirrors the vote on the ledger; the store commit then
// waits for on-chain confirmation. At most one Cast per (proposal, user)
// makes progress at a time, so two concurrent requests from the same user
// cannot both reach the ledger.
func (c *Core) Cast(ctx context.Context, cv CastVote) (Result, error) {
	release := c.acquire(voteKey{cv.ProposalID, cv.UserID})
	defer release()

	// Step 1: the proposal must exist in the store.
	if _, err := c.store.QueryByID(ctx, cv.ProposalID); err != nil {
		if errors.Is(err, proposal.ErrNotFound) {
			return Result{}, ErrNotFound
		}
		return Result{}, fmt.Errorf("loading proposal %d: %w", cv.ProposalID, err)
	}

	// Step 2: the store-authoritative duplicate check always runs,
	// wallet or not.
	voted, err := c.store.HasUserVoted(ctx, cv.ProposalID, cv.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("checking prior vote: %w", err)
	}
	if voted {
		return Result{}, ErrAlreadyVoted
	}

	// Step 3: ledger mirroring, only when the voter supplied a wallet.
	// Nothing in this block mutates the store, so a failure or a client
	// disconnect here rejects the vote cleanly.
	var txHash string
	if cv.WalletAddress != "" {
		txHash, err = c.mirrorOnLedger(ctx, cv)
		if err != nil {
			return Result{}, err
		}
	}

	// Step 4: atomic store commit. The commit runs on a context detached
	// from client cancellation: once a ledger transaction is confirmed the
	// store write must not be abandoned mid-flight.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.queryTimeout)
	defer cancel()

	voteCount, err := c.store.CommitVote(commitCtx, cv.ProposalID, cv.UserID, cv.WalletAddress, txHash, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, proposal.ErrDuplicateVote):
			return Result{}, ErrAlreadyVoted
		case errors.Is(err, proposal.ErrNotFound):
			return Result{}, ErrNotFound
		}

		if txHash != "" {

			// The vote exists on an immutable ledger but not locally. No
			// automated path repairs this; it needs operator reconciliation.
			c.log.Errorw("LEDGER/STORE DIVERGENCE", "proposalID", cv.ProposalID, "userID", cv.UserID,
				"wallet", cv.WalletAddress, "txhash", txHash, "ERROR", err)
			return Result{}, fmt.Errorf("%w: tx %s: %s", ErrStorePersist, txHash, err)
		}

		return Result{}, fmt.Errorf("committing vote: %w", err)
	}

	c.ev("vote", cv.ProposalID, "vote: user %d voted on proposal %d, count %d", cv.UserID, cv.ProposalID, voteCount)

	return Result{VoteCount: voteCount, TxHash: txHash}, nil
}

// mirrorOnLedger runs the ledger side of a wallet vote: active check, chain
// duplicate check, transaction submission, and confirmation wait.
func (c *Core) mirrorOnLedger(ctx context.Context, cv CastVote) (string, error) {

	// Step 3a: the proposal must be registered and active on-chain. The
	// check fails closed inside the client, so an unreachable ledger
	// rejects the vote rather than double counting later.
	activeCtx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	active := c.ledger.IsProposalActive(activeCtx, cv.ProposalID)
	cancel()
	if !active {
		return "", ErrProposalNotActive
	}

	// Step 3b: the chain's own duplicate check. The store commit in step 4
	// is not transactional with the chain vote, so this native check is
	// what prevents a wallet from voting twice on-chain.
	votedCtx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	hasVoted, err := c.ledger.HasVoted(votedCtx, cv.ProposalID, cv.WalletAddress)
	cancel()
	if err != nil {
		return "", fmt.Errorf("%w: checking wallet vote: %s", ErrLedgerTxFailed, err)
	}
	if hasVoted {
		return "", ErrAlreadyVoted
	}

	// Step 3c: submit and wait to be mined. This is the dominant latency
	// of the whole request.
	submitCtx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	txHash, err := c.ledger.SubmitVote(submitCtx, cv.ProposalID)
	cancel()
	if err != nil {
		return "", fmt.Errorf("%w: submitting: %s", ErrLedgerTxFailed, err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	_, err = c.ledger.AwaitConfirmation(confirmCtx, txHash)
	cancel()
	if err != nil {
		return "", fmt.Errorf("%w: confirming tx %s: %s", ErrLedgerTxFailed, txHash, err)
	}

	return txHash, nil
}

// acquire takes the in-flight lock for the pair and returns the release
// function.
func (c *Core) acquire(k voteKey) func() {
	c.mu.Lock()
	ref, exists := c.inflight[k]
	if !exists {
		ref = &lockRef{}
		c.inflight[k] = ref
	}
	ref.refs++
	c.mu.Unlock()

	ref.mu.Lock()

	return func() {
		ref.mu.Unlock()

		c.mu.Lock()
		ref.refs--
		if ref.refs == 0 {
			delete(c.inflight, k)
		}
		c.mu.Unlock()
	}
}
