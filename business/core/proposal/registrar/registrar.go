// Package registrar implements the background worker that registers
// proposals on the ledger. Submissions enqueue a registration row; this
// worker drains the queue with bounded retries so a chain outage never
// blocks or fails a submission, and every registration survives a process
// restart. Proposals whose registration is parked as failed stay fully
// votable through the store-only path.
package registrar

import (
	"context"
	"sync"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/civicledger/participation/business/core/proposal"
	"github.com/civicledger/participation/foundation/ledger"
	"go.uber.org/zap"
)

// Store is the registration queue contract, satisfied by the proposal core.
type Store interface {
	QueryPendingRegistrations(ctx context.Context, limit int) ([]proposal.Registration, error)
	QueryByID(ctx context.Context, proposalID uint64) (proposal.Proposal, error)
	MarkRegistered(ctx context.Context, proposalID uint64, txHash string, now time.Time) error
	RecordRegistrationFailure(ctx context.Context, proposalID uint64, cause string, final bool, now time.Time) error
}

// Ledger is the chain contract the registrar needs.
type Ledger interface {
	RegisterProposal(ctx context.Context, proposalID uint64, title string) (string, error)
	AwaitConfirmation(ctx context.Context, txHash string) (ledger.Receipt, error)
}

// EventHandler is called with registration activity.
type EventHandler func(kind string, proposalID uint64, format string, args ...any)

// Config holds the registrar's collaborators and policy.
type Config struct {
	Log            *zap.SugaredLogger
	Store          Store
	Ledger         Ledger
	EvHandler      EventHandler
	Interval       time.Duration
	Batch          int
	MaxAttempts    int
	ConfirmTimeout time.Duration
}

// Registrar drains the ledger registration queue in the background.
type Registrar struct {
	log            *zap.SugaredLogger
	store          Store
	ledger         Ledger
	ev             EventHandler
	interval       time.Duration
	batch          int
	maxAttempts    int
	confirmTimeout time.Duration
	wg             sync.WaitGroup
	shut           chan struct{}
}

// Run creates a registrar and starts the background processing G.
func Run(cfg Config) *Registrar {
	interval := cfg.Interval
	if interval == 0 {
		interval = 10 * time.Second
	}
	batch := cfg.Batch
	if batch == 0 {
		batch = 10
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 5
	}
	confirmTimeout := cfg.ConfirmTimeout
	if confirmTimeout == 0 {
		confirmTimeout = 90 * time.Second
	}
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(string, uint64, string, ...any) {}
	}

	r := Registrar{
		log:            cfg.Log,
		store:          cfg.Store,
		ledger:         cfg.Ledger,
		ev:             ev,
		interval:       interval,
		batch:          batch,
		maxAttempts:    maxAttempts,
		confirmTimeout: confirmTimeout,
		shut:           make(chan struct{}),
	}

	r.wg.Add(1)

	// We don't want to return until we know the G is up and running.
	hasStarted := make(chan bool)

	go func() {
		defer r.wg.Done()
		hasStarted <- true
		r.processLoop()
	}()

	<-hasStarted

	return &r
}

// Shutdown terminates the goroutine performing work.
func (r *Registrar) Shutdown() {
	r.log.Infow("registrar: shutdown started")
	defer r.log.Infow("registrar: shutdown complete")

	close(r.shut)
	r.wg.Wait()
}

// Drain processes the pending queue once, synchronously. The background
// loop uses it on every tick; tests and tooling call it directly.
func (r *Registrar) Drain(ctx context.Context) {
	regs, err := r.store.QueryPendingRegistrations(ctx, r.batch)
	if err != nil {
		r.log.Errorw("registrar: querying pending registrations", "ERROR", err)
		return
	}

	for _, reg := range regs {
		select {
		case <-r.shut:
			return
		default:
		}

		r.register(ctx, reg)
	}
}

// =============================================================================

// processLoop wakes on every tick and drains the pending queue.
func (r *Registrar) processLoop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.interval+r.confirmTimeout)
			r.Drain(ctx)
			cancel()

		case <-r.shut:
			return
		}
	}
}

// register performs one registration attempt for the proposal, retrying
// transient failures in-call before recording the outcome.
func (r *Registrar) register(ctx context.Context, reg proposal.Registration) {
	prp, err := r.store.QueryByID(ctx, reg.ProposalID)
	if err != nil {
		r.log.Errorw("registrar: loading proposal", "proposalID", reg.ProposalID, "ERROR", err)
		return
	}

	var txHash string
	action := func(attempt uint) error {
		var err error
		txHash, err = r.ledger.RegisterProposal(ctx, prp.ID, prp.Title)
		if err != nil {
			return err
		}

		confirmCtx, cancel := context.WithTimeout(ctx, r.confirmTimeout)
		defer cancel()

		_, err = r.ledger.AwaitConfirmation(confirmCtx, txHash)
		return err
	}

	err = retry.Retry(action, strategy.Limit(3), strategy.Backoff(backoff.Fibonacci(time.Second)))
	now := time.Now()

	if err != nil {
		final := reg.Attempts+1 >= r.maxAttempts
		r.log.Errorw("registrar: registration attempt failed", "proposalID", prp.ID,
			"attempts", reg.Attempts+1, "final", final, "ERROR", err)

		if final {
			r.ev("registration_failed", prp.ID, "registrar: proposal %d parked after %d attempts", prp.ID, reg.Attempts+1)
		}

		if err := r.store.RecordRegistrationFailure(ctx, prp.ID, err.Error(), final, now); err != nil {
			r.log.Errorw("registrar: recording failure", "proposalID", prp.ID, "ERROR", err)
		}
		return
	}

	if err := r.store.MarkRegistered(ctx, prp.ID, txHash, now); err != nil {
		r.log.Errorw("registrar: marking registered", "proposalID", prp.ID, "txhash", txHash, "ERROR", err)
		return
	}

	r.ev("registered", prp.ID, "registrar: proposal %d registered on ledger, tx %s", prp.ID, txHash)
}
