package vote_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/civicledger/participation/business/core/proposal"
	"github.com/civicledger/participation/business/core/user"
	"github.com/civicledger/participation/business/core/vote"
	"github.com/civicledger/participation/business/sys/database/dbtest"
	"github.com/civicledger/participation/foundation/ledger"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

// testTxHash is the transaction hash the fake ledger reports for every
// accepted submission.
const testTxHash = "0x1111111111111111111111111111111111111111111111111111111111111111"

// fakeLedger stands in for the chain client so the coordinator's ordering
// can be exercised without a node.
type fakeLedger struct {
	active      bool
	hasVoted    bool
	hasVotedErr error
	submitErr   error
	confirmErr  error

	submits int32
}

func (f *fakeLedger) IsProposalActive(ctx context.Context, proposalID uint64) bool {
	return f.active
}

func (f *fakeLedger) HasVoted(ctx context.Context, proposalID uint64, wallet string) (bool, error) {
	return f.hasVoted, f.hasVotedErr
}

func (f *fakeLedger) SubmitVote(ctx context.Context, proposalID uint64) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	atomic.AddInt32(&f.submits, 1)
	return testTxHash, nil
}

func (f *fakeLedger) AwaitConfirmation(ctx context.Context, txHash string) (ledger.Receipt, error) {
	if f.confirmErr != nil {
		return ledger.Receipt{}, f.confirmErr
	}
	return ledger.Receipt{TxHash: txHash, BlockNumber: 1}, nil
}

// brokenStore serves reads from the real proposal core but fails every
// commit, standing in for a store outage after the ledger confirmed.
type brokenStore struct {
	proposal.Core
	commitErr error
}

func (s *brokenStore) CommitVote(ctx context.Context, proposalID uint64, userID uint64, wallet string, txHash string, now time.Time) (int, error) {
	return 0, s.commitErr
}

// =============================================================================

type harness struct {
	core    *vote.Core
	store   proposal.Core
	ledger  *fakeLedger
	db      *sql.DB
	log     *zap.SugaredLogger
	userID  uint64
	propID  uint64
	userID2 uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, log := dbtest.New(t)

	usrCore := user.NewCore(log, db)
	prpCore := proposal.NewCore(log, db, usrCore)

	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	voter, err := usrCore.Create(ctx, user.NewUser{Username: "voter", Email: "voter@example.com"}, now)
	if err != nil {
		t.Fatalf("creating voter: %s", err)
	}
	voter2, err := usrCore.Create(ctx, user.NewUser{Username: "voter2", Email: "voter2@example.com"}, now)
	if err != nil {
		t.Fatalf("creating second voter: %s", err)
	}

	prp, err := prpCore.Create(ctx, proposal.NewProposal{
		UserID:   voter.ID,
		Title:    "자전거 도로 확충",
		Category: "SOC",
	}, now)
	if err != nil {
		t.Fatalf("creating proposal: %s", err)
	}

	lgr := &fakeLedger{active: true}

	core := vote.NewCore(vote.Config{
		Log:    log,
		Store:  prpCore,
		Ledger: lgr,
	})

	return &harness{
		core:    core,
		store:   prpCore,
		ledger:  lgr,
		db:      db,
		log:     log,
		userID:  voter.ID,
		userID2: voter2.ID,
		propID:  prp.ID,
	}
}

func (h *harness) voteCount(t *testing.T) int {
	t.Helper()

	prp, err := h.store.QueryByID(context.Background(), h.propID)
	if err != nil {
		t.Fatalf("querying proposal: %s", err)
	}
	return prp.VoteCount
}

// checkInvariant asserts directly in SQL that every proposal's counter
// matches its vote rows.
func (h *harness) checkInvariant(t *testing.T) {
	t.Helper()

	const q = `
	SELECT COUNT(*)
	FROM proposals p
	WHERE p.vote_count <> (SELECT COUNT(*) FROM proposal_votes v WHERE v.proposal_id = p.id)`

	var broken int
	if err := h.db.QueryRowContext(context.Background(), q).Scan(&broken); err != nil {
		t.Fatalf("checking vote count invariant: %s", err)
	}
	if broken != 0 {
		t.Fatalf("vote_count out of sync with vote rows on %d proposals", broken)
	}
}

// =============================================================================

func Test_StoreOnlyVote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Log("Given the need to record votes without a wallet.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a user votes for the first time.", testID)
		{
			res, err := h.core.Cast(ctx, vote.CastVote{ProposalID: h.propID, UserID: h.userID})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to cast the vote: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to cast the vote.", success, testID)

			if res.VoteCount != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould get a vote count of 1: got %d.", failed, testID, res.VoteCount)
			}
			t.Logf("\t%s\tTest %d:\tShould get a vote count of 1.", success, testID)

			if res.TxHash != "" {
				t.Errorf("\t%s\tTest %d:\tShould not have a transaction hash: got %q.", failed, testID, res.TxHash)
			} else {
				t.Logf("\t%s\tTest %d:\tShould not have a transaction hash.", success, testID)
			}

			if n := atomic.LoadInt32(&h.ledger.submits); n != 0 {
				t.Errorf("\t%s\tTest %d:\tShould not touch the ledger: %d submissions.", failed, testID, n)
			} else {
				t.Logf("\t%s\tTest %d:\tShould not touch the ledger.", success, testID)
			}
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen the same user votes again.", testID)
		{
			if _, err := h.core.Cast(ctx, vote.CastVote{ProposalID: h.propID, UserID: h.userID}); !errors.Is(err, vote.ErrAlreadyVoted) {
				t.Fatalf("\t%s\tTest %d:\tShould get ErrAlreadyVoted: got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get ErrAlreadyVoted.", success, testID)

			if count := h.voteCount(t); count != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould keep the vote count at 1: got %d.", failed, testID, count)
			}
			t.Logf("\t%s\tTest %d:\tShould keep the vote count at 1.", success, testID)
		}

		testID = 2
		t.Logf("\tTest %d:\tWhen voting on a proposal that does not exist.", testID)
		{
			if _, err := h.core.Cast(ctx, vote.CastVote{ProposalID: 9999, UserID: h.userID2}); !errors.Is(err, vote.ErrNotFound) {
				t.Fatalf("\t%s\tTest %d:\tShould get ErrNotFound: got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get ErrNotFound.", success, testID)
		}
	}

	h.checkInvariant(t)
}

func Test_WalletVote(t *testing.T) {
	const wallet = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"

	t.Log("Given the need to mirror wallet votes on the ledger.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the ledger confirms the transaction.", testID)
		{
			h := newHarness(t)

			res, err := h.core.Cast(context.Background(), vote.CastVote{
				ProposalID:    h.propID,
				UserID:        h.userID,
				WalletAddress: wallet,
			})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to cast the vote: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to cast the vote.", success, testID)

			if res.TxHash == "" {
				t.Fatalf("\t%s\tTest %d:\tShould get the transaction hash back.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould get the transaction hash back.", success, testID)

			if res.VoteCount != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould get a vote count of 1: got %d.", failed, testID, res.VoteCount)
			}
			t.Logf("\t%s\tTest %d:\tShould get a vote count of 1.", success, testID)

			h.checkInvariant(t)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen the proposal is not active on the ledger.", testID)
		{
			h := newHarness(t)
			h.ledger.active = false

			_, err := h.core.Cast(context.Background(), vote.CastVote{
				ProposalID:    h.propID,
				UserID:        h.userID,
				WalletAddress: wallet,
			})
			if !errors.Is(err, vote.ErrProposalNotActive) {
				t.Fatalf("\t%s\tTest %d:\tShould get ErrProposalNotActive: got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get ErrProposalNotActive.", success, testID)

			if count := h.voteCount(t); count != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not change the vote count: got %d.", failed, testID, count)
			}
			t.Logf("\t%s\tTest %d:\tShould not change the vote count.", success, testID)

			h.checkInvariant(t)
		}

		testID = 2
		t.Logf("\tTest %d:\tWhen the wallet already voted on-chain.", testID)
		{
			h := newHarness(t)
			h.ledger.hasVoted = true

			_, err := h.core.Cast(context.Background(), vote.CastVote{
				ProposalID:    h.propID,
				UserID:        h.userID,
				WalletAddress: wallet,
			})
			if !errors.Is(err, vote.ErrAlreadyVoted) {
				t.Fatalf("\t%s\tTest %d:\tShould get ErrAlreadyVoted: got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get ErrAlreadyVoted.", success, testID)

			if count := h.voteCount(t); count != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not change the vote count: got %d.", failed, testID, count)
			}
			t.Logf("\t%s\tTest %d:\tShould not change the vote count.", success, testID)

			h.checkInvariant(t)
		}

		testID = 3
		t.Logf("\tTest %d:\tWhen the ledger submission fails.", testID)
		{
			h := newHarness(t)
			h.ledger.submitErr = errors.New("nonce too low")

			_, err := h.core.Cast(context.Background(), vote.CastVote{
				ProposalID:    h.propID,
				UserID:        h.userID,
				WalletAddress: wallet,
			})
			if !errors.Is(err, vote.ErrLedgerTxFailed) {
				t.Fatalf("\t%s\tTest %d:\tShould get ErrLedgerTxFailed: got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get ErrLedgerTxFailed.", success, testID)

			if count := h.voteCount(t); count != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not change the vote count: got %d.", failed, testID, count)
			}
			t.Logf("\t%s\tTest %d:\tShould not change the vote count.", success, testID)

			h.checkInvariant(t)
		}

		testID = 4
		t.Logf("\tTest %d:\tWhen the chain duplicate check cannot be answered.", testID)
		{
			h := newHarness(t)
			h.ledger.hasVotedErr = errors.New("rpc timeout")

			_, err := h.core.Cast(context.Background(), vote.CastVote{
				ProposalID:    h.propID,
				UserID:        h.userID,
				WalletAddress: wallet,
			})
			if !errors.Is(err, vote.ErrLedgerTxFailed) {
				t.Fatalf("\t%s\tTest %d:\tShould get ErrLedgerTxFailed: got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get ErrLedgerTxFailed.", success, testID)

			if n := atomic.LoadInt32(&h.ledger.submits); n != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not submit a transaction: got %d.", failed, testID, n)
			}
			t.Logf("\t%s\tTest %d:\tShould not submit a transaction.", success, testID)

			if count := h.voteCount(t); count != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not change the vote count: got %d.", failed, testID, count)
			}
			t.Logf("\t%s\tTest %d:\tShould not change the vote count.", success, testID)

			h.checkInvariant(t)
		}

		testID = 5
		t.Logf("\tTest %d:\tWhen the transaction is mined but reverts.", testID)
		{
			h := newHarness(t)
			h.ledger.confirmErr = ledger.ErrRejected

			_, err := h.core.Cast(context.Background(), vote.CastVote{
				ProposalID:    h.propID,
				UserID:        h.userID,
				WalletAddress: wallet,
			})
			if !errors.Is(err, vote.ErrLedgerTxFailed) {
				t.Fatalf("\t%s\tTest %d:\tShould get ErrLedgerTxFailed: got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get ErrLedgerTxFailed.", success, testID)

			if count := h.voteCount(t); count != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not change the vote count: got %d.", failed, testID, count)
			}
			t.Logf("\t%s\tTest %d:\tShould not change the vote count.", success, testID)

			h.checkInvariant(t)
		}
	}
}

func Test_StorePersistFailure(t *testing.T) {
	const wallet = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"

	h := newHarness(t)

	// The coordinator runs against a store whose commit fails after the
	// ledger transaction is already confirmed.
	store := &brokenStore{
		Core:      h.store,
		commitErr: errors.New("disk I/O error"),
	}

	core := vote.NewCore(vote.Config{
		Log:    h.log,
		Store:  store,
		Ledger: h.ledger,
	})

	t.Log("Given the need to surface a store failure after ledger confirmation.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the store commit fails after the transaction is mined.", testID)
		{
			_, err := core.Cast(context.Background(), vote.CastVote{
				ProposalID:    h.propID,
				UserID:        h.userID,
				WalletAddress: wallet,
			})
			if !errors.Is(err, vote.ErrStorePersist) {
				t.Fatalf("\t%s\tTest %d:\tShould get ErrStorePersist: got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get ErrStorePersist.", success, testID)

			if !strings.Contains(err.Error(), testTxHash) {
				t.Fatalf("\t%s\tTest %d:\tShould carry the tx hash for the operator: got %q.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould carry the tx hash for the operator.", success, testID)

			if n := atomic.LoadInt32(&h.ledger.submits); n != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould have submitted the ledger transaction: got %d.", failed, testID, n)
			}
			t.Logf("\t%s\tTest %d:\tShould have submitted the ledger transaction.", success, testID)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen the store commit fails with no ledger involvement.", testID)
		{
			if _, err := core.Cast(context.Background(), vote.CastVote{
				ProposalID: h.propID,
				UserID:     h.userID2,
			}); errors.Is(err, vote.ErrStorePersist) {
				t.Fatalf("\t%s\tTest %d:\tShould not report divergence without a ledger tx: got %v.", failed, testID, err)
			} else if err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould fail the vote.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not report divergence without a ledger tx.", success, testID)
		}
	}
}

func Test_MixedVoters(t *testing.T) {
	const wallet = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"

	h := newHarness(t)
	ctx := context.Background()

	t.Log("Given the need to handle wallet and store-only voters on one proposal.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a store-only voter and a wallet voter both vote.", testID)
		{
			res, err := h.core.Cast(ctx, vote.CastVote{ProposalID: h.propID, UserID: h.userID})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the store-only vote: %v", failed, testID, err)
			}
			if res.VoteCount != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould have a vote count of 1: got %d.", failed, testID, res.VoteCount)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the store-only vote.", success, testID)

			if _, err := h.core.Cast(ctx, vote.CastVote{ProposalID: h.propID, UserID: h.userID}); !errors.Is(err, vote.ErrAlreadyVoted) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the repeat vote: got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the repeat vote.", success, testID)

			// The second user's wallet vote fails while the proposal is not
			// yet active on the ledger.
			h.ledger.active = false
			_, err = h.core.Cast(ctx, vote.CastVote{ProposalID: h.propID, UserID: h.userID2, WalletAddress: wallet})
			if !errors.Is(err, vote.ErrProposalNotActive) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the wallet vote while inactive: got %v.", failed, testID, err)
			}
			if count := h.voteCount(t); count != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould keep the vote count at 1: got %d.", failed, testID, count)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the wallet vote while inactive.", success, testID)

			// Once active, the same wallet vote goes through.
			h.ledger.active = true
			res, err = h.core.Cast(ctx, vote.CastVote{ProposalID: h.propID, UserID: h.userID2, WalletAddress: wallet})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the wallet vote once active: %v", failed, testID, err)
			}
			if res.VoteCount != 2 || res.TxHash == "" {
				t.Fatalf("\t%s\tTest %d:\tShould get count 2 with a tx hash: got %d, %q.", failed, testID, res.VoteCount, res.TxHash)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the wallet vote once active.", success, testID)

			voted, err := h.store.HasUserVoted(ctx, h.propID, h.userID2)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to check the vote: %v", failed, testID, err)
			}
			if !voted {
				t.Fatalf("\t%s\tTest %d:\tShould report the wallet voter as having voted.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould report the wallet voter as having voted.", success, testID)

			h.checkInvariant(t)
		}
	}
}

func Test_ConcurrentVotes(t *testing.T) {
	const wallet = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
	const goroutines = 50

	h := newHarness(t)
	ctx := context.Background()

	t.Log("Given the need to serialize concurrent votes from one user.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen %d goroutines vote for the same pair.", testID, goroutines)
		{
			var wg sync.WaitGroup
			var successes, duplicates int32

			for i := 0; i < goroutines; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()

					_, err := h.core.Cast(ctx, vote.CastVote{
						ProposalID:    h.propID,
						UserID:        h.userID,
						WalletAddress: wallet,
					})
					switch {
					case err == nil:
						atomic.AddInt32(&successes, 1)
					case errors.Is(err, vote.ErrAlreadyVoted):
						atomic.AddInt32(&duplicates, 1)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()

			if successes != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould have exactly one success: got %d.", failed, testID, successes)
			}
			t.Logf("\t%s\tTest %d:\tShould have exactly one success.", success, testID)

			if duplicates != goroutines-1 {
				t.Fatalf("\t%s\tTest %d:\tShould reject the rest as duplicates: got %d.", failed, testID, duplicates)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the rest as duplicates.", success, testID)

			if n := atomic.LoadInt32(&h.ledger.submits); n != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould submit exactly one ledger transaction: got %d.", failed, testID, n)
			}
			t.Logf("\t%s\tTest %d:\tShould submit exactly one ledger transaction.", success, testID)

			if count := h.voteCount(t); count != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould have a vote count of 1: got %d.", failed, testID, count)
			}
			t.Logf("\t%s\tTest %d:\tShould have a vote count of 1.", success, testID)

			h.checkInvariant(t)
		}
	}
}
