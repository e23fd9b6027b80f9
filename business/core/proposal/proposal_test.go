package proposal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/civicledger/participation/business/core/proposal"
	"github.com/civicledger/participation/business/core/user"
	"github.com/civicledger/participation/business/sys/database/dbtest"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_Proposal(t *testing.T) {
	db, log := dbtest.New(t)

	usrCore := user.NewCore(log, db)
	core := proposal.NewCore(log, db, usrCore)

	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	usr, err := usrCore.Create(ctx, user.NewUser{Username: "proposer", Email: "proposer@example.com"}, now)
	if err != nil {
		t.Fatalf("creating test user: %s", err)
	}

	t.Log("Given the need to work with proposal records.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen creating a proposal.", testID)
		{
			np := proposal.NewProposal{
				UserID:      usr.ID,
				Title:       "학교 도서관 확충",
				Description: "노후 도서관 시설을 개선합니다.",
				Category:    "교육",
			}

			prp, err := core.Create(ctx, np, now)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to create a proposal: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to create a proposal.", success, testID)

			if prp.ID == 0 {
				t.Fatalf("\t%s\tTest %d:\tShould get a non-zero id back.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould get a non-zero id back.", success, testID)

			if prp.VoteCount != 0 {
				t.Errorf("\t%s\tTest %d:\tShould start with a zero vote count: got %d.", failed, testID, prp.VoteCount)
			} else {
				t.Logf("\t%s\tTest %d:\tShould start with a zero vote count.", success, testID)
			}

			regs, err := core.QueryPendingRegistrations(ctx, 10)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to query pending registrations: %v", failed, testID, err)
			}
			if len(regs) != 1 || regs[0].ProposalID != prp.ID {
				t.Fatalf("\t%s\tTest %d:\tShould have enqueued a pending registration: got %+v.", failed, testID, regs)
			}
			t.Logf("\t%s\tTest %d:\tShould have enqueued a pending registration.", success, testID)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen creating a proposal for an unknown user.", testID)
		{
			np := proposal.NewProposal{
				UserID:   9999,
				Title:    "없는 사용자",
				Category: "교육",
			}

			if _, err := core.Create(ctx, np, now); !errors.Is(err, proposal.ErrUserNotFound) {
				t.Fatalf("\t%s\tTest %d:\tShould get ErrUserNotFound: got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get ErrUserNotFound.", success, testID)
		}

		testID = 2
		t.Logf("\tTest %d:\tWhen creating a proposal with an unknown category.", testID)
		{
			np := proposal.NewProposal{
				UserID:   usr.ID,
				Title:    "잘못된 분야",
				Category: "우주개발",
			}

			if _, err := core.Create(ctx, np, now); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject an unknown category.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject an unknown category.", success, testID)
		}
	}
}

func Test_CommitVote(t *testing.T) {
	db, log := dbtest.New(t)

	usrCore := user.NewCore(log, db)
	core := proposal.NewCore(log, db, usrCore)

	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	proposer, err := usrCore.Create(ctx, user.NewUser{Username: "proposer", Email: "proposer@example.com"}, now)
	if err != nil {
		t.Fatalf("creating proposer: %s", err)
	}
	voter, err := usrCore.Create(ctx, user.NewUser{Username: "voter", Email: "voter@example.com"}, now)
	if err != nil {
		t.Fatalf("creating voter: %s", err)
	}

	prp, err := core.Create(ctx, proposal.NewProposal{
		UserID:   proposer.ID,
		Title:    "버스 노선 확대",
		Category: "SOC",
	}, now)
	if err != nil {
		t.Fatalf("creating proposal: %s", err)
	}

	t.Log("Given the need to commit votes atomically.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a user votes for the first time.", testID)
		{
			count, err := core.CommitVote(ctx, prp.ID, voter.ID, "", "", now)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to commit the vote: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to commit the vote.", success, testID)

			if count != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould get a vote count of 1: got %d.", failed, testID, count)
			}
			t.Logf("\t%s\tTest %d:\tShould get a vote count of 1.", success, testID)

			voted, err := core.HasUserVoted(ctx, prp.ID, voter.ID)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to check the vote: %v", failed, testID, err)
			}
			if !voted {
				t.Fatalf("\t%s\tTest %d:\tShould report the user as having voted.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould report the user as having voted.", success, testID)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen the same user votes again.", testID)
		{
			if _, err := core.CommitVote(ctx, prp.ID, voter.ID, "", "", now); !errors.Is(err, proposal.ErrDuplicateVote) {
				t.Fatalf("\t%s\tTest %d:\tShould get ErrDuplicateVote: got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get ErrDuplicateVote.", success, testID)

			got, err := core.QueryByID(ctx, prp.ID)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to query the proposal: %v", failed, testID, err)
			}
			if got.VoteCount != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould keep the vote count at 1: got %d.", failed, testID, got.VoteCount)
			}
			t.Logf("\t%s\tTest %d:\tShould keep the vote count at 1.", success, testID)
		}

		testID = 2
		t.Logf("\tTest %d:\tWhen voting on a proposal that does not exist.", testID)
		{
			if _, err := core.CommitVote(ctx, 9999, voter.ID, "", "", now); !errors.Is(err, proposal.ErrNotFound) {
				t.Fatalf("\t%s\tTest %d:\tShould get ErrNotFound: got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get ErrNotFound.", success, testID)
		}

		testID = 3
		t.Logf("\tTest %d:\tWhen a wallet vote is committed.", testID)
		{
			prp2, err := core.Create(ctx, proposal.NewProposal{
				UserID:   proposer.ID,
				Title:    "하천 정비",
				Category: "환경",
			}, now)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to create a proposal: %v", failed, testID, err)
			}

			const wallet = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
			if _, err := core.CommitVote(ctx, prp2.ID, voter.ID, wallet, "0xabc123", now); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to commit the vote: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to commit the vote.", success, testID)

			got, err := core.QueryByID(ctx, prp2.ID)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to query the proposal: %v", failed, testID, err)
			}
			if len(got.VotedWallets) != 1 || got.VotedWallets[0] != wallet {
				t.Fatalf("\t%s\tTest %d:\tShould record the voting wallet: got %v.", failed, testID, got.VotedWallets)
			}
			t.Logf("\t%s\tTest %d:\tShould record the voting wallet.", success, testID)

			if len(got.Voters) != 1 || got.Voters[0] != voter.ID {
				t.Fatalf("\t%s\tTest %d:\tShould record the voter id: got %v.", failed, testID, got.Voters)
			}
			t.Logf("\t%s\tTest %d:\tShould record the voter id.", success, testID)
		}
	}
}
