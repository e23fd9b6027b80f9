// Package proposalgrp maintains the group of handlers for proposal
// submission and voting.
package proposalgrp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/civicledger/participation/business/core/proposal"
	"github.com/civicledger/participation/business/core/vote"
	v1 "github.com/civicledger/participation/business/web/v1"
	"github.com/civicledger/participation/foundation/ledger"
	"github.com/civicledger/participation/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of proposal endpoints.
type Handlers struct {
	Log      *zap.SugaredLogger
	Proposal proposal.Core
	Vote     *vote.Core
	Ledger   *ledger.Ledger
}

// Create submits a new proposal. The proposal is persisted synchronously;
// its on-chain registration happens in the background.
func (h Handlers) Create(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var np newProposal
	if err := web.Decode(r, &np); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	h.Log.Infow("submit proposal", "traceid", v.TraceID, "userID", np.UserID, "category", np.Category)

	prp, err := h.Proposal.Create(ctx, proposal.NewProposal{
		UserID:      np.UserID,
		Title:       np.Title,
		Description: np.Description,
		Category:    np.Category,
		ImageURL:    np.ImageURL,
	}, v.Now)
	if err != nil {
		if errors.Is(err, proposal.ErrUserNotFound) {
			return v1.NewRequestError(err, http.StatusNotFound)
		}
		return fmt.Errorf("creating proposal: %w", err)
	}

	return web.Respond(ctx, w, prp, http.StatusCreated)
}

// Query returns all proposals, newest first.
func (h Handlers) Query(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	prps, err := h.Proposal.Query(ctx)
	if err != nil {
		return fmt.Errorf("querying proposals: %w", err)
	}

	return web.Respond(ctx, w, prps, http.StatusOK)
}

// QueryByID returns a proposal with its voter identities and wallets.
func (h Handlers) QueryByID(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	proposalID, err := parseID(r, "id")
	if err != nil {
		return err
	}

	prp, err := h.Proposal.QueryByID(ctx, proposalID)
	if err != nil {
		if errors.Is(err, proposal.ErrNotFound) {
			return v1.NewRequestError(err, http.StatusNotFound)
		}
		return fmt.Errorf("querying proposal %d: %w", proposalID, err)
	}

	return web.Respond(ctx, w, prp, http.StatusOK)
}

// QueryByUser returns the proposals submitted by a user.
func (h Handlers) QueryByUser(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	userID, err := parseID(r, "id")
	if err != nil {
		return err
	}

	prps, err := h.Proposal.QueryByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("querying proposals for user %d: %w", userID, err)
	}

	return web.Respond(ctx, w, prps, http.StatusOK)
}

// Cast records a vote for the authenticated user, optionally mirroring it
// on the ledger when a wallet address is supplied.
func (h Handlers) Cast(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	proposalID, err := parseID(r, "id")
	if err != nil {
		return err
	}

	var cv castVote
	if err := web.Decode(r, &cv); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	h.Log.Infow("cast vote", "traceid", v.TraceID, "proposalID", proposalID, "userID", cv.UserID,
		"wallet", cv.WalletAddress)

	result, err := h.Vote.Cast(ctx, vote.CastVote{
		ProposalID:    proposalID,
		UserID:        cv.UserID,
		WalletAddress: cv.WalletAddress,
	})
	if err != nil {
		switch {
		case errors.Is(err, vote.ErrNotFound):
			return v1.NewRequestError(err, http.StatusNotFound)
		case errors.Is(err, vote.ErrAlreadyVoted):
			return v1.NewRequestError(err, http.StatusConflict)
		case errors.Is(err, vote.ErrProposalNotActive):
			return v1.NewRequestError(err, http.StatusUnprocessableEntity)
		case errors.Is(err, vote.ErrLedgerTxFailed):
			return v1.NewRequestError(err, http.StatusBadGateway)
		}
		return fmt.Errorf("casting vote: %w", err)
	}

	resp := voteResult{
		VoteCount: result.VoteCount,
		TxHash:    result.TxHash,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// HasUserVoted reports the store-side vote state for a user.
func (h Handlers) HasUserVoted(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	proposalID, err := parseID(r, "id")
	if err != nil {
		return err
	}
	userID, err := parseID(r, "userid")
	if err != nil {
		return err
	}

	voted, err := h.Proposal.HasUserVoted(ctx, proposalID, userID)
	if err != nil {
		return fmt.Errorf("querying vote state: %w", err)
	}

	return web.Respond(ctx, w, hasVoted{HasVoted: voted}, http.StatusOK)
}

// WalletVoted reports the ledger-side vote state for a wallet address.
func (h Handlers) WalletVoted(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	proposalID, err := parseID(r, "id")
	if err != nil {
		return err
	}
	address := web.Param(r, "address")

	voted, err := h.Ledger.HasVoted(ctx, proposalID, address)
	if err != nil {
		return v1.NewRequestError(fmt.Errorf("querying wallet vote state: %w", err), http.StatusBadGateway)
	}

	return web.Respond(ctx, w, hasVoted{HasVoted: voted}, http.StatusOK)
}

// =============================================================================

func parseID(r *http.Request, param string) (uint64, error) {
	id, err := strconv.ParseUint(web.Param(r, param), 10, 64)
	if err != nil {
		return 0, v1.NewRequestError(fmt.Errorf("invalid %s", param), http.StatusBadRequest)
	}
	return id, nil
}
