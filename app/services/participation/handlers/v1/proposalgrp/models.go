package proposalgrp

import "github.com/civicledger/participation/business/sys/validate"

type newProposal struct {
	UserID      uint64 `json:"user_id" validate:"required,gt=0"`
	Title       string `json:"title" validate:"required,min=2,max=200"`
	Description string `json:"description" validate:"required"`
	Category    string `json:"category" validate:"required"`
	ImageURL    string `json:"image_url" validate:"omitempty,url"`
}

// Validate checks the data in the model is considered clean.
func (np newProposal) Validate() error {
	return validate.Check(np)
}

type castVote struct {
	UserID        uint64 `json:"user_id" validate:"required,gt=0"`
	WalletAddress string `json:"wallet_address" validate:"omitempty,eth_addr"`
}

// Validate checks the data in the model is considered clean.
func (cv castVote) Validate() error {
	return validate.Check(cv)
}

type voteResult struct {
	VoteCount int    `json:"vote_count"`
	TxHash    string `json:"tx_hash,omitempty"`
}

type hasVoted struct {
	HasVoted bool `json:"has_voted"`
}
