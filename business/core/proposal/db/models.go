package db

import "time"

// Proposal represents an individual proposal in the database.
type Proposal struct {
	ID          uint64
	Title       string
	Description string
	Category    string
	ImageURL    string
	UserID      uint64
	VoteCount   int
	CreatedAt   time.Time
}

// Registration represents the on-chain registration state for a proposal.
type Registration struct {
	ProposalID uint64
	Status     string
	Attempts   int
	LastError  string
	TxHash     string
	UpdatedAt  time.Time
}
