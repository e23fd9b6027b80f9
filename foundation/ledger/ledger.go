// Package ledger provides a client for the Voting smart contract that
// mirrors proposals and votes on an external chain. The chain is a
// secondary, tamper evident record; the relational store stays the source
// of truth for the application.
package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// ErrRejected is returned when a broadcast transaction is mined but the
// contract reverted it.
var ErrRejected = errors.New("transaction rejected by contract")

// voteGasLimit bounds the gas for the simple write functions on the Voting
// contract. Both createProposal and vote stay well under this.
const voteGasLimit = 250_000

// Config represents the mandatory settings needed to work with the contract.
type Config struct {
	RPCURL          string
	ContractAddress string
	KeyPath         string
	ChainID         int64
	ConfirmInterval time.Duration
}

// Receipt captures the confirmation details for a mined transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

// Ledger manages all interaction with the Voting contract. The signing key
// is a single shared account, so transaction construction is serialized to
// keep nonces from colliding.
type Ledger struct {
	log             *zap.SugaredLogger
	client          *ethclient.Client
	contract        common.Address
	abi             abi.ABI
	privateKey      *ecdsa.PrivateKey
	from            common.Address
	chainID         *big.Int
	confirmInterval time.Duration
	nonceMu         sync.Mutex
}

// New constructs a Ledger for interacting with the Voting contract.
func New(log *zap.SugaredLogger, cfg Config) (*Ledger, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing rpc node: %w", err)
	}

	contractABI, err := abi.JSON(strings.NewReader(votingABI))
	if err != nil {
		return nil, fmt.Errorf("parsing contract abi: %w", err)
	}

	privateKey, err := crypto.LoadECDSA(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("unable to load private key for signing: %w", err)
	}

	confirmInterval := cfg.ConfirmInterval
	if confirmInterval == 0 {
		confirmInterval = 2 * time.Second
	}

	lgr := Ledger{
		log:             log,
		client:          client,
		contract:        common.HexToAddress(cfg.ContractAddress),
		abi:             contractABI,
		privateKey:      privateKey,
		from:            crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:         big.NewInt(cfg.ChainID),
		confirmInterval: confirmInterval,
	}

	return &lgr, nil
}

// Close releases the underlying rpc connection.
func (lgr *Ledger) Close() {
	lgr.client.Close()
}

// SigningAddress returns the address of the configured signing account.
func (lgr *Ledger) SigningAddress() string {
	return lgr.from.Hex()
}

// IsProposalActive reports whether the proposal exists on-chain and is open
// for voting. The check fails closed: any query error, or a proposal whose
// returned id does not match the requested one, reports inactive.
func (lgr *Ledger) IsProposalActive(ctx context.Context, proposalID uint64) bool {
	id, _, _, isActive, err := lgr.getProposal(ctx, proposalID)
	if err != nil {
		lgr.log.Infow("ledger: proposal active check failed closed", "proposalID", proposalID, "ERROR", err)
		return false
	}

	if id != proposalID {
		lgr.log.Infow("ledger: proposal id mismatch", "want", proposalID, "got", id)
		return false
	}

	return isActive
}

// HasVoted reports whether the specified wallet address already cast a vote
// for the proposal on-chain.
func (lgr *Ledger) HasVoted(ctx context.Context, proposalID uint64, wallet string) (bool, error) {
	input, err := lgr.abi.Pack("hasVoted", new(big.Int).SetUint64(proposalID), common.HexToAddress(wallet))
	if err != nil {
		return false, fmt.Errorf("packing hasVoted call: %w", err)
	}

	output, err := lgr.call(ctx, input)
	if err != nil {
		return false, fmt.Errorf("calling hasVoted: %w", err)
	}

	results, err := lgr.abi.Unpack("hasVoted", output)
	if err != nil {
		return false, fmt.Errorf("unpacking hasVoted result: %w", err)
	}

	voted, ok := results[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected hasVoted result type %T", results[0])
	}

	return voted, nil
}

// SubmitVote signs and broadcasts a vote transaction for the proposal using
// the configured signing account. The returned hash identifies the pending
// transaction; use AwaitConfirmation to wait for it to be mined.
func (lgr *Ledger) SubmitVote(ctx context.Context, proposalID uint64) (string, error) {
	input, err := lgr.abi.Pack("vote", new(big.Int).SetUint64(proposalID))
	if err != nil {
		return "", fmt.Errorf("packing vote call: %w", err)
	}

	return lgr.sendTransaction(ctx, input)
}

// RegisterProposal signs and broadcasts a createProposal transaction so the
// proposal exists on-chain and can receive mirrored votes.
func (lgr *Ledger) RegisterProposal(ctx context.Context, proposalID uint64, title string) (string, error) {
	input, err := lgr.abi.Pack("createProposal", new(big.Int).SetUint64(proposalID), title)
	if err != nil {
		return "", fmt.Errorf("packing createProposal call: %w", err)
	}

	return lgr.sendTransaction(ctx, input)
}

// AwaitConfirmation blocks until the transaction is mined or the context
// expires. A mined transaction that the contract reverted returns
// ErrRejected.
func (lgr *Ledger) AwaitConfirmation(ctx context.Context, txHash string) (Receipt, error) {
	hash := common.HexToHash(txHash)

	ticker := time.NewTicker(lgr.confirmInterval)
	defer ticker.Stop()

	for {
		receipt, err := lgr.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return Receipt{}, fmt.Errorf("tx %s: %w", txHash, ErrRejected)
			}
			return Receipt{
				TxHash:      txHash,
				BlockNumber: receipt.BlockNumber.Uint64(),
				GasUsed:     receipt.GasUsed,
			}, nil

		case errors.Is(err, ethereum.NotFound):
			// Not mined yet, keep waiting.

		default:
			return Receipt{}, fmt.Errorf("querying receipt for tx %s: %w", txHash, err)
		}

		select {
		case <-ctx.Done():
			return Receipt{}, fmt.Errorf("waiting for tx %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// ProposalVoteCount returns the on-chain vote count for the proposal. Used
// by operator tooling to detect store/ledger divergence.
func (lgr *Ledger) ProposalVoteCount(ctx context.Context, proposalID uint64) (uint64, error) {
	id, _, voteCount, _, err := lgr.getProposal(ctx, proposalID)
	if err != nil {
		return 0, err
	}

	if id != proposalID {
		return 0, fmt.Errorf("proposal id mismatch: want %d, got %d", proposalID, id)
	}

	return voteCount, nil
}

// =============================================================================

// getProposal performs the getProposal view call and unpacks the
// (id, title, voteCount, isActive) tuple.
func (lgr *Ledger) getProposal(ctx context.Context, proposalID uint64) (uint64, string, uint64, bool, error) {
	input, err := lgr.abi.Pack("getProposal", new(big.Int).SetUint64(proposalID))
	if err != nil {
		return 0, "", 0, false, fmt.Errorf("packing getProposal call: %w", err)
	}

	output, err := lgr.call(ctx, input)
	if err != nil {
		return 0, "", 0, false, fmt.Errorf("calling getProposal: %w", err)
	}

	results, err := lgr.abi.Unpack("getProposal", output)
	if err != nil {
		return 0, "", 0, false, fmt.Errorf("unpacking getProposal result: %w", err)
	}
	if len(results) != 4 {
		return 0, "", 0, false, fmt.Errorf("unexpected getProposal result arity %d", len(results))
	}

	id, ok := results[0].(*big.Int)
	if !ok {
		return 0, "", 0, false, fmt.Errorf("unexpected id type %T", results[0])
	}
	title, ok := results[1].(string)
	if !ok {
		return 0, "", 0, false, fmt.Errorf("unexpected title type %T", results[1])
	}
	voteCount, ok := results[2].(*big.Int)
	if !ok {
		return 0, "", 0, false, fmt.Errorf("unexpected voteCount type %T", results[2])
	}
	isActive, ok := results[3].(bool)
	if !ok {
		return 0, "", 0, false, fmt.Errorf("unexpected isActive type %T", results[3])
	}

	return id.Uint64(), title, voteCount.Uint64(), isActive, nil
}

// call executes a read-only contract call.
func (lgr *Ledger) call(ctx context.Context, input []byte) ([]byte, error) {
	msg := ethereum.CallMsg{
		From: lgr.from,
		To:   &lgr.contract,
		Data: input,
	}

	return lgr.client.CallContract(ctx, msg, nil)
}

// sendTransaction constructs, signs, and broadcasts a contract transaction.
// The signing account is shared across all callers, so nonce retrieval and
// broadcast happen under a single lock.
func (lgr *Ledger) sendTransaction(ctx context.Context, input []byte) (string, error) {
	lgr.nonceMu.Lock()
	defer lgr.nonceMu.Unlock()

	nonce, err := lgr.client.PendingNonceAt(ctx, lgr.from)
	if err != nil {
		return "", fmt.Errorf("querying account nonce: %w", err)
	}

	gasPrice, err := lgr.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("querying gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, lgr.contract, big.NewInt(0), voteGasLimit, gasPrice, input)

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(lgr.chainID), lgr.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing transaction: %w", err)
	}

	if err := lgr.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("broadcasting transaction: %w", err)
	}

	return signedTx.Hash().Hex(), nil
}
