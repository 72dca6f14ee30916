// Package web3 is the ledger gateway: a thin, logic-free call surface over
// the ZDAO voting contract. Mutating calls are two-phase (send, then wait
// for the receipt) and revert reasons are mapped into typed errors here so
// no caller ever branches on raw contract strings.
package web3

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/zdao/zdao-node/log"
	"github.com/zdao/zdao-node/signer"
	"github.com/zdao/zdao-node/types"
)

const (
	// queryTimeout bounds single read calls to the provider.
	queryTimeout = 10 * time.Second
	// txWaitTimeout bounds the wait for a transaction receipt.
	txWaitTimeout = 90 * time.Second
	// txPollInterval is the receipt polling period.
	txPollInterval = time.Second
)

// Gateway exposes the ZDAO contract methods over an RPC endpoint.
type Gateway struct {
	cli      *ethclient.Client
	contract *bind.BoundContract
	parsed   abi.ABI
	addr     common.Address
	signer   *signer.LocalSigner
	chainID  *big.Int
}

// New dials the RPC endpoint, verifies the chain id and binds the contract.
// Returns types.ErrWrongNetwork if the endpoint serves a different chain
// than the one expected.
func New(ctx context.Context, rpcURL string, contractAddr common.Address, sig *signer.LocalSigner) (*Gateway, error) {
	cli, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	if sig != nil && sig.ChainID().Cmp(chainID) != 0 {
		return nil, fmt.Errorf("%w: endpoint serves chain %s, signer bound to %s",
			types.ErrWrongNetwork, chainID, sig.ChainID())
	}
	parsed, err := abi.JSON(strings.NewReader(zdaoABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	log.Infow("ledger gateway connected", "rpc", rpcURL, "chainId", chainID.String(), "contract", contractAddr.Hex())
	return &Gateway{
		cli:      cli,
		contract: bind.NewBoundContract(contractAddr, parsed, cli, cli, cli),
		parsed:   parsed,
		addr:     contractAddr,
		signer:   sig,
		chainID:  chainID,
	}, nil
}

// Close releases the RPC connection.
func (g *Gateway) Close() {
	g.cli.Close()
}

// ContractAddress returns the bound contract address.
func (g *Gateway) ContractAddress() common.Address {
	return g.addr
}

// ChainID returns the chain the gateway is connected to.
func (g *Gateway) ChainID() *big.Int {
	return new(big.Int).Set(g.chainID)
}

// ProposalCount returns the number of proposals on the ledger.
func (g *Gateway) ProposalCount(ctx context.Context) (uint64, error) {
	var out []any
	if err := g.call(ctx, &out, "proposalCount"); err != nil {
		return 0, err
	}
	count, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected proposalCount result type %T", out[0])
	}
	return count.Uint64(), nil
}

// Proposal reads the full proposal record.
func (g *Gateway) Proposal(ctx context.Context, id uint64) (*types.Proposal, error) {
	var out []any
	if err := g.call(ctx, &out, "proposals", new(big.Int).SetUint64(id)); err != nil {
		return nil, err
	}
	description, _ := out[0].(string)
	yesHandle, _ := out[1].([32]byte)
	noHandle, _ := out[2].([32]byte)
	isPublic, _ := out[3].(bool)
	publicYes, _ := out[4].(uint8)
	publicNo, _ := out[5].(uint8)

	p := &types.Proposal{
		ID:          id,
		Description: description,
		IsPublic:    isPublic,
		YesCount:    uint64(publicYes),
		NoCount:     uint64(publicNo),
	}
	if !isPublic {
		p.EncryptedYes = yesHandle[:]
		p.EncryptedNo = noHandle[:]
	}
	return p, nil
}

// PublicVoteCounts reads the published tally and the visibility flag.
func (g *Gateway) PublicVoteCounts(ctx context.Context, id uint64) (uint64, uint64, bool, error) {
	var out []any
	if err := g.call(ctx, &out, "getPublicVoteCounts", new(big.Int).SetUint64(id)); err != nil {
		return 0, 0, false, err
	}
	yes, _ := out[0].(uint8)
	no, _ := out[1].(uint8)
	isPublic, _ := out[2].(bool)
	return uint64(yes), uint64(no), isPublic, nil
}

// EncryptedVoteCount reads the two encrypted tally handles as 0x hex
// strings, ready to hand to the relayer.
func (g *Gateway) EncryptedVoteCount(ctx context.Context, id uint64) (string, string, error) {
	var out []any
	if err := g.call(ctx, &out, "getEncryptedVoteCount", new(big.Int).SetUint64(id)); err != nil {
		return "", "", err
	}
	yes, _ := out[0].([32]byte)
	no, _ := out[1].([32]byte)
	return hexutil.Encode(yes[:]), hexutil.Encode(no[:]), nil
}

// HasUserVoted reports whether the voter holds a ballot for the proposal.
func (g *Gateway) HasUserVoted(ctx context.Context, id uint64, voter common.Address) (bool, error) {
	var out []any
	if err := g.call(ctx, &out, "hasUserVoted", new(big.Int).SetUint64(id), voter); err != nil {
		return false, err
	}
	voted, _ := out[0].(bool)
	return voted, nil
}

// HasAnyVotes reports whether any ballot exists for the proposal.
func (g *Gateway) HasAnyVotes(ctx context.Context, id uint64) (bool, error) {
	var out []any
	if err := g.call(ctx, &out, "hasAnyVotes", new(big.Int).SetUint64(id)); err != nil {
		return false, err
	}
	has, _ := out[0].(bool)
	return has, nil
}

// MyVote returns the caller's own encrypted ballot handle as a 0x hex
// string. Returns types.ErrNotVoted when no ballot exists.
func (g *Gateway) MyVote(ctx context.Context, id uint64) (string, error) {
	var out []any
	if err := g.call(ctx, &out, "getMyVote", new(big.Int).SetUint64(id)); err != nil {
		return "", err
	}
	handle, _ := out[0].([32]byte)
	return hexutil.Encode(handle[:]), nil
}

// IsProposalOwner reports whether the user created the proposal.
func (g *Gateway) IsProposalOwner(ctx context.Context, id uint64, user common.Address) (bool, error) {
	var out []any
	if err := g.call(ctx, &out, "isProposalOwner", new(big.Int).SetUint64(id), user); err != nil {
		return false, err
	}
	owner, _ := out[0].(bool)
	return owner, nil
}

// CreateProposal creates a new proposal and waits for confirmation.
func (g *Gateway) CreateProposal(ctx context.Context, description string) error {
	return g.transact(ctx, "createProposal", description)
}

// Vote submits an encrypted ballot with its validity proof and waits for
// confirmation.
func (g *Gateway) Vote(ctx context.Context, id uint64, handle, proof types.HexBytes) error {
	var h [32]byte
	if len(handle) != len(h) {
		return fmt.Errorf("%w: handle is %d bytes", types.ErrMalformedHandle, len(handle))
	}
	copy(h[:], handle)
	return g.transact(ctx, "vote", new(big.Int).SetUint64(id), h, []byte(proof))
}

// MakeVoteCountsPublic flags the proposal tally for decryption and waits
// for confirmation.
func (g *Gateway) MakeVoteCountsPublic(ctx context.Context, id uint64) error {
	return g.transact(ctx, "makeVoteCountsPublic", new(big.Int).SetUint64(id))
}

// SubmitDecryptedVoteCounts publishes a decrypted tally with its proof and
// waits for confirmation.
func (g *Gateway) SubmitDecryptedVoteCounts(ctx context.Context, id uint64, clear, proof types.HexBytes) error {
	return g.transact(ctx, "submitDecryptedVoteCounts", new(big.Int).SetUint64(id), []byte(clear), []byte(proof))
}

func (g *Gateway) call(ctx context.Context, out *[]any, method string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	opts := &bind.CallOpts{Context: ctx}
	if g.signer != nil {
		opts.From = g.signer.Address()
	}
	if err := g.contract.Call(opts, out, method, args...); err != nil {
		return mapRevert(err)
	}
	return nil
}

// transact signs and sends a contract mutation, then polls until the
// transaction is mined. The call has not taken effect until the receipt
// reports success.
func (g *Gateway) transact(ctx context.Context, method string, args ...any) error {
	if g.signer == nil {
		return fmt.Errorf("%w: no signer configured", types.ErrNotReady)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(g.signer.PrivateKey(), g.chainID)
	if err != nil {
		return fmt.Errorf("create transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := g.contract.Transact(opts, method, args...)
	if err != nil {
		return mapRevert(err)
	}
	log.Debugw("transaction sent", "method", method, "tx", tx.Hash().Hex())
	if err := g.waitTx(ctx, tx.Hash()); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	log.Infow("transaction confirmed", "method", method, "tx", tx.Hash().Hex())
	return nil
}

// waitTx polls for the receipt until the transaction is mined or the wait
// times out.
func (g *Gateway) waitTx(ctx context.Context, txHash common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, txWaitTimeout)
	defer cancel()
	for {
		receipt, err := g.cli.TransactionReceipt(ctx, txHash)
		if err == nil {
			if receipt.Status == ethtypes.ReceiptStatusSuccessful {
				return nil
			}
			return fmt.Errorf("transaction %s reverted", txHash.Hex())
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for tx %s", txHash.Hex())
		case <-time.After(txPollInterval):
		}
	}
}
