// Package voting implements the encrypted ballot lifecycle: casting a vote,
// revealing and reconciling a proposal's tally, and resolving the voter's
// own ballot status across proposals.
package voting

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zdao/zdao-node/session"
	"github.com/zdao/zdao-node/storage"
	"github.com/zdao/zdao-node/types"
)

// ErrRevealInProgress is returned when a reveal for the same proposal is
// already running. Callers skip, they never queue behind it.
var ErrRevealInProgress = errors.New("reveal already in progress for proposal")

// Ledger is the contract surface the coordinator needs. Implemented by
// web3.Gateway; faked in tests.
type Ledger interface {
	ProposalCount(ctx context.Context) (uint64, error)
	Proposal(ctx context.Context, id uint64) (*types.Proposal, error)
	PublicVoteCounts(ctx context.Context, id uint64) (yes, no uint64, isPublic bool, err error)
	EncryptedVoteCount(ctx context.Context, id uint64) (yesHandle, noHandle string, err error)
	HasUserVoted(ctx context.Context, id uint64, voter common.Address) (bool, error)
	MyVote(ctx context.Context, id uint64) (string, error)
	IsProposalOwner(ctx context.Context, id uint64, user common.Address) (bool, error)
	CreateProposal(ctx context.Context, description string) error
	Vote(ctx context.Context, id uint64, handle, proof types.HexBytes) error
	MakeVoteCountsPublic(ctx context.Context, id uint64) error
	SubmitDecryptedVoteCounts(ctx context.Context, id uint64, clear, proof types.HexBytes) error
}

// Decrypter is the confidential compute surface the coordinator needs.
// Implemented by relayer.Client; faked in tests.
type Decrypter interface {
	Ready() bool
	Encrypt(ctx context.Context, value uint64, voter common.Address) (handle, proof types.HexBytes, err error)
	PublicDecrypt(ctx context.Context, handles []string) (*types.DecryptResult, error)
	UserDecrypt(ctx context.Context, handles []string) (map[string]uint64, error)
}

// MismatchPolicy decides what a reveal does when freshly decrypted values
// disagree with counts the ledger already publishes.
type MismatchPolicy string

const (
	// MismatchObserve reports the mismatch as a warning and keeps the
	// ledger values authoritative.
	MismatchObserve MismatchPolicy = "observe"
	// MismatchResubmit additionally resubmits the decrypted tally.
	MismatchResubmit MismatchPolicy = "resubmit"
)

// Config tunes the coordinator.
type Config struct {
	// RequiredChainID is the chain the contract is deployed on; casting
	// from any other chain fails before touching state.
	RequiredChainID *big.Int
	// SettleDelay is the pause between flagging counts public and reading
	// ledger-derived state, letting confidential state stabilize.
	SettleDelay time.Duration
	// MismatchPolicy applies when a verification decrypt disagrees with
	// published counts.
	MismatchPolicy MismatchPolicy
}

// DefaultSettleDelay is applied when Config.SettleDelay is zero.
const DefaultSettleDelay = 3 * time.Second

// Coordinator orchestrates ballots, reveals and vote status over the ledger
// and the confidential compute relayer.
type Coordinator struct {
	ledger    Ledger
	decrypter Decrypter
	store     *session.Store
	cfg       Config

	// revealing gates reveals per proposal, refreshing single-flights the
	// vote status aggregation.
	revealing  *storage.InFlightSet
	decrypting *storage.InFlightSet
	refreshing atomic.Bool
}

// New creates a Coordinator.
func New(ledger Ledger, decrypter Decrypter, store *session.Store, cfg Config) *Coordinator {
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.MismatchPolicy == "" {
		cfg.MismatchPolicy = MismatchObserve
	}
	return &Coordinator{
		ledger:     ledger,
		decrypter:  decrypter,
		store:      store,
		cfg:        cfg,
		revealing:  storage.NewInFlightSet(),
		decrypting: storage.NewInFlightSet(),
	}
}

// Ledger exposes the underlying contract surface for read-only callers.
func (c *Coordinator) Ledger() Ledger {
	return c.ledger
}
