package service

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"

	"github.com/zdao/zdao-node/session"
	"github.com/zdao/zdao-node/types"
	"github.com/zdao/zdao-node/voting"
)

type staticLedger struct {
	proposals []*types.Proposal
}

func (l *staticLedger) ProposalCount(context.Context) (uint64, error) {
	return uint64(len(l.proposals)), nil
}

func (l *staticLedger) Proposal(_ context.Context, id uint64) (*types.Proposal, error) {
	if id >= uint64(len(l.proposals)) {
		return nil, types.ErrInvalidProposal
	}
	return l.proposals[id], nil
}

func (l *staticLedger) PublicVoteCounts(context.Context, uint64) (uint64, uint64, bool, error) {
	return 0, 0, false, nil
}

func (l *staticLedger) EncryptedVoteCount(context.Context, uint64) (string, string, error) {
	return "", "", types.ErrInvalidProposal
}

func (l *staticLedger) HasUserVoted(context.Context, uint64, common.Address) (bool, error) {
	return false, nil
}

func (l *staticLedger) MyVote(context.Context, uint64) (string, error) {
	return "", types.ErrNotVoted
}

func (l *staticLedger) IsProposalOwner(context.Context, uint64, common.Address) (bool, error) {
	return false, nil
}

func (l *staticLedger) CreateProposal(context.Context, string) error { return nil }

func (l *staticLedger) Vote(context.Context, uint64, types.HexBytes, types.HexBytes) error {
	return types.ErrInvalidProposal
}

func (l *staticLedger) MakeVoteCountsPublic(context.Context, uint64) error {
	return types.ErrInvalidProposal
}

func (l *staticLedger) SubmitDecryptedVoteCounts(context.Context, uint64, types.HexBytes, types.HexBytes) error {
	return types.ErrInvalidProposal
}

type idleDecrypter struct{}

func (idleDecrypter) Ready() bool { return false }

func (idleDecrypter) Encrypt(context.Context, uint64, common.Address) (types.HexBytes, types.HexBytes, error) {
	return nil, nil, types.ErrNotReady
}

func (idleDecrypter) PublicDecrypt(context.Context, []string) (*types.DecryptResult, error) {
	return nil, types.ErrNotReady
}

func (idleDecrypter) UserDecrypt(context.Context, []string) (map[string]uint64, error) {
	return nil, types.ErrNotReady
}

func TestMonitorLifecycle(t *testing.T) {
	c := qt.New(t)

	store := session.NewStore()
	store.SetSession(common.HexToAddress("0x01"), big.NewInt(1))
	coord := voting.New(
		&staticLedger{proposals: []*types.Proposal{{ID: 0, Description: "p"}}},
		idleDecrypter{},
		store,
		voting.Config{RequiredChainID: big.NewInt(1)},
	)
	m := NewProposalMonitor(coord, nil, 10*time.Millisecond)

	ctx := context.Background()
	c.Assert(m.Start(ctx), qt.IsNil)
	c.Assert(m.Start(ctx), qt.ErrorMatches, "service already running")

	// The initial refresh populates the proposal list.
	deadline := time.Now().Add(time.Second)
	for len(store.Proposals()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Assert(store.Proposals(), qt.HasLen, 1)

	m.Stop()
	// Stop is idempotent.
	m.Stop()
	c.Assert(m.Start(ctx), qt.IsNil)
	m.Stop()
}
