package voting

import (
	"context"
	"fmt"

	"github.com/zdao/zdao-node/log"
	"github.com/zdao/zdao-node/types"
)

// CastVote encrypts and submits one ballot for the connected voter. All
// preconditions fail fast before anything is mutated; on success exactly one
// ledger write has happened and the vote has been confirmed.
func (c *Coordinator) CastVote(ctx context.Context, proposalID uint64, choice types.VoteChoice) error {
	if !c.decrypter.Ready() {
		return types.ErrNotReady
	}
	if !c.store.Connected() {
		return types.ErrNotReady
	}
	chainID := c.store.ChainID()
	if chainID == nil || c.cfg.RequiredChainID == nil || chainID.Cmp(c.cfg.RequiredChainID) != 0 {
		return types.ErrWrongNetwork
	}

	_, _, isPublic, err := c.ledger.PublicVoteCounts(ctx, proposalID)
	if err != nil {
		return fmt.Errorf("read proposal state: %w", err)
	}
	if isPublic {
		return types.ErrVotingClosed
	}

	value, err := types.ChoiceToVoteValue(choice)
	if err != nil {
		return err
	}

	voter := c.store.Account()
	handle, proof, err := c.decrypter.Encrypt(ctx, uint64(value), voter)
	if err != nil {
		return fmt.Errorf("encrypt ballot: %w", err)
	}

	if err := c.ledger.Vote(ctx, proposalID, handle, proof); err != nil {
		return err
	}
	log.Infow("ballot cast", "proposal", proposalID, "voter", voter.Hex())
	return nil
}
