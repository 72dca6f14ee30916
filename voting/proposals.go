package voting

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zdao/zdao-node/log"
	"github.com/zdao/zdao-node/types"
)

const proposalFetchConcurrency = 8

// LoadProposals reads every proposal from the ledger and atomically replaces
// the session's proposal list. Proposal ids are zero-based and sequential.
func (c *Coordinator) LoadProposals(ctx context.Context) ([]*types.Proposal, error) {
	count, err := c.ledger.ProposalCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("read proposal count: %w", err)
	}

	proposals := make([]*types.Proposal, count)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(proposalFetchConcurrency)
	for id := uint64(0); id < count; id++ {
		g.Go(func() error {
			p, err := c.ledger.Proposal(gctx, id)
			if err != nil {
				return fmt.Errorf("read proposal %d: %w", id, err)
			}
			mu.Lock()
			proposals[id] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Newest first.
	for i, j := 0, len(proposals)-1; i < j; i, j = i+1, j-1 {
		proposals[i], proposals[j] = proposals[j], proposals[i]
	}

	c.store.SetProposals(proposals)
	log.Debugw("proposals loaded", "count", count)
	return c.store.Proposals(), nil
}

// CreateProposal creates a proposal on the ledger and reloads the list so
// the new entry is visible to all subscribers.
func (c *Coordinator) CreateProposal(ctx context.Context, description string) error {
	if description == "" {
		return fmt.Errorf("empty proposal description")
	}
	if !c.store.Connected() {
		return types.ErrNotReady
	}
	if err := c.ledger.CreateProposal(ctx, description); err != nil {
		return err
	}
	log.Infow("proposal created", "description", description)
	_, err := c.LoadProposals(ctx)
	return err
}

// IsOwner reports whether the connected voter created the proposal.
func (c *Coordinator) IsOwner(ctx context.Context, proposalID uint64) (bool, error) {
	if !c.store.Connected() {
		return false, types.ErrNotReady
	}
	return c.ledger.IsProposalOwner(ctx, proposalID, c.store.Account())
}
