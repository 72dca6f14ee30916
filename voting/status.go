package voting

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zdao/zdao-node/log"
	"github.com/zdao/zdao-node/types"
)

// myVoteFetchConcurrency bounds parallel getMyVote reads.
const myVoteFetchConcurrency = 8

// RefreshVoteStatus resolves, for the connected voter, which of the known
// proposals they voted on and what their own ballots decode to. Ballot
// handles are fetched in parallel and decrypted in one batch.
//
// The refresh single-flights: if another refresh is already running this
// call skips and returns the current list untouched. Proposals whose
// decryption is still in flight from a previous run are skipped too.
//
// The merged result replaces the session's ballot list atomically and never
// contains two entries for the same proposal.
func (c *Coordinator) RefreshVoteStatus(ctx context.Context) ([]*types.UserVote, error) {
	if !c.refreshing.CompareAndSwap(false, true) {
		log.Debugw("vote status refresh already running, skipping")
		return c.store.UserVotes(), nil
	}
	defer c.refreshing.Store(false)

	proposals := c.store.Proposals()
	existing := c.store.UserVotes()

	known := make(map[uint64]bool, len(existing))
	for _, v := range existing {
		known[v.ProposalID] = true
	}
	var unresolved []uint64
	for _, p := range proposals {
		if !known[p.ID] {
			unresolved = append(unresolved, p.ID)
		}
	}
	if len(unresolved) == 0 {
		return existing, nil
	}

	voter := c.store.Account()
	var voted []uint64
	for _, id := range unresolved {
		has, err := c.ledger.HasUserVoted(ctx, id, voter)
		if err != nil {
			log.Warnw("hasUserVoted failed", "proposal", id, "error", err.Error())
			continue
		}
		if has {
			voted = append(voted, id)
		}
	}

	// Skip anything a previous run is still decrypting; mark the rest.
	var acquired []uint64
	for _, id := range voted {
		if c.decrypting.TryAcquire(id) {
			acquired = append(acquired, id)
		}
	}
	resolved, err := c.resolveBallots(ctx, acquired)
	for _, id := range acquired {
		c.decrypting.Release(id)
	}
	if err != nil {
		// resolveBallots only errors on internal invariant violations;
		// clear any stale markers before giving up.
		c.decrypting.Clear()
		return nil, err
	}

	merged := make([]*types.UserVote, 0, len(existing)+len(resolved))
	merged = append(merged, existing...)
	merged = append(merged, resolved...)
	c.store.ReplaceUserVotes(merged)
	return c.store.UserVotes(), nil
}

// resolveBallots fetches the voter's encrypted ballot handle for each
// proposal and batch-decrypts them. Per-proposal failures degrade to an
// error ballot; an unavailable relayer session degrades the whole batch to
// unknown ballots.
func (c *Coordinator) resolveBallots(ctx context.Context, ids []uint64) ([]*types.UserVote, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	now := time.Now()

	type fetched struct {
		id     uint64
		handle string
	}
	var (
		mu      sync.Mutex
		handles []fetched
		failed  []uint64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(myVoteFetchConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			handle, err := c.ledger.MyVote(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warnw("getMyVote failed", "proposal", id, "error", err.Error())
				failed = append(failed, id)
				return nil
			}
			handles = append(handles, fetched{id: id, handle: handle})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	votes := make([]*types.UserVote, 0, len(ids))
	for _, id := range failed {
		votes = append(votes, &types.UserVote{ProposalID: id, Choice: types.VoteError, DecodedAt: now})
	}
	if len(handles) == 0 {
		return votes, nil
	}

	handleSet := make([]string, len(handles))
	for i, f := range handles {
		handleSet[i] = f.handle
	}
	values, err := c.decrypter.UserDecrypt(ctx, handleSet)
	if err != nil {
		// No session at all leaves the ballots unknown rather than failed:
		// they exist, they just cannot be decoded yet.
		choice := types.VoteError
		if isUnavailable(err) {
			choice = types.VoteUnknown
		}
		log.Warnw("ballot batch decrypt failed", "count", len(handleSet), "error", err.Error())
		for _, f := range handles {
			votes = append(votes, &types.UserVote{ProposalID: f.id, Choice: choice, DecodedAt: now})
		}
		return votes, nil
	}

	for _, f := range handles {
		value, ok := values[lowerHex(f.handle)]
		if !ok {
			votes = append(votes, &types.UserVote{ProposalID: f.id, Choice: types.VoteError, DecodedAt: now})
			continue
		}
		votes = append(votes, &types.UserVote{
			ProposalID: f.id,
			Choice:     types.VoteValueToChoice(value),
			DecodedAt:  now,
		})
	}
	return votes, nil
}

func isUnavailable(err error) bool {
	return errors.Is(err, types.ErrNotReady) || errors.Is(err, types.ErrRelayerUnavailable)
}

func lowerHex(h string) string {
	return strings.ToLower(h)
}
