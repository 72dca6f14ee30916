// Package session holds the shared mutable state of a voter session:
// account, chain, the proposal list and the voter's own decoded ballots.
// Components read it through accessors and react to changes through a
// subscription channel instead of ambient globals.
package session

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zdao/zdao-node/log"
	"github.com/zdao/zdao-node/types"
)

// EventKind classifies a state change notification.
type EventKind string

const (
	// EventSessionChanged fires when the account or chain changes. The
	// relayer session must be re-initialized after it.
	EventSessionChanged EventKind = "session_changed"
	// EventProposalsUpdated fires when the proposal list is replaced.
	EventProposalsUpdated EventKind = "proposals_updated"
	// EventVotesUpdated fires when the voter's ballot list is replaced.
	EventVotesUpdated EventKind = "votes_updated"
)

// Event is a state change notification.
type Event struct {
	Kind EventKind
}

// Store is the shared session state. All methods are safe for concurrent
// use; list accessors return copies.
type Store struct {
	mu        sync.RWMutex
	account   common.Address
	chainID   *big.Int
	connected bool
	proposals []*types.Proposal
	userVotes []*types.UserVote
	subs      map[chan Event]struct{}
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{subs: make(map[chan Event]struct{})}
}

// SetSession records the connected account and chain. A change of either
// emits EventSessionChanged and clears the per-voter ballot list, since it
// belongs to the previous identity.
func (s *Store) SetSession(account common.Address, chainID *big.Int) {
	s.mu.Lock()
	changed := s.connected && (account != s.account || s.chainID == nil || s.chainID.Cmp(chainID) != 0)
	s.account = account
	s.chainID = new(big.Int).Set(chainID)
	s.connected = true
	if changed {
		s.userVotes = nil
	}
	s.mu.Unlock()
	if changed {
		log.Infow("voter session changed", "account", account.Hex(), "chainId", chainID.String())
		s.publish(Event{Kind: EventSessionChanged})
	}
}

// Disconnect clears the session identity and the per-voter state.
func (s *Store) Disconnect() {
	s.mu.Lock()
	s.account = common.Address{}
	s.chainID = nil
	s.connected = false
	s.userVotes = nil
	s.mu.Unlock()
	s.publish(Event{Kind: EventSessionChanged})
}

// Connected reports whether a session identity is set.
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Account returns the connected account.
func (s *Store) Account() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// ChainID returns the connected chain, or nil when disconnected.
func (s *Store) ChainID() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.chainID == nil {
		return nil
	}
	return new(big.Int).Set(s.chainID)
}

// SetProposals atomically replaces the proposal list.
func (s *Store) SetProposals(proposals []*types.Proposal) {
	s.mu.Lock()
	s.proposals = proposals
	s.mu.Unlock()
	s.publish(Event{Kind: EventProposalsUpdated})
}

// Proposals returns a copy of the proposal list.
func (s *Store) Proposals() []*types.Proposal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Proposal, len(s.proposals))
	copy(out, s.proposals)
	return out
}

// ReplaceUserVotes atomically replaces the voter's ballot list. Duplicate
// entries for the same proposal collapse to the last one given.
func (s *Store) ReplaceUserVotes(votes []*types.UserVote) {
	seen := make(map[uint64]int, len(votes))
	deduped := make([]*types.UserVote, 0, len(votes))
	for _, v := range votes {
		if i, ok := seen[v.ProposalID]; ok {
			deduped[i] = v
			continue
		}
		seen[v.ProposalID] = len(deduped)
		deduped = append(deduped, v)
	}
	s.mu.Lock()
	s.userVotes = deduped
	s.mu.Unlock()
	s.publish(Event{Kind: EventVotesUpdated})
}

// UserVotes returns a copy of the voter's ballot list.
func (s *Store) UserVotes() []*types.UserVote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.UserVote, len(s.userVotes))
	copy(out, s.userVotes)
	return out
}

// Subscribe returns a channel receiving state change events. Slow receivers
// drop events rather than block publishers.
func (s *Store) Subscribe() chan Event {
	ch := make(chan Event, 16)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (s *Store) Unsubscribe(ch chan Event) {
	s.mu.Lock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
	s.mu.Unlock()
}

func (s *Store) publish(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
