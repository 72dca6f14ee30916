package voting

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zdao/zdao-node/types"
)

// fakeState simulates the contract plus the relayer's view of its encrypted
// handles. Each handle is an opaque 32-byte hex string mapping to a
// plaintext in handleValues; the fake ledger keeps the tally handles up to
// date as ballots land, so decrypting them behaves like the real ceremony.
type fakeState struct {
	mu           sync.Mutex
	proposals    []*fakeProposal
	handleValues map[string]uint64
	nextHandle   uint64
	submissions  int
	submitErr    error
}

type fakeProposal struct {
	description  string
	owner        common.Address
	isPublic     bool
	publicYes    uint64
	publicNo     uint64
	encYesHandle string
	encNoHandle  string
	votes        map[common.Address]uint64
	voteHandles  map[common.Address]string
}

func newFakeState() *fakeState {
	return &fakeState{handleValues: make(map[string]uint64)}
}

func (s *fakeState) newHandleLocked(value uint64) string {
	s.nextHandle++
	h := fmt.Sprintf("0x%064x", s.nextHandle)
	s.handleValues[h] = value
	return h
}

func (s *fakeState) addProposal(description string, owner common.Address) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &fakeProposal{
		description:  description,
		owner:        owner,
		encYesHandle: s.newHandleLocked(0),
		encNoHandle:  s.newHandleLocked(0),
		votes:        make(map[common.Address]uint64),
		voteHandles:  make(map[common.Address]string),
	}
	s.proposals = append(s.proposals, p)
	return uint64(len(s.proposals) - 1)
}

func (s *fakeState) proposal(id uint64) (*fakeProposal, error) {
	if id >= uint64(len(s.proposals)) {
		return nil, types.ErrInvalidProposal
	}
	return s.proposals[id], nil
}

// fakeLedger is one voter's view of the fake contract.
type fakeLedger struct {
	state *fakeState
	voter common.Address
}

func (l *fakeLedger) ProposalCount(context.Context) (uint64, error) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	return uint64(len(l.state.proposals)), nil
}

func (l *fakeLedger) Proposal(_ context.Context, id uint64) (*types.Proposal, error) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	p, err := l.state.proposal(id)
	if err != nil {
		return nil, err
	}
	return &types.Proposal{
		ID:          id,
		Description: p.description,
		IsPublic:    p.isPublic,
		YesCount:    p.publicYes,
		NoCount:     p.publicNo,
	}, nil
}

func (l *fakeLedger) PublicVoteCounts(_ context.Context, id uint64) (uint64, uint64, bool, error) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	p, err := l.state.proposal(id)
	if err != nil {
		return 0, 0, false, err
	}
	return p.publicYes, p.publicNo, p.isPublic, nil
}

func (l *fakeLedger) EncryptedVoteCount(_ context.Context, id uint64) (string, string, error) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	p, err := l.state.proposal(id)
	if err != nil {
		return "", "", err
	}
	return p.encYesHandle, p.encNoHandle, nil
}

func (l *fakeLedger) HasUserVoted(_ context.Context, id uint64, voter common.Address) (bool, error) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	p, err := l.state.proposal(id)
	if err != nil {
		return false, err
	}
	_, voted := p.votes[voter]
	return voted, nil
}

func (l *fakeLedger) MyVote(_ context.Context, id uint64) (string, error) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	p, err := l.state.proposal(id)
	if err != nil {
		return "", err
	}
	handle, voted := p.voteHandles[l.voter]
	if !voted {
		return "", types.ErrNotVoted
	}
	return handle, nil
}

func (l *fakeLedger) IsProposalOwner(_ context.Context, id uint64, user common.Address) (bool, error) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	p, err := l.state.proposal(id)
	if err != nil {
		return false, err
	}
	return p.owner == user, nil
}

func (l *fakeLedger) CreateProposal(_ context.Context, description string) error {
	l.state.addProposal(description, l.voter)
	return nil
}

func (l *fakeLedger) Vote(_ context.Context, id uint64, handle, _ types.HexBytes) error {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	p, err := l.state.proposal(id)
	if err != nil {
		return err
	}
	if p.isPublic {
		return types.ErrVotingClosed
	}
	if _, voted := p.votes[l.voter]; voted {
		return types.ErrAlreadyVoted
	}
	key := strings.ToLower(handle.String())
	value, known := l.state.handleValues[key]
	if !known {
		return types.ErrPermissionDenied
	}
	p.votes[l.voter] = value
	p.voteHandles[l.voter] = key
	if uint8(value) == types.VoteValueYes {
		l.state.handleValues[p.encYesHandle]++
	} else {
		l.state.handleValues[p.encNoHandle]++
	}
	return nil
}

func (l *fakeLedger) MakeVoteCountsPublic(_ context.Context, id uint64) error {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	p, err := l.state.proposal(id)
	if err != nil {
		return err
	}
	if p.isPublic {
		return types.ErrVotingClosed
	}
	p.isPublic = true
	return nil
}

func (l *fakeLedger) SubmitDecryptedVoteCounts(_ context.Context, id uint64, clear, _ types.HexBytes) error {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	if l.state.submitErr != nil {
		return l.state.submitErr
	}
	p, err := l.state.proposal(id)
	if err != nil {
		return err
	}
	if len(clear) != 2 {
		return fmt.Errorf("unexpected clear values encoding")
	}
	p.publicYes = uint64(clear[0])
	p.publicNo = uint64(clear[1])
	l.state.submissions++
	return nil
}

// fakeDecrypter resolves handles against the shared fake state.
type fakeDecrypter struct {
	state       *fakeState
	ready       bool
	publicErr   error
	userErr     error
	publicCalls int
}

func (d *fakeDecrypter) Ready() bool { return d.ready }

func (d *fakeDecrypter) Encrypt(_ context.Context, value uint64, _ common.Address) (types.HexBytes, types.HexBytes, error) {
	if !d.ready {
		return nil, nil, types.ErrNotReady
	}
	d.state.mu.Lock()
	h := d.state.newHandleLocked(value)
	d.state.mu.Unlock()
	raw, err := types.HexStringToHexBytes(h)
	if err != nil {
		return nil, nil, err
	}
	return raw, types.HexBytes{0x01}, nil
}

func (d *fakeDecrypter) PublicDecrypt(_ context.Context, handles []string) (*types.DecryptResult, error) {
	d.publicCalls++
	if !d.ready {
		return nil, types.ErrNotReady
	}
	if d.publicErr != nil {
		return nil, d.publicErr
	}
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	result := &types.DecryptResult{
		ClearValues:     make(map[string]uint64, len(handles)),
		DecryptionProof: types.HexBytes{0x01},
	}
	encoded := make(types.HexBytes, 0, len(handles))
	for _, h := range handles {
		v := d.state.handleValues[strings.ToLower(h)]
		result.ClearValues[strings.ToLower(h)] = v
		encoded = append(encoded, byte(v))
	}
	result.ABIEncodedClearValues = encoded
	return result, nil
}

func (d *fakeDecrypter) UserDecrypt(_ context.Context, handles []string) (map[string]uint64, error) {
	if !d.ready {
		return nil, types.ErrNotReady
	}
	if d.userErr != nil {
		return nil, d.userErr
	}
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	values := make(map[string]uint64, len(handles))
	for _, h := range handles {
		key := strings.ToLower(h)
		if v, known := d.state.handleValues[key]; known {
			values[key] = v
		}
	}
	return values, nil
}
