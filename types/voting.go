package types

import (
	"fmt"
	"time"
)

// Numeric vote encoding used by the ZDAO contract. The contract counts a
// ciphertext equal to VoteValueYes as a yes ballot and VoteValueNo as a no
// ballot; any other plaintext is rejected before encryption.
const (
	VoteValueYes uint8 = 0
	VoteValueNo  uint8 = 1
)

// VoteChoice is the decoded value of a ballot as seen by its own voter.
type VoteChoice string

const (
	// VoteYes and VoteNo are the two valid ballot choices.
	VoteYes VoteChoice = "yes"
	VoteNo  VoteChoice = "no"
	// VoteUnknown means the ballot exists on the ledger but could not be
	// decrypted yet (no live relayer session).
	VoteUnknown VoteChoice = "unknown"
	// VoteError means decryption of the ballot was attempted and failed.
	VoteError VoteChoice = "error"
)

// ChoiceToVoteValue encodes a yes/no choice into the contract's numeric vote
// encoding. Any other choice is rejected.
func ChoiceToVoteValue(choice VoteChoice) (uint8, error) {
	switch choice {
	case VoteYes:
		return VoteValueYes, nil
	case VoteNo:
		return VoteValueNo, nil
	default:
		return 0, fmt.Errorf("invalid vote choice %q", choice)
	}
}

// VoteValueToChoice decodes the contract's numeric vote encoding back into a
// choice. Values outside the encoding map to VoteError.
func VoteValueToChoice(value uint64) VoteChoice {
	switch uint8(value) {
	case VoteValueYes:
		return VoteYes
	case VoteValueNo:
		return VoteNo
	default:
		return VoteError
	}
}

// Proposal is the engine's view of a proposal held by the ZDAO contract.
// YesCount and NoCount are only meaningful once IsPublic is true and the
// decrypted tally has been reconciled; before that the tally exists only as
// the two encrypted handles.
type Proposal struct {
	ID           uint64    `json:"id"`
	Description  string    `json:"description"`
	IsPublic     bool      `json:"isPublic"`
	YesCount     uint64    `json:"yesCount"`
	NoCount      uint64    `json:"noCount"`
	EncryptedYes HexBytes  `json:"encryptedYesCount,omitempty"`
	EncryptedNo  HexBytes  `json:"encryptedNoCount,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TotalVotes returns the number of reconciled ballots for the proposal.
func (p *Proposal) TotalVotes() uint64 {
	return p.YesCount + p.NoCount
}

// UserVote records the decoded choice of the current voter for one proposal.
// A voter session holds at most one UserVote per proposal; newer records
// replace older ones.
type UserVote struct {
	ProposalID uint64     `json:"proposalId"`
	Choice     VoteChoice `json:"vote"`
	DecodedAt  time.Time  `json:"votedAt"`
}

// DecryptResult is the canonical outcome of a public decryption, normalized
// from whatever response shape the relayer produced. ClearValues maps each
// encrypted handle (0x hex string) to its plaintext; ABIEncodedClearValues
// and DecryptionProof are passed through to the ledger when submitting a
// decrypted tally.
type DecryptResult struct {
	ClearValues           map[string]uint64 `json:"clearValues"`
	ABIEncodedClearValues HexBytes          `json:"abiEncodedClearValues"`
	DecryptionProof       HexBytes          `json:"decryptionProof"`
}

// TallyWarningKind classifies soft, observational findings of a reveal
// cycle. They accompany a still-valid tally and never abort the caller.
type TallyWarningKind string

const (
	// TallyMismatch means the freshly decrypted values differ from the
	// counts the ledger already publishes. The ledger values stay
	// authoritative.
	TallyMismatch TallyWarningKind = "tally_mismatch"
	// SubmissionUnconfirmed means the decrypted tally could not be
	// confirmed on the ledger (the submission failed or a re-read after
	// submission still returned zero).
	SubmissionUnconfirmed TallyWarningKind = "submission_unconfirmed"
)

// TallyWarning is a soft observation attached to a TallyResult.
type TallyWarning struct {
	Kind   TallyWarningKind `json:"kind"`
	Detail string           `json:"detail"`
}

// TallyResult is the resolved tally of one proposal after a reveal cycle,
// together with any soft warnings gathered on the way.
type TallyResult struct {
	ProposalID uint64         `json:"proposalId"`
	YesCount   uint64         `json:"yesCount"`
	NoCount    uint64         `json:"noCount"`
	Warnings   []TallyWarning `json:"warnings,omitempty"`
}

// Warn appends a soft warning to the result.
func (r *TallyResult) Warn(kind TallyWarningKind, detail string) {
	r.Warnings = append(r.Warnings, TallyWarning{Kind: kind, Detail: detail})
}

// HasWarning reports whether the result carries a warning of the given kind.
func (r *TallyResult) HasWarning(kind TallyWarningKind) bool {
	for _, w := range r.Warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}
