package web3

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/zdao/zdao-node/types"
)

// Custom error selectors of the ZDAO contract. Providers frequently return
// revert data as a bare hex blob instead of a decoded name, so mapping
// matches both forms.
var (
	selAlreadyVoted    = errorSelector("AlreadyVoted()")
	selFHEPermission   = errorSelector("FHEPermissionDenied()")
	selInvalidProposal = errorSelector("InvalidProposal()")
	selNotVoted        = errorSelector("NotVoted()")
	selCountsPublic    = errorSelector("VoteCountsAlreadyPublic()")
)

func errorSelector(sig string) string {
	return hexutil.Encode(crypto.Keccak256([]byte(sig))[:4])
}

// mapRevert translates a raw provider error into the engine's typed error
// taxonomy. Unrecognized errors pass through unchanged so the caller still
// sees the ledger message.
func mapRevert(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case containsAny(msg, "AlreadyVoted", "Already voted", selAlreadyVoted):
		return types.ErrAlreadyVoted
	case containsAny(msg, "InvalidProposal", "Invalid proposal", selInvalidProposal):
		return types.ErrInvalidProposal
	case containsAny(msg, "VoteCountsAlreadyPublic", "already public", "Voting is closed", "voting is closed", selCountsPublic):
		return types.ErrVotingClosed
	// 0xd0d25976 is the ACL revert some providers return raw when the
	// caller lacks FHE access to a handle.
	case containsAny(msg, "FHEPermissionDenied", selFHEPermission, "0xd0d25976"):
		return types.ErrPermissionDenied
	case containsAny(msg, "NotVoted", selNotVoted):
		return types.ErrNotVoted
	}
	return err
}

func containsAny(msg string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
