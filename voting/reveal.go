package voting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zdao/zdao-node/log"
	"github.com/zdao/zdao-node/types"
)

// RevealAndSync makes a proposal's tally public, decrypts it and reconciles
// the decrypted values with what the ledger publishes. The operation is
// idempotent: repeated calls converge on the same tally, and a submission
// only ever happens when the ledger still reads zero while the decrypted
// sum is nonzero.
//
// At most one reveal per proposal runs at a time. An overlapping call for
// the same proposal returns ErrRevealInProgress immediately.
//
// Soft findings (a tally mismatch, an unconfirmed submission) are attached
// to the returned result as warnings; they never replace a usable tally
// with an error.
func (c *Coordinator) RevealAndSync(ctx context.Context, proposalID uint64) (*types.TallyResult, error) {
	if !c.revealing.TryAcquire(proposalID) {
		return nil, fmt.Errorf("%w: %d", ErrRevealInProgress, proposalID)
	}
	defer c.revealing.Release(proposalID)

	result := &types.TallyResult{ProposalID: proposalID}

	ledgerYes, ledgerNo, isPublic, err := c.ledger.PublicVoteCounts(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("read public counts: %w", err)
	}

	if !isPublic {
		err := c.ledger.MakeVoteCountsPublic(ctx, proposalID)
		switch {
		case err == nil:
			log.Infow("vote counts flagged public", "proposal", proposalID)
		case errors.Is(err, types.ErrVotingClosed):
			// Already public: another caller or an earlier run got here
			// first. The goal is satisfied.
			log.Debugw("vote counts already public", "proposal", proposalID)
		default:
			return nil, err
		}
		// Let the ledger-side confidential state settle before reading
		// derived values. A bounded pause, not a poll loop.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.SettleDelay):
		}
		ledgerYes, ledgerNo, _, err = c.ledger.PublicVoteCounts(ctx, proposalID)
		if err != nil {
			return nil, fmt.Errorf("re-read public counts: %w", err)
		}
	}

	yesHandle, noHandle, err := c.ledger.EncryptedVoteCount(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("read encrypted counts: %w", err)
	}

	ledgerSum := ledgerYes + ledgerNo
	decrypted, err := c.decrypter.PublicDecrypt(ctx, []string{yesHandle, noHandle})
	if err != nil {
		if ledgerSum > 0 {
			// The ledger already publishes a tally; a failed verification
			// decrypt downgrades to a warning.
			log.Warnw("verification decrypt failed", "proposal", proposalID, "error", err.Error())
			result.YesCount, result.NoCount = ledgerYes, ledgerNo
			result.Warn(types.TallyMismatch, fmt.Sprintf("verification decrypt failed: %v", err))
			return result, nil
		}
		return nil, fmt.Errorf("decrypt tally: %w", err)
	}
	decYes := decrypted.ClearValues[lowerHex(yesHandle)]
	decNo := decrypted.ClearValues[lowerHex(noHandle)]
	decSum := decYes + decNo

	if ledgerSum > 0 {
		// Verification only: ledger values stay authoritative.
		result.YesCount, result.NoCount = ledgerYes, ledgerNo
		if decYes != ledgerYes || decNo != ledgerNo {
			detail := fmt.Sprintf("ledger (%d,%d) decrypted (%d,%d)", ledgerYes, ledgerNo, decYes, decNo)
			log.Warnw("tally mismatch", "proposal", proposalID, "detail", detail)
			result.Warn(types.TallyMismatch, detail)
			if c.cfg.MismatchPolicy == MismatchResubmit {
				c.submitTally(ctx, proposalID, decrypted, result)
				result.YesCount, result.NoCount = decYes, decNo
			}
		}
		return result, nil
	}

	// The ledger reads zero: the decrypted values are the best-known truth
	// and are returned regardless of what happens below.
	result.YesCount, result.NoCount = decYes, decNo
	if decSum == 0 {
		// Genuinely zero ballots; nothing to submit, nothing to confirm.
		return result, nil
	}

	if c.submitTally(ctx, proposalID, decrypted, result) {
		confirmedYes, confirmedNo, _, err := c.ledger.PublicVoteCounts(ctx, proposalID)
		if err != nil || confirmedYes+confirmedNo == 0 {
			detail := "ledger still reads zero after submission"
			if err != nil {
				detail = fmt.Sprintf("confirmation read failed: %v", err)
			}
			log.Warnw("tally submission unconfirmed", "proposal", proposalID, "detail", detail)
			result.Warn(types.SubmissionUnconfirmed, detail)
		}
	}
	return result, nil
}

// submitTally submits the decrypted tally and reports whether a
// confirmation read makes sense. Failure is a soft warning: the decryption
// already succeeded and its values remain valid.
func (c *Coordinator) submitTally(ctx context.Context, proposalID uint64, decrypted *types.DecryptResult, result *types.TallyResult) bool {
	err := c.ledger.SubmitDecryptedVoteCounts(ctx, proposalID, decrypted.ABIEncodedClearValues, decrypted.DecryptionProof)
	if err != nil {
		log.Warnw("tally submission failed", "proposal", proposalID, "error", err.Error())
		result.Warn(types.SubmissionUnconfirmed, fmt.Sprintf("submission failed: %v", err))
		return false
	}
	log.Infow("decrypted tally submitted", "proposal", proposalID)
	return true
}
