package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"votex-backend/ledger"
	"votex-backend/models"
	"votex-backend/storage"
)

// VoteCoordinator orchestrates the election lifecycle and the cast-vote
// protocol across the off-chain store and the ledger. The two systems are
// never written inside one transaction: the ledger write happens first
// and is authoritative; the off-chain trail mirrors it.
type VoteCoordinator struct {
	store         *storage.Store
	ledger        ledger.Client
	log           *zap.Logger
	ledgerTimeout time.Duration
}

func NewVoteCoordinator(store *storage.Store, lc ledger.Client, log *zap.Logger, ledgerTimeout time.Duration) *VoteCoordinator {
	if ledgerTimeout <= 0 {
		ledgerTimeout = 90 * time.Second
	}
	return &VoteCoordinator{
		store:         store,
		ledger:        lc,
		log:           log.Named("coordinator"),
		ledgerTimeout: ledgerTimeout,
	}
}

// ledgerCtx applies the per-call ledger deadline.
func (vc *VoteCoordinator) ledgerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, vc.ledgerTimeout)
}

// mapLedgerErr translates ledger client failures into the taxonomy,
// keeping timeouts distinct from rejected submissions.
func mapLedgerErr(err error, op string) *Error {
	switch {
	case errors.Is(err, ledger.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return Wrap(CodeLedgerTimeout, err, "%s timed out", op)
	default:
		return Wrap(CodeLedgerSubmission, err, "%s failed", op)
	}
}

// StartElection moves a pending election to active. The ledger is opened
// for voting first; the off-chain status changes only after that succeeds.
func (vc *VoteCoordinator) StartElection(ctx context.Context, electionID uint) (*models.Election, error) {
	election, err := vc.loadElection(electionID)
	if err != nil {
		return nil, err
	}
	if election.Status != models.ElectionPending {
		return nil, E(CodeInvalidTransition,
			"election %d is %s, only pending elections can be started", electionID, election.Status)
	}

	lctx, cancel := vc.ledgerCtx(ctx)
	defer cancel()
	if _, err := vc.ledger.StartVoting(lctx, electionID); err != nil {
		return nil, mapLedgerErr(err, "start voting")
	}

	if err := vc.store.SetElectionStatus(electionID, models.ElectionActive); err != nil {
		return nil, Wrap(CodeInternal, err, "ledger opened voting but off-chain status update failed")
	}
	election.Status = models.ElectionActive

	vc.log.Info("election started", zap.Uint("election_id", electionID))
	return election, nil
}

// EndElection closes voting on the ledger, pulls the final per-candidate
// tallies, computes the winner and persists the terminal state as one
// off-chain update. Ended is terminal.
func (vc *VoteCoordinator) EndElection(ctx context.Context, electionID uint) (*models.Election, error) {
	election, err := vc.loadElection(electionID)
	if err != nil {
		return nil, err
	}
	if election.Status != models.ElectionActive {
		return nil, E(CodeInvalidTransition,
			"election %d is %s, only active elections can be ended", electionID, election.Status)
	}

	lctx, cancel := vc.ledgerCtx(ctx)
	defer cancel()
	if _, err := vc.ledger.EndVoting(lctx, electionID); err != nil {
		return nil, mapLedgerErr(err, "end voting")
	}

	candidates, err := vc.store.CandidatesByElection(electionID)
	if err != nil {
		return nil, Wrap(CodeInternal, err, "failed to load candidates")
	}

	// Candidates arrive in ascending id order, so on a tie the winner is
	// the tied candidate with the lowest id. Strict > keeps the first.
	tallies := make(map[string]uint64, len(candidates))
	var winnerID *uint
	var winnerVotes uint64
	haveWinner := false
	for _, candidate := range candidates {
		tctx, tcancel := vc.ledgerCtx(ctx)
		count, err := vc.ledger.GetTally(tctx, electionID, candidate.BlockchainCandidateID)
		tcancel()
		if err != nil {
			return nil, mapLedgerErr(err, "read tally")
		}
		tallies[fmt.Sprintf("%d", candidate.ID)] = count
		if !haveWinner || count > winnerVotes {
			id := candidate.ID
			winnerID = &id
			winnerVotes = count
			haveWinner = true
		}
	}

	resultsJSON, err := json.Marshal(tallies)
	if err != nil {
		return nil, Wrap(CodeInternal, err, "failed to serialize tallies")
	}

	if err := vc.store.FinalizeElection(electionID, string(resultsJSON), winnerID); err != nil {
		return nil, Wrap(CodeInternal, err, "ledger closed voting but off-chain finalize failed")
	}
	election.Status = models.ElectionEnded
	election.Results = string(resultsJSON)
	election.WinningCandidateID = winnerID

	vc.log.Info("election ended",
		zap.Uint("election_id", electionID),
		zap.Any("winning_candidate_id", winnerID))
	return election, nil
}

// CastVoteInput identifies the intended vote. The wallet comes from the
// caller's verified bearer token, never from the request body.
type CastVoteInput struct {
	ElectionID  uint
	PostID      uint
	CandidateID uint
	VoterWallet string
}

// CastVoteResult echoes the identifiers with the ledger transaction hash
// that proves the vote.
type CastVoteResult struct {
	ElectionID      uint   `json:"election_id"`
	PostID          uint   `json:"post_id"`
	CandidateID     uint   `json:"candidate_id"`
	TransactionHash string `json:"transaction_hash"`
	ReceiptID       string `json:"receipt_id"`
}

// CastVote runs the full vote-casting protocol: off-chain validation,
// ledger submission, post-submission verification and the off-chain
// audit append. The ledger write is irreversible; a verification mismatch
// after it is flagged for audit, never rolled back.
func (vc *VoteCoordinator) CastVote(ctx context.Context, input CastVoteInput) (*CastVoteResult, error) {
	// 1. Presence of all inputs.
	if input.ElectionID == 0 || input.PostID == 0 || input.CandidateID == 0 ||
		strings.TrimSpace(input.VoterWallet) == "" {
		return nil, E(CodeBadRequest, "election, post, candidate and voter wallet are all required")
	}
	wallet := strings.ToLower(input.VoterWallet)

	// 2. Election must exist and be active.
	election, err := vc.loadElection(input.ElectionID)
	if err != nil {
		return nil, err
	}
	if election.Status != models.ElectionActive {
		return nil, E(CodeInvalidState,
			"election %d is %s, votes are only accepted while active", election.ID, election.Status)
	}

	// 3. Post must belong to the election.
	post, err := vc.store.FindPost(input.PostID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, E(CodeNotFound, "post %d not found", input.PostID)
		}
		return nil, Wrap(CodeInternal, err, "failed to load post")
	}
	if post.ElectionID != election.ID {
		return nil, E(CodeNotFound, "post %d does not belong to election %d", post.ID, election.ID)
	}

	// 4. Candidate must belong to the post.
	candidate, err := vc.store.FindCandidate(input.CandidateID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, E(CodeNotFound, "candidate %d not found", input.CandidateID)
		}
		return nil, Wrap(CodeInternal, err, "failed to load candidate")
	}
	if candidate.PostID != post.ID {
		return nil, E(CodeNotFound, "candidate %d does not belong to post %d", candidate.ID, post.ID)
	}

	// 5. Off-chain double-vote guard. The ledger performs the
	// authoritative duplicate check; this keeps the audit trail honest
	// and fails fast without a ledger round trip.
	voted, err := vc.store.HasVoteLog(election.ID, post.ID, wallet)
	if err != nil {
		return nil, Wrap(CodeInternal, err, "failed to check vote log")
	}
	if voted {
		return nil, E(CodeAlreadyVoted,
			"wallet %s has already voted for post %d in election %d", wallet, post.ID, election.ID)
	}

	// 6. Submit to the ledger.
	lctx, cancel := vc.ledgerCtx(ctx)
	defer cancel()
	txHash, err := vc.ledger.SubmitVote(lctx, election.ID, post.ID, candidate.BlockchainCandidateID, wallet)
	if err != nil {
		return nil, mapLedgerErr(err, "submit vote")
	}
	if txHash == "" {
		return nil, E(CodeLedgerSubmission, "ledger returned no transaction hash")
	}

	// 7. Verify the emitted event against the intended vote. A mismatch
	// is CRITICAL: the ledger write stands, the row is flagged for
	// manual audit review and operations are alerted. The voter is not
	// told their vote failed, because it did not.
	verificationFailed := !vc.verifySubmission(ctx, txHash, ledger.VoteEvent{
		ElectionID:        election.ID,
		PostID:            post.ID,
		CandidateLedgerID: candidate.BlockchainCandidateID,
		VoterAddress:      wallet,
	})

	// 8. Append the audit record and the voter's receipt, both keyed by
	// the transaction hash. A failure here leaves the ledger holding a
	// vote the off-chain trail lacks; the hash in the error lets the
	// caller verify against the ledger directly.
	receiptID := uuid.New().String()
	if err := vc.store.AppendVoteLog(&models.VoteLog{
		ElectionID:         election.ID,
		PostID:             post.ID,
		CandidateID:        candidate.ID,
		VoterWallet:        wallet,
		TransactionHash:    txHash,
		VerificationFailed: verificationFailed,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, &Error{Code: CodeConflict, TxHash: txHash,
				Message: "vote already recorded off-chain", cause: err}
		}
		return nil, &Error{Code: CodeInternal, TxHash: txHash,
			Message: "vote is on the ledger but audit logging failed", cause: err}
	}
	if err := vc.store.AppendVoterReceipt(&models.VoterReceipt{
		ReceiptID:       receiptID,
		ElectionID:      election.ID,
		PostID:          post.ID,
		CandidateID:     candidate.ID,
		VoterWallet:     wallet,
		TransactionHash: txHash,
	}); err != nil {
		return nil, &Error{Code: CodeInternal, TxHash: txHash,
			Message: "vote is on the ledger but receipt creation failed", cause: err}
	}

	// 9. Echo the identifiers with the proof.
	return &CastVoteResult{
		ElectionID:      election.ID,
		PostID:          post.ID,
		CandidateID:     candidate.ID,
		TransactionHash: txHash,
		ReceiptID:       receiptID,
	}, nil
}

// verifySubmission re-reads the vote event for the transaction and checks
// every field against the intended vote.
func (vc *VoteCoordinator) verifySubmission(ctx context.Context, txHash string, intended ledger.VoteEvent) bool {
	lctx, cancel := vc.ledgerCtx(ctx)
	defer cancel()

	event, err := vc.ledger.GetVoteEventByTx(lctx, txHash)
	if err != nil || event == nil || !event.Matches(intended) {
		fields := []zap.Field{
			zap.Bool("critical", true),
			zap.String("tx_hash", txHash),
			zap.Uint("election_id", intended.ElectionID),
			zap.Uint("post_id", intended.PostID),
			zap.String("candidate_ledger_id", intended.CandidateLedgerID),
			zap.String("voter_wallet", intended.VoterAddress),
			zap.Error(err),
		}
		if event != nil {
			fields = append(fields, zap.Any("observed_event", event))
		}
		vc.log.Error("ledger vote event does not match submitted vote", fields...)
		return false
	}
	return true
}

func (vc *VoteCoordinator) loadElection(id uint) (*models.Election, error) {
	if id == 0 {
		return nil, E(CodeBadRequest, "election id is required")
	}
	election, err := vc.store.FindElection(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, E(CodeNotFound, "election %d not found", id)
		}
		return nil, Wrap(CodeInternal, err, "failed to load election")
	}
	return election, nil
}
