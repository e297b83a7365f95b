package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"votex-backend/models"
)

// ResultsFilter narrows an ended election's results by voter demographics.
// Gender is an exact match. AgeRange is an inclusive "min-max" string and
// is silently ignored when unparsable.
type ResultsFilter struct {
	Gender   string
	AgeRange string
}

func (f ResultsFilter) empty() bool {
	_, _, ok := parseAgeRange(f.AgeRange)
	return f.Gender == "" && !ok
}

func parseAgeRange(s string) (min, max int, ok bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	min, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	max, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || min < 0 || max < min {
		return 0, 0, false
	}
	return min, max, true
}

type CandidateResult struct {
	CandidateID uint   `json:"candidate_id"`
	Name        string `json:"name"`
	LedgerID    string `json:"ledger_id"`
	Votes       uint64 `json:"votes"`
}

type ElectionResults struct {
	ElectionID         uint                  `json:"election_id"`
	Status             models.ElectionStatus `json:"status"`
	Results            []CandidateResult     `json:"results"`
	WinningCandidateID *uint                 `json:"winning_candidate_id,omitempty"`
	Filtered           bool                  `json:"filtered"`
}

// GetElectionResults reads per-candidate tallies. Active elections read
// live counts from the ledger; ended elections read the persisted final
// tally, or re-aggregate from the audit trail when a demographic filter
// is supplied. Pending elections return an empty set without touching
// the ledger.
func (vc *VoteCoordinator) GetElectionResults(ctx context.Context, electionID uint, filter ResultsFilter) (*ElectionResults, error) {
	election, err := vc.loadElection(electionID)
	if err != nil {
		return nil, err
	}

	out := &ElectionResults{
		ElectionID: election.ID,
		Status:     election.Status,
		Results:    []CandidateResult{},
	}

	if election.Status == models.ElectionPending {
		return out, nil
	}

	candidates, err := vc.store.CandidatesByElection(election.ID)
	if err != nil {
		return nil, Wrap(CodeInternal, err, "failed to load candidates")
	}

	switch {
	case election.Status == models.ElectionActive:
		for _, candidate := range candidates {
			lctx, cancel := vc.ledgerCtx(ctx)
			count, err := vc.ledger.GetTally(lctx, election.ID, candidate.BlockchainCandidateID)
			cancel()
			if err != nil {
				return nil, mapLedgerErr(err, "read live tally")
			}
			out.Results = append(out.Results, CandidateResult{
				CandidateID: candidate.ID,
				Name:        candidate.Name,
				LedgerID:    candidate.BlockchainCandidateID,
				Votes:       count,
			})
		}

	case !filter.empty():
		minAge, maxAge, ageOK := parseAgeRange(filter.AgeRange)
		tally, err := vc.store.DemographicTally(election.ID, filter.Gender, minAge, maxAge, ageOK)
		if err != nil {
			return nil, Wrap(CodeInternal, err, "failed to aggregate filtered results")
		}
		for _, candidate := range candidates {
			out.Results = append(out.Results, CandidateResult{
				CandidateID: candidate.ID,
				Name:        candidate.Name,
				LedgerID:    candidate.BlockchainCandidateID,
				Votes:       uint64(tally[candidate.ID]),
			})
		}
		out.Filtered = true
		out.WinningCandidateID = election.WinningCandidateID

	default:
		var persisted map[string]uint64
		if election.Results != "" {
			if err := json.Unmarshal([]byte(election.Results), &persisted); err != nil {
				return nil, Wrap(CodeInternal, err, "persisted results are unreadable")
			}
		}
		for _, candidate := range candidates {
			out.Results = append(out.Results, CandidateResult{
				CandidateID: candidate.ID,
				Name:        candidate.Name,
				LedgerID:    candidate.BlockchainCandidateID,
				Votes:       persisted[strconv.FormatUint(uint64(candidate.ID), 10)],
			})
		}
		out.WinningCandidateID = election.WinningCandidateID
	}

	return out, nil
}

type VoterElectionStatus struct {
	ElectionID uint                  `json:"election_id"`
	Status     models.ElectionStatus `json:"status"`
	HasVoted   bool                  `json:"has_voted"`
	Receipts   []models.VoterReceipt `json:"receipts"`
}

// GetVoterElectionStatus reports whether the wallet has voted in the
// election and returns the voter's receipts. Active elections consult the
// ledger's voted flag; ended and pending ones rely on the off-chain trail.
func (vc *VoteCoordinator) GetVoterElectionStatus(ctx context.Context, electionID uint, wallet string) (*VoterElectionStatus, error) {
	election, err := vc.loadElection(electionID)
	if err != nil {
		return nil, err
	}

	status := &VoterElectionStatus{
		ElectionID: election.ID,
		Status:     election.Status,
		Receipts:   []models.VoterReceipt{},
	}
	if election.Status == models.ElectionPending {
		return status, nil
	}

	receipts, err := vc.store.ReceiptsByWallet(election.ID, wallet)
	if err != nil {
		return nil, Wrap(CodeInternal, err, "failed to load receipts")
	}
	status.Receipts = receipts
	status.HasVoted = len(receipts) > 0

	if election.Status == models.ElectionActive {
		lctx, cancel := vc.ledgerCtx(ctx)
		defer cancel()
		voted, err := vc.ledger.HasVoted(lctx, election.ID, wallet)
		if err != nil {
			return nil, mapLedgerErr(err, "check voted flag")
		}
		status.HasVoted = status.HasVoted || voted
	}

	return status, nil
}
