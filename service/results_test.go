package service

import (
	"context"
	"strings"
	"testing"

	"votex-backend/models"
)

func TestParseAgeRange(t *testing.T) {
	cases := []struct {
		in       string
		min, max int
		ok       bool
	}{
		{"18-30", 18, 30, true},
		{" 18 - 30 ", 18, 30, true},
		{"30-18", 0, 0, false},
		{"18", 0, 0, false},
		{"", 0, 0, false},
		{"abc-def", 0, 0, false},
		{"-5-10", 0, 0, false},
	}
	for _, tc := range cases {
		min, max, ok := parseAgeRange(tc.in)
		if min != tc.min || max != tc.max || ok != tc.ok {
			t.Errorf("parseAgeRange(%q) = %d,%d,%v, want %d,%d,%v",
				tc.in, min, max, ok, tc.min, tc.max, tc.ok)
		}
	}
}

func TestResultsPendingElectionIsEmpty(t *testing.T) {
	e := newEnv(t)
	election, _, _ := e.seedContest(t, "Alice")

	results, err := e.coordinator.GetElectionResults(context.Background(), election.ID, ResultsFilter{})
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(results.Results) != 0 || results.Status != models.ElectionPending {
		t.Fatalf("pending results = %+v, want empty set", results)
	}
}

func TestResultsActiveElectionReadsLedger(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	election, post, candidates := e.seedContest(t, "Alice", "Bob")
	e.startElection(t, election.ID)

	for _, wallet := range []string{
		"0x1111111111111111111111111111111111111111",
		"0x2222222222222222222222222222222222222222",
	} {
		if _, err := e.coordinator.CastVote(ctx, CastVoteInput{
			ElectionID: election.ID, PostID: post.ID, CandidateID: candidates[0].ID, VoterWallet: wallet,
		}); err != nil {
			t.Fatalf("cast: %v", err)
		}
	}

	results, err := e.coordinator.GetElectionResults(ctx, election.ID, ResultsFilter{})
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(results.Results) != 2 {
		t.Fatalf("results = %d candidates, want 2", len(results.Results))
	}
	if results.Results[0].Votes != 2 || results.Results[1].Votes != 0 {
		t.Fatalf("live tallies = %d/%d, want 2/0",
			results.Results[0].Votes, results.Results[1].Votes)
	}
}

func TestResultsEndedElectionUsesPersistedTally(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	election, post, candidates := e.seedContest(t, "Alice", "Bob")
	e.startElection(t, election.ID)

	if _, err := e.coordinator.CastVote(ctx, CastVoteInput{
		ElectionID: election.ID, PostID: post.ID, CandidateID: candidates[1].ID,
		VoterWallet: "0x1111111111111111111111111111111111111111",
	}); err != nil {
		t.Fatalf("cast: %v", err)
	}
	if _, err := e.coordinator.EndElection(ctx, election.ID); err != nil {
		t.Fatalf("end: %v", err)
	}

	results, err := e.coordinator.GetElectionResults(ctx, election.ID, ResultsFilter{})
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if results.Status != models.ElectionEnded {
		t.Fatalf("status = %s, want ended", results.Status)
	}
	if results.Results[1].Votes != 1 || results.Results[0].Votes != 0 {
		t.Fatalf("persisted tallies = %d/%d, want 0/1",
			results.Results[0].Votes, results.Results[1].Votes)
	}
	if results.WinningCandidateID == nil || *results.WinningCandidateID != candidates[1].ID {
		t.Fatalf("winner = %v, want %d", results.WinningCandidateID, candidates[1].ID)
	}
}

func TestResultsDemographicFilter(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	election, post, candidates := e.seedContest(t, "Alice", "Bob")
	e.startElection(t, election.ID)

	// Two voters with bound wallets and known demographics.
	voters := []struct {
		email  string
		age    int
		gender string
	}{
		{"young@example.com", 22, "female"},
		{"older@example.com", 55, "male"},
	}
	for i, v := range voters {
		e.seedVoter(t, v.email, v.age, v.gender)
		key, addr := newWallet(t)
		message, err := e.auth.RequestChallenge(ctx, v.email)
		if err != nil {
			t.Fatalf("challenge: %v", err)
		}
		if _, err := e.auth.Authenticate(ctx, v.email, addr, message, signMessage(t, key, message)); err != nil {
			t.Fatalf("authenticate: %v", err)
		}
		if _, err := e.coordinator.CastVote(ctx, CastVoteInput{
			ElectionID: election.ID, PostID: post.ID,
			CandidateID: candidates[i].ID, VoterWallet: strings.ToLower(addr),
		}); err != nil {
			t.Fatalf("cast: %v", err)
		}
	}
	if _, err := e.coordinator.EndElection(ctx, election.ID); err != nil {
		t.Fatalf("end: %v", err)
	}

	// Age filter selects only the younger voter's candidate.
	results, err := e.coordinator.GetElectionResults(ctx, election.ID, ResultsFilter{AgeRange: "18-30"})
	if err != nil {
		t.Fatalf("filtered results: %v", err)
	}
	if !results.Filtered {
		t.Fatal("expected filtered aggregation")
	}
	if results.Results[0].Votes != 1 || results.Results[1].Votes != 0 {
		t.Fatalf("age-filtered tallies = %d/%d, want 1/0",
			results.Results[0].Votes, results.Results[1].Votes)
	}

	// Gender filter selects only the male voter's candidate.
	results, err = e.coordinator.GetElectionResults(ctx, election.ID, ResultsFilter{Gender: "male"})
	if err != nil {
		t.Fatalf("gender results: %v", err)
	}
	if results.Results[0].Votes != 0 || results.Results[1].Votes != 1 {
		t.Fatalf("gender-filtered tallies = %d/%d, want 0/1",
			results.Results[0].Votes, results.Results[1].Votes)
	}

	// A 0-0 range is a real filter matching no voter here, not a
	// disabled one.
	results, err = e.coordinator.GetElectionResults(ctx, election.ID, ResultsFilter{AgeRange: "0-0"})
	if err != nil {
		t.Fatalf("zero range results: %v", err)
	}
	if !results.Filtered {
		t.Fatal("0-0 must count as a filtered aggregation")
	}
	if results.Results[0].Votes != 0 || results.Results[1].Votes != 0 {
		t.Fatalf("0-0 tallies = %d/%d, want 0/0",
			results.Results[0].Votes, results.Results[1].Votes)
	}

	// An unparsable age range falls back to the persisted tally.
	results, err = e.coordinator.GetElectionResults(ctx, election.ID, ResultsFilter{AgeRange: "not-a-range"})
	if err != nil {
		t.Fatalf("unparsable range: %v", err)
	}
	if results.Filtered {
		t.Fatal("unparsable age range must be ignored, not filtered")
	}
}

func TestVoterElectionStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	election, post, candidates := e.seedContest(t, "Alice")
	wallet := "0xdddddddddddddddddddddddddddddddddddddddd"

	// Pending: nothing consulted, nothing voted.
	status, err := e.coordinator.GetVoterElectionStatus(ctx, election.ID, wallet)
	if err != nil {
		t.Fatalf("pending status: %v", err)
	}
	if status.HasVoted || len(status.Receipts) != 0 {
		t.Fatalf("pending status = %+v, want empty", status)
	}

	e.startElection(t, election.ID)
	if _, err := e.coordinator.CastVote(ctx, CastVoteInput{
		ElectionID: election.ID, PostID: post.ID, CandidateID: candidates[0].ID, VoterWallet: wallet,
	}); err != nil {
		t.Fatalf("cast: %v", err)
	}

	status, err = e.coordinator.GetVoterElectionStatus(ctx, election.ID, wallet)
	if err != nil {
		t.Fatalf("active status: %v", err)
	}
	if !status.HasVoted || len(status.Receipts) != 1 {
		t.Fatalf("active status = %+v, want voted with one receipt", status)
	}
}

func TestDeriveCandidateLedgerIDDeterministic(t *testing.T) {
	a := DeriveCandidateLedgerID(1, 2, "Alice")
	b := DeriveCandidateLedgerID(1, 2, "Alice")
	c := DeriveCandidateLedgerID(1, 3, "Alice")
	if a != b {
		t.Fatal("derivation must be deterministic")
	}
	if a == c {
		t.Fatal("different inputs must derive different ids")
	}
	if len(a) != 16 {
		t.Fatalf("ledger id length = %d, want 16 hex chars", len(a))
	}
}
