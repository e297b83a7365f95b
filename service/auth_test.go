package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"votex-backend/models"
	"votex-backend/storage"
)

func TestRequestChallengeUnknownVoter(t *testing.T) {
	e := newEnv(t)

	_, err := e.auth.RequestChallenge(context.Background(), "ghost@example.com")
	if got := codeOf(t, err); got != CodeNotFound {
		t.Fatalf("code = %s, want %s", got, CodeNotFound)
	}
}

func TestRequestChallengeFormatAndOverwrite(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedVoter(t, "v@example.com", 30, "female")

	first, err := e.auth.RequestChallenge(ctx, "v@example.com")
	if err != nil {
		t.Fatalf("first challenge: %v", err)
	}
	if !strings.HasPrefix(first, ChallengePrefix) {
		t.Fatalf("challenge %q lacks prefix %q", first, ChallengePrefix)
	}
	if nonce := strings.TrimPrefix(first, ChallengePrefix); len(nonce) != nonceBytes*2 {
		t.Fatalf("nonce length = %d, want %d hex chars", len(nonce), nonceBytes*2)
	}

	second, err := e.auth.RequestChallenge(ctx, "v@example.com")
	if err != nil {
		t.Fatalf("second challenge: %v", err)
	}
	if first == second {
		t.Fatal("successive challenges must differ")
	}

	// The first challenge was invalidated by the overwrite: even a valid
	// signature over it must be rejected.
	key, addr := newWallet(t)
	_, err = e.auth.Authenticate(ctx, "v@example.com", addr, first, signMessage(t, key, first))
	if got := codeOf(t, err); got != CodeInvalidChallenge {
		t.Fatalf("code = %s, want %s", got, CodeInvalidChallenge)
	}
}

func TestAuthenticateSignatureMismatch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedVoter(t, "v@example.com", 30, "female")

	message, err := e.auth.RequestChallenge(ctx, "v@example.com")
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}

	signerKey, _ := newWallet(t)
	_, claimedAddr := newWallet(t)

	// Valid signature over the right message, but from a different key
	// than the claimed address.
	_, err = e.auth.Authenticate(ctx, "v@example.com", claimedAddr, message, signMessage(t, signerKey, message))
	if got := codeOf(t, err); got != CodeSignatureMismatch {
		t.Fatalf("code = %s, want %s", got, CodeSignatureMismatch)
	}

	// Garbage signature.
	_, err = e.auth.Authenticate(ctx, "v@example.com", claimedAddr, message, "0xdeadbeef")
	if got := codeOf(t, err); got != CodeSignatureMismatch {
		t.Fatalf("code = %s, want %s", got, CodeSignatureMismatch)
	}
}

func TestAuthenticateSuccessBindsWalletAndPreventsReplay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedVoter(t, "v@example.com", 30, "female")

	message, err := e.auth.RequestChallenge(ctx, "v@example.com")
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}

	key, addr := newWallet(t)
	signature := signMessage(t, key, message)

	result, err := e.auth.Authenticate(ctx, "v@example.com", addr, message, signature)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if result.Token == "" {
		t.Fatal("expected a bearer token")
	}
	if want := strings.ToLower(addr); result.Voter.WalletAddress != want {
		t.Fatalf("wallet = %s, want lower-cased %s", result.Voter.WalletAddress, want)
	}
	if result.Voter.RegistrationStatus != models.StatusEligibleOnChain {
		t.Fatalf("status = %s, want %s after successful whitelist",
			result.Voter.RegistrationStatus, models.StatusEligibleOnChain)
	}
	if !e.ledger.IsWhitelisted(addr) {
		t.Fatal("wallet should be whitelisted on the ledger")
	}

	claims, err := e.tokens.Verify(result.Token)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if claims.Role != RoleVoter || claims.WalletAddress != strings.ToLower(addr) {
		t.Fatalf("claims = %+v, want voter role with bound wallet", claims)
	}

	// Replaying the same signed challenge must fail: the nonce is gone.
	_, err = e.auth.Authenticate(ctx, "v@example.com", addr, message, signature)
	if got := codeOf(t, err); got != CodeInvalidChallenge {
		t.Fatalf("replay code = %s, want %s", got, CodeInvalidChallenge)
	}

	// The next challenge carries a different nonce.
	next, err := e.auth.RequestChallenge(ctx, "v@example.com")
	if err != nil {
		t.Fatalf("next challenge: %v", err)
	}
	if next == message {
		t.Fatal("new challenge must carry a fresh nonce")
	}
}

func TestAuthenticateWhitelistFailureDoesNotBlock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedVoter(t, "v@example.com", 30, "female")

	key, addr := newWallet(t)

	// First authentication whitelists the wallet.
	message, _ := e.auth.RequestChallenge(ctx, "v@example.com")
	first, err := e.auth.Authenticate(ctx, "v@example.com", addr, message, signMessage(t, key, message))
	if err != nil {
		t.Fatalf("first authenticate: %v", err)
	}

	// Force the eligibility flag off so the second run hits the ledger
	// again and gets the benign "already whitelisted" answer.
	eligible := false
	if err := e.store.ApplyVoterUpdate(first.Voter.ID, storage.VoterUpdate{EligibleOnChain: &eligible}); err != nil {
		t.Fatalf("reset eligibility: %v", err)
	}

	message, _ = e.auth.RequestChallenge(ctx, "v@example.com")
	result, err := e.auth.Authenticate(ctx, "v@example.com", addr, message, signMessage(t, key, message))
	if err != nil {
		t.Fatalf("authenticate with already-whitelisted wallet: %v", err)
	}
	if !result.Voter.IsEligibleOnChain {
		t.Fatal("already-whitelisted must count as eligible")
	}
}

func TestAuthenticateWhitelistTimeoutDoesNotBlock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedVoter(t, "v@example.com", 30, "female")

	// Tight ledger deadline against a ledger that never answers. The
	// whitelist call must give up on its own; without a per-call
	// deadline this authentication would never return.
	quick := NewAuthService(e.store, e.ledger, e.tokens, zap.NewNop(), 50*time.Millisecond)

	message, err := quick.RequestChallenge(ctx, "v@example.com")
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	key, addr := newWallet(t)

	e.ledger.Hang = true
	result, err := quick.Authenticate(ctx, "v@example.com", addr, message, signMessage(t, key, message))
	if err != nil {
		t.Fatalf("authenticate with hanging ledger: %v", err)
	}
	if result.Token == "" {
		t.Fatal("expected a bearer token despite the whitelist timeout")
	}
	if result.Voter.IsEligibleOnChain {
		t.Fatal("timed-out whitelist must not mark the voter eligible")
	}
	if result.Voter.RegistrationStatus != models.StatusWalletLinked {
		t.Fatalf("status = %s, want %s", result.Voter.RegistrationStatus, models.StatusWalletLinked)
	}
}

func TestAuthenticateWalletReuseConflicts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedVoter(t, "first@example.com", 30, "female")
	e.seedVoter(t, "second@example.com", 40, "male")

	key, addr := newWallet(t)

	message, _ := e.auth.RequestChallenge(ctx, "first@example.com")
	if _, err := e.auth.Authenticate(ctx, "first@example.com", addr, message, signMessage(t, key, message)); err != nil {
		t.Fatalf("bind wallet to first voter: %v", err)
	}

	// The same wallet cannot be bound to a second voter.
	message, _ = e.auth.RequestChallenge(ctx, "second@example.com")
	_, err := e.auth.Authenticate(ctx, "second@example.com", addr, message, signMessage(t, key, message))
	if got := codeOf(t, err); got != CodeConflict {
		t.Fatalf("code = %s, want %s", got, CodeConflict)
	}
}
