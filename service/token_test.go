package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	ts := NewTokenService([]byte("secret"), time.Hour)

	token, err := ts.IssueVoter(7, "v@example.com", "0xabc")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := ts.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.SubjectID != 7 || claims.Email != "v@example.com" ||
		claims.WalletAddress != "0xabc" || claims.Role != RoleVoter {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestTokenVerifyFailuresAreUniform(t *testing.T) {
	ts := NewTokenService([]byte("secret"), time.Hour)
	other := NewTokenService([]byte("other-secret"), time.Hour)

	good, _ := ts.IssueVoter(1, "v@example.com", "0xabc")
	forged, _ := other.IssueVoter(1, "v@example.com", "0xabc")

	expiredSvc := &TokenService{secret: []byte("secret"), ttl: -time.Hour}
	expired, _ := expiredSvc.IssueVoter(1, "v@example.com", "0xabc")

	// A voter token without a wallet is minted directly to bypass the
	// issuer's own invariants.
	walletless := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		SubjectID: 1, Email: "v@example.com", Role: RoleVoter,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	walletlessSigned, _ := walletless.SignedString([]byte("secret"))

	cases := []struct {
		name  string
		token string
	}{
		{"malformed", "not.a.token"},
		{"forged", forged},
		{"expired", expired},
		{"voter without wallet", walletlessSigned},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ts.Verify(tc.token)
			if got := codeOf(t, err); got != CodeUnauthorized {
				t.Fatalf("code = %s, want %s", got, CodeUnauthorized)
			}
		})
	}

	if _, err := ts.Verify(good); err != nil {
		t.Fatalf("control token rejected: %v", err)
	}
}

func TestAdminTokenCarriesNoWallet(t *testing.T) {
	ts := NewTokenService([]byte("secret"), time.Hour)

	token, err := ts.IssueAdmin(1, "admin@example.com")
	if err != nil {
		t.Fatalf("issue admin: %v", err)
	}
	claims, err := ts.Verify(token)
	if err != nil {
		t.Fatalf("verify admin: %v", err)
	}
	if claims.Role != RoleAdmin || claims.WalletAddress != "" {
		t.Fatalf("claims = %+v, want admin role without wallet", claims)
	}
}
