package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin = "admin"
	RoleVoter = "voter"
)

// Claims is the payload carried by a bearer token. Voter tokens carry the
// verified wallet address; admin tokens carry none.
type Claims struct {
	SubjectID     uint   `json:"sub_id"`
	Email         string `json:"email"`
	WalletAddress string `json:"wallet_address,omitempty"`
	Role          string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies signed, time-limited bearer tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret []byte, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenService{secret: secret, ttl: ttl}
}

func (ts *TokenService) issue(claims Claims) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.secret)
	if err != nil {
		return "", Wrap(CodeInternal, err, "failed to sign token")
	}
	return signed, nil
}

// IssueVoter mints a voter token bound to the verified wallet address.
func (ts *TokenService) IssueVoter(voterID uint, email, wallet string) (string, error) {
	return ts.issue(Claims{
		SubjectID:     voterID,
		Email:         email,
		WalletAddress: wallet,
		Role:          RoleVoter,
	})
}

// IssueAdmin mints an admin token. Admin tokens never carry a wallet.
func (ts *TokenService) IssueAdmin(userID uint, email string) (string, error) {
	return ts.issue(Claims{
		SubjectID: userID,
		Email:     email,
		Role:      RoleAdmin,
	})
}

// Verify parses and validates a bearer token. Every failure mode collapses
// into the same unauthorized error so callers cannot distinguish a forged
// token from an expired one.
func (ts *TokenService) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, E(CodeUnauthorized, "unexpected signing method")
		}
		return ts.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, E(CodeUnauthorized, "invalid or expired token")
	}

	// A voter token without a bound wallet is malformed; reject it the
	// same way as any other invalid token.
	if claims.Role == RoleVoter && claims.WalletAddress == "" {
		return nil, E(CodeUnauthorized, "invalid or expired token")
	}

	return claims, nil
}
