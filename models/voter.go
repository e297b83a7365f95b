package models

import "time"

// RegistrationStatus tracks how far a voter has progressed through
// onboarding. The lifecycle is forward-moving: a voter never drops back
// to an earlier status.
type RegistrationStatus string

const (
	StatusPendingEmailVerification RegistrationStatus = "pending_email_verification"
	StatusEmailVerified            RegistrationStatus = "email_verified"
	StatusWalletLinked             RegistrationStatus = "wallet_linked"
	StatusEligibleOnChain          RegistrationStatus = "eligible_on_chain"
)

var statusRank = map[RegistrationStatus]int{
	StatusPendingEmailVerification: 0,
	StatusEmailVerified:            1,
	StatusWalletLinked:             2,
	StatusEligibleOnChain:          3,
}

// AtLeast returns the later of the two statuses in lifecycle order.
func (s RegistrationStatus) AtLeast(min RegistrationStatus) RegistrationStatus {
	if statusRank[s] >= statusRank[min] {
		return s
	}
	return min
}

// Voter is an admin-registered identity record. Email is the primary
// off-chain identifier; the wallet address is bound later through the
// challenge-response flow and is unique across all voters.
type Voter struct {
	ID                 uint               `gorm:"primarykey" json:"id"`
	Email              string             `gorm:"uniqueIndex;not null" json:"email"`
	Name               string             `gorm:"not null" json:"name"`
	Age                int                `json:"age"`
	Gender             string             `json:"gender"`
	NationalID         string             `json:"national_id,omitempty"`
	WalletAddress      string             `gorm:"index" json:"wallet_address,omitempty"`
	AuthNonce          string             `json:"-"`
	IsEligibleOnChain  bool               `json:"is_eligible_on_chain"`
	RegistrationStatus RegistrationStatus `gorm:"default:pending_email_verification" json:"registration_status"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}
