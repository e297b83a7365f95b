package models

import "time"

// User is an administrative account. Password handling is outside this
// service; admin tokens are minted at startup for the configured account.
type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Name      string    `json:"name"`
	Role      string    `gorm:"default:admin" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Party struct {
	ID        uint          `gorm:"primarykey" json:"id"`
	Name      string        `gorm:"uniqueIndex;not null" json:"name"`
	Symbol    string        `json:"symbol"`
	Members   []PartyMember `gorm:"constraint:OnDelete:CASCADE" json:"members,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type PartyMember struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	PartyID   uint      `gorm:"not null;index" json:"party_id"`
	Name      string    `gorm:"not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
