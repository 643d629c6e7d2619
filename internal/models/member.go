package models

import "time"

// MemberType distinguishes individual professionals from firm wallets
type MemberType string

const (
	MemberIndividual MemberType = "individual"
	MemberFirm       MemberType = "firm"
)

// Member is a wallet owner eligible to receive shares
type Member struct {
	Id          string     `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Email       string     `db:"email" json:"email"`
	Type        MemberType `db:"type" json:"type"`
	FirmId      string     `db:"firm_id" json:"firm_id,omitempty"`
	Role        string     `db:"role" json:"role,omitempty"`
	TaxCategory string     `db:"tax_category" json:"tax_category,omitempty"`
	Active      bool       `db:"active" json:"active"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
