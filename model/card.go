package model

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type CardStatus string

const (
	CardActive  CardStatus = "ACTIVE"
	CardFrozen  CardStatus = "FROZEN"
	CardDeleted CardStatus = "DELETED"
)

const (
	// ModeDebit collects the spend from the account immediately.
	ModeDebit = 0
	// ModeCredit defers the whole spend to a single upcoming maturity.
	ModeCredit = 1
)

// Card links an issued card to the smart account that funds it. A Mode above
// ModeCredit splits each spend over that many maturities.
type Card struct {
	ID        string     `json:"id"`
	Account   string     `json:"account"`
	UserID    string     `json:"user_id"`
	Mode      int        `json:"mode"`
	Status    CardStatus `json:"status"`
	LastFour  string     `json:"last_four"`
	CreatedAt time.Time  `json:"created_at"`
}

func (c *Card) IsActive() bool {
	return c.Status == CardActive
}

// Address returns the card's smart account as a chain address.
func (c *Card) Address() common.Address {
	return common.HexToAddress(c.Account)
}

func (c *Card) IsInstallments() bool {
	return c.Mode > ModeCredit
}

func (c *Card) ToJSON() ([]byte, error) {
	return json.Marshal(c)
}
