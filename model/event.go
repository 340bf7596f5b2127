package model

import (
	"encoding/json"
	"time"
)

const (
	ResourceTransaction = "transaction"
	ResourceCard        = "card"
	ResourceUser        = "user"
)

const (
	ActionRequested = "requested"
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionCompleted = "completed"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusReversed  = "reversed"
	StatusDeclined  = "declined"
)

// Event is a single webhook delivery from the card issuer.
type Event struct {
	ID        string     `json:"id"`
	Resource  string     `json:"resource"`
	Action    string     `json:"action"`
	Body      EventBody  `json:"body"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// EventBody is the resource the event refers to. For transaction events it carries the spend;
// the original bytes are kept so the ledger records exactly what the issuer sent.
type EventBody struct {
	ID     string `json:"id"`
	Type   string `json:"type,omitempty"`
	UserID string `json:"userId,omitempty"`
	Status string `json:"status,omitempty"`
	Spend  *Spend `json:"spend,omitempty"`

	raw json.RawMessage
}

// Spend amounts are in USD cents.
type Spend struct {
	Amount                    int64      `json:"amount"`
	Currency                  string     `json:"currency"`
	LocalAmount               int64      `json:"localAmount"`
	LocalCurrency             string     `json:"localCurrency"`
	AuthorizedAmount          *int64     `json:"authorizedAmount,omitempty"`
	AuthorizationUpdateAmount *int64     `json:"authorizationUpdateAmount,omitempty"`
	AuthorizedAt              *time.Time `json:"authorizedAt,omitempty"`
	CardID                    string     `json:"cardId"`
	UserID                    string     `json:"userId"`
	Status                    string     `json:"status"`
	DeclinedReason            string     `json:"declinedReason,omitempty"`
	MerchantName              string     `json:"merchantName,omitempty"`
	MerchantCity              string     `json:"merchantCity,omitempty"`
	MerchantCountry           string     `json:"merchantCountry,omitempty"`
	MerchantCategory          string     `json:"merchantCategory,omitempty"`
	MerchantCategoryCode      string     `json:"merchantCategoryCode,omitempty"`
}

func (b *EventBody) UnmarshalJSON(data []byte) error {
	type alias EventBody
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*b = EventBody(decoded)
	b.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (b EventBody) MarshalJSON() ([]byte, error) {
	if len(b.raw) > 0 {
		return b.raw, nil
	}
	type alias EventBody
	return json.Marshal(alias(b))
}

// Raw returns the body exactly as it was received.
func (b EventBody) Raw() json.RawMessage {
	return b.raw
}

// IsTransaction reports whether the event concerns a card spend.
func (e *Event) IsTransaction() bool {
	return e.Resource == ResourceTransaction && e.Body.Spend != nil
}

// Timestamp is the issuer's notion of when the event happened, or fallback when it sent none.
func (e *Event) Timestamp(fallback time.Time) time.Time {
	if e.CreatedAt != nil && !e.CreatedAt.IsZero() {
		return e.CreatedAt.UTC()
	}
	return fallback.UTC()
}

// LedgerBody is the raw event body tagged with the event action and its logical creation time.
func (e *Event) LedgerBody(createdAt time.Time) (map[string]interface{}, error) {
	body := make(map[string]interface{})
	raw, err := e.Body.MarshalJSON()
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	body["action"] = e.Action
	body["createdAt"] = createdAt.UTC().Format(time.RFC3339)
	return body, nil
}
