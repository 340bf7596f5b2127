package model

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SentinelHash is recorded when an event has to be kept on the ledger but caused no chain transaction.
var SentinelHash = common.Hash{}.Hex()

// RevertedKey marks a body recorded after the chain transaction of an earlier body with the same
// action reverted. Its value is the reverted hash.
const RevertedKey = "revertedHash"

type TransactionPayload struct {
	Bodies []map[string]interface{} `json:"bodies"`
}

// Transaction is the ledger entry for one issuer transaction id on one card.
// Hashes and Payload.Bodies grow by one element per recorded event.
type Transaction struct {
	ID        string             `json:"id"`
	CardID    string             `json:"card_id"`
	Hashes    []string           `json:"hashes"`
	Payload   TransactionPayload `json:"payload"`
	CreatedAt time.Time          `json:"created_at"`
}

func (transaction *Transaction) ToJSON() ([]byte, error) {
	return json.Marshal(transaction)
}

// HasAction reports whether any recorded body was produced by the given event action.
func (transaction *Transaction) HasAction(action string) bool {
	if transaction == nil {
		return false
	}
	for _, body := range transaction.Payload.Bodies {
		if a, ok := body["action"].(string); ok && a == action {
			return true
		}
	}
	return false
}

// Settled reports whether a body matching match was recorded and not later marked reverted.
func (transaction *Transaction) Settled(match func(action, status string) bool) bool {
	if transaction == nil {
		return false
	}
	n := 0
	for _, body := range transaction.Payload.Bodies {
		action, _ := body["action"].(string)
		if !match(action, spendString(body, "status")) {
			continue
		}
		if _, reverted := body[RevertedKey]; reverted {
			n--
		} else {
			n++
		}
	}
	return n > 0
}

// HeldCents is the amount authorized so far: the created amount plus every pending authorization
// update, less whatever reverted. ok is false when no creation was recorded.
func (transaction *Transaction) HeldCents() (held int64, ok bool) {
	if transaction == nil {
		return 0, false
	}
	for _, body := range transaction.Payload.Bodies {
		action, _ := body["action"].(string)
		sign := int64(1)
		if _, reverted := body[RevertedKey]; reverted {
			sign = -1
		}
		switch {
		case action == ActionCreated:
			if amount, found := spendInt(body, "amount"); found {
				held += sign * amount
				ok = true
			}
		case action == ActionUpdated && spendString(body, "status") == StatusPending:
			if amount, found := spendInt(body, "authorizationUpdateAmount"); found {
				held += sign * amount
			}
		}
	}
	return held, ok
}

func spendField(body map[string]interface{}, key string) (interface{}, bool) {
	spend, ok := body["spend"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	v, ok := spend[key]
	return v, ok
}

func spendString(body map[string]interface{}, key string) string {
	v, _ := spendField(body, key)
	s, _ := v.(string)
	return s
}

// spendInt reads a number decoded from JSON, which arrives as float64 unless the decoder used json.Number.
func spendInt(body map[string]interface{}, key string) (int64, bool) {
	v, ok := spendField(body, key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

// OnChainHashes returns the recorded hashes that refer to real chain transactions.
func (transaction *Transaction) OnChainHashes() []string {
	var hashes []string
	for _, h := range transaction.Hashes {
		if h != SentinelHash {
			hashes = append(hashes, h)
		}
	}
	return hashes
}
