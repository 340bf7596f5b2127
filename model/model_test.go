package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const spendEvent = `{
	"id": "evt_1",
	"resource": "transaction",
	"action": "created",
	"body": {
		"id": "tx_1",
		"type": "spend",
		"spend": {
			"amount": 700,
			"currency": "usd",
			"authorizedAmount": 700,
			"cardId": "card_1",
			"userId": "user_1",
			"status": "pending",
			"merchantName": "Coffee",
			"enrichedMerchantIcon": "https://example.com/icon.png"
		}
	}
}`

func TestEventDecode(t *testing.T) {
	var event Event
	require.NoError(t, json.Unmarshal([]byte(spendEvent), &event))

	assert.True(t, event.IsTransaction())
	assert.Equal(t, "tx_1", event.Body.ID)
	assert.Equal(t, int64(700), event.Body.Spend.Amount)
	require.NotNil(t, event.Body.Spend.AuthorizedAmount)
	assert.Equal(t, int64(700), *event.Body.Spend.AuthorizedAmount)
	assert.Nil(t, event.Body.Spend.AuthorizationUpdateAmount)
	assert.Contains(t, string(event.Body.Raw()), "enrichedMerchantIcon")
}

func TestLedgerBodyKeepsUnknownFields(t *testing.T) {
	var event Event
	require.NoError(t, json.Unmarshal([]byte(spendEvent), &event))

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	body, err := event.LedgerBody(at)
	require.NoError(t, err)

	assert.Equal(t, "created", body["action"])
	assert.Equal(t, "2024-05-01T10:00:00Z", body["createdAt"])
	spend, ok := body["spend"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "https://example.com/icon.png", spend["enrichedMerchantIcon"])
}

func TestEventTimestamp(t *testing.T) {
	fallback := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	event := Event{}
	assert.Equal(t, fallback, event.Timestamp(fallback))

	at := fallback.Add(-time.Hour)
	event.CreatedAt = &at
	assert.Equal(t, at, event.Timestamp(fallback))
}

func TestTransactionHasAction(t *testing.T) {
	var nilTx *Transaction
	assert.False(t, nilTx.HasAction(ActionCreated))

	tx := &Transaction{
		Hashes: []string{"0xabc", SentinelHash},
		Payload: TransactionPayload{Bodies: []map[string]interface{}{
			{"action": ActionCreated},
			{"action": ActionCompleted},
		}},
	}
	assert.True(t, tx.HasAction(ActionCreated))
	assert.False(t, tx.HasAction(ActionUpdated))
	assert.Equal(t, []string{"0xabc"}, tx.OnChainHashes())
	assert.Len(t, SentinelHash, 66)
}

func isCompleted(action, _ string) bool {
	return action == ActionCompleted
}

func TestTransactionSettled(t *testing.T) {
	var nilTx *Transaction
	assert.False(t, nilTx.Settled(isCompleted))

	tx := &Transaction{Payload: TransactionPayload{Bodies: []map[string]interface{}{
		{"action": ActionCreated, "spend": map[string]interface{}{"status": StatusPending}},
	}}}
	assert.False(t, tx.Settled(isCompleted))

	tx.Payload.Bodies = append(tx.Payload.Bodies, map[string]interface{}{"action": ActionCompleted})
	assert.True(t, tx.Settled(isCompleted))

	tx.Payload.Bodies = append(tx.Payload.Bodies, map[string]interface{}{"action": ActionCompleted, RevertedKey: "0x02"})
	assert.False(t, tx.Settled(isCompleted))

	reversed := func(_, status string) bool { return status == StatusReversed }
	assert.False(t, tx.Settled(reversed))
	tx.Payload.Bodies = append(tx.Payload.Bodies, map[string]interface{}{
		"action": ActionUpdated,
		"spend":  map[string]interface{}{"status": StatusReversed},
	})
	assert.True(t, tx.Settled(reversed))
}

func TestTransactionHeldCents(t *testing.T) {
	var nilTx *Transaction
	_, ok := nilTx.HeldCents()
	assert.False(t, ok)

	var stored Transaction
	require.NoError(t, json.Unmarshal([]byte(`{"payload":{"bodies":[
		{"action":"created","spend":{"amount":700,"status":"pending"}},
		{"action":"updated","spend":{"amount":700,"authorizationUpdateAmount":300,"status":"pending"}},
		{"action":"updated","spend":{"amount":1000,"authorizationUpdateAmount":200,"status":"pending"}},
		{"action":"updated","spend":{"amount":1000,"authorizationUpdateAmount":200,"status":"pending"},"revertedHash":"0x03"},
		{"action":"updated","spend":{"amount":1000,"authorizationUpdateAmount":-1000,"status":"reversed"}}
	]}}`), &stored))

	held, ok := stored.HeldCents()
	assert.True(t, ok)
	assert.Equal(t, int64(1000), held)

	noCreation := &Transaction{Payload: TransactionPayload{Bodies: []map[string]interface{}{{"action": ActionCompleted}}}}
	_, ok = noCreation.HeldCents()
	assert.False(t, ok)
}

func TestCard(t *testing.T) {
	card := Card{Account: "0x00000000000000000000000000000000000000aa", Status: CardActive, Mode: 3}
	assert.True(t, card.IsActive())
	assert.True(t, card.IsInstallments())
	assert.Equal(t, card.Account, strings.ToLower(card.Address().Hex()))

	card.Status = CardFrozen
	assert.False(t, card.IsActive())
}
