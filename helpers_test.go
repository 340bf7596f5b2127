/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cardsettle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/jerry-enebeli/cardsettle/internal/apierror"
	"github.com/jerry-enebeli/cardsettle/internal/chain"
	"github.com/jerry-enebeli/cardsettle/internal/installments"
	"github.com/jerry-enebeli/cardsettle/model"
)

var (
	testToken     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	testCollector = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	testKeeper    = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	testPlugin    = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	testNow       = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
)

func testCard(mode int) *model.Card {
	return &model.Card{
		ID:      "card_1",
		Account: "0x00000000000000000000000000000000000000aa",
		UserID:  "user_1",
		Mode:    mode,
		Status:  model.CardActive,
	}
}

func cents(v int64) *int64 {
	return &v
}

func spendEvent(action, status string, amount int64, authorized *int64) *model.Event {
	return &model.Event{
		ID:       fmt.Sprintf("evt_%s_%d", action, amount),
		Resource: model.ResourceTransaction,
		Action:   action,
		Body: model.EventBody{
			ID: "tx_1",
			Spend: &model.Spend{
				Amount:           amount,
				Currency:         "usd",
				AuthorizedAmount: authorized,
				CardID:           "card_1",
				UserID:           "user_1",
				Status:           status,
				MerchantName:     "Coffee",
			},
		},
	}
}

// memoryStore is an in-memory IDataSource.
type memoryStore struct {
	mu          sync.Mutex
	cards       map[string]*model.Card
	txns        map[string]*model.Transaction
	invalidated []string
}

func newMemoryStore(cards ...*model.Card) *memoryStore {
	s := &memoryStore{cards: make(map[string]*model.Card), txns: make(map[string]*model.Transaction)}
	for _, c := range cards {
		s.cards[c.ID] = c
	}
	return s
}

func (s *memoryStore) GetCard(_ context.Context, id string) (*model.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrCardNotFound, "card not found", nil)
	}
	copied := *c
	return &copied, nil
}

func (s *memoryStore) InvalidateCard(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, id)
	return nil
}

func (s *memoryStore) FindTransaction(_ context.Context, id, cardID string) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[id+"/"+cardID]
	if !ok {
		return nil, nil
	}
	copied := *txn
	return &copied, nil
}

func (s *memoryStore) UpsertTransaction(_ context.Context, id, cardID, hash string, body map[string]interface{}, createdAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := id + "/" + cardID
	txn, ok := s.txns[key]
	if !ok {
		txn = &model.Transaction{ID: id, CardID: cardID, CreatedAt: createdAt}
		s.txns[key] = txn
	}
	txn.Hashes = append(txn.Hashes, hash)
	txn.Payload.Bodies = append(txn.Payload.Bodies, body)
	return nil
}

func (s *memoryStore) hashes(id, cardID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if txn, ok := s.txns[id+"/"+cardID]; ok {
		return append([]string(nil), txn.Hashes...)
	}
	return nil
}

type fakeKeeper struct {
	mu      sync.Mutex
	calls   []model.Call
	sendErr error
	err     error
}

func (k *fakeKeeper) Address() common.Address {
	return testKeeper
}

func (k *fakeKeeper) Submit(_ context.Context, _ common.Address, call model.Call, onHash func(common.Hash) error) (*types.Receipt, error) {
	k.mu.Lock()
	k.calls = append(k.calls, call)
	n := len(k.calls)
	k.mu.Unlock()

	if k.sendErr != nil {
		return nil, k.sendErr
	}
	hash := common.BigToHash(big.NewInt(int64(n)))
	if onHash != nil {
		_ = onHash(hash)
	}
	if k.err != nil {
		return nil, k.err
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash}, nil
}

func (k *fakeKeeper) submitted() []model.Call {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]model.Call(nil), k.calls...)
}

type fakeSigner struct{}

func (fakeSigner) SignCollection(common.Address, *big.Int, uint64) ([]byte, error) {
	return make([]byte, 65), nil
}

func (fakeSigner) SignRefund(common.Address, *big.Int, uint64) ([]byte, error) {
	return make([]byte, 65), nil
}

type fakeMarket struct {
	state model.MarketState
	err   error
	asked []uint64
}

func (m *fakeMarket) MarketState(_ context.Context, maturities []uint64) (model.MarketState, error) {
	m.asked = maturities
	return m.state, m.err
}

// fakeTracer answers every simulation with frame, or collects wants when frame is nil.
type fakeTracer struct {
	frame     *chain.CallFrame
	wants     *big.Int
	err       error
	overrides chain.StateOverride
}

func (t *fakeTracer) TraceCall(_ context.Context, tx model.PreviewTx, overrides chain.StateOverride) (*chain.CallFrame, error) {
	t.overrides = overrides
	if t.err != nil {
		return nil, t.err
	}
	if t.frame != nil {
		return t.frame, nil
	}
	return collectingFrame(tx.To, t.wants), nil
}

func collectingFrame(from common.Address, amount *big.Int) *chain.CallFrame {
	return &chain.CallFrame{
		Type: "CALL",
		From: testKeeper,
		To:   from,
		Calls: []chain.CallFrame{{
			Type: "CALL",
			From: from,
			To:   testToken,
			Logs: []chain.CallLog{{
				Address: testToken,
				Topics: []common.Hash{
					chain.TransferTopic,
					common.BytesToHash(from.Bytes()),
					common.BytesToHash(testCollector.Bytes()),
				},
				Data: common.BigToHash(amount).Bytes(),
			}},
		}},
	}
}

type fakeIssuer struct {
	mu          sync.Mutex
	deactivated []string
}

func (i *fakeIssuer) DeactivateUser(_ context.Context, userID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.deactivated = append(i.deactivated, userID)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.sent {
		out = append(out, n.Event)
	}
	return out
}

func newTestPlanner(market MarketReader) *Planner {
	splitter, err := installments.NewRateSplitter("0", "0", "0.02")
	if err != nil {
		panic(err)
	}
	return NewPlanner(fakeSigner{}, market, splitter, PlannerConfig{
		Submitter:         testKeeper,
		MaturityInterval:  100,
		MinBorrowInterval: 10,
		Decimals:          6,
	})
}

type testHarness struct {
	settle   *CardSettle
	store    *memoryStore
	keeper   *fakeKeeper
	tracer   *fakeTracer
	issuer   *fakeIssuer
	notifier *recordingNotifier
}

func newHarness(store *memoryStore, lockTimeout time.Duration) *testHarness {
	h := &testHarness{
		store:    store,
		keeper:   &fakeKeeper{},
		tracer:   &fakeTracer{},
		issuer:   &fakeIssuer{},
		notifier: &recordingNotifier{},
	}
	h.settle = New(store, Options{
		Planner: newTestPlanner(&fakeMarket{}),
		Validator: NewValidator(h.tracer, ValidatorConfig{
			Plugin:     testPlugin,
			Keeper:     testKeeper,
			Token:      testToken,
			Collectors: []common.Address{testCollector},
		}, nil),
		Keeper:      h.keeper,
		Issuer:      h.issuer,
		Notifier:    h.notifier,
		Decimals:    6,
		LockTimeout: lockTimeout,
	})
	h.settle.now = func() time.Time { return testNow }
	return h
}
