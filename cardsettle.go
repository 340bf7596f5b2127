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
	"embed"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hibiken/asynq"
	"github.com/posthog/posthog-go"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/jerry-enebeli/cardsettle/config"
	"github.com/jerry-enebeli/cardsettle/database"
	"github.com/jerry-enebeli/cardsettle/internal/chain"
	"github.com/jerry-enebeli/cardsettle/internal/installments"
	"github.com/jerry-enebeli/cardsettle/internal/issuer"
	"github.com/jerry-enebeli/cardsettle/internal/keeper"
	"github.com/jerry-enebeli/cardsettle/internal/lock"
	"github.com/jerry-enebeli/cardsettle/internal/metrics"
	redis_db "github.com/jerry-enebeli/cardsettle/internal/redis-db"
	"github.com/jerry-enebeli/cardsettle/internal/signer"
	"github.com/jerry-enebeli/cardsettle/model"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

var tracer = otel.Tracer("cardsettle")

// Tracer simulates a transaction against current chain state.
type Tracer interface {
	TraceCall(ctx context.Context, tx model.PreviewTx, overrides chain.StateOverride) (*chain.CallFrame, error)
}

// MarketReader reads the credit market utilization used to split installments.
type MarketReader interface {
	MarketState(ctx context.Context, maturities []uint64) (model.MarketState, error)
}

// Submitter signs and broadcasts plugin calls. onHash runs once the transaction hash is known,
// before the receipt is awaited.
type Submitter interface {
	Address() common.Address
	Submit(ctx context.Context, account common.Address, call model.Call, onHash func(common.Hash) error) (*types.Receipt, error)
}

// Authorizer issues the off-chain signatures the plugin checks before moving funds.
type Authorizer interface {
	SignCollection(account common.Address, amount *big.Int, timestamp uint64) ([]byte, error)
	SignRefund(account common.Address, amount *big.Int, timestamp uint64) ([]byte, error)
}

// UserDeactivator disables a user at the card issuer.
type UserDeactivator interface {
	DeactivateUser(ctx context.Context, userID string) error
}

// CardSettle turns issuer webhooks into settlement calls on users' smart accounts.
type CardSettle struct {
	datasource  database.IDataSource
	locks       *lock.Registry
	planner     *Planner
	validator   *Validator
	keeper      Submitter
	issuer      UserDeactivator
	notifier    Notifier
	metrics     *metrics.Metrics
	decimals    int32
	lockTimeout time.Duration
	now         func() time.Time
	closers     []func()
}

// Options carries the collaborators of a CardSettle. Locks, Notifier and Metrics may be left nil.
type Options struct {
	Locks       *lock.Registry
	Planner     *Planner
	Validator   *Validator
	Keeper      Submitter
	Issuer      UserDeactivator
	Notifier    Notifier
	Metrics     *metrics.Metrics
	Decimals    int32
	LockTimeout time.Duration
}

func New(db database.IDataSource, opts Options) *CardSettle {
	locks := opts.Locks
	if locks == nil {
		locks = lock.NewRegistry(0)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &CardSettle{
		datasource:  db,
		locks:       locks,
		planner:     opts.Planner,
		validator:   opts.Validator,
		keeper:      opts.Keeper,
		issuer:      opts.Issuer,
		notifier:    notifier,
		metrics:     opts.Metrics,
		decimals:    opts.Decimals,
		lockTimeout: opts.LockTimeout,
		now:         time.Now,
	}
}

// Locks exposes the account lock registry.
func (c *CardSettle) Locks() *lock.Registry {
	return c.locks
}

// NewCardSettle wires a CardSettle from the loaded configuration: the chain client backs both the
// validator and the planner's market reads, the keeper submits settlements and push notifications
// go through the asynq queue.
//
// Parameters:
// - ctx context.Context: Bounds the initial chain dial.
// - db database.IDataSource: The datasource for card and ledger operations.
// - m *metrics.Metrics: Collectors to record into, or nil.
//
// Returns:
// - *CardSettle: The wired service. Call Close when done.
// - error: An error if any collaborator could not be built.
func NewCardSettle(ctx context.Context, db database.IDataSource, m *metrics.Metrics) (*CardSettle, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	chainCfg := cfg.Chain

	client, err := chain.Dial(ctx, chainCfg.RPCURL, common.HexToAddress(chainCfg.MarketAddress), chainCfg.Timeout())
	if err != nil {
		return nil, err
	}
	k, err := keeper.New(client.Eth(), chainCfg.KeeperPrivateKey, chainCfg.ChainID, chainCfg.ReceiptTimeout())
	if err != nil {
		client.Close()
		return nil, err
	}
	s, err := signer.New(chainCfg.IssuerPrivateKey, chainCfg.ChainID, common.HexToAddress(chainCfg.IssuerCheckerAddress))
	if err != nil {
		client.Close()
		return nil, err
	}
	splitter, err := installments.NewRateSplitter(cfg.Installments.BaseRate, cfg.Installments.Slope, cfg.Installments.Slippage)
	if err != nil {
		client.Close()
		return nil, err
	}

	redisOpts, err := redis_db.ParseRedisURL(cfg.Redis.Dns, cfg.Redis.SkipTLSVerify)
	if err != nil {
		client.Close()
		return nil, err
	}
	queue := asynq.NewClient(redis_db.AsynqOpt(redisOpts))
	closers := []func(){client.Close, func() { _ = queue.Close() }}

	var tracking analytics
	if cfg.Notification.PosthogKey != "" {
		ph, err := posthog.NewWithConfig(cfg.Notification.PosthogKey, posthog.Config{Endpoint: "https://us.i.posthog.com"})
		if err != nil {
			logrus.WithError(err).Warn("analytics disabled")
		} else {
			tracking = ph
			closers = append(closers, func() { _ = ph.Close() })
		}
	}

	collectors := make([]common.Address, 0, len(chainCfg.Collectors))
	for _, c := range chainCfg.Collectors {
		collectors = append(collectors, common.HexToAddress(c))
	}

	settle := New(db, Options{
		Locks:   lock.NewRegistry(chainCfg.LockLease()),
		Planner: NewPlanner(s, client, splitter, PlannerConfig{
			Submitter:         k.Address(),
			MaturityInterval:  uint64(chainCfg.MaturityIntervalSec),
			MinBorrowInterval: uint64(chainCfg.MinBorrowIntervalSec),
			Decimals:          chainCfg.Decimals,
		}),
		Validator: NewValidator(client, ValidatorConfig{
			Plugin:     common.HexToAddress(chainCfg.PluginAddress),
			Keeper:     k.Address(),
			Token:      common.HexToAddress(chainCfg.TokenAddress),
			Collectors: collectors,
		}, m),
		Keeper:      k,
		Issuer:      issuer.NewClient(cfg.Issuer.ApiUrl, cfg.Issuer.ApiKey, time.Duration(cfg.Issuer.TimeoutSec)*time.Second),
		Notifier:    NewQueueNotifier(queue, cfg.Queue.PushQueue, tracking),
		Metrics:     m,
		Decimals:    chainCfg.Decimals,
		LockTimeout: chainCfg.ProposalDelay(),
	})
	settle.closers = closers

	logrus.WithFields(logrus.Fields{
		"keeper":   k.Address().Hex(),
		"signer":   s.Address().Hex(),
		"chain_id": chainCfg.ChainID,
	}).Info("card settlement ready")
	return settle, nil
}

// Close releases the chain connection and the queue client.
func (c *CardSettle) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}
