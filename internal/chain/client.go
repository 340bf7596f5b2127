/*
Package chain reads chain state and simulates transactions for the settlement core.
*/
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jerry-enebeli/cardsettle/model"
)

var tracer = otel.Tracer("cardsettle.chain")

type Client struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	market  common.Address
	timeout time.Duration
}

type callArgs struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Input hexutil.Bytes  `json:"input"`
}

type traceConfig struct {
	Tracer         string          `json:"tracer"`
	TracerConfig   map[string]bool `json:"tracerConfig"`
	StateOverrides StateOverride   `json:"stateOverrides,omitempty"`
}

func Dial(ctx context.Context, url string, market common.Address, timeout time.Duration) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain rpc: %w", err)
	}
	return NewClient(rc, market, timeout), nil
}

func NewClient(rc *rpc.Client, market common.Address, timeout time.Duration) *Client {
	return &Client{rpc: rc, eth: ethclient.NewClient(rc), market: market, timeout: timeout}
}

// Eth exposes the underlying ethclient for transaction submission.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// TraceCall simulates tx on the latest block with the call tracer and logs enabled.
func (c *Client) TraceCall(ctx context.Context, tx model.PreviewTx, overrides StateOverride) (*CallFrame, error) {
	ctx, span := tracer.Start(ctx, "TraceCall")
	defer span.End()
	span.SetAttributes(attribute.String("to", tx.To.Hex()))

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var frame CallFrame
	err := c.rpc.CallContext(ctx, &frame, "debug_traceCall",
		callArgs{From: tx.From, To: tx.To, Input: tx.Data},
		"latest",
		traceConfig{Tracer: "callTracer", TracerConfig: map[string]bool{"withLog": true}, StateOverrides: overrides},
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("debug_traceCall failed: %w", err)
	}
	return &frame, nil
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := MarketABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.market, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	return MarketABI.Unpack(method, out)
}

// MarketState reads the floating pool totals and the fixed pools at each maturity.
func (c *Client) MarketState(ctx context.Context, maturities []uint64) (model.MarketState, error) {
	ctx, span := tracer.Start(ctx, "MarketState")
	defer span.End()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	state := model.MarketState{}
	assets, err := c.call(ctx, "floatingAssets")
	if err != nil {
		return state, err
	}
	debt, err := c.call(ctx, "floatingDebt")
	if err != nil {
		return state, err
	}
	state.FloatingAssets = assets[0].(*big.Int)
	state.FloatingDebt = debt[0].(*big.Int)

	for _, maturity := range maturities {
		pool, err := c.call(ctx, "fixedPools", new(big.Int).SetUint64(maturity))
		if err != nil {
			return state, err
		}
		state.Pools = append(state.Pools, model.FixedPool{
			Maturity: maturity,
			Borrowed: pool[0].(*big.Int),
			Supplied: pool[1].(*big.Int),
		})
	}

	logrus.WithFields(logrus.Fields{
		"floating_assets": state.FloatingAssets.String(),
		"maturities":      len(maturities),
	}).Debug("market state read")
	return state, nil
}
