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

// Package keeper signs and broadcasts plugin calls on behalf of user accounts.
package keeper

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/jerry-enebeli/cardsettle/internal/chain"
	"github.com/jerry-enebeli/cardsettle/model"
)

var ErrReverted = errors.New("transaction reverted")

// Backend is the subset of ethclient.Client the keeper needs.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Keeper struct {
	backend        Backend
	key            *ecdsa.PrivateKey
	chainID        *big.Int
	receiptTimeout time.Duration
	pollInterval   time.Duration

	// nonces are assigned under mu so concurrent submissions for different accounts do not collide.
	mu sync.Mutex
}

func New(backend Backend, privateKeyHex string, chainID int64, receiptTimeout time.Duration) (*Keeper, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid keeper private key")
	}
	return &Keeper{
		backend:        backend,
		key:            key,
		chainID:        big.NewInt(chainID),
		receiptTimeout: receiptTimeout,
		pollInterval:   500 * time.Millisecond,
	}, nil
}

func (k *Keeper) Address() common.Address {
	return crypto.PubkeyToAddress(k.key.PublicKey)
}

// Encode packs call against the plugin ABI.
func Encode(call model.Call) ([]byte, error) {
	data, err := chain.PluginABI.Pack(call.Function, call.Args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s", call.Function)
	}
	return data, nil
}

// Submit sends call to account and waits for its receipt. onHash runs as soon as the
// transaction is accepted by the node, before the receipt wait starts.
func (k *Keeper) Submit(ctx context.Context, account common.Address, call model.Call, onHash func(common.Hash) error) (*types.Receipt, error) {
	ctx, span := otel.Tracer("cardsettle.keeper").Start(ctx, "Submit")
	defer span.End()

	data, err := Encode(call)
	if err != nil {
		return nil, err
	}

	tx, err := k.send(ctx, account, data)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"account":  account.Hex(),
		"function": call.Function,
		"hash":     tx.Hash().Hex(),
	}).Info("transaction sent")

	if onHash != nil {
		if err := onHash(tx.Hash()); err != nil {
			logrus.WithError(err).WithField("hash", tx.Hash().Hex()).Error("onHash hook failed")
		}
	}

	receipt, err := k.waitReceipt(ctx, tx.Hash())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, errors.Wrapf(ErrReverted, "tx %s", tx.Hash().Hex())
	}
	return receipt, nil
}

func (k *Keeper) send(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	from := k.Address()
	nonce, err := k.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get nonce")
	}
	tip, err := k.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to suggest gas tip")
	}
	head, err := k.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest header")
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}
	gas, err := k.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return nil, errors.Wrap(err, "failed to estimate gas")
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   k.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas * 12 / 10,
		To:        &to,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(k.chainID), k.key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}
	if err := k.backend.SendTransaction(ctx, signed); err != nil {
		return nil, errors.Wrap(err, "failed to send transaction")
	}
	return signed, nil
}

func (k *Keeper) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = k.pollInterval
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = k.receiptTimeout

	var receipt *types.Receipt
	err := backoff.Retry(func() error {
		r, err := k.backend.TransactionReceipt(ctx, hash)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "no receipt for %s", hash.Hex())
	}
	return receipt, nil
}
