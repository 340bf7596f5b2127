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
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/cardsettle/internal/apierror"
	"github.com/jerry-enebeli/cardsettle/internal/chain"
	"github.com/jerry-enebeli/cardsettle/internal/metrics"
	"github.com/jerry-enebeli/cardsettle/model"
)

// Validator simulates an authorization before it is granted.
type Validator struct {
	tracer     Tracer
	plugin     common.Address
	keeper     common.Address
	token      common.Address
	collectors []common.Address
	metrics    *metrics.Metrics
}

type ValidatorConfig struct {
	Plugin     common.Address
	Keeper     common.Address
	Token      common.Address
	Collectors []common.Address
}

func NewValidator(tracer Tracer, cfg ValidatorConfig, m *metrics.Metrics) *Validator {
	return &Validator{
		tracer:     tracer,
		plugin:     cfg.Plugin,
		keeper:     cfg.Keeper,
		token:      cfg.Token,
		collectors: cfg.Collectors,
		metrics:    m,
	}
}

// Validate traces tx with the keeper granted its role on the plugin and checks that it collects
// exactly expected. A revert maps to a reverted or insufficient funds error, a different collected
// total to a bad collection error.
func (v *Validator) Validate(ctx context.Context, tx model.PreviewTx, expected *big.Int) error {
	ctx, span := tracer.Start(ctx, "Validate")
	defer span.End()

	frame, err := v.tracer.TraceCall(ctx, tx, chain.GrantRole(v.plugin, v.keeper, chain.KeeperRole))
	if err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrUnexpected, "failed to simulate authorization", err)
	}

	fields := logrus.Fields{"account": tx.To.Hex(), "expected": expected.String()}

	if frame.Reverted() {
		reason, decodeErr := chain.DecodeRevert(frame.Output)
		if decodeErr != nil {
			reason = frame.Error
		}
		logrus.WithFields(fields).WithField("reason", reason).Info("authorization simulation reverted")
		if reason == chain.ErrInsufficientAccountLiquidity {
			v.metrics.ValidationFailure("insufficient_funds")
			return apierror.NewAPIError(apierror.ErrInsufficientFunds, "insufficient account liquidity", nil)
		}
		v.metrics.ValidationFailure("reverted")
		return apierror.NewAPIError(apierror.ErrTxReverted, "simulated transaction reverted: "+reason, nil)
	}

	collected := frame.Collected(v.token, v.collectors)
	if collected.Cmp(expected) != 0 {
		logrus.WithFields(fields).WithField("collected", collected.String()).Warn("suspicious collection")
		v.metrics.ValidationFailure("bad_collection")
		return apierror.NewAPIError(apierror.ErrBadCollection, "collected amount does not match the spend", nil)
	}
	return nil
}
