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

package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CallFrame is one frame of a callTracer result.
type CallFrame struct {
	Type         string         `json:"type"`
	From         common.Address `json:"from"`
	To           common.Address `json:"to"`
	Value        *hexutil.Big   `json:"value,omitempty"`
	Gas          hexutil.Uint64 `json:"gas"`
	GasUsed      hexutil.Uint64 `json:"gasUsed"`
	Input        hexutil.Bytes  `json:"input"`
	Output       hexutil.Bytes  `json:"output,omitempty"`
	Error        string         `json:"error,omitempty"`
	RevertReason string         `json:"revertReason,omitempty"`
	Calls        []CallFrame    `json:"calls,omitempty"`
	Logs         []CallLog      `json:"logs,omitempty"`
}

type CallLog struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

func (f *CallFrame) Reverted() bool {
	return f.Error != ""
}

// AllLogs returns the logs of f and every nested frame in execution order.
func (f *CallFrame) AllLogs() []CallLog {
	var logs []CallLog
	stack := []*CallFrame{f}
	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		logs = append(logs, frame.Logs...)
		for i := len(frame.Calls) - 1; i >= 0; i-- {
			stack = append(stack, &frame.Calls[i])
		}
	}
	return logs
}

// Collected sums the token Transfer logs in the trace whose recipient is one of collectors.
func (f *CallFrame) Collected(token common.Address, collectors []common.Address) *big.Int {
	recipients := make(map[common.Address]struct{}, len(collectors))
	for _, c := range collectors {
		recipients[c] = struct{}{}
	}

	total := new(big.Int)
	for _, l := range f.AllLogs() {
		if l.Address != token || len(l.Topics) != 3 || l.Topics[0] != TransferTopic {
			continue
		}
		if _, ok := recipients[common.BytesToAddress(l.Topics[2].Bytes())]; !ok {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(l.Data))
	}
	return total
}

// OverrideAccount replaces parts of an account's state for the duration of a simulation.
type OverrideAccount struct {
	StateDiff map[common.Hash]common.Hash `json:"stateDiff,omitempty"`
}

type StateOverride map[common.Address]OverrideAccount

// GrantRole overrides contract storage so that account holds role during the simulation.
func GrantRole(contract, account common.Address, role common.Hash) StateOverride {
	return StateOverride{
		contract: {StateDiff: map[common.Hash]common.Hash{
			RoleSlot(account, role): common.BigToHash(big.NewInt(1)),
		}},
	}
}
