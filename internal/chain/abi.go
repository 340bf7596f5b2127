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
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const pluginABIJSON = `[
	{"type":"function","name":"collectDebit","stateMutability":"nonpayable","inputs":[
		{"name":"amount","type":"uint256"},{"name":"timestamp","type":"uint256"},{"name":"signature","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"collectCredit","stateMutability":"nonpayable","inputs":[
		{"name":"maturity","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"timestamp","type":"uint256"},{"name":"signature","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"collectInstallments","stateMutability":"nonpayable","inputs":[
		{"name":"firstMaturity","type":"uint256"},{"name":"amounts","type":"uint256[]"},{"name":"maxRepay","type":"uint256"},{"name":"timestamp","type":"uint256"},{"name":"signature","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"refund","stateMutability":"nonpayable","inputs":[
		{"name":"amount","type":"uint256"},{"name":"timestamp","type":"uint256"},{"name":"signature","type":"bytes"}],"outputs":[]}
]`

// Custom errors the plugin, issuer checker and market may revert with.
const errorsABIJSON = `[
	{"type":"error","name":"InsufficientAccountLiquidity","inputs":[]},
	{"type":"error","name":"Expired","inputs":[]},
	{"type":"error","name":"Replay","inputs":[]},
	{"type":"error","name":"Timelocked","inputs":[]},
	{"type":"error","name":"Unauthorized","inputs":[]},
	{"type":"error","name":"ZeroAmount","inputs":[]},
	{"type":"error","name":"Disagreement","inputs":[]},
	{"type":"error","name":"NotMarket","inputs":[]},
	{"type":"error","name":"InvalidOperation","inputs":[]}
]`

const marketABIJSON = `[
	{"type":"function","name":"floatingAssets","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"floatingDebt","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"fixedPools","stateMutability":"view","inputs":[{"name":"maturity","type":"uint256"}],"outputs":[
		{"name":"borrowed","type":"uint256"},{"name":"supplied","type":"uint256"},{"name":"unassignedEarnings","type":"uint256"},{"name":"lastAccrual","type":"uint256"}]}
]`

const (
	ErrInsufficientAccountLiquidity = "InsufficientAccountLiquidity"
)

var (
	PluginABI = mustParse(pluginABIJSON)
	ErrorsABI = mustParse(errorsABIJSON)
	MarketABI = mustParse(marketABIJSON)

	// TransferTopic is the topic of the ERC-20 Transfer(address,address,uint256) event.
	TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	// KeeperRole is the access-control role the plugin requires from the keeper.
	KeeperRole = crypto.Keccak256Hash([]byte("KEEPER_ROLE"))
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// DecodeRevert names the error carried by a revert output. Known custom errors return their
// name, a require message returns the message, anything else returns an error.
func DecodeRevert(output []byte) (string, error) {
	if len(output) < 4 {
		return "", errors.New("empty revert data")
	}
	var selector [4]byte
	copy(selector[:], output[:4])
	if e, err := ErrorsABI.ErrorByID(selector); err == nil {
		return e.Name, nil
	}
	if reason, err := abi.UnpackRevert(output); err == nil {
		return reason, nil
	}
	return "", errors.New("unknown revert selector " + common.Bytes2Hex(output[:4]))
}

// RoleSlot is the storage slot of AccessControl's hasRole[role][account] flag,
// keccak(account . keccak(role . 0)) with the roles mapping at slot 0.
func RoleSlot(account common.Address, role common.Hash) common.Hash {
	roleData := crypto.Keccak256(role.Bytes(), common.Hash{}.Bytes())
	return crypto.Keccak256Hash(common.LeftPadBytes(account.Bytes(), 32), roleData)
}
