// Package signer issues the EIP-712 authorizations the issuer checker contract verifies
// before the plugin moves funds.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	DomainName    = "IssuerChecker"
	DomainVersion = "1"
)

var (
	domainTypeHash     = crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	collectionTypeHash = crypto.Keccak256([]byte("Collection(address account,uint256 amount,uint40 timestamp)"))
	refundTypeHash     = crypto.Keccak256([]byte("Refund(address account,uint256 amount,uint40 timestamp)"))
)

type Signer struct {
	key    *ecdsa.PrivateKey
	domain []byte
}

func New(privateKeyHex string, chainID int64, verifyingContract common.Address) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid issuer private key: %w", err)
	}
	return &Signer{key: key, domain: domainSeparator(chainID, verifyingContract)}, nil
}

func domainSeparator(chainID int64, verifyingContract common.Address) []byte {
	return crypto.Keccak256(
		domainTypeHash,
		crypto.Keccak256([]byte(DomainName)),
		crypto.Keccak256([]byte(DomainVersion)),
		common.BigToHash(big.NewInt(chainID)).Bytes(),
		common.LeftPadBytes(verifyingContract.Bytes(), 32),
	)
}

// Address is the issuer address the checker contract expects signatures from.
func (s *Signer) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *Signer) digest(typeHash []byte, account common.Address, amount *big.Int, timestamp uint64) []byte {
	structHash := crypto.Keccak256(
		typeHash,
		common.LeftPadBytes(account.Bytes(), 32),
		common.BigToHash(amount).Bytes(),
		common.BigToHash(new(big.Int).SetUint64(timestamp)).Bytes(),
	)
	return crypto.Keccak256([]byte{0x19, 0x01}, s.domain, structHash)
}

// CollectionDigest returns the typed data hash a collection signature covers.
func (s *Signer) CollectionDigest(account common.Address, amount *big.Int, timestamp uint64) []byte {
	return s.digest(collectionTypeHash, account, amount, timestamp)
}

func (s *Signer) RefundDigest(account common.Address, amount *big.Int, timestamp uint64) []byte {
	return s.digest(refundTypeHash, account, amount, timestamp)
}

func (s *Signer) sign(digest []byte) ([]byte, error) {
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

func (s *Signer) SignCollection(account common.Address, amount *big.Int, timestamp uint64) ([]byte, error) {
	return s.sign(s.CollectionDigest(account, amount, timestamp))
}

func (s *Signer) SignRefund(account common.Address, amount *big.Int, timestamp uint64) ([]byte, error) {
	return s.sign(s.RefundDigest(account, amount, timestamp))
}
