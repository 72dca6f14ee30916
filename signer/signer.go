// Package signer abstracts the voter's signing capability. The engine only
// needs an address, the chain it is bound to, and EIP-712 typed data
// signatures for decryption authorizations.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer is the voter-side signing surface.
type Signer interface {
	// Address returns the voter's account address.
	Address() common.Address
	// ChainID returns the chain the signer is bound to.
	ChainID() *big.Int
	// SignTypedData signs an EIP-712 typed data payload and returns the
	// 65-byte signature.
	SignTypedData(data apitypes.TypedData) ([]byte, error)
}

// LocalSigner signs with an in-process private key.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	addr    common.Address
	chainID *big.Int
}

// NewLocalSigner creates a LocalSigner from a hex-encoded private key.
func NewLocalSigner(hexKey string, chainID *big.Int) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &LocalSigner{
		key:     key,
		addr:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
	}, nil
}

// NewLocalSignerFromKey creates a LocalSigner from an existing key.
func NewLocalSignerFromKey(key *ecdsa.PrivateKey, chainID *big.Int) *LocalSigner {
	return &LocalSigner{
		key:     key,
		addr:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
	}
}

func (s *LocalSigner) Address() common.Address { return s.addr }

func (s *LocalSigner) ChainID() *big.Int { return new(big.Int).Set(s.chainID) }

func (s *LocalSigner) SignTypedData(data apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}
	// Transform V from 0/1 to 27/28, the form the relayer verifies.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// PrivateKey exposes the underlying key for transaction signing.
func (s *LocalSigner) PrivateKey() *ecdsa.PrivateKey { return s.key }
