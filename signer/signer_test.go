package signer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	qt "github.com/frankban/quicktest"
)

func testTypedData(chainID int64) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Authorization": []apitypes.Type{
				{Name: "publicKey", Type: "bytes"},
			},
		},
		PrimaryType: "Authorization",
		Domain: apitypes.TypedDataDomain{
			Name:    "Decryption",
			Version: "1",
			ChainId: math.NewHexOrDecimal256(chainID),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey": "0x0102",
		},
	}
}

func TestSignTypedDataRecoversAddress(t *testing.T) {
	c := qt.New(t)

	key, err := crypto.GenerateKey()
	c.Assert(err, qt.IsNil)
	s := NewLocalSignerFromKey(key, big.NewInt(11155111))
	c.Assert(s.Address(), qt.Equals, crypto.PubkeyToAddress(key.PublicKey))
	c.Assert(s.ChainID().Int64(), qt.Equals, int64(11155111))

	data := testTypedData(11155111)
	sig, err := s.SignTypedData(data)
	c.Assert(err, qt.IsNil)
	c.Assert(sig, qt.HasLen, 65)
	// V is in the 27/28 form the relayer verifies.
	c.Assert(sig[64] == 27 || sig[64] == 28, qt.IsTrue)

	hash, _, err := apitypes.TypedDataAndHash(data)
	c.Assert(err, qt.IsNil)
	recovery := make([]byte, 65)
	copy(recovery, sig)
	recovery[64] -= 27
	pub, err := crypto.SigToPub(hash, recovery)
	c.Assert(err, qt.IsNil)
	c.Assert(crypto.PubkeyToAddress(*pub), qt.Equals, s.Address())
}

func TestNewLocalSignerRejectsBadKey(t *testing.T) {
	c := qt.New(t)
	_, err := NewLocalSigner("not a key", big.NewInt(1))
	c.Assert(err, qt.IsNotNil)
}
