package relayer

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/zdao/zdao-node/types"
)

// The relayer has shipped several wire formats for public decryption over
// time. All of them are resolved here, exactly once, into the canonical
// types.DecryptResult. Downstream code never inspects raw responses.
//
// Known shapes:
//
//  1. clearValues envelope: {"clearValues": {...}, "abiEncodedClearValues":
//     "0x..", "decryptionProof": "0x.."}
//  2. values envelope: {"values": {...}, "proof": "0x.."}
//  3. direct map: {"0xhandle": value, ...}

// flexNumber accepts a decrypted value serialized either as a JSON number or
// as a decimal string; the relayer has used both.
type flexNumber string

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	*n = flexNumber(s)
	return nil
}

type clearValuesEnvelope struct {
	ClearValues           map[string]flexNumber `json:"clearValues"`
	ABIEncodedClearValues string                `json:"abiEncodedClearValues"`
	DecryptionProof       string                `json:"decryptionProof"`
}

type valuesProofEnvelope struct {
	Values map[string]flexNumber `json:"values"`
	Proof  string                `json:"proof"`
}

// normalizeDecryptResponse resolves a raw publicDecrypt response into the
// canonical result. The requested handle order determines the ABI encoding
// order when the relayer did not provide one.
func normalizeDecryptResponse(raw json.RawMessage, handles []string) (*types.DecryptResult, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: not a JSON object", types.ErrUnsupportedResponseShape)
	}

	switch {
	case probe["clearValues"] != nil:
		var env clearValuesEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("%w: malformed clearValues envelope", types.ErrUnsupportedResponseShape)
		}
		return buildResult(env.ClearValues, env.ABIEncodedClearValues, env.DecryptionProof, handles)

	case probe["values"] != nil:
		var env valuesProofEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("%w: malformed values envelope", types.ErrUnsupportedResponseShape)
		}
		return buildResult(env.Values, "", env.Proof, handles)

	case isDirectMap(probe, handles):
		var values map[string]flexNumber
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Errorf("%w: malformed value map", types.ErrUnsupportedResponseShape)
		}
		return buildResult(values, "", "", handles)
	}
	return nil, fmt.Errorf("%w: keys %v", types.ErrUnsupportedResponseShape, mapKeys(probe))
}

// isDirectMap reports whether every key of the response is one of the
// requested handles. An empty object is not a recognizable map.
func isDirectMap(probe map[string]json.RawMessage, handles []string) bool {
	if len(probe) == 0 {
		return false
	}
	requested := make(map[string]bool, len(handles))
	for _, h := range handles {
		requested[strings.ToLower(h)] = true
	}
	for k := range probe {
		if !requested[strings.ToLower(k)] {
			return false
		}
	}
	return true
}

func buildResult(values map[string]flexNumber, abiEncoded, proof string, handles []string) (*types.DecryptResult, error) {
	clear := make(map[string]uint64, len(values))
	for handle, num := range values {
		v, err := parseClearValue(num)
		if err != nil {
			return nil, fmt.Errorf("%w: value for %s: %v", types.ErrUnsupportedResponseShape, handle, err)
		}
		clear[strings.ToLower(handle)] = v
	}

	result := &types.DecryptResult{ClearValues: clear}

	if abiEncoded != "" {
		b, err := hexutil.Decode(abiEncoded)
		if err != nil {
			return nil, fmt.Errorf("%w: abiEncodedClearValues: %v", types.ErrUnsupportedResponseShape, err)
		}
		result.ABIEncodedClearValues = b
	} else {
		b, err := abiEncodeClearValues(clear, handles)
		if err != nil {
			return nil, err
		}
		result.ABIEncodedClearValues = b
	}

	if proof != "" {
		b, err := hexutil.Decode(proof)
		if err != nil {
			return nil, fmt.Errorf("%w: proof: %v", types.ErrUnsupportedResponseShape, err)
		}
		result.DecryptionProof = b
	}
	return result, nil
}

func parseClearValue(num flexNumber) (uint64, error) {
	s := string(num)
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("not a non-negative integer: %q", s)
	}
	return v.Uint64(), nil
}

var uint256SliceType = func() abi.Type {
	t, err := abi.NewType("uint256[]", "", nil)
	if err != nil {
		panic(err)
	}
	return t
}()

// abiEncodeClearValues packs the decrypted values in the requested handle
// order, matching the encoding the ledger's submission method verifies.
func abiEncodeClearValues(clear map[string]uint64, handles []string) ([]byte, error) {
	ordered := make([]*big.Int, 0, len(handles))
	for _, h := range handles {
		v, ok := clear[strings.ToLower(h)]
		if !ok {
			return nil, fmt.Errorf("%w: missing value for %s", types.ErrUnsupportedResponseShape, h)
		}
		ordered = append(ordered, new(big.Int).SetUint64(v))
	}
	args := abi.Arguments{{Type: uint256SliceType}}
	return args.Pack(ordered)
}

func mapKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
