package storage

import (
	"github.com/fxamacker/cbor/v2"
)

// EncodeArtifact encodes an artifact with CBOR, the storage's on-disk
// format.
func EncodeArtifact(a any) ([]byte, error) {
	return cbor.Marshal(a)
}

// DecodeArtifact decodes a CBOR-encoded artifact into out.
func DecodeArtifact(data []byte, out any) error {
	return cbor.Unmarshal(data, out)
}
