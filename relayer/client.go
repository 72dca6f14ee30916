// Package relayer implements the client for the external confidential
// compute relayer: encryption of vote inputs, public decryption of tally
// handles with transparent caching, and signed per-voter decryption.
package relayer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/zdao/zdao-node/log"
	"github.com/zdao/zdao-node/signer"
	"github.com/zdao/zdao-node/storage"
	"github.com/zdao/zdao-node/types"
)

const (
	// initAttempts bounds session initialization retries.
	initAttempts = 3
	// initBackoff is the fixed delay between initialization attempts.
	initBackoff = 2 * time.Second
	// authorizationDays is the validity window of a signed per-voter
	// decryption authorization.
	authorizationDays = 10
)

type sessionState int

const (
	sessionUninitialized sessionState = iota
	sessionReady
	sessionFailed
)

// Config holds the relayer client parameters.
type Config struct {
	// Contract is the voting contract whose handles this client decrypts.
	Contract common.Address
	// Verifier is the decryption verifier contract the authorization is
	// scoped to.
	Verifier common.Address
}

// Client drives the confidential compute relayer. Session initialization
// happens at most once per process lifetime; after the bounded retries are
// exhausted every call reports types.ErrRelayerUnavailable until Reset.
type Client struct {
	transport Transport
	store     *storage.Storage
	signer    signer.Signer
	cfg       Config

	mu      sync.Mutex
	state   sessionState
	backoff time.Duration
}

// New creates a relayer client. The storage backs the public decryption
// cache and may be shared with other components.
func New(transport Transport, store *storage.Storage, sig signer.Signer, cfg Config) *Client {
	return &Client{
		transport: transport,
		store:     store,
		signer:    sig,
		cfg:       cfg,
		backoff:   initBackoff,
	}
}

// Init establishes the relayer session. It is idempotent: a ready session is
// left untouched, a permanently failed one reports ErrRelayerUnavailable.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case sessionReady:
		return nil
	case sessionFailed:
		return types.ErrRelayerUnavailable
	}

	var lastErr error
	for attempt := 1; attempt <= initAttempts; attempt++ {
		if lastErr = c.transport.Init(ctx); lastErr == nil {
			c.state = sessionReady
			log.Infow("relayer session initialized", "attempt", attempt)
			return nil
		}
		log.Warnw("relayer session init failed", "attempt", attempt, "error", lastErr.Error())
		if attempt < initAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff):
			}
		}
	}
	c.state = sessionFailed
	return fmt.Errorf("%w: %v", types.ErrRelayerUnavailable, lastErr)
}

// Reset discards the session state so Init may be attempted again. Used
// when the voter session changes account or chain.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = sessionUninitialized
}

// Ready reports whether a live session exists.
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == sessionReady
}

func (c *Client) requireSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case sessionReady:
		return nil
	case sessionFailed:
		return types.ErrRelayerUnavailable
	default:
		return types.ErrNotReady
	}
}

// Encrypt encrypts a vote value for the given voter and returns the handle
// with its validity proof. The narrow encoding is tried first; if the
// session cannot encode it the wider one is attempted before giving up.
func (c *Client) Encrypt(ctx context.Context, value uint64, voter common.Address) (types.HexBytes, types.HexBytes, error) {
	if err := c.requireSession(); err != nil {
		return nil, nil, err
	}
	for _, bits := range []int{8, 16} {
		resp, err := c.transport.Encrypt(ctx, &EncryptRequest{
			ContractAddress: c.cfg.Contract.Hex(),
			UserAddress:     voter.Hex(),
			Value:           value,
			BitWidth:        bits,
		})
		if err != nil {
			if errors.Is(err, types.ErrEncodingUnsupported) {
				log.Debugw("bit width rejected, widening", "bits", bits)
				continue
			}
			return nil, nil, fmt.Errorf("encrypt value: %w", err)
		}
		handle, err := hexutil.Decode(resp.Handle)
		if err != nil {
			return nil, nil, fmt.Errorf("decode handle: %w", err)
		}
		proof, err := hexutil.Decode(resp.Proof)
		if err != nil {
			return nil, nil, fmt.Errorf("decode proof: %w", err)
		}
		return handle, proof, nil
	}
	return nil, nil, types.ErrEncodingUnsupported
}

// PublicDecrypt decrypts publicly decryptable handles, consulting the cache
// first. The returned result is canonical regardless of which wire shape the
// relayer produced.
func (c *Client) PublicDecrypt(ctx context.Context, handles []string) (*types.DecryptResult, error) {
	if err := validateHandles(handles); err != nil {
		return nil, err
	}
	if err := c.requireSession(); err != nil {
		return nil, err
	}

	fingerprint := storage.Fingerprint(handles)
	if cached, err := c.store.DecryptResult(fingerprint); err == nil {
		log.Debugw("public decrypt served from cache", "fingerprint", fingerprint)
		return cached, nil
	}

	raw, err := c.transport.PublicDecrypt(ctx, handles)
	if err != nil {
		return nil, fmt.Errorf("public decrypt: %w", err)
	}
	result, err := normalizeDecryptResponse(raw, handles)
	if err != nil {
		return nil, err
	}
	if err := c.store.SetDecryptResult(fingerprint, result); err != nil {
		log.Warnw("failed to cache decrypt result", "fingerprint", fingerprint, "error", err.Error())
	}
	return result, nil
}

// UserDecrypt decrypts the calling voter's own handles. Each call generates
// a fresh keypair and prompts the signer for a time-bounded authorization
// scoped to the voting contract.
func (c *Client) UserDecrypt(ctx context.Context, handles []string) (map[string]uint64, error) {
	if err := validateHandles(handles); err != nil {
		return nil, err
	}
	if err := c.requireSession(); err != nil {
		return nil, err
	}

	keypair, err := generateKeypair()
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	start := time.Now().Unix()
	sig, err := c.signer.SignTypedData(c.authorizationTypedData(keypair.PublicKey, start))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSignatureRejected, err)
	}

	pairs := make([]HandleContractPair, len(handles))
	for i, h := range handles {
		pairs[i] = HandleContractPair{Handle: h, ContractAddress: c.cfg.Contract.Hex()}
	}
	values, err := c.transport.UserDecrypt(ctx, &UserDecryptRequest{
		HandleContractPairs: pairs,
		PublicKey:           keypair.PublicKey,
		PrivateKey:          keypair.PrivateKey,
		Signature:           strings.TrimPrefix(hexutil.Encode(sig), "0x"),
		ContractAddresses:   []string{c.cfg.Contract.Hex()},
		UserAddress:         c.signer.Address().Hex(),
		StartTimestamp:      start,
		DurationDays:        authorizationDays,
	})
	if err != nil {
		return nil, fmt.Errorf("user decrypt: %w", err)
	}

	decoded := make(map[string]uint64, len(values))
	for handle, raw := range values {
		v, ok := new(big.Int).SetString(trimHexPrefix(raw), pickBase(raw))
		if !ok || !v.IsUint64() {
			return nil, fmt.Errorf("undecodable value for %s: %q", handle, raw)
		}
		decoded[strings.ToLower(handle)] = v.Uint64()
	}
	return decoded, nil
}

// authorizationTypedData builds the EIP-712 payload the relayer verifies
// before releasing per-voter plaintexts.
func (c *Client) authorizationTypedData(publicKey string, start int64) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"UserDecryptRequestVerification": {
				{Name: "publicKey", Type: "bytes"},
				{Name: "contractAddresses", Type: "address[]"},
				{Name: "startTimestamp", Type: "uint256"},
				{Name: "durationDays", Type: "uint256"},
			},
		},
		PrimaryType: "UserDecryptRequestVerification",
		Domain: apitypes.TypedDataDomain{
			Name:              "Decryption",
			Version:           "1",
			ChainId:           (*math.HexOrDecimal256)(c.signer.ChainID()),
			VerifyingContract: c.cfg.Verifier.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         publicKey,
			"contractAddresses": []any{c.cfg.Contract.Hex()},
			"startTimestamp":    fmt.Sprintf("%d", start),
			"durationDays":      fmt.Sprintf("%d", authorizationDays),
		},
	}
}

type keypair struct {
	PublicKey  string
	PrivateKey string
}

func generateKeypair() (*keypair, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &keypair{
		PublicKey:  hexutil.Encode(crypto.CompressPubkey(&key.PublicKey)),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
	}, nil
}

var handleRx = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// validateHandles rejects anything that is not a well-formed 32-byte hex
// handle before any network call is made.
func validateHandles(handles []string) error {
	if len(handles) == 0 {
		return fmt.Errorf("%w: empty handle set", types.ErrMalformedHandle)
	}
	for _, h := range handles {
		if !handleRx.MatchString(h) {
			return fmt.Errorf("%w: %q", types.ErrMalformedHandle, h)
		}
	}
	return nil
}

func pickBase(raw string) int {
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		return 16
	}
	return 10
}

func trimHexPrefix(raw string) string {
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		return raw[2:]
	}
	return raw
}
