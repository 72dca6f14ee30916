package relayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zdao/zdao-node/types"
)

// Transport is the network surface of the confidential compute relayer. It
// carries requests and raw responses only; session bookkeeping, caching and
// response shape resolution live in the Client.
type Transport interface {
	// Init establishes a relayer session (fetches key material).
	Init(ctx context.Context) error
	// Encrypt submits a plaintext input for encryption at the given bit
	// width and returns the resulting handle with its validity proof.
	// Returns types.ErrEncodingUnsupported if the session cannot encode
	// the requested bit width.
	Encrypt(ctx context.Context, req *EncryptRequest) (*EncryptResponse, error)
	// PublicDecrypt requests decryption of publicly decryptable handles.
	// The raw response body is returned untouched; the Client normalizes
	// its shape.
	PublicDecrypt(ctx context.Context, handles []string) (json.RawMessage, error)
	// UserDecrypt requests decryption of the calling voter's own handles
	// under a signed authorization.
	UserDecrypt(ctx context.Context, req *UserDecryptRequest) (map[string]string, error)
}

// EncryptRequest is one plaintext input bound to a contract and voter.
type EncryptRequest struct {
	ContractAddress string `json:"contractAddress"`
	UserAddress     string `json:"userAddress"`
	Value           uint64 `json:"value"`
	BitWidth        int    `json:"bitWidth"`
}

// EncryptResponse carries the encrypted handle and its validity proof.
type EncryptResponse struct {
	Handle string `json:"handle"`
	Proof  string `json:"inputProof"`
}

// HandleContractPair scopes one handle to the contract holding it.
type HandleContractPair struct {
	Handle          string `json:"handle"`
	ContractAddress string `json:"contractAddress"`
}

// UserDecryptRequest is a signed per-voter decryption authorization.
type UserDecryptRequest struct {
	HandleContractPairs []HandleContractPair `json:"handleContractPairs"`
	PublicKey           string               `json:"publicKey"`
	PrivateKey          string               `json:"privateKey"`
	Signature           string               `json:"signature"`
	ContractAddresses   []string             `json:"contractAddresses"`
	UserAddress         string               `json:"userAddress"`
	StartTimestamp      int64                `json:"startTimestamp"`
	DurationDays        int64                `json:"durationDays"`
}

// HTTPTransport talks JSON over HTTP to a relayer endpoint.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport creates a transport for the given relayer base URL.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) Init(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := t.do(ctx, http.MethodGet, "/v1/keyurl", nil, &out); err != nil {
		return fmt.Errorf("%w: %v", types.ErrRelayerUnavailable, err)
	}
	return nil
}

func (t *HTTPTransport) Encrypt(ctx context.Context, req *EncryptRequest) (*EncryptResponse, error) {
	var out EncryptResponse
	if err := t.do(ctx, http.MethodPost, "/v1/input-proof", req, &out); err != nil {
		return nil, err
	}
	if out.Handle == "" {
		return nil, fmt.Errorf("relayer returned no handle")
	}
	return &out, nil
}

func (t *HTTPTransport) PublicDecrypt(ctx context.Context, handles []string) (json.RawMessage, error) {
	req := map[string]any{"handles": handles}
	var out json.RawMessage
	if err := t.do(ctx, http.MethodPost, "/v1/public-decrypt", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *HTTPTransport) UserDecrypt(ctx context.Context, req *UserDecryptRequest) (map[string]string, error) {
	var out map[string]string
	if err := t.do(ctx, http.MethodPost, "/v1/user-decrypt", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("relayer request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read relayer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnprocessableEntity {
			return fmt.Errorf("%w: %s", types.ErrEncodingUnsupported, string(data))
		}
		return fmt.Errorf("relayer status %d: %s", resp.StatusCode, string(data))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode relayer response: %w", err)
		}
	}
	return nil
}
