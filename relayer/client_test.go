package relayer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	qt "github.com/frankban/quicktest"

	"github.com/zdao/zdao-node/db"
	"github.com/zdao/zdao-node/db/memdb"
	"github.com/zdao/zdao-node/signer"
	"github.com/zdao/zdao-node/storage"
	"github.com/zdao/zdao-node/types"
)

type fakeTransport struct {
	initErr        error
	initCalls      int
	encryptFn      func(req *EncryptRequest) (*EncryptResponse, error)
	publicResp     json.RawMessage
	publicErr      error
	publicCalls    int
	userResp       map[string]string
	userErr        error
	lastUserReq    *UserDecryptRequest
	lastEncryptReq *EncryptRequest
}

func (f *fakeTransport) Init(context.Context) error {
	f.initCalls++
	return f.initErr
}

func (f *fakeTransport) Encrypt(_ context.Context, req *EncryptRequest) (*EncryptResponse, error) {
	f.lastEncryptReq = req
	if f.encryptFn != nil {
		return f.encryptFn(req)
	}
	return &EncryptResponse{Handle: testHandle(0xaa), Proof: "0x01"}, nil
}

func (f *fakeTransport) PublicDecrypt(context.Context, []string) (json.RawMessage, error) {
	f.publicCalls++
	return f.publicResp, f.publicErr
}

func (f *fakeTransport) UserDecrypt(_ context.Context, req *UserDecryptRequest) (map[string]string, error) {
	f.lastUserReq = req
	return f.userResp, f.userErr
}

func testHandle(b byte) string {
	return "0x" + strings.Repeat(fmt.Sprintf("%02x", b), 32)
}

func newTestClient(c *qt.C, transport Transport) *Client {
	database, err := memdb.New(db.Options{})
	c.Assert(err, qt.IsNil)
	key, err := gethcrypto.GenerateKey()
	c.Assert(err, qt.IsNil)
	sig := signer.NewLocalSignerFromKey(key, big.NewInt(11155111))
	cl := New(transport, storage.New(database), sig, Config{
		Contract: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Verifier: common.HexToAddress("0x2222222222222222222222222222222222222222"),
	})
	cl.backoff = 0
	return cl
}

func TestInitLifecycle(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	ft := &fakeTransport{}
	cl := newTestClient(c, ft)

	c.Assert(cl.Ready(), qt.IsFalse)
	c.Assert(cl.Init(ctx), qt.IsNil)
	c.Assert(cl.Ready(), qt.IsTrue)
	c.Assert(ft.initCalls, qt.Equals, 1)

	// Idempotent: a ready session is not re-established.
	c.Assert(cl.Init(ctx), qt.IsNil)
	c.Assert(ft.initCalls, qt.Equals, 1)
}

func TestInitBoundedRetries(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	ft := &fakeTransport{initErr: fmt.Errorf("connection refused")}
	cl := newTestClient(c, ft)

	err := cl.Init(ctx)
	c.Assert(err, qt.ErrorIs, types.ErrRelayerUnavailable)
	c.Assert(ft.initCalls, qt.Equals, initAttempts)

	// Failure is sticky: no further attempts without a reset.
	err = cl.Init(ctx)
	c.Assert(err, qt.ErrorIs, types.ErrRelayerUnavailable)
	c.Assert(ft.initCalls, qt.Equals, initAttempts)

	_, err = cl.PublicDecrypt(ctx, []string{testHandle(0x01)})
	c.Assert(err, qt.ErrorIs, types.ErrRelayerUnavailable)

	cl.Reset()
	ft.initErr = nil
	c.Assert(cl.Init(ctx), qt.IsNil)
	c.Assert(cl.Ready(), qt.IsTrue)
}

func TestEncryptBitWidthFallback(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	var widths []int
	ft := &fakeTransport{
		encryptFn: func(req *EncryptRequest) (*EncryptResponse, error) {
			widths = append(widths, req.BitWidth)
			if req.BitWidth == 8 {
				return nil, fmt.Errorf("%w: 8 bits", types.ErrEncodingUnsupported)
			}
			return &EncryptResponse{Handle: testHandle(0xbb), Proof: "0x0102"}, nil
		},
	}
	cl := newTestClient(c, ft)
	c.Assert(cl.Init(ctx), qt.IsNil)

	handle, proof, err := cl.Encrypt(ctx, uint64(types.VoteValueYes), cl.signer.Address())
	c.Assert(err, qt.IsNil)
	c.Assert(widths, qt.DeepEquals, []int{8, 16})
	c.Assert(handle.Hex(), qt.Equals, strings.TrimPrefix(testHandle(0xbb), "0x"))
	c.Assert([]byte(proof), qt.DeepEquals, []byte{0x01, 0x02})
}

func TestEncryptAllWidthsRejected(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	ft := &fakeTransport{
		encryptFn: func(*EncryptRequest) (*EncryptResponse, error) {
			return nil, fmt.Errorf("%w: no width", types.ErrEncodingUnsupported)
		},
	}
	cl := newTestClient(c, ft)
	c.Assert(cl.Init(ctx), qt.IsNil)

	_, _, err := cl.Encrypt(ctx, uint64(types.VoteValueNo), cl.signer.Address())
	c.Assert(err, qt.ErrorIs, types.ErrEncodingUnsupported)
}

func TestEncryptRequiresSession(t *testing.T) {
	c := qt.New(t)
	cl := newTestClient(c, &fakeTransport{})
	_, _, err := cl.Encrypt(context.Background(), 0, common.Address{})
	c.Assert(err, qt.ErrorIs, types.ErrNotReady)
}

func TestPublicDecryptShapes(t *testing.T) {
	yes, no := testHandle(0x0a), testHandle(0x0b)

	cases := []struct {
		name string
		resp string
	}{
		{"direct map", fmt.Sprintf(`{"%s": 3, "%s": "1"}`, yes, no)},
		{"values envelope", fmt.Sprintf(`{"values": {"%s": 3, "%s": 1}, "proof": "0xdead"}`, yes, no)},
		{"clearValues envelope", fmt.Sprintf(
			`{"clearValues": {"%s": "3", "%s": "1"}, "abiEncodedClearValues": "0x0102", "decryptionProof": "0xdead"}`,
			yes, no)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := qt.New(t)
			ctx := context.Background()

			ft := &fakeTransport{publicResp: json.RawMessage(tc.resp)}
			cl := newTestClient(c, ft)
			c.Assert(cl.Init(ctx), qt.IsNil)

			result, err := cl.PublicDecrypt(ctx, []string{yes, no})
			c.Assert(err, qt.IsNil)
			c.Assert(result.ClearValues[yes], qt.Equals, uint64(3))
			c.Assert(result.ClearValues[no], qt.Equals, uint64(1))
			c.Assert(len(result.ABIEncodedClearValues) > 0, qt.IsTrue)
		})
	}
}

func TestPublicDecryptUnsupportedShape(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	ft := &fakeTransport{publicResp: json.RawMessage(`{"weird": true, "shape": []}`)}
	cl := newTestClient(c, ft)
	c.Assert(cl.Init(ctx), qt.IsNil)

	_, err := cl.PublicDecrypt(ctx, []string{testHandle(0x01)})
	c.Assert(err, qt.ErrorIs, types.ErrUnsupportedResponseShape)
}

func TestPublicDecryptMalformedHandle(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	ft := &fakeTransport{}
	cl := newTestClient(c, ft)
	c.Assert(cl.Init(ctx), qt.IsNil)

	for _, bad := range []string{"", "0x12", "not-hex", testHandle(0x01) + "ff"} {
		_, err := cl.PublicDecrypt(ctx, []string{bad})
		c.Assert(err, qt.ErrorIs, types.ErrMalformedHandle, qt.Commentf("handle %q", bad))
	}
	c.Assert(ft.publicCalls, qt.Equals, 0)
}

func TestPublicDecryptCached(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	yes, no := testHandle(0x0a), testHandle(0x0b)
	ft := &fakeTransport{
		publicResp: json.RawMessage(fmt.Sprintf(`{"%s": 2, "%s": 5}`, yes, no)),
	}
	cl := newTestClient(c, ft)
	c.Assert(cl.Init(ctx), qt.IsNil)

	first, err := cl.PublicDecrypt(ctx, []string{yes, no})
	c.Assert(err, qt.IsNil)
	c.Assert(ft.publicCalls, qt.Equals, 1)

	// Same set in a different order must hit the cache.
	second, err := cl.PublicDecrypt(ctx, []string{no, yes})
	c.Assert(err, qt.IsNil)
	c.Assert(ft.publicCalls, qt.Equals, 1)
	c.Assert(second.ClearValues, qt.DeepEquals, first.ClearValues)
	c.Assert(second.ABIEncodedClearValues, qt.DeepEquals, first.ABIEncodedClearValues)
}

func TestUserDecrypt(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	handle := testHandle(0x0c)
	ft := &fakeTransport{userResp: map[string]string{handle: "1"}}
	cl := newTestClient(c, ft)
	c.Assert(cl.Init(ctx), qt.IsNil)

	values, err := cl.UserDecrypt(ctx, []string{handle})
	c.Assert(err, qt.IsNil)
	c.Assert(values[handle], qt.Equals, uint64(1))

	req := ft.lastUserReq
	c.Assert(req, qt.IsNotNil)
	c.Assert(req.DurationDays, qt.Equals, int64(authorizationDays))
	c.Assert(req.UserAddress, qt.Equals, cl.signer.Address().Hex())
	c.Assert(strings.HasPrefix(req.Signature, "0x"), qt.IsFalse)
	c.Assert(req.Signature, qt.Not(qt.Equals), "")
	c.Assert(req.HandleContractPairs, qt.HasLen, 1)
	c.Assert(req.HandleContractPairs[0].ContractAddress, qt.Equals, cl.cfg.Contract.Hex())
}

func TestUserDecryptRequiresSession(t *testing.T) {
	c := qt.New(t)
	cl := newTestClient(c, &fakeTransport{})
	_, err := cl.UserDecrypt(context.Background(), []string{testHandle(0x01)})
	c.Assert(err, qt.ErrorIs, types.ErrNotReady)
}
