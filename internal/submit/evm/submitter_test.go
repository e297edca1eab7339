package evm_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/fingerprint"
	"github.com/joseph-ayodele/invoice-attestor/internal/submit"
	"github.com/joseph-ayodele/invoice-attestor/internal/submit/evm"
)

const (
	from     = "0x1111111111111111111111111111111111111111"
	contract = "0x2222222222222222222222222222222222222222"
	txHash   = "0xabc1230000000000000000000000000000000000000000000000000000000001"
)

// rpcError is the JSON-RPC 2.0 error object the fake node replies with.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcHandler func(params []json.RawMessage) (any, *rpcError)

type fakeNode struct {
	mu       sync.Mutex
	handlers map[string]rpcHandler
	calls    []string
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.calls = append(n.calls, req.Method)
	h := n.handlers[req.Method]
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if h == nil {
		resp["error"] = rpcError{Code: -32601, Message: "method not found"}
	} else if result, rpcErr := h(req.Params); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) methods() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

func happyNode() *fakeNode {
	polls := 0
	return &fakeNode{handlers: map[string]rpcHandler{
		"eth_getBalance": func([]json.RawMessage) (any, *rpcError) { return "0x2386f26fc10000", nil }, // 0.01 ether
		"eth_call":       func([]json.RawMessage) (any, *rpcError) { return "0x", nil },
		"eth_sendTransaction": func(params []json.RawMessage) (any, *rpcError) {
			return txHash, nil
		},
		"eth_getTransactionReceipt": func([]json.RawMessage) (any, *rpcError) {
			polls++
			if polls < 2 {
				return nil, nil
			}
			return map[string]any{"transactionHash": txHash, "blockNumber": "0x10", "status": "0x1"}, nil
		},
	}}
}

func newSubmitter(t *testing.T, node *fakeNode, minWei int64) *evm.Submitter {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	return dial(t, evm.Config{
		RPCURL:          srv.URL,
		From:            from,
		Contract:        contract,
		MinBalanceWei:   big.NewInt(minWei),
		ConfirmTimeout:  time.Second,
		PollInterval:    time.Millisecond,
		ExplorerURLTmpl: "https://www.oklink.com/amoy/tx/%s",
	})
}

func dial(t *testing.T, cfg evm.Config) *evm.Submitter {
	t.Helper()
	s, err := evm.NewSubmitter(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func attestation() submit.Attestation {
	return submit.Attestation{
		RecordID:        "INV-1",
		FileFingerprint: fingerprint.HashBytes([]byte("file")),
		DataFingerprint: fingerprint.DataFingerprint(fingerprint.HashBytes([]byte("data"))),
	}
}

func TestSubmitHappyPath(t *testing.T) {
	node := happyNode()
	var sent map[string]string
	node.handlers["eth_sendTransaction"] = func(params []json.RawMessage) (any, *rpcError) {
		_ = json.Unmarshal(params[0], &sent)
		return txHash, nil
	}
	s := newSubmitter(t, node, 1000)

	r, err := s.Submit(context.Background(), attestation())
	require.NoError(t, err)
	assert.Equal(t, txHash, r.ID)
	assert.Equal(t, "evm", r.Backend)
	assert.Equal(t, "https://www.oklink.com/amoy/tx/"+txHash, r.ExplorerURL)
	assert.False(t, r.SubmittedAt.IsZero())

	assert.Equal(t, from, sent["from"])
	assert.Equal(t, contract, sent["to"])
	a := attestation()
	want, err := evm.StoreInvoiceCalldata("INV-1", a.FileFingerprint.Prefixed(), a.DataFingerprint.Prefixed())
	require.NoError(t, err)
	assert.Equal(t, hexutil.Encode(want), sent["data"])
	assert.Equal(t, []string{"eth_getBalance", "eth_call", "eth_sendTransaction", "eth_getTransactionReceipt", "eth_getTransactionReceipt"}, node.methods())
}

func TestSubmitSkipsBalanceCheckWithoutMinimum(t *testing.T) {
	node := happyNode()
	s := newSubmitter(t, node, 0)
	_, err := s.Submit(context.Background(), attestation())
	require.NoError(t, err)
	assert.NotContains(t, node.methods(), "eth_getBalance")
}

func TestSubmitInsufficientBalance(t *testing.T) {
	node := happyNode()
	s := newSubmitter(t, node, 1_000_000_000_000_000_000)

	_, err := s.Submit(context.Background(), attestation())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInsufficientResources)
	assert.NotContains(t, node.methods(), "eth_sendTransaction")
}

func TestSubmitDuplicateFromPreflightRevert(t *testing.T) {
	node := happyNode()
	revert := hexutil.Encode(revertPayload(t, "Invoice number already exists"))
	node.handlers["eth_call"] = func([]json.RawMessage) (any, *rpcError) {
		return nil, &rpcError{Code: 3, Message: "execution reverted", Data: revert}
	}
	s := newSubmitter(t, node, 0)

	_, err := s.Submit(context.Background(), attestation())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDuplicateRecord)
	assert.NotContains(t, node.methods(), "eth_sendTransaction")
}

func TestSubmitSignerErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  rpcError
		want common.ErrorKind
	}{
		{"eip1193 rejection", rpcError{Code: 4001, Message: "User rejected the request."}, common.KindUserRejected},
		{"action rejected", rpcError{Code: -32000, Message: "ACTION_REJECTED"}, common.KindUserRejected},
		{"unauthorized", rpcError{Code: 4100, Message: "unauthorized"}, common.KindUserRejected},
		{"funds", rpcError{Code: -32000, Message: "insufficient funds for gas * price + value"}, common.KindInsufficientResources},
		{"duplicate", rpcError{Code: -32000, Message: "execution reverted: Invoice number already exists"}, common.KindDuplicateRecord},
		{"other", rpcError{Code: -32000, Message: "nonce too low"}, common.KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			node := happyNode()
			rpcErr := tc.err
			node.handlers["eth_sendTransaction"] = func([]json.RawMessage) (any, *rpcError) { return nil, &rpcErr }
			_, err := newSubmitter(t, node, 0).Submit(context.Background(), attestation())
			require.Error(t, err)
			assert.Equal(t, tc.want, common.Classify(err))
		})
	}
}

func TestSubmitConfirmationTimeout(t *testing.T) {
	node := happyNode()
	node.handlers["eth_getTransactionReceipt"] = func([]json.RawMessage) (any, *rpcError) { return nil, nil }
	srv := httptest.NewServer(node)
	defer srv.Close()
	s := dial(t, evm.Config{RPCURL: srv.URL, From: from, Contract: contract, ConfirmTimeout: 30 * time.Millisecond, PollInterval: 5 * time.Millisecond})

	_, err := s.Submit(context.Background(), attestation())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNetwork)
	assert.Contains(t, err.Error(), "not confirmed")
}

func TestSubmitRevertedTransaction(t *testing.T) {
	node := happyNode()
	node.handlers["eth_getTransactionReceipt"] = func([]json.RawMessage) (any, *rpcError) {
		return map[string]any{"transactionHash": txHash, "blockNumber": "0x10", "status": "0x0"}, nil
	}
	_, err := newSubmitter(t, node, 0).Submit(context.Background(), attestation())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnknown)
}

func TestSubmitNodeUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()
	s := dial(t, evm.Config{RPCURL: srv.URL, From: from, Contract: contract})

	_, err := s.Submit(context.Background(), attestation())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNetwork)
}

func TestSubmitPrecondition(t *testing.T) {
	node := happyNode()
	_, err := newSubmitter(t, node, 0).Submit(context.Background(), submit.Attestation{RecordID: "INV-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPrecondition)
	assert.Empty(t, node.methods())
}

func TestSubmitBalanceIsDecodedAsQuantity(t *testing.T) {
	node := happyNode()
	node.handlers["eth_getBalance"] = func(params []json.RawMessage) (any, *rpcError) {
		var addr string
		_ = json.Unmarshal(params[0], &addr)
		if !strings.EqualFold(addr, from) {
			return nil, &rpcError{Code: -32602, Message: fmt.Sprintf("unexpected address %s", addr)}
		}
		return "0x3e8", nil // 1000 wei
	}

	_, err := newSubmitter(t, node, 1000).Submit(context.Background(), attestation())
	require.NoError(t, err)

	_, err = newSubmitter(t, node, 1001).Submit(context.Background(), attestation())
	assert.ErrorIs(t, err, common.ErrInsufficientResources)
}
