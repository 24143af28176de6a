package txbrowser

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode 最小化的 JSON-RPC 节点，支持批量请求
type fakeNode struct {
	blocks    []map[string]interface{}
	code      map[string]string
	networkID string

	mu    sync.Mutex
	calls map[string]int
}

func newFakeNode(networkID string) *fakeNode {
	return &fakeNode{
		code:      make(map[string]string),
		networkID: networkID,
		calls:     make(map[string]int),
	}
}

// addBlock 追加一个区块，txs 按给定顺序出现在响应中
func (n *fakeNode) addBlock(txs ...map[string]interface{}) {
	number := hexutil.EncodeUint64(uint64(len(n.blocks)))
	for _, tx := range txs {
		tx["blockNumber"] = number
	}
	if txs == nil {
		txs = []map[string]interface{}{}
	}
	n.blocks = append(n.blocks, map[string]interface{}{
		"number":       number,
		"transactions": txs,
	})
}

func (n *fakeNode) callCount(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *fakeNode) handle(req rpcRequest) map[string]interface{} {
	n.mu.Lock()
	n.calls[req.Method]++
	n.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	switch req.Method {
	case "eth_blockNumber":
		resp["result"] = hexutil.EncodeUint64(uint64(len(n.blocks) - 1))
	case "eth_getBlockByNumber":
		var tag string
		json.Unmarshal(req.Params[0], &tag)
		num, err := hexutil.DecodeUint64(tag)
		if err != nil || num >= uint64(len(n.blocks)) {
			resp["result"] = nil
		} else {
			resp["result"] = n.blocks[num]
		}
	case "eth_getCode":
		var addr string
		json.Unmarshal(req.Params[0], &addr)
		code, ok := n.code[strings.ToLower(addr)]
		if !ok {
			code = "0x"
		}
		resp["result"] = code
	case "net_version":
		resp["result"] = n.networkID
	default:
		resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
	}
	return resp
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var reqs []rpcRequest
		if err := json.Unmarshal(body, &reqs); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resps := make([]map[string]interface{}, 0, len(reqs))
		for _, req := range reqs {
			resps = append(resps, n.handle(req))
		}
		json.NewEncoder(w).Encode(resps)
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(n.handle(req))
}

// start 启动节点并返回连接到它的客户端
func (n *fakeNode) start(t *testing.T) *rpc.Client {
	t.Helper()
	srv := httptest.NewServer(n)
	t.Cleanup(srv.Close)

	client, err := rpc.Dial(srv.URL)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func tx(hash, from string, to interface{}, input string, index uint64) map[string]interface{} {
	return map[string]interface{}{
		"hash":             hash,
		"from":             from,
		"to":               to,
		"input":            input,
		"transactionIndex": hexutil.EncodeUint64(index),
	}
}
