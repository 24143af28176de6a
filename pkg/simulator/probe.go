package simulator

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// 模拟器在 web3_clientVersion 中返回的客户端标识
var simulatorClientIDs = []string{"ganache", "testrpc", "ethereumjs"}

// Prober 探测端口占用与节点身份
type Prober interface {
	// Bound 端口上是否有进程在监听
	Bound(ctx context.Context, host string, port int) bool
	// ClientVersion 调用 web3_clientVersion
	ClientVersion(ctx context.Context, host string, port int) (string, error)
}

// RPCProber 基于 TCP 连接与 JSON-RPC 的探测器
type RPCProber struct {
	Timeout time.Duration
}

func (p RPCProber) timeout() time.Duration {
	if p.Timeout <= 0 {
		return 2 * time.Second
	}
	return p.Timeout
}

func (p RPCProber) Bound(ctx context.Context, host string, port int) bool {
	d := net.Dialer{Timeout: p.timeout()}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (p RPCProber) ClientVersion(ctx context.Context, host string, port int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	endpoint := "http://" + net.JoinHostPort(host, strconv.Itoa(port))
	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}
	defer client.Close()

	var version string
	if err := client.CallContext(ctx, &version, "web3_clientVersion"); err != nil {
		return "", err
	}
	return version, nil
}

// IsSimulatorClient 判断 clientVersion 是否来自本地模拟器
func IsSimulatorClient(version string) bool {
	v := strings.ToLower(version)
	for _, id := range simulatorClientIDs {
		if strings.Contains(v, id) {
			return true
		}
	}
	return false
}
