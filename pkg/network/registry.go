// Package network 根据 truffle 配置解析目标网络
package network

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"devchain/pkg/truffle"
)

// ErrNetworkNotFound 请求的网络名在配置中不存在
var ErrNetworkNotFound = errors.New("network not found")

// DefaultNetworkName 未指定网络时优先使用的名称
const DefaultNetworkName = "development"

var loopbackHosts = map[string]bool{
	"127.0.0.1": true,
	"localhost": true,
}

// Registry 持有已解析的网络集合
type Registry struct {
	mu  sync.RWMutex
	cfg *truffle.Configuration
}

// NewRegistry 创建网络注册中心
func NewRegistry(cfg *truffle.Configuration) *Registry {
	if cfg == nil {
		cfg = &truffle.Configuration{}
	}
	return &Registry{cfg: cfg}
}

// Replace 替换底层配置（配置文件变更后调用）
func (r *Registry) Replace(cfg *truffle.Configuration) {
	if cfg == nil {
		return
	}
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

// Configuration 返回当前配置
func (r *Registry) Configuration() *truffle.Configuration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Names 按配置顺序返回网络名
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.cfg.Networks))
	for _, n := range r.cfg.Networks {
		names = append(names, n.Name)
	}
	return names
}

// Resolve 返回指定名称的网络；name 为空时取 development，不存在则取第一个
func (r *Registry) Resolve(name string) (truffle.NetworkEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		if entry, ok := r.cfg.Network(DefaultNetworkName); ok {
			return *entry, nil
		}
		if len(r.cfg.Networks) == 0 {
			return truffle.NetworkEntry{}, fmt.Errorf("%w: configuration defines no networks", ErrNetworkNotFound)
		}
		return r.cfg.Networks[0], nil
	}

	entry, ok := r.cfg.Network(name)
	if !ok {
		return truffle.NetworkEntry{}, fmt.Errorf("%w: %s", ErrNetworkNotFound, name)
	}
	return *entry, nil
}

// IsLocal 判断网络是否指向本机回环地址。
// host 为空时退而检查 provider URL 的主机名。
func IsLocal(entry truffle.NetworkEntry) bool {
	host := strings.ToLower(strings.TrimSpace(entry.Options.Host))
	if host == "" && entry.Options.Provider != nil {
		if u, err := url.Parse(entry.Options.Provider.ResolvedURL); err == nil {
			host = strings.ToLower(u.Hostname())
		}
	}
	return loopbackHosts[host]
}

// Endpoint 返回网络的 JSON-RPC 地址
func Endpoint(entry truffle.NetworkEntry) (string, error) {
	opts := entry.Options
	if opts.Host != "" {
		scheme := "http"
		if opts.Websockets {
			scheme = "ws"
		}
		port := opts.Port
		if port == 0 {
			port = 8545
		}
		return scheme + "://" + net.JoinHostPort(opts.Host, strconv.FormatUint(port, 10)), nil
	}
	if opts.Provider != nil && opts.Provider.ResolvedURL != "" {
		if u, err := url.Parse(opts.Provider.ResolvedURL); err == nil && u.Scheme != "" && u.Host != "" {
			return opts.Provider.ResolvedURL, nil
		}
	}
	return "", fmt.Errorf("network %s has no resolvable endpoint", entry.Name)
}
