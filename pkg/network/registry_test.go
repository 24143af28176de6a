package network

import (
	"errors"
	"testing"

	"devchain/pkg/truffle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *truffle.Configuration {
	return &truffle.Configuration{
		Networks: []truffle.NetworkEntry{
			{Name: "ropsten", Options: truffle.NetworkOptions{Provider: &truffle.Provider{ResolvedURL: "https://ropsten.infura.io/v3/key"}}},
			{Name: "development", Options: truffle.NetworkOptions{Host: "127.0.0.1", Port: 8545, NetworkID: "*"}},
			{Name: "ws", Options: truffle.NetworkOptions{Host: "localhost", Port: 8546, Websockets: true}},
		},
	}
}

func TestResolve(t *testing.T) {
	registry := NewRegistry(testConfig())

	entry, err := registry.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "development", entry.Name)

	entry, err = registry.Resolve("ropsten")
	require.NoError(t, err)
	assert.Equal(t, "ropsten", entry.Name)

	_, err = registry.Resolve("mainnet")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetworkNotFound))

	assert.Equal(t, []string{"ropsten", "development", "ws"}, registry.Names())
}

func TestResolveDefaultFallsBackToFirst(t *testing.T) {
	registry := NewRegistry(&truffle.Configuration{
		Networks: []truffle.NetworkEntry{{Name: "first"}, {Name: "second"}},
	})
	entry, err := registry.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "first", entry.Name)

	_, err = NewRegistry(nil).Resolve("")
	assert.True(t, errors.Is(err, ErrNetworkNotFound))
}

func TestIsLocal(t *testing.T) {
	tests := []struct {
		name     string
		opts     truffle.NetworkOptions
		expected bool
	}{
		{"ipv4 loopback", truffle.NetworkOptions{Host: "127.0.0.1"}, true},
		{"localhost", truffle.NetworkOptions{Host: "localhost"}, true},
		{"localhost upper", truffle.NetworkOptions{Host: "LocalHost"}, true},
		{"remote host", truffle.NetworkOptions{Host: "10.0.0.5"}, false},
		{"remote provider", truffle.NetworkOptions{Provider: &truffle.Provider{ResolvedURL: "https://ropsten.infura.io"}}, false},
		{"local provider", truffle.NetworkOptions{Provider: &truffle.Provider{ResolvedURL: "http://127.0.0.1:7545"}}, true},
		{"unresolved provider", truffle.NetworkOptions{Provider: &truffle.Provider{RawExpression: "makeProvider()"}}, false},
		{"empty", truffle.NetworkOptions{}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsLocal(truffle.NetworkEntry{Name: test.name, Options: test.opts}))
		})
	}
}

func TestEndpoint(t *testing.T) {
	cfg := testConfig()

	url, err := Endpoint(cfg.Networks[1])
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8545", url)

	url, err = Endpoint(cfg.Networks[2])
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8546", url)

	url, err = Endpoint(cfg.Networks[0])
	require.NoError(t, err)
	assert.Equal(t, "https://ropsten.infura.io/v3/key", url)

	_, err = Endpoint(truffle.NetworkEntry{Name: "broken", Options: truffle.NetworkOptions{Provider: &truffle.Provider{ResolvedURL: "url"}}})
	assert.Error(t, err)
}

func TestEndpointWithUnresolvedPort(t *testing.T) {
	cfg, err := truffle.Parse(`module.exports = {
  networks: {
    development: { host: "127.0.0.1", port: process.env.PORT || 7545, network_id: "*" }
  }
};`, truffle.DefaultDirectories())
	require.NoError(t, err)

	entry, err := NewRegistry(cfg).Resolve("development")
	require.NoError(t, err)
	assert.True(t, IsLocal(entry))
	url, err := Endpoint(entry)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8545", url)
}
