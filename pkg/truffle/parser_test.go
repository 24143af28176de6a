package truffle

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const referenceCfgContentWithDirectories = `const HDWalletProvider = require('truffle-hdwallet-provider');
const fs = require('fs');
module.exports = {
  contracts_build_directory: "build",
  networks: {
    development: {
      host: "127.0.0.1",
      port: 8545,
      network_id: "*"
    },
    "localhost:123": {
      provider: new HDWalletProvider(fs.readFileSync("path", "encoding"), "url"),
      network_id: 2,
      gas: 6721975,
      gasPrice: 20000000000,
      from: "0x0000000000000000000000000000000000000001",
      skipDryRun: true,
      timeoutBlocks: 200,
      websockets: true
    }
  },
  mocha: {
    timeout: 100000
  },
  compilers: {
    solc: {
      version: "0.5.0"
    }
  }
};
`

const referenceCfgContent = `module.exports = {
  networks: {
    development: {
      host: "localhost",
      port: 7545,
      network_id: "*"
    }
  }
};
`

// TestParseReferenceConfig 测试参考配置的解析结果
func TestParseReferenceConfig(t *testing.T) {
	cfg, err := Parse(referenceCfgContentWithDirectories, DefaultDirectories())
	require.NoError(t, err)

	assert.Equal(t, "build", cfg.ContractsBuildDirectory)
	assert.Equal(t, "contracts", cfg.ContractsDirectory)
	assert.Equal(t, "migrations", cfg.MigrationsDirectory)

	require.Len(t, cfg.Networks, 2)
	assert.Equal(t, "development", cfg.Networks[0].Name)
	assert.Equal(t, "localhost:123", cfg.Networks[1].Name)

	dev := cfg.Networks[0].Options
	assert.Equal(t, "127.0.0.1", dev.Host)
	assert.Equal(t, uint64(8545), dev.Port)
	assert.Equal(t, "*", dev.NetworkID)
	assert.Nil(t, dev.Provider)

	second := cfg.Networks[1].Options
	require.NotNil(t, second.Provider)
	assert.Equal(t, `new HDWalletProvider(fs.readFileSync("path", "encoding"), "url")`, second.Provider.RawExpression)
	assert.Equal(t, "url", second.Provider.ResolvedURL)
	assert.Equal(t, []string{"path", "encoding", "url"}, second.Provider.Arguments)
	assert.Equal(t, "2", second.NetworkID)
	assert.Equal(t, uint64(6721975), second.Gas)
	assert.Equal(t, uint64(20000000000), second.GasPrice)
	assert.Equal(t, "0x0000000000000000000000000000000000000001", second.From)
	assert.True(t, second.SkipDryRun)
	assert.Equal(t, uint64(200), second.TimeoutBlocks)
	assert.True(t, second.Websockets)

	assert.Equal(t, map[string]interface{}{"timeout": int64(100000)}, cfg.Mocha)
	solc, ok := cfg.Compilers["solc"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "0.5.0", solc["version"])
}

// TestParseDefaultsWhenDirectoriesOmitted 目录字段缺失时回退默认值
func TestParseDefaultsWhenDirectoriesOmitted(t *testing.T) {
	defaults := Directories{
		ContractsBuildDirectory: "out/contracts",
		ContractsDirectory:      "src",
		MigrationsDirectory:     "deploy",
	}

	cfg, err := Parse(referenceCfgContent, defaults)
	require.NoError(t, err)
	assert.Equal(t, defaults, cfg.Directories())

	cfg, err = Parse(referenceCfgContent, DefaultDirectories())
	require.NoError(t, err)
	assert.Equal(t, DefaultDirectories(), cfg.Directories())
}

func TestParseDirectoryExpressions(t *testing.T) {
	src := `const path = require("path");
module.exports = {
  contracts_build_directory: path.join(__dirname, "client/src/contracts"),
  contracts_directory: "./contracts",
  migrations_directory: someHelper()
};`
	cfg, err := Parse(src, DefaultDirectories())
	require.NoError(t, err)
	assert.Equal(t, "client/src/contracts", cfg.ContractsBuildDirectory)
	assert.Equal(t, "./contracts", cfg.ContractsDirectory)
	assert.Equal(t, "migrations", cfg.MigrationsDirectory)
	assert.Empty(t, cfg.Networks)
}

func TestParseProviderVariants(t *testing.T) {
	src := `const HDWalletProvider = require("@truffle/hdwallet-provider");
const fs = require("fs");
const mnemonic = fs.readFileSync(".secret").toString().trim();
const infura = "https://ropsten.infura.io/v3/" + "key";
module.exports = {
  networks: {
    ropsten: {
      provider: () => new HDWalletProvider(mnemonic, "wss://ropsten.infura.io/ws/v3/key"),
      network_id: 3
    },
    kovan: {
      provider: new HDWalletProvider(mnemonic, infura),
      network_id: 42
    },
    custom: {
      provider: new Web3.providers.HttpProvider(endpoint),
      network_id: "*"
    },
    plain: {
      provider: "http://127.0.0.1:9545",
      network_id: "*"
    }
  }
};`

	cfg, err := Parse(src, DefaultDirectories())
	require.NoError(t, err)
	require.Len(t, cfg.Networks, 4)

	ropsten, ok := cfg.Network("ropsten")
	require.True(t, ok)
	assert.Equal(t, `() => new HDWalletProvider(mnemonic, "wss://ropsten.infura.io/ws/v3/key")`, ropsten.Options.Provider.RawExpression)
	assert.Equal(t, "wss://ropsten.infura.io/ws/v3/key", ropsten.Options.Provider.ResolvedURL)
	assert.Equal(t, "3", ropsten.Options.NetworkID)

	kovan, ok := cfg.Network("kovan")
	require.True(t, ok)
	assert.Equal(t, "https://ropsten.infura.io/v3/key", kovan.Options.Provider.ResolvedURL)
	assert.Contains(t, kovan.Options.Provider.Arguments, ".secret")

	custom, ok := cfg.Network("custom")
	require.True(t, ok)
	assert.Equal(t, "new Web3.providers.HttpProvider(endpoint)", custom.Options.Provider.RawExpression)
	assert.Empty(t, custom.Options.Provider.ResolvedURL)

	plainNet, ok := cfg.Network("plain")
	require.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:9545", plainNet.Options.Provider.ResolvedURL)
	assert.Equal(t, `"http://127.0.0.1:9545"`, plainNet.Options.Provider.RawExpression)
}

func TestParseEvaluatesLiteralsAndBindings(t *testing.T) {
	src := `const port = 7545;
const base = { network_id: "*" };
const config = {
  networks: {
    ganache: {
      ...base,
      host: "127.0." + "0.1",
      port,
      gas: "0x6691b7",
      gasPrice: web3.utils.toWei("20", "gwei"),
      confirmations: 2,
      production: !false
    }
  }
};
module.exports = config;`

	cfg, err := Parse(src, DefaultDirectories())
	require.NoError(t, err)
	require.Len(t, cfg.Networks, 1)

	opts := cfg.Networks[0].Options
	assert.Equal(t, "ganache", cfg.Networks[0].Name)
	assert.Equal(t, "*", opts.NetworkID)
	assert.Equal(t, "127.0.0.1", opts.Host)
	assert.Equal(t, uint64(7545), opts.Port)
	assert.Equal(t, uint64(0x6691b7), opts.Gas)
	assert.Zero(t, opts.GasPrice)
	assert.Equal(t, `web3.utils.toWei("20", "gwei")`, opts.Extra["gasPrice"])
	assert.Equal(t, int64(2), opts.Extra["confirmations"])
	assert.Equal(t, true, opts.Extra["production"])
}

func TestParseDuplicateNetworkKeys(t *testing.T) {
	src := `module.exports = {
  networks: {
    development: { port: 1 },
    test: { port: 2 },
    development: { port: 3 }
  }
};`
	cfg, err := Parse(src, DefaultDirectories())
	require.NoError(t, err)
	require.Len(t, cfg.Networks, 2)
	assert.Equal(t, "development", cfg.Networks[0].Name)
	assert.Equal(t, uint64(3), cfg.Networks[0].Options.Port)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax error", `module.exports = {`},
		{"no exports", `const x = { networks: {} };`},
		{"exports not literal", `module.exports = require("./other");`},
		{"networks not object", `module.exports = { networks: [] };`},
		{"network not object", `module.exports = { networks: { dev: "x" } };`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse(test.src, DefaultDirectories())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfigParse), "unexpected error: %v", err)
		})
	}
}

// TestParseNonEvaluableOperands 含环境变量、调用等无法求值操作数的表达式保留为原始源码
func TestParseNonEvaluableOperands(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
		check func(t *testing.T, cfg *Configuration)
	}{
		{
			name:  "provider url concatenated with env",
			field: "provider",
			value: `new HDWalletProvider(mnemonic, "https://ropsten.infura.io/v3/" + process.env.INFURA_KEY)`,
			check: func(t *testing.T, cfg *Configuration) {
				p := cfg.Networks[0].Options.Provider
				require.NotNil(t, p)
				assert.Equal(t, `new HDWalletProvider(mnemonic, "https://ropsten.infura.io/v3/" + process.env.INFURA_KEY)`, p.RawExpression)
				assert.Equal(t, "https://ropsten.infura.io/v3/", p.ResolvedURL)
			},
		},
		{
			name:  "provider with template substitution",
			field: "provider",
			value: "() => new HDWalletProvider(mnemonic, `wss://${process.env.HOST}/ws`)",
			check: func(t *testing.T, cfg *Configuration) {
				p := cfg.Networks[0].Options.Provider
				require.NotNil(t, p)
				assert.Empty(t, p.ResolvedURL)
			},
		},
		{
			name:  "port with env fallback",
			field: "port",
			value: `process.env.PORT || 8545`,
			check: func(t *testing.T, cfg *Configuration) {
				opts := cfg.Networks[0].Options
				assert.Zero(t, opts.Port)
				assert.Equal(t, "process.env.PORT || 8545", opts.Extra["port"])
			},
		},
		{
			name:  "port from call",
			field: "port",
			value: `getPort()`,
			check: func(t *testing.T, cfg *Configuration) {
				assert.Equal(t, "getPort()", cfg.Networks[0].Options.Extra["port"])
			},
		},
		{
			name:  "port not a number",
			field: "port",
			value: `"abc"`,
			check: func(t *testing.T, cfg *Configuration) {
				assert.Zero(t, cfg.Networks[0].Options.Port)
				assert.Equal(t, "abc", cfg.Networks[0].Options.Extra["port"])
			},
		},
		{
			name:  "host concatenated with env",
			field: "host",
			value: `"127.0.0." + process.env.SUFFIX`,
			check: func(t *testing.T, cfg *Configuration) {
				opts := cfg.Networks[0].Options
				assert.Empty(t, opts.Host)
				assert.Equal(t, `"127.0.0." + process.env.SUFFIX`, opts.Extra["host"])
			},
		},
		{
			name:  "long concatenation chain",
			field: "host",
			value: `"h"` + strings.Repeat(" + process.env.PART", 64),
			check: func(t *testing.T, cfg *Configuration) {
				assert.Empty(t, cfg.Networks[0].Options.Host)
				assert.Contains(t, cfg.Networks[0].Options.Extra, "host")
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			src := "module.exports = {\n" +
				"  contracts_build_directory: process.env.BUILD_DIR || \"./out\",\n" +
				"  migrations_directory: \"./migrations/\" + process.env.STAGE,\n" +
				"  networks: {\n" +
				"    target: { " + test.field + ": " + test.value + ", network_id: \"*\" },\n" +
				"    other: { host: \"127.0.0.1\", port: 7545, network_id: \"*\" }\n" +
				"  }\n" +
				"};"
			cfg, err := Parse(src, DefaultDirectories())
			require.NoError(t, err)
			require.Len(t, cfg.Networks, 2)
			assert.Equal(t, "target", cfg.Networks[0].Name)
			assert.Equal(t, uint64(7545), cfg.Networks[1].Options.Port)
			assert.Equal(t, DefaultDirectories().ContractsBuildDirectory, cfg.ContractsBuildDirectory)
			assert.Equal(t, DefaultDirectories().MigrationsDirectory, cfg.MigrationsDirectory)
			test.check(t, cfg)
		})
	}
}

// TestParseUnboundReferences 未声明的标识符与循环引用不会导致无限求值
func TestParseUnboundReferences(t *testing.T) {
	src := `const a = b;
const b = a;
module.exports = {
  networks: {
    dev: {
      provider: new Web3.providers.HttpProvider(endpoint + a),
      network_id: "*"
    }
  }
};`
	cfg, err := Parse(src, DefaultDirectories())
	require.NoError(t, err)
	require.Len(t, cfg.Networks, 1)
	assert.Equal(t, "new Web3.providers.HttpProvider(endpoint + a)", cfg.Networks[0].Options.Provider.RawExpression)
	assert.Empty(t, cfg.Networks[0].Options.Provider.ResolvedURL)
}
