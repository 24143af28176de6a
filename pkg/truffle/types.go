// Package truffle 解析 truffle 配置模块（truffle-config.js / truffle.js）
package truffle

import (
	"errors"
)

var (
	// ErrConfigNotFound 项目目录下不存在 truffle 配置文件
	ErrConfigNotFound = errors.New("truffle configuration not found")
	// ErrConfigParse module.exports 对象无法定位或无法安全求值
	ErrConfigParse = errors.New("truffle configuration parse error")
	// ErrDuplicateNetwork 插入的网络名已存在
	ErrDuplicateNetwork = errors.New("network already exists")
)

// 配置文件中的目录键
const (
	KeyContractsBuildDirectory = "contracts_build_directory"
	KeyContractsDirectory      = "contracts_directory"
	KeyMigrationsDirectory     = "migrations_directory"
)

// Directories 三个目录字段
type Directories struct {
	ContractsBuildDirectory string `yaml:"contracts_build_directory" json:"contracts_build_directory"`
	ContractsDirectory      string `yaml:"contracts_directory" json:"contracts_directory"`
	MigrationsDirectory     string `yaml:"migrations_directory" json:"migrations_directory"`
}

// DefaultDirectories 返回 truffle 默认目录
func DefaultDirectories() Directories {
	return Directories{
		ContractsBuildDirectory: "build/contracts",
		ContractsDirectory:      "contracts",
		MigrationsDirectory:     "migrations",
	}
}

// Configuration 解析后的 truffle 配置
type Configuration struct {
	ContractsBuildDirectory string                 `yaml:"contracts_build_directory" json:"contracts_build_directory"`
	ContractsDirectory      string                 `yaml:"contracts_directory" json:"contracts_directory"`
	MigrationsDirectory     string                 `yaml:"migrations_directory" json:"migrations_directory"`
	Networks                []NetworkEntry         `yaml:"networks" json:"networks"`
	Compilers               map[string]interface{} `yaml:"compilers,omitempty" json:"compilers,omitempty"`
	Mocha                   map[string]interface{} `yaml:"mocha,omitempty" json:"mocha,omitempty"`
}

// Directories 返回解析后的目录三元组
func (c *Configuration) Directories() Directories {
	return Directories{
		ContractsBuildDirectory: c.ContractsBuildDirectory,
		ContractsDirectory:      c.ContractsDirectory,
		MigrationsDirectory:     c.MigrationsDirectory,
	}
}

// Network 按名称查找网络
func (c *Configuration) Network(name string) (*NetworkEntry, bool) {
	for i := range c.Networks {
		if c.Networks[i].Name == name {
			return &c.Networks[i], true
		}
	}
	return nil, false
}

// NetworkEntry 单个命名网络
type NetworkEntry struct {
	Name    string         `yaml:"name" json:"name"`
	Options NetworkOptions `yaml:"options" json:"options"`
}

// NetworkOptions 网络选项，未识别或无法转换的键保存在 Extra 中
type NetworkOptions struct {
	Host          string                 `yaml:"host,omitempty" json:"host,omitempty"`
	Port          uint64                 `yaml:"port,omitempty" json:"port,omitempty"`
	NetworkID     string                 `yaml:"network_id,omitempty" json:"network_id,omitempty"`
	From          string                 `yaml:"from,omitempty" json:"from,omitempty"`
	Gas           uint64                 `yaml:"gas,omitempty" json:"gas,omitempty"`
	GasPrice      uint64                 `yaml:"gasPrice,omitempty" json:"gasPrice,omitempty"`
	Provider      *Provider              `yaml:"provider,omitempty" json:"provider,omitempty"`
	SkipDryRun    bool                   `yaml:"skipDryRun,omitempty" json:"skipDryRun,omitempty"`
	TimeoutBlocks uint64                 `yaml:"timeoutBlocks,omitempty" json:"timeoutBlocks,omitempty"`
	Websockets    bool                   `yaml:"websockets,omitempty" json:"websockets,omitempty"`
	Extra         map[string]interface{} `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// Provider 是 provider 字段的分解结果。
// RawExpression 保留原始源码，ResolvedURL 为尽力提取的 URL（可能为空）。
type Provider struct {
	RawExpression string   `yaml:"raw" json:"raw"`
	ResolvedURL   string   `yaml:"url,omitempty" json:"url,omitempty"`
	Arguments     []string `yaml:"arguments,omitempty" json:"arguments,omitempty"`
}
