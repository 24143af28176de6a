package txbrowser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrArtifactDirectoryMissing 构建产物目录不存在
	ErrArtifactDirectoryMissing = errors.New("artifact directory does not exist")
	// ErrArtifactDirectoryEmpty 构建产物目录中没有合约产物
	ErrArtifactDirectoryEmpty = errors.New("artifact directory contains no contract artifacts")
)

// ArtifactNetwork 产物中记录的某个网络上的部署信息
type ArtifactNetwork struct {
	Address         string `json:"address"`
	TransactionHash string `json:"transactionHash,omitempty"`
}

// Artifact truffle 编译产物
type Artifact struct {
	ContractName     string                     `json:"contractName"`
	ABI              json.RawMessage            `json:"abi"`
	Bytecode         string                     `json:"bytecode"`
	DeployedBytecode string                     `json:"deployedBytecode"`
	SourcePath       string                     `json:"sourcePath,omitempty"`
	Networks         map[string]ArtifactNetwork `json:"networks,omitempty"`

	Path string `json:"-"`

	parsedABI    *abi.ABI
	methods      map[[4]byte]string
	creationCode []byte
	runtimeHash  common.Hash
}

// ParsedABI 返回解析后的 ABI，ABI 无效时为 nil
func (a *Artifact) ParsedABI() *abi.ABI {
	return a.parsedABI
}

// prepare 解析 ABI 并预计算字节码特征
func (a *Artifact) prepare() error {
	if len(a.ABI) > 0 {
		parsed, err := abi.JSON(bytes.NewReader(a.ABI))
		if err != nil {
			return fmt.Errorf("invalid abi: %w", err)
		}
		a.parsedABI = &parsed
		a.methods = make(map[[4]byte]string, len(parsed.Methods))
		for _, method := range parsed.Methods {
			selector := [4]byte{}
			copy(selector[:], method.ID[:4])
			a.methods[selector] = method.Name
		}
	}

	if code, ok := decodeBytecode(a.Bytecode); ok {
		a.creationCode = code
	}
	if code, ok := decodeBytecode(a.DeployedBytecode); ok {
		a.runtimeHash = crypto.Keccak256Hash(StripMetadata(code))
	}
	return nil
}

// MethodName 根据 calldata 的 4 字节选择器返回方法名
func (a *Artifact) MethodName(input []byte) (string, bool) {
	if len(input) < 4 || a.methods == nil {
		return "", false
	}
	selector := [4]byte{}
	copy(selector[:], input[:4])
	name, ok := a.methods[selector]
	return name, ok
}

// decodeBytecode 解码十六进制字节码；包含未链接库占位符时视为不可用
func decodeBytecode(s string) ([]byte, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" || strings.Contains(s, "__") || len(s)%2 != 0 {
		return nil, false
	}
	code := common.FromHex(s)
	if len(code) == 0 {
		return nil, false
	}
	return code, true
}

// StripMetadata 去掉 solc 追加在运行时字节码末尾的 CBOR 元数据
func StripMetadata(code []byte) []byte {
	if len(code) < 2 {
		return code
	}
	n := int(code[len(code)-2])<<8 | int(code[len(code)-1])
	start := len(code) - 2 - n
	if n == 0 || start < 0 {
		return code
	}
	// CBOR map 头：a1/a2/a3...
	if code[start]&0xf0 != 0xa0 {
		return code
	}
	return code[:start]
}

// LoadArtifacts 读取目录下全部 truffle 产物
func LoadArtifacts(dir string) ([]*Artifact, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactDirectoryMissing, dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrArtifactDirectoryMissing, dir)
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var artifacts []*Artifact
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
		}
		var artifact Artifact
		if err := json.Unmarshal(data, &artifact); err != nil {
			return nil, fmt.Errorf("failed to parse artifact %s: %w", path, err)
		}
		if artifact.ContractName == "" {
			continue
		}
		artifact.Path = path
		if err := artifact.prepare(); err != nil {
			return nil, fmt.Errorf("artifact %s: %w", path, err)
		}
		artifacts = append(artifacts, &artifact)
	}

	if len(artifacts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrArtifactDirectoryEmpty, dir)
	}
	return artifacts, nil
}

// Index 按地址、运行时字节码哈希、创建字节码前缀匹配产物
type Index struct {
	artifacts  []*Artifact
	byAddress  map[string]map[common.Address]*Artifact // networkID -> address
	byCodeHash map[common.Hash]*Artifact
}

// NewIndex 为产物建立索引
func NewIndex(artifacts []*Artifact) *Index {
	idx := &Index{
		artifacts:  artifacts,
		byAddress:  make(map[string]map[common.Address]*Artifact),
		byCodeHash: make(map[common.Hash]*Artifact),
	}
	for _, a := range artifacts {
		for networkID, n := range a.Networks {
			if !common.IsHexAddress(n.Address) {
				continue
			}
			if idx.byAddress[networkID] == nil {
				idx.byAddress[networkID] = make(map[common.Address]*Artifact)
			}
			idx.byAddress[networkID][common.HexToAddress(n.Address)] = a
		}
		if a.runtimeHash != (common.Hash{}) {
			if _, exists := idx.byCodeHash[a.runtimeHash]; !exists {
				idx.byCodeHash[a.runtimeHash] = a
			}
		}
	}
	return idx
}

// Len 返回产物数量
func (idx *Index) Len() int {
	return len(idx.artifacts)
}

// MatchDeployed 匹配已部署合约：先查产物中的部署地址，再比较运行时字节码
func (idx *Index) MatchDeployed(networkID string, addr common.Address, code []byte) *Artifact {
	if networkID != "" {
		if a, ok := idx.byAddress[networkID][addr]; ok {
			return a
		}
	} else {
		for _, byAddr := range idx.byAddress {
			if a, ok := byAddr[addr]; ok {
				return a
			}
		}
	}
	if len(code) == 0 {
		return nil
	}
	return idx.byCodeHash[crypto.Keccak256Hash(StripMetadata(code))]
}

// MatchCreation 匹配合约创建交易：input 以产物的创建字节码开头（其后为构造参数）
func (idx *Index) MatchCreation(input []byte) *Artifact {
	var best *Artifact
	for _, a := range idx.artifacts {
		if len(a.creationCode) == 0 || !bytes.HasPrefix(input, a.creationCode) {
			continue
		}
		if best == nil || len(a.creationCode) > len(best.creationCode) {
			best = a
		}
	}
	return best
}
