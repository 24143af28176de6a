package txbrowser

import (
	"context"
	"encoding/hex"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	metaCoinABI   = `[{"constant":false,"inputs":[{"name":"receiver","type":"address"},{"name":"amount","type":"uint256"}],"name":"sendCoin","outputs":[{"name":"sufficient","type":"bool"}],"payable":false,"stateMutability":"nonpayable","type":"function"},{"constant":true,"inputs":[{"name":"addr","type":"address"}],"name":"getBalance","outputs":[{"name":"","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"},{"inputs":[],"payable":false,"stateMutability":"nonpayable","type":"constructor"}]`
	convertLibABI = `[{"constant":true,"inputs":[{"name":"amount","type":"uint256"},{"name":"conversionRate","type":"uint256"}],"name":"convert","outputs":[{"name":"convertedAmount","type":"uint256"}],"payable":false,"stateMutability":"pure","type":"function"}]`

	metaCoinCreation = "0x608060405234801561001057600080fd5b50336000908152602081905260409020612710905561"
	metaCoinRuntime  = "0x6080604052600436106100565760003560e01c8063"
	convertRuntime   = "0x730000000000000000000000000000000000000000301460806040526004361061"

	metaCoinAddress   = "0xcfeb869f69431e42cdb54a4f4f105c19c080a601"
	convertLibAddress = "0x254dffcd3277c0b1660f6d42efbb754edababc2b"
	deployer          = "0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1"
	receiver          = "0xffcf8fdee72ac11b5c542428b35eef5769c409f0"
)

func metadata(seed byte) string {
	return "a165627a7a72305820" + strings.Repeat(hex.EncodeToString([]byte{seed}), 32) + "0029"
}

func selector(signature string) string {
	return "0x" + hex.EncodeToString(crypto.Keccak256([]byte(signature))[:4])
}

func hash(n byte) string {
	return common.BytesToHash([]byte{n}).Hex()
}

func writeArtifact(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func writeArtifacts(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeArtifact(t, dir, "MetaCoin.json", `{
  "contractName": "MetaCoin",
  "abi": `+metaCoinABI+`,
  "bytecode": "`+metaCoinCreation+`",
  "deployedBytecode": "`+metaCoinRuntime+metadata(1)+`",
  "networks": {"5777": {"address": "`+metaCoinAddress+`", "transactionHash": "`+hash(1)+`"}}
}`)
	writeArtifact(t, dir, "ConvertLib.json", `{
  "contractName": "ConvertLib",
  "abi": `+convertLibABI+`,
  "bytecode": "0x60556023600b82828239805160001a607314",
  "deployedBytecode": "`+convertRuntime+metadata(2)+`",
  "networks": {}
}`)
	return dir
}

// newTestNode 三个区块各一笔交易：部署 MetaCoin、调用 sendCoin、调用未登记地址的 ConvertLib
func newTestNode() *fakeNode {
	node := newFakeNode("5777")
	node.addBlock()
	node.addBlock(tx(hash(1), deployer, nil, metaCoinCreation+"0000000000000000000000000000000000000000000000000000000000000001", 0))
	node.addBlock(tx(hash(2), deployer, metaCoinAddress, selector("sendCoin(address,uint256)")+strings.Repeat("00", 64), 0))
	node.addBlock(tx(hash(3), deployer, convertLibAddress, selector("getBalance(address)")+strings.Repeat("00", 32), 0))
	node.code[metaCoinAddress] = metaCoinRuntime + metadata(1)
	// 链上字节码与产物只差元数据哈希
	node.code[convertLibAddress] = convertRuntime + metadata(9)
	return node
}

// TestRecentTransactionsFewerThanLimit 交易不足 limit 时返回全部，新的在前且无重复
func TestRecentTransactionsFewerThanLimit(t *testing.T) {
	artifacts, err := LoadArtifacts(writeArtifacts(t))
	require.NoError(t, err)

	node := newTestNode()
	browser, err := NewBrowser(node.start(t), artifacts, nil)
	require.NoError(t, err)
	defer browser.Close()

	records, err := browser.RecentTransactions(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, common.HexToHash(hash(3)), records[0].Hash)
	assert.Equal(t, common.HexToHash(hash(2)), records[1].Hash)
	assert.Equal(t, common.HexToHash(hash(1)), records[2].Hash)
	assert.Equal(t, uint64(3), records[0].BlockNumber)
	assert.Equal(t, uint64(1), records[2].BlockNumber)

	assert.Equal(t, "ConvertLib", records[0].ContractName)
	assert.Empty(t, records[0].MethodName, "selector not in ConvertLib abi")
	assert.Equal(t, "MetaCoin", records[1].ContractName)
	assert.Equal(t, "sendCoin", records[1].MethodName)
	assert.Equal(t, "MetaCoin.sendCoin", records[1].Label())
	assert.Equal(t, "MetaCoin", records[2].ContractName)
	assert.Equal(t, "constructor", records[2].MethodName)
	assert.Nil(t, records[2].To)

	// MetaCoin 通过部署地址匹配，不需要读取字节码
	assert.Equal(t, 1, node.callCount("eth_getCode"))

	_, err = browser.RecentTransactions(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 1, node.callCount("eth_getCode"), "code should be cached")
}

// TestRecentTransactionsHugeLimit limit 只是上限，超大值返回链上全部交易
func TestRecentTransactionsHugeLimit(t *testing.T) {
	artifacts, err := LoadArtifacts(writeArtifacts(t))
	require.NoError(t, err)

	browser, err := NewBrowser(newTestNode().start(t), artifacts, nil)
	require.NoError(t, err)
	defer browser.Close()

	records, err := browser.RecentTransactions(context.Background(), math.MaxInt)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, common.HexToHash(hash(3)), records[0].Hash)
}

// TestRecentTransactionsOrderingAndDedup 区块内按序号倒序，重复哈希只保留一次
func TestRecentTransactionsOrderingAndDedup(t *testing.T) {
	node := newFakeNode("1337")
	node.addBlock()
	node.addBlock(
		tx(hash(0x11), deployer, receiver, "0x", 0),
		tx(hash(0x12), deployer, receiver, "0x", 1),
	)
	node.addBlock(
		tx(hash(0x22), deployer, receiver, "0x", 1),
		tx(hash(0x12), deployer, receiver, "0x", 2),
		tx(hash(0x21), deployer, receiver, "0x", 0),
	)

	browser, err := NewBrowser(node.start(t), nil, nil)
	require.NoError(t, err)
	defer browser.Close()

	records, err := browser.RecentTransactions(context.Background(), 10)
	require.NoError(t, err)

	var hashes []common.Hash
	for _, r := range records {
		hashes = append(hashes, r.Hash)
		assert.Empty(t, r.Label())
	}
	assert.Equal(t, []common.Hash{
		common.HexToHash(hash(0x12)),
		common.HexToHash(hash(0x22)),
		common.HexToHash(hash(0x21)),
		common.HexToHash(hash(0x11)),
	}, hashes)

	records, err = browser.RecentTransactions(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, common.HexToHash(hash(0x22)), records[1].Hash)

	records, err = browser.RecentTransactions(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecentTransactionsMaxBlocks(t *testing.T) {
	node := newFakeNode("1337")
	node.addBlock(tx(hash(1), deployer, receiver, "0x", 0))
	for i := 0; i < 40; i++ {
		node.addBlock()
	}

	browser, err := NewBrowser(node.start(t), nil, nil)
	require.NoError(t, err)
	defer browser.Close()

	browser.SetMaxBlocks(20)
	records, err := browser.RecentTransactions(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, records)

	browser.SetMaxBlocks(100)
	records, err = browser.RecentTransactions(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestDialRequiresArtifacts(t *testing.T) {
	_, err := Dial(context.Background(), "http://127.0.0.1:1", filepath.Join(t.TempDir(), "missing"), nil)
	assert.ErrorIs(t, err, ErrArtifactDirectoryMissing)
}
