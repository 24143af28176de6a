// Package txbrowser 读取本地网络最近的交易，并用编译产物为其标注合约与方法名
package txbrowser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"devchain/pkg/types"

	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// 每次批量请求的区块数
	blockBatchSize = 16
	// 最多向前扫描的区块数
	DefaultMaxBlocks = 1000
	// 并发解析标签的数量
	labelConcurrency = 8
)

// TransactionRecord 一笔交易及其尽力解析出的标签
type TransactionRecord struct {
	Hash         common.Hash     `json:"hash" yaml:"hash"`
	ContractName string          `json:"contractName,omitempty" yaml:"contractName,omitempty"`
	MethodName   string          `json:"methodName,omitempty" yaml:"methodName,omitempty"`
	BlockNumber  uint64          `json:"blockNumber" yaml:"blockNumber"`
	Index        uint64          `json:"index" yaml:"index"`
	From         common.Address  `json:"from" yaml:"from"`
	To           *common.Address `json:"to,omitempty" yaml:"to,omitempty"`
}

// Label 返回 Contract.method 形式的描述，未解析时为空
func (r TransactionRecord) Label() string {
	switch {
	case r.ContractName != "" && r.MethodName != "":
		return r.ContractName + "." + r.MethodName
	case r.ContractName != "":
		return r.ContractName
	}
	return ""
}

type rpcTransaction struct {
	Hash             common.Hash          `json:"hash"`
	From             common.Address       `json:"from"`
	To               *common.Address      `json:"to"`
	Input            string               `json:"input"`
	TransactionIndex types.FlexibleUint64 `json:"transactionIndex"`
}

type rpcBlock struct {
	Number       types.FlexibleUint64 `json:"number"`
	Transactions []rpcTransaction     `json:"transactions"`
}

// Browser 通过 JSON-RPC 浏览本地网络交易
type Browser struct {
	client     *rpc.Client
	ownsClient bool
	index      *Index
	codeCache  *bigcache.BigCache
	logger     *zap.Logger
	maxBlocks  int
}

// NewBrowser 基于已有 RPC 客户端创建浏览器，client 由调用方关闭
func NewBrowser(client *rpc.Client, artifacts []*Artifact, logger *zap.Logger) (*Browser, error) {
	if client == nil {
		return nil, fmt.Errorf("rpc client not configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := bigcache.DefaultConfig(10 * time.Minute)
	cfg.Shards = 64
	cfg.MaxEntriesInWindow = 4096
	cfg.MaxEntrySize = 24 * 1024 // EIP-170 合约大小上限
	cfg.HardMaxCacheSize = 64
	cfg.Verbose = false
	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create code cache: %w", err)
	}

	return &Browser{
		client:    client,
		index:     NewIndex(artifacts),
		codeCache: cache,
		logger:    logger,
		maxBlocks: DefaultMaxBlocks,
	}, nil
}

// Dial 连接节点并加载构建目录中的产物
func Dial(ctx context.Context, endpoint, buildDir string, logger *zap.Logger) (*Browser, error) {
	artifacts, err := LoadArtifacts(buildDir)
	if err != nil {
		return nil, err
	}
	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	b, err := NewBrowser(client, artifacts, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	b.ownsClient = true
	return b, nil
}

// SetMaxBlocks 设置最多扫描的区块数
func (b *Browser) SetMaxBlocks(n int) {
	if n > 0 {
		b.maxBlocks = n
	}
}

// Close 释放缓存，Dial 创建的客户端一并关闭
func (b *Browser) Close() error {
	err := b.codeCache.Close()
	if b.ownsClient {
		b.client.Close()
	}
	return err
}

// RecentTransactions 从最新区块向前读取最多 limit 笔交易。
// 区块从新到旧，区块内按交易序号从大到小，按哈希去重。标签解析失败只会留空。
func (b *Browser) RecentTransactions(ctx context.Context, limit int) ([]TransactionRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	var latest types.FlexibleUint64
	if err := b.client.CallContext(ctx, &latest, "eth_blockNumber"); err != nil {
		return nil, fmt.Errorf("failed to get latest block: %w", err)
	}

	// limit 只作上限
	hint := min(limit, blockBatchSize)
	var (
		records = make([]TransactionRecord, 0, hint)
		inputs  = make([]string, 0, hint)
		seen    = make(map[common.Hash]bool)
		next    = int64(latest.Value())
		scanned = 0
	)
	for next >= 0 && len(records) < limit && scanned < b.maxBlocks {
		count := blockBatchSize
		if int64(count) > next+1 {
			count = int(next + 1)
		}
		if rem := b.maxBlocks - scanned; count > rem {
			count = rem
		}

		numbers := make([]uint64, count)
		for i := range numbers {
			numbers[i] = uint64(next) - uint64(i)
		}
		blocks, err := b.fetchBlocks(ctx, numbers)
		if err != nil {
			return nil, err
		}

		for i, blk := range blocks {
			if blk == nil {
				b.logger.Debug("block not found", zap.Uint64("number", numbers[i]))
				continue
			}
			txs := blk.Transactions
			sort.SliceStable(txs, func(x, y int) bool {
				return txs[x].TransactionIndex.Value() > txs[y].TransactionIndex.Value()
			})
			for _, tx := range txs {
				if len(records) >= limit {
					break
				}
				if seen[tx.Hash] {
					continue
				}
				seen[tx.Hash] = true
				records = append(records, TransactionRecord{
					Hash:        tx.Hash,
					BlockNumber: blk.Number.Value(),
					Index:       tx.TransactionIndex.Value(),
					From:        tx.From,
					To:          tx.To,
				})
				inputs = append(inputs, tx.Input)
			}
		}
		next -= int64(count)
		scanned += count
	}

	b.resolveLabels(ctx, records, inputs)
	return records, nil
}

func (b *Browser) fetchBlocks(ctx context.Context, numbers []uint64) ([]*rpcBlock, error) {
	blocks := make([]*rpcBlock, len(numbers))
	batch := make([]rpc.BatchElem, len(numbers))
	for i, n := range numbers {
		batch[i] = rpc.BatchElem{
			Method: "eth_getBlockByNumber",
			Args:   []interface{}{hexutil.EncodeUint64(n), true},
			Result: &blocks[i],
		}
	}
	if err := b.client.BatchCallContext(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to fetch blocks: %w", err)
	}
	for i, elem := range batch {
		if elem.Error != nil {
			return nil, fmt.Errorf("failed to fetch block %d: %w", numbers[i], elem.Error)
		}
	}
	return blocks, nil
}

func (b *Browser) resolveLabels(ctx context.Context, records []TransactionRecord, inputs []string) {
	if b.index.Len() == 0 || len(records) == 0 {
		return
	}

	var networkID string
	if err := b.client.CallContext(ctx, &networkID, "net_version"); err != nil {
		b.logger.Debug("net_version unavailable, matching deployments on any network", zap.Error(err))
		networkID = ""
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(labelConcurrency)
	for i := range records {
		i := i
		g.Go(func() error {
			b.resolveLabel(gctx, networkID, &records[i], common.FromHex(inputs[i]))
			return nil
		})
	}
	_ = g.Wait()
}

func (b *Browser) resolveLabel(ctx context.Context, networkID string, rec *TransactionRecord, input []byte) {
	if rec.To == nil {
		if a := b.index.MatchCreation(input); a != nil {
			rec.ContractName = a.ContractName
			rec.MethodName = "constructor"
		}
		return
	}

	a := b.index.MatchDeployed(networkID, *rec.To, nil)
	if a == nil {
		code, err := b.code(ctx, *rec.To)
		if err != nil {
			b.logger.Debug("failed to fetch contract code", zap.Stringer("address", rec.To), zap.Error(err))
			return
		}
		a = b.index.MatchDeployed(networkID, *rec.To, code)
	}
	if a == nil {
		return
	}
	rec.ContractName = a.ContractName
	if name, ok := a.MethodName(input); ok {
		rec.MethodName = name
	}
}

// code 读取合约运行时字节码，结果缓存在 bigcache 中
func (b *Browser) code(ctx context.Context, addr common.Address) ([]byte, error) {
	key := addr.Hex()
	if cached, err := b.codeCache.Get(key); err == nil {
		return cached, nil
	} else if !errors.Is(err, bigcache.ErrEntryNotFound) {
		b.logger.Debug("code cache read failed", zap.Error(err))
	}

	var result string
	if err := b.client.CallContext(ctx, &result, "eth_getCode", key, "latest"); err != nil {
		return nil, err
	}
	var code []byte
	if result != "" && result != "0x" {
		code = common.FromHex(result)
	}
	if err := b.codeCache.Set(key, code); err != nil {
		b.logger.Debug("code cache write failed", zap.Error(err))
	}
	return code, nil
}
