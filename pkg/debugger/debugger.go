// Package debugger 选择一笔交易并启动 truffle 调试会话
package debugger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"devchain/pkg/network"
	"devchain/pkg/truffle"
	"devchain/pkg/txbrowser"
	"devchain/pkg/ui"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// ErrInvalidTxHash 输入不是 32 字节的十六进制哈希
var ErrInvalidTxHash = errors.New("invalid transaction hash")

// DefaultLimit 选择列表中最多展示的交易数
const DefaultLimit = 20

// LaunchConfig 调试会话的启动配置
type LaunchConfig struct {
	Name             string `json:"name"`
	Type             string `json:"type"`
	Request          string `json:"request"`
	TxHash           string `json:"txHash"`
	Network          string `json:"network"`
	WorkingDirectory string `json:"workingDirectory"`
}

// Launcher 启动调试会话
type Launcher interface {
	StartDebugging(ctx context.Context, cfg LaunchConfig) error
}

// TruffleLauncher 执行 truffle debug <hash> --network <name>
type TruffleLauncher struct {
	Binary string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func (l TruffleLauncher) StartDebugging(ctx context.Context, cfg LaunchConfig) error {
	binary := l.Binary
	if binary == "" {
		binary = "truffle"
	}
	cmd := exec.CommandContext(ctx, binary, "debug", cfg.TxHash, "--network", cfg.Network)
	cmd.Dir = cfg.WorkingDirectory
	cmd.Stdin = readerOr(l.Stdin, os.Stdin)
	cmd.Stdout = writerOr(l.Stdout, os.Stdout)
	cmd.Stderr = writerOr(l.Stderr, os.Stderr)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("truffle debug failed: %w", err)
	}
	return nil
}

func readerOr(r, def io.Reader) io.Reader {
	if r != nil {
		return r
	}
	return def
}

func writerOr(w, def io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return def
}

// TransactionLister 列出最近交易
type TransactionLister interface {
	RecentTransactions(ctx context.Context, limit int) ([]txbrowser.TransactionRecord, error)
}

// OpenFunc 连接节点并返回交易列表来源及其释放函数
type OpenFunc func(ctx context.Context, endpoint, buildDir string) (TransactionLister, func(), error)

// DialBrowser 默认的 OpenFunc
func DialBrowser(logger *zap.Logger) OpenFunc {
	return func(ctx context.Context, endpoint, buildDir string) (TransactionLister, func(), error) {
		b, err := txbrowser.Dial(ctx, endpoint, buildDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { b.Close() }, nil
	}
}

// Session 调试流程：本地网络从最近交易中选择，远程网络手动输入哈希
type Session struct {
	Picker   ui.Picker
	Launcher Launcher
	Open     OpenFunc
	Defaults truffle.Directories
	Limit    int
	Logger   *zap.Logger
}

// Start 选择交易并启动调试，返回使用的启动配置
func (s *Session) Start(ctx context.Context, projectDir, networkName string) (LaunchConfig, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := s.Defaults
	if defaults == (truffle.Directories{}) {
		defaults = truffle.DefaultDirectories()
	}

	cfg, _, err := truffle.Load(projectDir, defaults)
	if err != nil {
		return LaunchConfig{}, err
	}
	entry, err := network.NewRegistry(cfg).Resolve(networkName)
	if err != nil {
		return LaunchConfig{}, err
	}

	var hash string
	if network.IsLocal(entry) {
		hash, err = s.pickTransaction(ctx, cfg, entry, projectDir)
	} else {
		hash, err = s.promptHash(ctx)
	}
	if err != nil {
		return LaunchConfig{}, err
	}

	launch := LaunchConfig{
		Name:             "Debug Transactions",
		Type:             "solidity",
		Request:          "launch",
		TxHash:           hash,
		Network:          entry.Name,
		WorkingDirectory: projectDir,
	}
	logger.Info("starting debug session", zap.String("tx", hash), zap.String("network", entry.Name))
	if err := s.Launcher.StartDebugging(ctx, launch); err != nil {
		return launch, err
	}
	return launch, nil
}

func (s *Session) pickTransaction(ctx context.Context, cfg *truffle.Configuration, entry truffle.NetworkEntry, projectDir string) (string, error) {
	endpoint, err := network.Endpoint(entry)
	if err != nil {
		return "", err
	}
	open := s.Open
	if open == nil {
		open = DialBrowser(s.Logger)
	}
	lister, release, err := open(ctx, endpoint, cfg.BuildDirectory(projectDir))
	if err != nil {
		return "", err
	}
	defer release()

	limit := s.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	records, err := lister.RecentTransactions(ctx, limit)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return s.promptHash(ctx)
	}

	items := make([]ui.Item, len(records))
	for i, r := range records {
		items[i] = ui.Item{Label: r.Hash.Hex(), Description: r.Label(), Value: r}
	}
	picked, err := s.Picker.QuickPick(ctx, "Select a transaction to debug", items)
	if err != nil {
		return "", err
	}
	return picked.Value.(txbrowser.TransactionRecord).Hash.Hex(), nil
}

func (s *Session) promptHash(ctx context.Context) (string, error) {
	input, err := s.Picker.InputBox(ctx, "Enter the transaction hash to debug", ValidateTxHash)
	if err != nil {
		return "", err
	}
	return NormalizeTxHash(input)
}

// ValidateTxHash 校验交易哈希格式
func ValidateTxHash(s string) error {
	_, err := NormalizeTxHash(s)
	return err
}

// NormalizeTxHash 接受带或不带 0x 前缀的 32 字节十六进制，返回小写 0x 形式
func NormalizeTxHash(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode("0x" + s[2:])
	if err != nil || len(b) != 32 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTxHash, s)
	}
	return hexutil.Encode(b), nil
}
