// devchain 命令行：Truffle 项目的本地链、服务树、交易浏览与调试
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"devchain/pkg/config"
	"devchain/pkg/extension"
	"devchain/pkg/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const teardownTimeout = 15 * time.Second

// app 命令共享的运行状态
type app struct {
	v        *viper.Viper
	settings *config.Settings
	logger   *zap.Logger

	// 测试中替换协作者
	stateOpts []extension.Option
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "devchain",
		Short: "Truffle project toolkit: local chain, services, transactions and debugging",
		Long: `devchain parses truffle-config.js, supervises a local ganache-cli simulator,
keeps a persisted tree of local and Azure Blockchain Service connections,
lists recent transactions with contract labels and launches truffle debug sessions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				a.logger.Sync()
			}
		},
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newConfigCmd(a),
		newNetworkCmd(a),
		newServiceCmd(a),
		newTxCmd(a),
		newDebugCmd(a),
		newWorkflowCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	settings, err := config.Load(a.v, cmd.Flags())
	if err != nil {
		return err
	}
	a.settings = settings

	if a.logger == nil {
		logger, err := logging.New(logging.Options{
			Level:   settings.LogLevel,
			File:    settings.LogFile,
			Console: true,
		})
		if err != nil {
			return err
		}
		a.logger = logger
	}
	return nil
}

// withState 初始化进程级状态，执行 fn 后释放，并记录命令指标
func (a *app) withState(cmd *cobra.Command, fn func(ctx context.Context, state *extension.State) error) error {
	ctx := cmd.Context()
	state, err := extension.Init(ctx, a.settings, a.logger, a.stateOpts...)
	if err != nil {
		return err
	}

	runErr := fn(ctx, state)
	state.Telemetry().TrackCommand(cmd.CommandPath(), runErr)

	teardownCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := state.Teardown(teardownCtx); err != nil {
		a.logger.Warn("teardown failed", zap.Error(err))
	}
	return runErr
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{v: viper.New()}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
