// Package extension 持有进程级状态，并把各组件串成用户命令
package extension

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"devchain/pkg/config"
	"devchain/pkg/debugger"
	"devchain/pkg/network"
	"devchain/pkg/servicetree"
	"devchain/pkg/simulator"
	"devchain/pkg/telemetry"
	"devchain/pkg/truffle"
	"devchain/pkg/txbrowser"
	"devchain/pkg/ui"
	"devchain/pkg/workflow"

	"go.uber.org/zap"
)

var (
	ErrNotLocalNetwork  = errors.New("network is not a local network")
	ErrContractNotFound = errors.New("contract artifact not found")
)

// DefaultLocalPort 网络未配置端口时使用
const DefaultLocalPort = 8545

// State 进程级状态，Init 创建，Teardown 释放
type State struct {
	settings   *config.Settings
	logger     *zap.Logger
	store      servicetree.Store
	tree       *servicetree.Tree
	supervisor *simulator.Supervisor
	telemetry  *telemetry.Client

	picker        ui.Picker
	debugLauncher debugger.Launcher
	openBrowser   debugger.OpenFunc
	generator     workflow.Generator

	teardownOnce sync.Once
	teardownErr  error
}

// Option 替换 State 的协作者
type Option func(*deps)

type deps struct {
	store         servicetree.Store
	launcher      simulator.Launcher
	prober        simulator.Prober
	picker        ui.Picker
	debugLauncher debugger.Launcher
	openBrowser   debugger.OpenFunc
	generator     workflow.Generator
}

func WithStore(s servicetree.Store) Option            { return func(d *deps) { d.store = s } }
func WithLauncher(l simulator.Launcher) Option        { return func(d *deps) { d.launcher = l } }
func WithProber(p simulator.Prober) Option            { return func(d *deps) { d.prober = p } }
func WithPicker(p ui.Picker) Option                   { return func(d *deps) { d.picker = p } }
func WithDebugLauncher(l debugger.Launcher) Option    { return func(d *deps) { d.debugLauncher = l } }
func WithBrowserOpener(open debugger.OpenFunc) Option { return func(d *deps) { d.openBrowser = open } }
func WithGenerator(g workflow.Generator) Option       { return func(d *deps) { d.generator = g } }

// Init 打开状态存储、恢复服务树、创建模拟器监管者与指标
func Init(ctx context.Context, settings *config.Settings, logger *zap.Logger, opts ...Option) (*State, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings == nil {
		return nil, fmt.Errorf("settings are required")
	}
	var d deps
	for _, opt := range opts {
		opt(&d)
	}

	store := d.store
	if store == nil {
		bs, err := servicetree.OpenBadgerStore(settings.StateDir, logger)
		if err != nil {
			return nil, err
		}
		store = bs
	}

	tree, err := servicetree.Load(store, logger)
	if err != nil {
		if !errors.Is(err, servicetree.ErrCorruptState) {
			store.Close()
			return nil, err
		}
		logger.Warn("persisted service tree is corrupt, starting empty", zap.Error(err))
	}
	if err := tree.EnsureDefaultServices(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create default services: %w", err)
	}

	tel, err := telemetry.Init(settings.MetricsAddr, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	s := &State{
		settings:      settings,
		logger:        logger,
		store:         store,
		tree:          tree,
		supervisor:    simulator.NewSupervisor(d.launcher, d.prober, logger),
		telemetry:     tel,
		picker:        d.picker,
		debugLauncher: d.debugLauncher,
		openBrowser:   d.openBrowser,
		generator:     d.generator,
	}
	if s.picker == nil {
		s.picker = ui.TerminalPicker{}
	}
	if s.debugLauncher == nil {
		s.debugLauncher = debugger.TruffleLauncher{}
	}
	if s.openBrowser == nil {
		s.openBrowser = debugger.DialBrowser(logger)
	}
	if s.generator == nil {
		s.generator = workflow.LogicAppGenerator{}
	}
	s.supervisor.OnChange(s.onSimulatorChange)

	logger.Debug("extension initialized", zap.String("stateDir", settings.StateDir), zap.Int("nodes", len(tree.Nodes())))
	return s, nil
}

// Teardown 停止本进程启动的模拟器、清除树中的 pid 并关闭存储与指标，可重复调用
func (s *State) Teardown(ctx context.Context) error {
	s.teardownOnce.Do(func() {
		var errs []error
		if err := s.supervisor.StopAll(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := s.tree.ClearLocalPIDs(); err != nil {
			errs = append(errs, err)
		}
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.telemetry.Teardown(ctx); err != nil {
			errs = append(errs, err)
		}
		s.teardownErr = errors.Join(errs...)
	})
	return s.teardownErr
}

func (s *State) Settings() *config.Settings        { return s.settings }
func (s *State) Tree() *servicetree.Tree           { return s.tree }
func (s *State) Supervisor() *simulator.Supervisor { return s.supervisor }
func (s *State) Telemetry() *telemetry.Client      { return s.telemetry }

// onSimulatorChange 把模拟器状态同步到服务树与指标
func (s *State) onSimulatorChange(h simulator.Handle) {
	s.telemetry.SetSimulatorsRunning(len(s.supervisor.Handles()))

	node, ok := s.tree.FindLocalProjectByPort(h.Port)
	if !ok {
		return
	}
	pid := h.PID
	if h.Status == simulator.StatusStopped {
		pid = 0
	}
	if _, err := s.tree.UpdateLocal(node.ID, pid, h.Port); err != nil {
		s.logger.Warn("failed to record simulator state", zap.String("node", node.ID), zap.Error(err))
	}
}

// LoadProject 加载项目配置
func (s *State) LoadProject() (*truffle.Configuration, error) {
	cfg, _, err := truffle.Load(s.settings.ProjectDir, truffle.DefaultDirectories())
	return cfg, err
}

// Registry 基于当前项目配置的网络注册表
func (s *State) Registry() (*network.Registry, error) {
	cfg, err := s.LoadProject()
	if err != nil {
		return nil, err
	}
	return network.NewRegistry(cfg), nil
}

func (s *State) simulatorOptions() simulator.Options {
	return simulator.Options{
		Binary:         s.settings.SimulatorBinary,
		Args:           s.settings.SimulatorArgs,
		Dir:            s.settings.ProjectDir,
		StartupTimeout: s.settings.StartupTimeout,
		ShutdownGrace:  s.settings.ShutdownGrace,
		LogDir:         s.settings.SimulatorLogDir,
	}
}

// StartLocalNetwork 保证本地网络的模拟器在运行，并把端口与 pid 记录到对应的本地项目节点
func (s *State) StartLocalNetwork(ctx context.Context, networkName string) (simulator.Handle, servicetree.Node, error) {
	registry, err := s.Registry()
	if err != nil {
		return simulator.Handle{}, servicetree.Node{}, err
	}
	entry, err := registry.Resolve(networkName)
	if err != nil {
		return simulator.Handle{}, servicetree.Node{}, err
	}
	if !network.IsLocal(entry) {
		return simulator.Handle{}, servicetree.Node{}, fmt.Errorf("%w: %s", ErrNotLocalNetwork, entry.Name)
	}

	host, port := localAddress(entry)
	opts := s.simulatorOptions()
	opts.Host = host

	h, err := s.supervisor.EnsureRunning(ctx, port, opts)
	s.telemetry.SimulatorStarted(err)
	if err != nil {
		return simulator.Handle{}, servicetree.Node{}, err
	}

	node, ok := s.tree.FindLocalProjectByPort(port)
	if !ok {
		node, err = s.ConnectLocal(entry.Name, host, port)
		if err != nil {
			return h, servicetree.Node{}, err
		}
	}
	node, err = s.tree.UpdateLocal(node.ID, h.PID, port)
	if err != nil {
		return h, servicetree.Node{}, err
	}
	return h, node, nil
}

// localAddress 本地网络的主机与端口；只配置了 provider 时从其 URL 中取
func localAddress(entry truffle.NetworkEntry) (string, int) {
	host, port := entry.Options.Host, int(entry.Options.Port)
	if host == "" && entry.Options.Provider != nil {
		if u, err := url.Parse(entry.Options.Provider.ResolvedURL); err == nil {
			host = u.Hostname()
			if p, err := strconv.Atoi(u.Port()); err == nil && port == 0 {
				port = p
			}
		}
	}
	if host == "" {
		host = simulator.DefaultHost
	}
	if port == 0 {
		port = DefaultLocalPort
	}
	return host, port
}

// StopLocalNetwork 停止端口上的模拟器；端口上没有受管模拟器时返回 false
func (s *State) StopLocalNetwork(ctx context.Context, port int) (bool, error) {
	h, ok := s.supervisor.Status(port)
	if !ok {
		return false, nil
	}
	return true, s.supervisor.Stop(ctx, h)
}

// ConnectLocal 在本地服务下添加一个项目节点
func (s *State) ConnectLocal(label, host string, port int) (servicetree.Node, error) {
	if port <= 0 || port > 65535 {
		return servicetree.Node{}, fmt.Errorf("invalid port %d", port)
	}
	if host == "" {
		host = simulator.DefaultHost
	}
	if label == "" {
		label = host + ":" + strconv.Itoa(port)
	}
	parent, ok := s.tree.Service(servicetree.KindLocal)
	if !ok {
		return servicetree.Node{}, fmt.Errorf("%w: local service", servicetree.ErrNodeNotFound)
	}
	return s.tree.AddChild(parent.ID, servicetree.Node{
		Label:   label,
		Payload: servicetree.LocalProject{Host: host, Port: port},
	})
}

// ConnectAzure 在 Azure 服务下添加一个项目节点
func (s *State) ConnectAzure(label string, project servicetree.AzureProject) (servicetree.Node, error) {
	if project.SubscriptionID == "" || project.ResourceGroup == "" || project.MemberName == "" {
		return servicetree.Node{}, fmt.Errorf("subscription, resource group and member name are required")
	}
	if label == "" {
		label = project.MemberName
	}
	parent, ok := s.tree.Service(servicetree.KindAzure)
	if !ok {
		return servicetree.Node{}, fmt.Errorf("%w: azure service", servicetree.ErrNodeNotFound)
	}
	return s.tree.AddChild(parent.ID, servicetree.Node{Label: label, Payload: project})
}

// Disconnect 删除节点及其子树；本地项目上受管的模拟器会先被停止
func (s *State) Disconnect(ctx context.Context, id string) error {
	node, ok := s.tree.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", servicetree.ErrNodeNotFound, id)
	}
	if local, ok := node.Payload.(servicetree.LocalProject); ok && local.Port != 0 {
		if _, err := s.StopLocalNetwork(ctx, local.Port); err != nil {
			s.logger.Warn("failed to stop simulator on disconnect", zap.Int("port", local.Port), zap.Error(err))
		}
	}
	return s.tree.RemoveChild(node.ParentID, id)
}

// RecentTransactions 列出网络上最近的交易并标注合约与方法
func (s *State) RecentTransactions(ctx context.Context, networkName string, limit int) ([]txbrowser.TransactionRecord, error) {
	cfg, err := s.LoadProject()
	if err != nil {
		return nil, err
	}
	entry, err := network.NewRegistry(cfg).Resolve(networkName)
	if err != nil {
		return nil, err
	}
	endpoint, err := network.Endpoint(entry)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	lister, release, err := s.openBrowser(ctx, endpoint, cfg.BuildDirectory(s.settings.ProjectDir))
	if err != nil {
		return nil, err
	}
	defer release()

	records, err := lister.RecentTransactions(ctx, limit)
	s.telemetry.ObserveLookup(time.Since(start))
	return records, err
}

// DebugTransaction 选择交易并启动调试会话
func (s *State) DebugTransaction(ctx context.Context, networkName string) (debugger.LaunchConfig, error) {
	session := &debugger.Session{
		Picker:   s.picker,
		Launcher: s.debugLauncher,
		Open:     s.openBrowser,
		Logger:   s.logger,
	}
	return session.Start(ctx, s.settings.ProjectDir, networkName)
}

// GenerateWorkflow 为构建目录中的合约生成工作流并写入 outputDir
func (s *State) GenerateWorkflow(contractName, outputDir string) ([]workflow.GeneratedFile, error) {
	cfg, err := s.LoadProject()
	if err != nil {
		return nil, err
	}
	artifacts, err := txbrowser.LoadArtifacts(cfg.BuildDirectory(s.settings.ProjectDir))
	if err != nil {
		return nil, err
	}

	var artifact *txbrowser.Artifact
	for _, a := range artifacts {
		if a.ContractName == contractName {
			artifact = a
			break
		}
	}
	if artifact == nil {
		return nil, fmt.Errorf("%w: %s", ErrContractNotFound, contractName)
	}

	files, err := s.generator.Generate(string(artifact.ABI), artifact.Bytecode, artifact.ContractName, outputDir)
	if err != nil {
		return nil, err
	}
	if err := workflow.WriteFiles(files); err != nil {
		return nil, err
	}
	s.logger.Info("workflow generated", zap.String("contract", contractName), zap.Int("files", len(files)), zap.String("output", outputDir))
	return files, nil
}
