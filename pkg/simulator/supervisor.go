package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 启动期间健康探测的间隔
const (
	healthProbeInterval = 250 * time.Millisecond
	// 启动尝试在 StartupTimeout 与两次宽限期之外额外允许的时间（端口探测等）
	attemptSlack = 5 * time.Second
)

// ChangeFunc 进程状态变化回调
type ChangeFunc func(Handle)

type record struct {
	handle  Handle
	proc    Process // External 句柄为 nil
	sink    *outputSink
	grace   time.Duration
	stopped chan struct{}
}

func (r *record) alive() bool {
	if r.proc == nil {
		return true
	}
	select {
	case <-r.proc.Done():
		return false
	default:
		return true
	}
}

// Supervisor 按端口管理模拟器进程。同一端口的并发启动请求共享一次尝试。
type Supervisor struct {
	launcher Launcher
	prober   Prober
	logger   *zap.Logger

	group singleflight.Group

	mu        sync.Mutex
	records   map[int]*record
	observers []ChangeFunc
}

// NewSupervisor 创建进程管理器；launcher/prober 为 nil 时使用默认实现
func NewSupervisor(launcher Launcher, prober Prober, logger *zap.Logger) *Supervisor {
	if launcher == nil {
		launcher = ExecLauncher{}
	}
	if prober == nil {
		prober = RPCProber{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		launcher: launcher,
		prober:   prober,
		logger:   logger,
		records:  make(map[int]*record),
	}
}

// OnChange 注册状态变化回调
func (s *Supervisor) OnChange(fn ChangeFunc) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

func (s *Supervisor) notify(h Handle) {
	s.mu.Lock()
	observers := append([]ChangeFunc(nil), s.observers...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(h)
	}
}

// EnsureRunning 保证端口上有模拟器在运行并返回其句柄
func (s *Supervisor) EnsureRunning(ctx context.Context, port int, opts Options) (Handle, error) {
	if port <= 0 || port > 65535 {
		return Handle{}, fmt.Errorf("invalid port %d", port)
	}
	opts = opts.withDefaults()
	// 同一端口的并发调用共享一次启动；尝试本身不随某个调用方取消，只受自身时限约束
	ch := s.group.DoChan(strconv.Itoa(port), func() (interface{}, error) {
		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.StartupTimeout+2*opts.ShutdownGrace+attemptSlack)
		defer cancel()
		return s.ensureRunning(attemptCtx, port, opts)
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("joined in-flight simulator start", zap.Int("port", port))
		}
		if res.Err != nil {
			return Handle{}, res.Err
		}
		return res.Val.(Handle), nil
	case <-ctx.Done():
		s.logger.Debug("caller stopped waiting for simulator start", zap.Int("port", port), zap.Error(ctx.Err()))
		return Handle{}, ctx.Err()
	}
}

func (s *Supervisor) ensureRunning(ctx context.Context, port int, opts Options) (Handle, error) {
	state, version := s.portState(ctx, port, opts.Host)
	switch state {
	case PortBoundByOurProcess:
		s.mu.Lock()
		rec, ok := s.records[port]
		if !ok {
			rec = &record{
				handle: Handle{Port: port, Status: StatusRunning, External: true, StartedAt: time.Now()},
			}
			s.records[port] = rec
		}
		h := rec.handle
		s.mu.Unlock()
		if !ok {
			s.logger.Info("adopted running simulator", zap.Int("port", port), zap.String("client", version))
			s.notify(h)
		}
		return h, nil
	case PortBoundByOther:
		return Handle{}, fmt.Errorf("%w: %s:%d", ErrPortConflict, opts.Host, port)
	}
	return s.spawn(ctx, port, opts)
}

// PortState 判断端口状态
func (s *Supervisor) PortState(ctx context.Context, port int, host string) PortState {
	if host == "" {
		host = DefaultHost
	}
	state, _ := s.portState(ctx, port, host)
	return state
}

func (s *Supervisor) portState(ctx context.Context, port int, host string) (PortState, string) {
	s.mu.Lock()
	rec, ok := s.records[port]
	if ok && !rec.alive() {
		delete(s.records, port)
		ok = false
	}
	s.mu.Unlock()

	if ok && !rec.handle.External {
		return PortBoundByOurProcess, ""
	}
	if !s.prober.Bound(ctx, host, port) {
		if ok {
			// 被接管的外部模拟器已经不在了
			s.removeRecord(port, rec)
		}
		return PortFree, ""
	}
	version, err := s.prober.ClientVersion(ctx, host, port)
	if err == nil && IsSimulatorClient(version) {
		return PortBoundByOurProcess, version
	}
	if ok {
		s.removeRecord(port, rec)
	}
	return PortBoundByOther, version
}

func (s *Supervisor) spawn(ctx context.Context, port int, opts Options) (Handle, error) {
	logger := s.logger.With(zap.Int("port", port))

	var file io.WriteCloser
	if opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
			return Handle{}, fmt.Errorf("failed to create log directory: %w", err)
		}
		file = &lumberjack.Logger{
			Filename:   filepath.Join(opts.LogDir, fmt.Sprintf("ganache-%d.log", port)),
			MaxSize:    10,
			MaxBackups: 3,
		}
	}
	sink := newOutputSink(file, logger)

	args := append([]string{"--port", strconv.Itoa(port)}, opts.Args...)
	logger.Info("starting simulator", zap.String("binary", opts.Binary), zap.Strings("args", args))

	proc, err := s.launcher.Launch(ctx, Command{
		Binary: opts.Binary,
		Args:   args,
		Dir:    opts.Dir,
		Output: sink,
	})
	if err != nil {
		sink.Close()
		return Handle{}, err
	}

	rec := &record{
		handle: Handle{
			PID:       proc.PID(),
			Port:      port,
			Status:    StatusRunning,
			StartedAt: time.Now(),
		},
		proc:    proc,
		sink:    sink,
		grace:   opts.ShutdownGrace,
		stopped: make(chan struct{}),
	}
	s.mu.Lock()
	s.records[port] = rec
	s.mu.Unlock()
	go s.watch(rec)

	if err := s.awaitReady(ctx, rec, opts); err != nil {
		logger.Warn("simulator failed to start", zap.Error(err))
		if !errors.Is(err, ErrProcessExited) {
			s.terminate(context.Background(), rec)
		}
		s.removeRecord(port, rec)
		return Handle{}, err
	}

	logger.Info("simulator ready", zap.Int("pid", rec.handle.PID))
	s.notify(rec.handle)
	return rec.handle, nil
}

func (s *Supervisor) awaitReady(ctx context.Context, rec *record, opts Options) error {
	timer := time.NewTimer(opts.StartupTimeout)
	defer timer.Stop()
	ticker := time.NewTicker(healthProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rec.sink.Ready():
			return nil
		case <-ticker.C:
			if _, err := s.prober.ClientVersion(ctx, opts.Host, rec.handle.Port); err == nil {
				return nil
			}
		case <-rec.proc.Done():
			return fmt.Errorf("%w: %v\n%s", ErrProcessExited, rec.proc.Err(), strings.Join(rec.sink.Lines(), "\n"))
		case <-timer.C:
			return fmt.Errorf("%w after %s on port %d", ErrStartupTimeout, opts.StartupTimeout, rec.handle.Port)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// watch 进程自行退出时清理记录
func (s *Supervisor) watch(rec *record) {
	select {
	case <-rec.proc.Done():
	case <-rec.stopped:
		<-rec.proc.Done()
	}
	rec.sink.Close()

	s.mu.Lock()
	current, ok := s.records[rec.handle.Port]
	tracked := ok && current == rec
	if tracked {
		delete(s.records, rec.handle.Port)
	}
	s.mu.Unlock()

	if tracked {
		s.logger.Info("simulator exited", zap.Int("port", rec.handle.Port), zap.Int("pid", rec.handle.PID), zap.Error(rec.proc.Err()))
		h := rec.handle
		h.Status = StatusStopped
		s.notify(h)
	}
}

func (s *Supervisor) removeRecord(port int, rec *record) {
	s.mu.Lock()
	if current, ok := s.records[port]; ok && current == rec {
		delete(s.records, port)
	}
	s.mu.Unlock()
}

// Stop 结束模拟器：先发送中断信号，宽限期后强制结束。记录总会被移除。
func (s *Supervisor) Stop(ctx context.Context, h Handle) error {
	s.mu.Lock()
	rec, ok := s.records[h.Port]
	if ok {
		delete(s.records, h.Port)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	stopped := rec.handle
	stopped.Status = StatusStopped
	defer s.notify(stopped)

	if rec.proc == nil {
		s.logger.Info("released external simulator", zap.Int("port", h.Port))
		return nil
	}
	return s.terminate(ctx, rec)
}

func (s *Supervisor) terminate(ctx context.Context, rec *record) error {
	logger := s.logger.With(zap.Int("port", rec.handle.Port), zap.Int("pid", rec.handle.PID))
	select {
	case <-rec.stopped:
	default:
		close(rec.stopped)
	}

	if err := rec.proc.Signal(os.Interrupt); err != nil {
		logger.Debug("interrupt not delivered, killing", zap.Error(err))
	} else if waitExit(ctx, rec.proc, rec.grace) {
		logger.Info("simulator stopped")
		return nil
	}

	logger.Warn("simulator did not exit after interrupt, killing")
	if err := rec.proc.Kill(); err != nil {
		logger.Debug("kill failed", zap.Error(err))
	}
	if waitExit(ctx, rec.proc, rec.grace) {
		return nil
	}
	return fmt.Errorf("%w: pid %d on port %d", ErrShutdownTimeout, rec.handle.PID, rec.handle.Port)
}

func waitExit(ctx context.Context, proc Process, grace time.Duration) bool {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-proc.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// StopAll 结束所有由本进程管理的模拟器
func (s *Supervisor) StopAll(ctx context.Context) error {
	var errs []error
	for _, h := range s.Handles() {
		if err := s.Stop(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Status 返回端口上已跟踪的句柄
func (s *Supervisor) Status(port int) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[port]
	if !ok || !rec.alive() {
		return Handle{Port: port, Status: StatusStopped}, false
	}
	return rec.handle, true
}

// Handles 按端口顺序返回全部运行中的句柄
func (s *Supervisor) Handles() []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	handles := make([]Handle, 0, len(s.records))
	for _, rec := range s.records {
		if rec.alive() {
			handles = append(handles, rec.handle)
		}
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].Port < handles[j].Port })
	return handles
}

// Diagnostics 返回端口上模拟器最近的输出
func (s *Supervisor) Diagnostics(port int) []string {
	s.mu.Lock()
	rec, ok := s.records[port]
	s.mu.Unlock()
	if !ok || rec.sink == nil {
		return nil
	}
	return rec.sink.Lines()
}
