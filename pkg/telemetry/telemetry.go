// Package telemetry 记录命令与模拟器的运行指标
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "devchain"

// Client 进程级的指标客户端，由 Init 创建、Teardown 释放
type Client struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	commands          *prometheus.CounterVec
	simulatorStarts   *prometheus.CounterVec
	simulatorsRunning prometheus.Gauge
	lookupDuration    prometheus.Histogram

	server   *http.Server
	listener net.Listener
	served   chan error
}

// Init 创建指标客户端；addr 非空时在该地址提供 /metrics
func Init(addr string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		registry: prometheus.NewRegistry(),
		logger:   logger,
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands executed, by command and outcome.",
		}, []string{"command", "outcome"}),
		simulatorStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulator_starts_total",
			Help:      "Simulator start attempts, by outcome.",
		}, []string{"outcome"}),
		simulatorsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulators_running",
			Help:      "Simulators currently tracked by the supervisor.",
		}),
		lookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_lookup_seconds",
			Help:      "Time spent listing recent transactions.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	c.registry.MustRegister(
		c.commands,
		c.simulatorStarts,
		c.simulatorsRunning,
		c.lookupDuration,
		collectors.NewGoCollector(),
	)

	if addr != "" {
		if err := c.serve(addr); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	c.listener = ln
	c.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	c.served = make(chan error, 1)
	go func() {
		c.served <- c.server.Serve(ln)
	}()
	c.logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr 返回指标服务的监听地址，未启用时为空
func (c *Client) Addr() string {
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Handler 返回 /metrics 处理器
func (c *Client) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry 返回底层注册表
func (c *Client) Registry() *prometheus.Registry {
	return c.registry
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// TrackCommand 记录一次命令执行
func (c *Client) TrackCommand(command string, err error) {
	if c == nil {
		return
	}
	c.commands.WithLabelValues(command, outcome(err)).Inc()
}

// SimulatorStarted 记录一次模拟器启动尝试
func (c *Client) SimulatorStarted(err error) {
	if c == nil {
		return
	}
	c.simulatorStarts.WithLabelValues(outcome(err)).Inc()
}

// SetSimulatorsRunning 更新运行中的模拟器数量
func (c *Client) SetSimulatorsRunning(n int) {
	if c == nil {
		return
	}
	c.simulatorsRunning.Set(float64(n))
}

// ObserveLookup 记录一次交易列表查询耗时
func (c *Client) ObserveLookup(d time.Duration) {
	if c == nil {
		return
	}
	c.lookupDuration.Observe(d.Seconds())
}

// Teardown 关闭指标服务
func (c *Client) Teardown(ctx context.Context) error {
	if c == nil || c.server == nil {
		return nil
	}
	if err := c.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop metrics server: %w", err)
	}
	if err := <-c.served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	c.server = nil
	return nil
}
