// Package simulator 管理本地区块链模拟器（ganache-cli）子进程
package simulator

import (
	"errors"
	"time"
)

var (
	// ErrPortConflict 端口被与模拟器无关的进程占用
	ErrPortConflict = errors.New("port is bound by another process")
	// ErrStartupTimeout 模拟器未在启动超时内就绪
	ErrStartupTimeout = errors.New("simulator startup timed out")
	// ErrShutdownTimeout 强制结束后进程仍未退出
	ErrShutdownTimeout = errors.New("simulator shutdown timed out")
	// ErrProcessExited 模拟器在就绪前退出
	ErrProcessExited = errors.New("simulator exited before becoming ready")
)

const (
	DefaultBinary         = "ganache-cli"
	DefaultHost           = "127.0.0.1"
	DefaultStartupTimeout = 30 * time.Second
	DefaultShutdownGrace  = 5 * time.Second

	// ReadyMarker ganache-cli 就绪时输出的行首
	ReadyMarker = "Listening on"

	diagnosticLines = 200
)

// Status 进程状态
type Status int

const (
	StatusStopped Status = iota
	StatusRunning
)

func (s Status) String() string {
	if s == StatusRunning {
		return "Running"
	}
	return "Stopped"
}

// PortState 端口占用情况
type PortState int

const (
	PortFree PortState = iota
	PortBoundByOurProcess
	PortBoundByOther
)

func (s PortState) String() string {
	switch s {
	case PortFree:
		return "Free"
	case PortBoundByOurProcess:
		return "BoundByOurProcess"
	case PortBoundByOther:
		return "BoundByOther"
	}
	return "Unknown"
}

// Handle 模拟器进程句柄，只以值的形式对外暴露
type Handle struct {
	PID       int       `json:"pid" yaml:"pid"`
	Port      int       `json:"port" yaml:"port"`
	Status    Status    `json:"status" yaml:"status"`
	External  bool      `json:"external" yaml:"external"` // 端口上已有的模拟器，不是本进程启动的
	StartedAt time.Time `json:"startedAt" yaml:"startedAt"`
}

// Options 单次启动的参数
type Options struct {
	Binary         string
	Args           []string
	Dir            string
	Host           string
	StartupTimeout time.Duration
	ShutdownGrace  time.Duration
	LogDir         string // 非空时输出额外写入 <LogDir>/ganache-<port>.log
}

func (o Options) withDefaults() Options {
	if o.Binary == "" {
		o.Binary = DefaultBinary
	}
	if o.Host == "" {
		o.Host = DefaultHost
	}
	if o.StartupTimeout <= 0 {
		o.StartupTimeout = DefaultStartupTimeout
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = DefaultShutdownGrace
	}
	return o
}
