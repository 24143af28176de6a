// Package config 读取 devchain 的运行设置：命令行参数、DEVCHAIN_ 环境变量与可选的 YAML 文件
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	KeyConfigFile      = "config"
	KeyProjectDir      = "project-dir"
	KeyStateDir        = "state-dir"
	KeySimulatorBinary = "simulator-binary"
	KeySimulatorArgs   = "simulator-args"
	KeySimulatorLogDir = "simulator-log-dir"
	KeyStartupTimeout  = "startup-timeout"
	KeyShutdownGrace   = "shutdown-grace"
	KeyLogLevel        = "log-level"
	KeyLogFile         = "log-file"
	KeyMetricsAddr     = "metrics-addr"

	EnvPrefix = "DEVCHAIN"
)

// Settings 运行设置
type Settings struct {
	ProjectDir      string        `yaml:"project-dir"`
	StateDir        string        `yaml:"state-dir"`
	SimulatorBinary string        `yaml:"simulator-binary"`
	SimulatorArgs   []string      `yaml:"simulator-args"`
	SimulatorLogDir string        `yaml:"simulator-log-dir"`
	StartupTimeout  time.Duration `yaml:"startup-timeout"`
	ShutdownGrace   time.Duration `yaml:"shutdown-grace"`
	LogLevel        string        `yaml:"log-level"`
	LogFile         string        `yaml:"log-file"`
	MetricsAddr     string        `yaml:"metrics-addr"`
}

// DefaultStateDir 默认状态目录 <用户配置目录>/devchain
func DefaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".devchain")
	}
	return filepath.Join(dir, "devchain")
}

// RegisterFlags 在 flag 集合上注册全部设置项
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(KeyConfigFile, "", "path to a YAML settings file")
	fs.String(KeyProjectDir, ".", "truffle project directory")
	fs.String(KeyStateDir, DefaultStateDir(), "directory of the persisted service tree (empty keeps it in memory)")
	fs.String(KeySimulatorBinary, "ganache-cli", "local simulator executable")
	fs.StringSlice(KeySimulatorArgs, nil, "extra arguments forwarded to the simulator")
	fs.String(KeySimulatorLogDir, "", "directory for simulator output logs")
	fs.Duration(KeyStartupTimeout, 30*time.Second, "how long to wait for the simulator to become ready")
	fs.Duration(KeyShutdownGrace, 5*time.Second, "grace period before a stopping simulator is killed")
	fs.String(KeyLogLevel, "info", "log level (debug, info, warn, error)")
	fs.String(KeyLogFile, "", "write logs to this file with rotation")
	fs.String(KeyMetricsAddr, "", "serve prometheus metrics on this address")
}

// Load 按 flag > 环境变量 > 配置文件 > 默认值 的优先级读取设置
func Load(v *viper.Viper, fs *pflag.FlagSet) (*Settings, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if file := v.GetString(KeyConfigFile); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file %s: %w", file, err)
		}
	}

	s := &Settings{
		ProjectDir:      v.GetString(KeyProjectDir),
		StateDir:        v.GetString(KeyStateDir),
		SimulatorBinary: v.GetString(KeySimulatorBinary),
		SimulatorArgs:   v.GetStringSlice(KeySimulatorArgs),
		SimulatorLogDir: v.GetString(KeySimulatorLogDir),
		StartupTimeout:  v.GetDuration(KeyStartupTimeout),
		ShutdownGrace:   v.GetDuration(KeyShutdownGrace),
		LogLevel:        v.GetString(KeyLogLevel),
		LogFile:         v.GetString(KeyLogFile),
		MetricsAddr:     v.GetString(KeyMetricsAddr),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate 检查设置是否可用
func (s *Settings) Validate() error {
	if s.SimulatorBinary == "" {
		return fmt.Errorf("%s must not be empty", KeySimulatorBinary)
	}
	if s.StartupTimeout <= 0 {
		return fmt.Errorf("%s must be positive", KeyStartupTimeout)
	}
	if s.ShutdownGrace <= 0 {
		return fmt.Errorf("%s must be positive", KeyShutdownGrace)
	}
	if s.ProjectDir == "" {
		s.ProjectDir = "."
	}
	return nil
}
