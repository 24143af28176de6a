package main

import (
	"encoding/json"
	"fmt"

	"devchain/pkg/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// settingsView 展示用的设置，时长以字符串输出
type settingsView struct {
	ProjectDir      string   `json:"projectDir" yaml:"project-dir"`
	StateDir        string   `json:"stateDir" yaml:"state-dir"`
	SimulatorBinary string   `json:"simulatorBinary" yaml:"simulator-binary"`
	SimulatorArgs   []string `json:"simulatorArgs,omitempty" yaml:"simulator-args,omitempty"`
	SimulatorLogDir string   `json:"simulatorLogDir,omitempty" yaml:"simulator-log-dir,omitempty"`
	StartupTimeout  string   `json:"startupTimeout" yaml:"startup-timeout"`
	ShutdownGrace   string   `json:"shutdownGrace" yaml:"shutdown-grace"`
	LogLevel        string   `json:"logLevel" yaml:"log-level"`
	LogFile         string   `json:"logFile,omitempty" yaml:"log-file,omitempty"`
	MetricsAddr     string   `json:"metricsAddr,omitempty" yaml:"metrics-addr,omitempty"`
}

func viewOf(s *config.Settings) settingsView {
	return settingsView{
		ProjectDir:      s.ProjectDir,
		StateDir:        s.StateDir,
		SimulatorBinary: s.SimulatorBinary,
		SimulatorArgs:   s.SimulatorArgs,
		SimulatorLogDir: s.SimulatorLogDir,
		StartupTimeout:  s.StartupTimeout.String(),
		ShutdownGrace:   s.ShutdownGrace.String(),
		LogLevel:        s.LogLevel,
		LogFile:         s.LogFile,
		MetricsAddr:     s.MetricsAddr,
	}
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect devchain settings",
	}

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings (flags > DEVCHAIN_* env > config file > defaults)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			view := viewOf(a.settings)
			var (
				out []byte
				err error
			)
			switch format {
			case "yaml", "":
				out, err = yaml.Marshal(view)
			case "json":
				out, err = json.MarshalIndent(view, "", "  ")
				out = append(out, '\n')
			default:
				return fmt.Errorf("unsupported format %q (yaml or json)", format)
			}
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	show.Flags().StringVar(&format, "format", "yaml", "output format: yaml or json")
	cmd.AddCommand(show)
	return cmd
}
