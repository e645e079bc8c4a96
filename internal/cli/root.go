// Package cli wires the procflow commands. Commands are thin: they load
// configuration, construct the engine over the file store, and print what the
// engine returns.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/procflow/procflow/internal/config"
	"github.com/procflow/procflow/internal/logging"
	"github.com/procflow/procflow/internal/process"
	"github.com/procflow/procflow/internal/store/file"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "procflow",
	Short: "procflow - workflow scheduling and lifecycle engine",
	Long: `procflow models multi-step business workflows. A process template defines
a DAG of task templates with estimated durations and predecessor constraints;
starting a process instantiates the template and tracks task assignments until
every task is closed and the process auto-closes.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("procflow %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// runtime bundles everything a stateful command needs.
type runtime struct {
	cfg    *config.Config
	logger *logging.Logger
	engine *process.Engine
}

func (rt *runtime) close() {
	if rt.logger != nil {
		rt.logger.Close()
	}
}

func newRuntime() (*runtime, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("cli: working directory: %w", err)
	}
	if err := config.InitDir(cwd); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.ProcflowProjectDir)
	if err != nil {
		return nil, err
	}
	store := file.New(cfg.DataDir())
	engine, err := process.NewEngine(store, process.WithLogger(logger))
	if err != nil {
		logger.Close()
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, engine: engine}, nil
}
