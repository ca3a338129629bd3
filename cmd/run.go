package cmd

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"

	"github.com/encodeous/sospf/console"
	"github.com/encodeous/sospf/core"
	"github.com/encodeous/sospf/state"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the router",
	Long:  `Starts the router described by the config file and opens its console on stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		level := slog.LevelInfo
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}

		return core.Start(*cfg, level, console.New(os.Stdin, os.Stdout).Run)
	},
	GroupID: "run",
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*state.LocalCfg, error) {
	cfg, err := state.ReadConfig(state.ConfigPath)
	if err != nil {
		return nil, err
	}
	if id, _ := cmd.Flags().GetString("id"); id != "" {
		cfg.Id = state.Addr(id)
	}
	if bind, _ := cmd.Flags().GetString("bind"); bind != "" {
		if err := state.BindValidator(bind); err != nil {
			return nil, fmt.Errorf("--bind: %w", err)
		}
		cfg.Bind = netip.MustParseAddrPort(bind)
	}
	if logPath, _ := cmd.Flags().GetString("log"); logPath != "" {
		cfg.LogPath = logPath
	}
	if debug, _ := cmd.Flags().GetString("debug"); debug != "" {
		cfg.DebugBind = debug
	}
	err = state.LocalConfigValidator(cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().String("id", "", "override the simulated address")
	runCmd.Flags().StringP("bind", "b", "", "override the process endpoint")
	runCmd.Flags().StringP("log", "l", "", "also write logs to this file")
	runCmd.Flags().String("debug", "", "serve metrics over http on this address")
}
