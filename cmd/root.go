package cmd

import (
	"os"

	"github.com/encodeous/sospf/state"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sospf",
	Short: "Simulated OSPF router",
	Long: `sospf runs one router of a simulated link-state network.
Routers attach to each other over TCP, exchange hellos and link state advertisements,
and answer shortest path queries from an interactive console.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Configure a Router",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "run",
		Title: "Router Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&state.ConfigPath, "config", "c", state.ConfigPath, "router config")
}
