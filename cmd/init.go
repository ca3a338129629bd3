package cmd

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/encodeous/sospf/state"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [simIP]",
	Short: "Create a router configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := state.AddrValidator(args[0])
		if err != nil {
			return err
		}
		ip, _ := cmd.Flags().GetString("ip")
		port, _ := cmd.Flags().GetUint16("port")
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			return fmt.Errorf("--ip: %w", err)
		}
		ports, _ := cmd.Flags().GetInt("ports")

		cfg := state.LocalCfg{
			Id:    state.Addr(args[0]),
			Bind:  netip.AddrPortFrom(addr, port),
			Ports: ports,
		}
		cfg.ApplyDefaults()
		err = state.LocalConfigValidator(&cfg)
		if err != nil {
			return err
		}

		if _, err := os.Stat(state.ConfigPath); err == nil {
			if force, _ := cmd.Flags().GetBool("force"); !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", state.ConfigPath)
			}
		}
		err = state.WriteConfig(state.ConfigPath, &cfg)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", state.ConfigPath)
		return nil
	},
	GroupID: "init",
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validate the router configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := state.ReadConfig(state.ConfigPath)
		if err != nil {
			return err
		}
		err = state.LocalConfigValidator(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("%s is valid: router %s on %s with %d ports\n", state.ConfigPath, cfg.Id, cfg.Endpoint(), cfg.Ports)
		return nil
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(verifyCmd)

	initCmd.Flags().String("ip", "127.0.0.1", "process ip to listen on")
	initCmd.Flags().Uint16P("port", "p", state.DefaultPort, "process port to listen on")
	initCmd.Flags().Int("ports", state.MaxPorts, "number of port slots")
	initCmd.Flags().BoolP("force", "f", false, "overwrite an existing config")
}
