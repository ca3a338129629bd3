package state

import (
	"fmt"
	"net/netip"
	"os"
	"path"
	"path/filepath"
)

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

// AddrValidator checks that s can be used as a simulated address
func AddrValidator(s string) error {
	if Addr(s) == RejectNeighbor {
		return fmt.Errorf("%s is reserved", s)
	}
	_, err := netip.ParseAddr(s)
	if err != nil {
		return fmt.Errorf("%s is not a valid simulated address: %w", s, err)
	}
	return nil
}

func BindValidator(s string) error {
	_, err := netip.ParseAddrPort(s)
	return err
}

func LocalConfigValidator(cfg *LocalCfg) error {
	err := AddrValidator(string(cfg.Id))
	if err != nil {
		return err
	}
	if !cfg.Bind.IsValid() {
		return fmt.Errorf("bind %q is invalid", cfg.Bind)
	}
	if cfg.Ports < 1 || cfg.Ports > 64 {
		return fmt.Errorf("ports = %d must be between 1 and 64", cfg.Ports)
	}
	if cfg.AttachTimeout <= 0 {
		return fmt.Errorf("attach_timeout must be positive")
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if cfg.LogPath != "" {
		if err := PathValidator(cfg.LogPath); err != nil {
			return fmt.Errorf("log_path: %w", err)
		}
	}
	if cfg.DebugBind != "" {
		if err := BindValidator(cfg.DebugBind); err != nil {
			return fmt.Errorf("debug_bind: %w", err)
		}
	}
	return nil
}
