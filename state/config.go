package state

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
)

var (
	ConfigPath = "router.yaml"
)

// LocalCfg is the configuration of a single router process
type LocalCfg struct {
	Id             Addr           `yaml:"id"`                        // simulated address of this router
	Bind           netip.AddrPort `yaml:"bind"`                      // process endpoint the router listens on
	Ports          int            `yaml:"ports,omitempty"`           // number of port slots
	AttachTimeout  time.Duration  `yaml:"attach_timeout,omitempty"`  // how long connect waits for an answer
	RequestTimeout time.Duration  `yaml:"request_timeout,omitempty"` // how long an inbound attach request waits for the operator
	LogPath        string         `yaml:"log_path,omitempty"`        // if not empty, logs are also written to this file
	DebugBind      string         `yaml:"debug_bind,omitempty"`      // if not empty, metrics are served over http here
}

func (c *LocalCfg) ApplyDefaults() {
	if c.Ports == 0 {
		c.Ports = MaxPorts
	}
	if c.AttachTimeout == 0 {
		c.AttachTimeout = AttachTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = RequestTimeout
	}
}

// Endpoint is the process address advertised to other routers. An unspecified bind address advertises loopback.
func (c *LocalCfg) Endpoint() netip.AddrPort {
	if c.Bind.Addr().IsUnspecified() {
		if c.Bind.Addr().Is6() {
			return netip.AddrPortFrom(netip.IPv6Loopback(), c.Bind.Port())
		}
		return netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), c.Bind.Port())
	}
	return c.Bind
}

func ReadConfig(path string) (*LocalCfg, error) {
	var cfg LocalCfg
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(file, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

func WriteConfig(path string, cfg *LocalCfg) error {
	bytes, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		err = os.MkdirAll(dir, 0700)
		if err != nil {
			return err
		}
	}
	return os.WriteFile(path, bytes, 0600)
}
