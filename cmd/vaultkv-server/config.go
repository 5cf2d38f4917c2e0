package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/yndnr/vaultkv-go/internal/infra/confloader"
	"github.com/yndnr/vaultkv-go/internal/server/config"
)

// flagOverrides holds the command-line settings that win over every other
// configuration source.
type flagOverrides struct {
	Port     string
	CertFile string
	KeyFile  string
}

// parsePort accepts a decimal TCP port in 1..65535.
func parsePort(s string) (string, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return "", fmt.Errorf("invalid port %q", s)
	}
	return strconv.Itoa(n), nil
}

// toMap returns the dotted config keys set by flags. The port replaces
// only the port of addr, keeping any host from the file or environment.
func (o flagOverrides) toMap(addr string) map[string]any {
	m := make(map[string]any)
	if o.Port != "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = ""
		}
		m["server.addr"] = net.JoinHostPort(host, o.Port)
	}
	if o.CertFile != "" {
		m["server.tls.cert_file"] = o.CertFile
	}
	if o.KeyFile != "" {
		m["server.tls.key_file"] = o.KeyFile
	}
	return m
}

// loadConfig merges defaults, the config file, the environment and flags,
// then validates the result.
func loadConfig(configFile string, flags flagOverrides) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if overrides := flags.toMap(cfg.Server.Addr); len(overrides) > 0 {
		if err := loader.LoadMap(overrides); err != nil {
			return nil, err
		}
		if err := loader.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("unmarshal flags: %w", err)
		}
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
