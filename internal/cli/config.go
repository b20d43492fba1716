package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const envConfig = "X402_CONFIG"

// fileConfig is the optional YAML configuration file. Flags and environment
// variables take precedence over it.
//
//	network: eip155:8453
//	registryUrl: https://registry.example.com/resources
//	maxAmount: "0.50"
//	rpcUrls:
//	  eip155:8453: https://base.example.com
type fileConfig struct {
	Network     string            `yaml:"network"`
	RegistryURL string            `yaml:"registryUrl"`
	MaxAmount   string            `yaml:"maxAmount"`
	RPCURLs     map[string]string `yaml:"rpcUrls"`
}

func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// rpcURL returns the RPC endpoint override for network, if any.
func (a *app) rpcURL(network string) string {
	if url := os.Getenv(envRPCURL); url != "" && network == a.network {
		return url
	}
	return a.config.RPCURLs[network]
}

func (a *app) registryURL(flag string) string {
	if flag != "" {
		return flag
	}
	if url := os.Getenv(envRegistryURL); url != "" {
		return url
	}
	return a.config.RegistryURL
}
