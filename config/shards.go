package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProxyShard routes the listed exchanges through one proxy.
type ProxyShard struct {
	Proxy     string   `yaml:"proxy"`
	Exchanges []string `yaml:"exchanges"`
}

// ProxyShards is the full shard file.
type ProxyShards struct {
	Shards []ProxyShard `yaml:"shards"`
}

// LoadProxyShards loads shard configuration from the given path.
func LoadProxyShards(path string) (*ProxyShards, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shards file: %w", err)
	}
	var cfg ProxyShards
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse shards file: %w", err)
	}
	seen := map[string]string{}
	for _, s := range cfg.Shards {
		if strings.TrimSpace(s.Proxy) == "" {
			return nil, fmt.Errorf("shards: proxy is required")
		}
		for _, ex := range s.Exchanges {
			ex = strings.ToLower(ex)
			if prev, ok := seen[ex]; ok {
				return nil, fmt.Errorf("shards: exchange %s assigned to both %s and %s", ex, prev, s.Proxy)
			}
			seen[ex] = s.Proxy
		}
	}
	return &cfg, nil
}

// ProxyFor returns the proxy assigned to exchange, or "".
func (s *ProxyShards) ProxyFor(exchange string) string {
	if s == nil {
		return ""
	}
	for _, shard := range s.Shards {
		for _, ex := range shard.Exchanges {
			if strings.EqualFold(ex, exchange) {
				return shard.Proxy
			}
		}
	}
	return ""
}
