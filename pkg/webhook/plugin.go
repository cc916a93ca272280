package webhook

import (
	"fmt"

	"github.com/brokerfed/cluster/pkg/broker"
	"github.com/brokerfed/cluster/pkg/config"
)

const pluginConfigName = "webhook"

// LoadPluginConfig loads this plugin's section through the host's
// runtime abstraction, independent of the cluster plugin's own section.
func LoadPluginConfig(rt broker.Runtime) (*config.PluginConfig, error) {
	cfg := config.DefaultPluginConfig()
	if err := rt.LoadPluginConfig(pluginConfigName, &cfg); err != nil {
		return nil, fmt.Errorf("webhook: load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("webhook: invalid config: %w", err)
	}
	return &cfg, nil
}
