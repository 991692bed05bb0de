package pipeline

import (
	"fmt"

	"github.com/spf13/viper"
)

// ResourceConfig describes one resource whose traffic the fetcher pulls
// from the central log cluster. Endpoints are request-path patterns; a
// pattern under /pub/databases/ selects FTP download logs instead of web
// traffic.
type ResourceConfig struct {
	Name            string   `mapstructure:"name"`
	DestinationHost string   `mapstructure:"destination-host"`
	Endpoints       []string `mapstructure:"endpoints"`
}

// Config drives the fetch side of the pipeline.
type Config struct {
	Resources []ResourceConfig `mapstructure:"resources"`
}

// LoadConfig parses the pipeline configuration file via Viper and
// validates it. The format follows the file extension (YAML or TOML).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if len(cfg.Resources) == 0 {
		return nil, fmt.Errorf("config file %s lists no resources", path)
	}
	for _, r := range cfg.Resources {
		if r.Name == "" {
			return nil, fmt.Errorf("config file %s: every resource needs a name", path)
		}
		if len(r.Endpoints) == 0 {
			return nil, fmt.Errorf("config file %s: resource %s lists no endpoints", path, r.Name)
		}
	}
	return &cfg, nil
}
