package discovery

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/logstash-acceptor/types"
)

// SuiteConfigName is the optional per-suite configuration file looked up in
// the target directory.
const SuiteConfigName = "acceptor.yaml"

// SuiteConfig carries the per-suite overrides for the engine's network
// surface and the event queue.
type SuiteConfig struct {
	InputPort     int    `yaml:"input_port"`
	OutputPort    int    `yaml:"output_port"`
	APIPort       int    `yaml:"api_port"`
	ImageTag      string `yaml:"image_tag"`
	QueueCapacity int    `yaml:"queue_capacity"`
}

// DefaultSuiteConfig returns the stock Logstash port layout and queue size.
func DefaultSuiteConfig() SuiteConfig {
	return SuiteConfig{
		InputPort:     5066,
		OutputPort:    5067,
		APIPort:       9600,
		QueueCapacity: 32,
	}
}

// LoadSuiteConfig reads path and overlays it onto the defaults. A missing
// file is not an error; the defaults are returned unchanged.
func LoadSuiteConfig(path string) (SuiteConfig, error) {
	cfg := DefaultSuiteConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, types.NewIOError(path, errors.Wrap(err, "reading suite config"))
	}

	var overlay SuiteConfig
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return cfg, types.NewConfigurationError("parsing suite config", err)
	}

	if overlay.InputPort != 0 {
		cfg.InputPort = overlay.InputPort
	}
	if overlay.OutputPort != 0 {
		cfg.OutputPort = overlay.OutputPort
	}
	if overlay.APIPort != 0 {
		cfg.APIPort = overlay.APIPort
	}
	if overlay.ImageTag != "" {
		cfg.ImageTag = overlay.ImageTag
	}
	if overlay.QueueCapacity != 0 {
		cfg.QueueCapacity = overlay.QueueCapacity
	}
	return cfg, nil
}
