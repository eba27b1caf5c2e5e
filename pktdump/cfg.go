package pktdump

import (
	"fmt"
	"os"
	"runtime"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	"github.com/yanet-platform/pktstack/logging"
)

// Config is the pktdump configuration.
type Config struct {
	// Logging configuration.
	Logging logging.Config `yaml:"logging"`
	// Snaplen caps the number of bytes dissected per packet and is the
	// snapshot length of crafted pcap files.
	Snaplen datasize.ByteSize `yaml:"snaplen"`
	// Workers is the number of concurrent dissectors.
	Workers int `yaml:"workers"`
	// Layers are glob patterns selecting which layers are printed, e.g.
	// "IP" or "*BSDLoopback". All layers are printed when empty.
	Layers []string `yaml:"layers"`
	// Dump prints every field of every selected layer.
	Dump bool `yaml:"dump"`
	// CrossCheck compares each dissection against gopacket.
	CrossCheck bool `yaml:"cross_check"`
	// Bindings are added after the built-in ones.
	Bindings []BindingConfig `yaml:"bindings"`
	// LinkTypes override entries of the built-in link-layer table.
	LinkTypes map[uint32]string `yaml:"link_types"`
}

// BindingConfig is a binding declared in the configuration file.
//
// Either Value or Range must be set. Value is normalized under the kind of
// the owner's field, so enum names and hex strings are accepted.
type BindingConfig struct {
	Owner  string   `yaml:"owner"`
	Field  string   `yaml:"field"`
	Value  any      `yaml:"value"`
	Range  []uint64 `yaml:"range"`
	Target string   `yaml:"target"`
}

// LoadConfig loads configuration from a YAML file at the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging:   *logging.DefaultConfig(),
		Snaplen:   256 * datasize.KB,
		Workers:   runtime.GOMAXPROCS(0),
		LinkTypes: map[uint32]string{},
	}
}

// Validate checks the configuration for consistency.
func (m *Config) Validate() error {
	if m.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", m.Workers)
	}
	if m.Snaplen == 0 || m.Snaplen.Bytes() > uint64(^uint32(0)) {
		return fmt.Errorf("snaplen %s is out of range", m.Snaplen.HR())
	}
	for idx, b := range m.Bindings {
		if b.Owner == "" || b.Field == "" || b.Target == "" {
			return fmt.Errorf("binding #%d: owner, field and target are required", idx)
		}
		if (b.Value == nil) == (b.Range == nil) {
			return fmt.Errorf("binding #%d: exactly one of value and range is required", idx)
		}
		if b.Range != nil && (len(b.Range) != 2 || b.Range[0] > b.Range[1]) {
			return fmt.Errorf("binding #%d: range must be [lo, hi]", idx)
		}
	}
	return nil
}
