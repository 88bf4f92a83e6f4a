package fedcoord

import (
	"errors"
	"fmt"
	"os"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/registry"
	"github.com/pelletier/go-toml"
)

var (
	ErrNoClients   = errors.New("config lists no clients")
	ErrNoLayers    = errors.New("config lists no model layers")
	ErrInvalidSize = errors.New("layer size must be positive")
	ErrDuplicate   = errors.New("duplicate layer name")
)

// Config is the run definition that does not fit environment variables: the
// client population and the layout of the initial model.
type Config struct {
	UnreachableThreshold uint64            `toml:"unreachable_threshold"`
	Clients              []registry.Member `toml:"clients"`
	Model                ModelConfig       `toml:"model"`
}

type ModelConfig struct {
	Layers []LayerConfig `toml:"layers"`
}

type LayerConfig struct {
	Name string `toml:"name"`
	Size int    `toml:"size"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	tree, err := toml.LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var cfg Config
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c Config) Validate() error {
	if len(c.Clients) == 0 {
		return ErrNoClients
	}
	if len(c.Model.Layers) == 0 {
		return ErrNoLayers
	}
	seen := make(map[string]struct{}, len(c.Model.Layers))
	for _, l := range c.Model.Layers {
		if l.Name == "" {
			return fmt.Errorf("%w: layer name is empty", ErrNoLayers)
		}
		if l.Size <= 0 {
			return fmt.Errorf("%w: %s has size %d", ErrInvalidSize, l.Name, l.Size)
		}
		if _, ok := seen[l.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicate, l.Name)
		}
		seen[l.Name] = struct{}{}
	}

	return nil
}

// Shape returns the layer contract of the initial model.
func (c Config) Shape() fl.Shape {
	shape := make(fl.Shape, len(c.Model.Layers))
	for _, l := range c.Model.Layers {
		shape[l.Name] = l.Size
	}

	return shape
}
