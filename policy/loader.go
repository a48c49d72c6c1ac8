package policy

import (
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// File is the on-disk form of the global policy configuration
type File struct {
	StickyDefaults            *bool                `yaml:"sticky-defaults"`
	EnableInterestMultipliers *bool                `yaml:"enable-interest-multipliers"`
	Policies                  map[string]FileEntry `yaml:"policies"`
}

// FileEntry configures one policy. Default may be a scalar or a sequence.
type FileEntry struct {
	Default       yaml.Node `yaml:"default"`
	AllowOverride *bool     `yaml:"allow-override"`
}

// ReadFile reads a policy file. A missing file yields an empty configuration.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.WithField("path", path).Warn("Policy file not found, using built-in defaults")
		return &File{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile decodes policy configuration from YAML
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	return &f, nil
}

// rawDefault flattens a YAML default into policy input syntax
func rawDefault(n yaml.Node) (string, bool) {
	switch n.Kind {
	case yaml.ScalarNode:
		return n.Value, true
	case yaml.SequenceNode:
		parts := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			parts = append(parts, c.Value)
		}
		return strings.Join(parts, ","), true
	default:
		return "", false
	}
}

// Apply configures the store from a policy file. Unknown ids and unreadable
// defaults are errors; the store may be partially updated when one occurs.
func (s *Store) Apply(f *File) error {
	if f.StickyDefaults != nil {
		s.SetStickyDefaults(*f.StickyDefaults)
	}
	if f.EnableInterestMultipliers != nil {
		s.SetMultipliersEnabled(*f.EnableInterestMultipliers)
	}

	for rawID, cfg := range f.Policies {
		id, err := s.ParseID(rawID)
		if err != nil {
			return err
		}
		if raw, ok := rawDefault(cfg.Default); ok {
			if err := s.SetDefault(id, raw); err != nil {
				return fmt.Errorf("invalid default for %s: %w", id, err)
			}
		}
		if cfg.AllowOverride != nil {
			if err := s.SetOverrideAllowed(id, *cfg.AllowOverride); err != nil {
				return err
			}
		}
	}

	return nil
}

// Load builds a store from a policy file path
func Load(path string) (*Store, error) {
	f, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := NewStore()
	if err := s.Apply(f); err != nil {
		return nil, err
	}
	return s, nil
}
