package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/roundtable/core"
)

// File is the on-disk profile document:
//
//	profiles:
//	  - id: ava
//	    name: Ava
//	    role: Pricing strategist
//	    skills: [pricing, saas]
type File struct {
	Profiles []core.Profile `json:"profiles" yaml:"profiles" toml:"profiles"`
}

// LoadFile reads a profile document. The format follows the extension:
// .yaml/.yml, .toml or .json.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	f, err := Decode(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("decode profiles %s: %w", path, err)
	}
	return NewRegistry(f.Profiles...)
}

// Decode parses a profile document of the given format (".yaml", "toml", ...).
func Decode(format string, data []byte) (*File, error) {
	var f File
	switch strings.TrimPrefix(strings.ToLower(format), ".") {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	case "toml":
		if err := toml.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	case "json":
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported profile format %q", format)
	}
	return &f, nil
}
