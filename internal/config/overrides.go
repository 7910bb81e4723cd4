package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// readFileOverrides decodes the overrides section of a config file directly.
// Property keys such as "service.host" are dotted and case-sensitive, which
// viper's key normalization would split and lowercase. handled is false for
// formats this reader does not understand.
func readFileOverrides(path string) (overrides map[string]string, handled bool, err error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" && ext != ".toml" {
		return nil, false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, true, err
	}

	if ext == ".toml" {
		var doc struct {
			Overrides  map[string]interface{} `toml:"overrides"`
			Properties map[string]interface{} `toml:"properties"`
		}
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, true, fmt.Errorf("%s: %w", path, err)
		}
		overrides = map[string]string{}
		for _, section := range []map[string]interface{}{doc.Properties, doc.Overrides} {
			for k, v := range section {
				str, err := asString(v)
				if err != nil {
					return nil, true, fmt.Errorf("%s: overrides: %s: %w (quote dotted keys)", path, k, err)
				}
				overrides[k] = str
			}
		}
		return overrides, true, nil
	}

	// JSON is decoded as YAML; scalars keep their literal text.
	var doc struct {
		Overrides  map[string]string `yaml:"overrides"`
		Properties map[string]string `yaml:"properties"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, true, fmt.Errorf("%s: overrides: %w", path, err)
	}
	overrides = make(map[string]string, len(doc.Overrides)+len(doc.Properties))
	for k, v := range doc.Properties {
		overrides[k] = v
	}
	for k, v := range doc.Overrides {
		overrides[k] = v
	}
	return overrides, true, nil
}
