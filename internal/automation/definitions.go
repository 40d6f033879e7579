package automation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// definitionFile is the on-disk layout of an automation definition file.
// A file holds either a single automation or a list under "automations".
type definitionFile struct {
	Automations []Automation `yaml:"automations"`
}

// ParseDefinitions decodes automations from YAML. Every returned
// automation has defaults applied and has passed ValidateAutomation.
func ParseDefinitions(data []byte) ([]Automation, error) {
	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing definitions: %w", err)
	}

	automations := file.Automations
	if len(automations) == 0 {
		var single Automation
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&single); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, fmt.Errorf("parsing definition: %w", err)
		}
		automations = []Automation{single}
	}

	for i := range automations {
		a := &automations[i]
		a.ApplyDefaults()
		if err := ValidateAutomation(a); err != nil {
			return nil, fmt.Errorf("automation %q: %w", a.Name, err)
		}
		a.Trigger.Config = normaliseYAML(a.Trigger.Config)
		a.Trigger.EventFilter = normaliseYAML(a.Trigger.EventFilter)
		for j := range a.Actions {
			a.Actions[j].Config = normaliseYAML(a.Actions[j].Config)
			a.Actions[j].DataTemplate = normaliseYAML(a.Actions[j].DataTemplate)
		}
	}
	return automations, nil
}

// LoadDefinitionFile reads and parses one definition file.
func LoadDefinitionFile(path string) ([]Automation, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	automations, err := ParseDefinitions(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return automations, nil
}

// LoadDefinitions reads every *.yaml and *.yml file in dir, in name order.
// A missing directory yields no automations.
func LoadDefinitions(dir string) ([]Automation, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading definitions dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var all []Automation
	for _, name := range names {
		automations, loadErr := LoadDefinitionFile(filepath.Join(dir, name))
		if loadErr != nil {
			return nil, loadErr
		}
		all = append(all, automations...)
	}
	return all, nil
}

// normaliseYAML converts yaml.v3 decoded values into the shapes JSON
// decoding produces, so filters and templates behave the same whichever
// way an automation was loaded: integers become float64 and nested maps
// become map[string]any.
func normaliseYAML(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normaliseYAMLValue(v)
	}
	return out
}

func normaliseYAMLValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return normaliseYAML(val)
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[fmt.Sprint(k)] = normaliseYAMLValue(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normaliseYAMLValue(elem)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	default:
		return v
	}
}
