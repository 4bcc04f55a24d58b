package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load scans dir for provider definition files (*.yaml, *.yml) and returns
// the parsed definitions sorted by upstream port. The {SLUG}_ENABLED
// environment variable gates each provider and defaults to false, so a
// freshly deployed definition stays dark until explicitly switched on.
func Load(dir string) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers dir: %w", err)
	}

	var defs []*Definition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		var d Definition
		if err := yaml.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}
		if err := validateDefinition(&d); err != nil {
			return nil, fmt.Errorf("invalid definition %s: %w", entry.Name(), err)
		}

		d.Enabled = os.Getenv(enabledVar(d.Slug)) == "true"
		defs = append(defs, &d)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].Port < defs[j].Port })
	return defs, nil
}

func enabledVar(slug string) string {
	return strings.ToUpper(strings.ReplaceAll(slug, "-", "_")) + "_ENABLED"
}

func validateDefinition(d *Definition) error {
	if d.Slug == "" {
		return fmt.Errorf("slug is required")
	}
	if d.Port <= 0 {
		return fmt.Errorf("port is required")
	}
	if d.Host == "" {
		d.Host = "localhost"
	}
	if d.Pricing.Type != "fixed" {
		return fmt.Errorf("unsupported pricing type %q", d.Pricing.Type)
	}
	if d.Pricing.Price < 0 {
		return fmt.Errorf("price must not be negative")
	}
	for key, ep := range d.API {
		if !strings.HasPrefix(key, "@") || !strings.Contains(key, "/") {
			return fmt.Errorf("malformed api path %q", key)
		}
		switch ep.Input.Type {
		case InputJSON, InputForm:
		default:
			return fmt.Errorf("unsupported input type %q for %s", ep.Input.Type, key)
		}
	}
	return nil
}
