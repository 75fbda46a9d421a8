package schema

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// rawTemplate mirrors Template but keeps the mission block as a loose map
// so Load can detect the shorthand form (no `mission:` key) before
// committing to the strict Mission struct.
type rawTemplate struct {
	Mission     map[string]any `yaml:"mission"`
	Key         string         `yaml:"key"`
	Name        string         `yaml:"name"`
	Version     any            `yaml:"version"`
	Description string         `yaml:"description"`
	Steps       []PromptStep   `yaml:"steps"`
	AuditSteps  []AuditStep    `yaml:"audit_steps"`
}

// Load parses a mission template from r. dirName is the containing
// directory's base name, used as the fallback for key/name when the
// template omits the mission block (the shorthand form).
func Load(r io.Reader, dirName string) (*Template, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}

	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	var raw rawTemplate
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse mission template: %w", err)
	}

	mission := synthesizeMission(raw, dirName)

	t := &Template{
		Mission:    mission,
		Steps:      raw.Steps,
		AuditSteps: raw.AuditSteps,
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("mission template invalid: %w", err)
	}
	return t, nil
}

// synthesizeMission builds the Mission block, honoring the shorthand form
// where key/name/version/description appear at the template's top level
// instead of nested under `mission:`. key and name default to dirName;
// version defaults to "1.0.0".
func synthesizeMission(raw rawTemplate, dirName string) Mission {
	if raw.Mission != nil {
		m := Mission{}
		if v, ok := raw.Mission["key"].(string); ok && v != "" {
			m.Key = v
		}
		if v, ok := raw.Mission["name"].(string); ok && v != "" {
			m.Name = v
		}
		if v, ok := raw.Mission["version"]; ok {
			m.Version = fmt.Sprint(v)
		}
		if v, ok := raw.Mission["description"].(string); ok {
			m.Description = v
		}
		if m.Key == "" {
			m.Key = firstNonEmpty(m.Name, dirName)
		}
		if m.Name == "" {
			m.Name = firstNonEmpty(m.Key, dirName)
		}
		if m.Version == "" {
			m.Version = "1.0.0"
		}
		return m
	}

	key := firstNonEmpty(raw.Key, raw.Name, dirName)
	name := firstNonEmpty(raw.Name, dirName)
	version := "1.0.0"
	if raw.Version != nil {
		version = fmt.Sprint(raw.Version)
	}
	return Mission{
		Key:         key,
		Name:        name,
		Version:     version,
		Description: raw.Description,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// DirNameFor returns the base name of path's containing directory, the
// conventional fallback for a shorthand template's key/name.
func DirNameFor(path string) string {
	return filepath.Base(filepath.Dir(path))
}
