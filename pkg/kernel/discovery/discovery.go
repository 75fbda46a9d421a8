// Package discovery resolves a mission key or path to a concrete mission
// template file by walking a fixed precedence of roots. It accepts
// explicit roots and an injected environment rather than reading
// process-wide config, keeping tests hermetic.
package discovery

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"

	"github.com/ormasoftchile/missionctl/pkg/kernel/schema"
	"gopkg.in/yaml.v3"
)

// Tier names the discovery precedence tiers, in the fixed walk order.
type Tier string

const (
	TierExplicit        Tier = "explicit"
	TierEnv             Tier = "env"
	TierProjectOverride Tier = "project_override"
	TierProjectLegacy   Tier = "project_legacy"
	TierUserGlobal      Tier = "user_global"
	TierProjectConfig   Tier = "project_config"
	TierBuiltin         Tier = "builtin"
)

const envVarName = "SPEC_KITTY_MISSION_PATHS"

// Context bundles everything discovery needs: explicit roots, the
// project directory (for the override/legacy/config tiers), the user's
// home (for user_global), builtin roots, and the environment to read
// SPEC_KITTY_MISSION_PATHS from. When Getenv is nil, os.Getenv is
// used.
type Context struct {
	ProjectDir    string
	ExplicitPaths []string
	UserHome      string
	BuiltinRoots  []string
	Getenv        func(string) string
}

func (c Context) getenv(name string) string {
	if c.Getenv != nil {
		return c.Getenv(name)
	}
	return os.Getenv(name)
}

// Mission is one discovered mission template, with provenance.
type Mission struct {
	Key            string `json:"key"`
	Path           string `json:"path"`
	Origin         string `json:"origin"`
	PrecedenceTier Tier   `json:"precedence_tier"`
	Selected       bool   `json:"selected"`
}

func splitEnvPaths(value string) []string {
	if value == "" {
		return nil
	}
	parts := filepath.SplitList(value)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

type manifestFile struct {
	Pack *struct {
		Name        string `yaml:"name"`
		Version     string `yaml:"version"`
		Description string `yaml:"description,omitempty"`
	} `yaml:"pack"`
	Missions []manifestEntry `yaml:"missions"`
}

type manifestEntry struct {
	Key  string `yaml:"key,omitempty"`
	Path string `yaml:"path"`
}

// UnmarshalYAML accepts either a bare string (legacy shorthand) or the
// {key, path} mapping form for a missions[] entry.
func (m *manifestEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		m.Path = s
		return nil
	}
	type plain manifestEntry
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*m = manifestEntry(p)
	return nil
}

func collectFromManifest(packRoot string) []string {
	manifestPath := filepath.Join(packRoot, "mission-pack.yaml")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil
	}
	var manifest manifestFile
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil
	}
	if manifest.Pack == nil {
		return nil
	}
	out := make([]string, 0, len(manifest.Missions))
	for _, entry := range manifest.Missions {
		if entry.Path == "" {
			continue
		}
		out = append(out, filepath.Join(packRoot, entry.Path))
	}
	return out
}

func scanRoot(root string) []string {
	info, err := os.Stat(root)
	if err != nil {
		return nil
	}
	if !info.IsDir() {
		if filepath.Base(root) == "mission.yaml" {
			return []string{root}
		}
		return nil
	}

	var candidates []string
	candidates = append(candidates, collectFromManifest(root)...)

	legacy, _ := filepath.Glob(filepath.Join(root, "*", "mission.yaml"))
	sort.Strings(legacy)
	candidates = append(candidates, legacy...)

	missionsDir := filepath.Join(root, "missions")
	if st, err := os.Stat(missionsDir); err == nil && st.IsDir() {
		canonical, _ := filepath.Glob(filepath.Join(missionsDir, "*", "mission.yaml"))
		sort.Strings(canonical)
		candidates = append(candidates, canonical...)
	}

	direct := filepath.Join(root, "mission.yaml")
	if _, err := os.Stat(direct); err == nil {
		candidates = append(candidates, direct)
	}

	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		abs, err := filepath.Abs(c)
		if err != nil {
			abs = c
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, c)
	}
	return out
}

type missionPacksConfig struct {
	MissionPacks []string `yaml:"mission_packs"`
}

func projectConfigPackPaths(projectDir string) []string {
	configFile := filepath.Join(projectDir, ".kittify", "config.yaml")
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil
	}
	var cfg missionPacksConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil
	}
	out := make([]string, 0, len(cfg.MissionPacks))
	for _, p := range cfg.MissionPacks {
		out = append(out, filepath.Join(projectDir, p))
	}
	return out
}

type tier struct {
	name   Tier
	origin string
	roots  []string
}

// Warning reports a mission file that was found during discovery but
// could not be loaded, so callers can surface it instead of silently
// dropping the candidate.
type Warning struct {
	Path           string `json:"path"`
	PrecedenceTier Tier   `json:"precedence_tier"`
	Message        string `json:"message"`
}

// Discover walks all precedence tiers in fixed order and returns every
// mission found, including shadowed duplicates with Selected=false, so
// callers can surface collisions with their origin metadata. The first
// occurrence of a mission key (by tier/root order) wins selection.
// Files that fail to load are dropped silently; use DiscoverWithWarnings
// to see them.
func Discover(ctx Context) []Mission {
	missions, _ := DiscoverWithWarnings(ctx)
	return missions
}

// DiscoverWithWarnings walks all precedence tiers exactly as Discover
// does, but also collects a Warning for every candidate mission.yaml
// that was found but failed to read or parse, instead of swallowing
// the failure.
func DiscoverWithWarnings(ctx Context) ([]Mission, []Warning) {
	var tiers []tier

	tiers = append(tiers, tier{TierExplicit, "explicit_paths", ctx.ExplicitPaths})
	tiers = append(tiers, tier{TierEnv, envVarName, splitEnvPaths(ctx.getenv(envVarName))})

	if ctx.ProjectDir != "" {
		tiers = append(tiers, tier{TierProjectOverride, filepath.Join(ctx.ProjectDir, ".kittify", "overrides", "missions"),
			[]string{filepath.Join(ctx.ProjectDir, ".kittify", "overrides", "missions")}})
		tiers = append(tiers, tier{TierProjectLegacy, filepath.Join(ctx.ProjectDir, ".kittify", "missions"),
			[]string{filepath.Join(ctx.ProjectDir, ".kittify", "missions")}})
	}

	userHome := ctx.UserHome
	if userHome != "" {
		tiers = append(tiers, tier{TierUserGlobal, filepath.Join(userHome, ".kittify", "missions"),
			[]string{filepath.Join(userHome, ".kittify", "missions")}})
	}

	if ctx.ProjectDir != "" {
		tiers = append(tiers, tier{TierProjectConfig, filepath.Join(ctx.ProjectDir, ".kittify", "config.yaml"),
			projectConfigPackPaths(ctx.ProjectDir)})
	}

	tiers = append(tiers, tier{TierBuiltin, "builtin_roots", ctx.BuiltinRoots})

	var discovered []Mission
	var warnings []Warning
	selectedByKey := make(map[string]bool)

	for _, t := range tiers {
		for _, root := range t.roots {
			for _, missionYAML := range scanRoot(root) {
				data, err := os.ReadFile(missionYAML)
				if err != nil {
					warnings = append(warnings, Warning{Path: missionYAML, PrecedenceTier: t.name, Message: "reading mission file: " + err.Error()})
					continue
				}
				tpl, err := schema.Load(bytes.NewReader(data), schema.DirNameFor(missionYAML))
				if err != nil {
					warnings = append(warnings, Warning{Path: missionYAML, PrecedenceTier: t.name, Message: "loading mission file: " + err.Error()})
					continue
				}
				key := tpl.Mission.Key
				selected := !selectedByKey[key]
				if selected {
					selectedByKey[key] = true
				}
				abs, err := filepath.Abs(missionYAML)
				if err != nil {
					abs = missionYAML
				}
				discovered = append(discovered, Mission{
					Key:            key,
					Path:           abs,
					Origin:         t.origin,
					PrecedenceTier: t.name,
					Selected:       selected,
				})
			}
		}
	}

	return discovered, warnings
}

// LoadTemplate resolves pathOrKey to a concrete mission template: a
// literal filesystem path (file or directory containing mission.yaml)
// wins outright; otherwise the selected discovered mission with a
// matching key is loaded. Returns a *schema.RuntimeError when nothing
// resolves.
func LoadTemplate(pathOrKey string, ctx Context) (*schema.Template, string, error) {
	candidate := pathOrKey
	if info, err := os.Stat(candidate); err == nil {
		if info.IsDir() {
			candidate = filepath.Join(candidate, "mission.yaml")
		}
		data, err := os.ReadFile(candidate)
		if err != nil {
			return nil, "", &schema.RuntimeError{Message: "reading mission template: " + err.Error()}
		}
		tpl, err := schema.Load(bytes.NewReader(data), schema.DirNameFor(candidate))
		if err != nil {
			return nil, "", &schema.RuntimeError{Message: "loading mission template: " + err.Error()}
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			abs = candidate
		}
		return tpl, abs, nil
	}

	for _, m := range Discover(ctx) {
		if m.Key == pathOrKey && m.Selected {
			data, err := os.ReadFile(m.Path)
			if err != nil {
				return nil, "", &schema.RuntimeError{Message: "reading discovered mission: " + err.Error()}
			}
			tpl, err := schema.Load(bytes.NewReader(data), schema.DirNameFor(m.Path))
			if err != nil {
				return nil, "", &schema.RuntimeError{Message: "loading discovered mission: " + err.Error()}
			}
			return tpl, m.Path, nil
		}
	}

	return nil, "", &schema.RuntimeError{Message: "mission '" + pathOrKey + "' not found in any discovery tier"}
}
