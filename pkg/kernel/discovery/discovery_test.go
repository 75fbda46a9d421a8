package discovery

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMission(t *testing.T, dir, key string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "mission.yaml")
	content := "key: " + key + "\nname: " + key + "\nversion: \"1.0.0\"\nsteps:\n  - id: S1\n    title: one\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDiscover_ExplicitPathWins(t *testing.T) {
	tmp := t.TempDir()
	writeMission(t, filepath.Join(tmp, "explicit"), "alpha")

	found := Discover(Context{ExplicitPaths: []string{filepath.Join(tmp, "explicit")}})
	if len(found) != 1 || found[0].Key != "alpha" || !found[0].Selected {
		t.Fatalf("found = %+v", found)
	}
	if found[0].PrecedenceTier != TierExplicit {
		t.Errorf("tier = %q, want explicit", found[0].PrecedenceTier)
	}
}

func TestDiscover_EnvVarTier(t *testing.T) {
	tmp := t.TempDir()
	writeMission(t, filepath.Join(tmp, "envroot"), "beta")

	found := Discover(Context{
		Getenv: func(name string) string {
			if name == "SPEC_KITTY_MISSION_PATHS" {
				return filepath.Join(tmp, "envroot")
			}
			return ""
		},
	})
	if len(found) != 1 || found[0].Key != "beta" {
		t.Fatalf("found = %+v", found)
	}
}

func TestDiscover_ShadowedMissionNotSelected(t *testing.T) {
	tmp := t.TempDir()
	writeMission(t, filepath.Join(tmp, "explicit"), "gamma")
	writeMission(t, filepath.Join(tmp, "envroot"), "gamma")

	found := Discover(Context{
		ExplicitPaths: []string{filepath.Join(tmp, "explicit")},
		Getenv: func(name string) string {
			return filepath.Join(tmp, "envroot")
		},
	})
	if len(found) != 2 {
		t.Fatalf("expected 2 discovered (one shadowed), got %d: %+v", len(found), found)
	}
	if !found[0].Selected || found[1].Selected {
		t.Fatalf("expected first occurrence selected, second shadowed: %+v", found)
	}
}

func TestDiscover_ProjectConfigPackPaths(t *testing.T) {
	tmp := t.TempDir()
	packDir := filepath.Join(tmp, "packs", "core")
	writeMission(t, packDir, "delta")

	kittifyDir := filepath.Join(tmp, ".kittify")
	if err := os.MkdirAll(kittifyDir, 0o755); err != nil {
		t.Fatal(err)
	}
	config := "mission_packs:\n  - packs/core\n"
	if err := os.WriteFile(filepath.Join(kittifyDir, "config.yaml"), []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}

	found := Discover(Context{ProjectDir: tmp})
	var deltaFound bool
	for _, m := range found {
		if m.Key == "delta" && m.PrecedenceTier == TierProjectConfig {
			deltaFound = true
		}
	}
	if !deltaFound {
		t.Fatalf("expected delta from project_config tier, got %+v", found)
	}
}

func TestLoadTemplate_ExplicitPathWinsOverDiscovery(t *testing.T) {
	tmp := t.TempDir()
	path := writeMission(t, tmp, "epsilon")

	tpl, resolved, err := LoadTemplate(path, Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.Mission.Key != "epsilon" {
		t.Errorf("key = %q, want epsilon", tpl.Mission.Key)
	}
	if resolved == "" {
		t.Errorf("expected resolved path")
	}
}

func TestLoadTemplate_NotFoundReturnsRuntimeError(t *testing.T) {
	_, _, err := LoadTemplate("does-not-exist", Context{})
	if err == nil {
		t.Fatal("expected error for unresolvable mission key")
	}
}

func TestDiscover_ManifestWithoutPackSectionContributesNoManifestEntries(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "packroot")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	// nested two levels deep: only an explicit manifest entry, not the
	// legacy "*/mission.yaml" glob, would ever surface this mission.
	if err := os.WriteFile(filepath.Join(root, "mission-pack.yaml"), []byte("missions:\n  - path: nested/zeta/mission.yaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeMission(t, filepath.Join(root, "nested", "zeta"), "zeta")

	found := Discover(Context{ExplicitPaths: []string{root}})
	for _, m := range found {
		if m.Key == "zeta" {
			t.Fatalf("mission-pack.yaml without a pack section must not contribute manifest entries, found %+v", m)
		}
	}
}

func TestDiscoverWithWarnings_UnloadableFileSurfacesWarningNotSilentDrop(t *testing.T) {
	tmp := t.TempDir()
	good := filepath.Join(tmp, "good")
	writeMission(t, good, "theta")

	bad := filepath.Join(tmp, "bad")
	if err := os.MkdirAll(bad, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bad, "mission.yaml"), []byte(": not valid yaml :::"), 0o644); err != nil {
		t.Fatal(err)
	}

	found, warnings := DiscoverWithWarnings(Context{ExplicitPaths: []string{good, bad}})

	var thetaFound bool
	for _, m := range found {
		if m.Key == "theta" {
			thetaFound = true
		}
	}
	if !thetaFound {
		t.Fatalf("expected theta discovered alongside the broken file, got %+v", found)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning for the unparseable file, got %+v", warnings)
	}
	if warnings[0].PrecedenceTier != TierExplicit {
		t.Errorf("warning tier = %q, want explicit", warnings[0].PrecedenceTier)
	}
	if warnings[0].Message == "" {
		t.Error("expected a non-empty warning message")
	}
}

func TestDiscover_DropsWarningsButStillFindsGoodMissions(t *testing.T) {
	tmp := t.TempDir()
	bad := filepath.Join(tmp, "bad")
	if err := os.MkdirAll(bad, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bad, "mission.yaml"), []byte(": not valid yaml :::"), 0o644); err != nil {
		t.Fatal(err)
	}
	good := filepath.Join(tmp, "good")
	writeMission(t, good, "iota")

	found := Discover(Context{ExplicitPaths: []string{bad, good}})
	if len(found) != 1 || found[0].Key != "iota" {
		t.Fatalf("found = %+v", found)
	}
}

func TestDiscover_ManifestWithPackSectionContributesEntries(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "packroot")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := "pack:\n  name: core\n  version: \"1.0.0\"\nmissions:\n  - path: nested/eta/mission.yaml\n"
	if err := os.WriteFile(filepath.Join(root, "mission-pack.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	writeMission(t, filepath.Join(root, "nested", "eta"), "eta")

	found := Discover(Context{ExplicitPaths: []string{root}})
	var etaFound bool
	for _, m := range found {
		if m.Key == "eta" {
			etaFound = true
		}
	}
	if !etaFound {
		t.Fatalf("expected eta discovered via manifest with pack section, got %+v", found)
	}
}
