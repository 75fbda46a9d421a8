// Package engine owns per-run directories and drives the planner with
// the I/O the planner itself never touches: reading and atomically
// rewriting state.json, freezing the source template, and appending to
// the run's event log.
package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ormasoftchile/missionctl/pkg/kernel/schema"
)

const (
	frozenTemplateFile = "mission_template_frozen.yaml"
	snapshotFile       = "state.json"
	eventsFile         = "run.events.jsonl"
)

// runDir returns the directory for a run under runsRoot.
func runDir(runsRoot, runID string) string {
	return filepath.Join(runsRoot, runID)
}

// createRunDir makes a fresh, empty run directory. Fails if runID
// already exists, since run ids must be unique.
func createRunDir(runsRoot, runID string) (string, error) {
	dir := runDir(runsRoot, runID)
	if err := os.MkdirAll(runsRoot, 0o750); err != nil {
		return "", fmt.Errorf("creating runs root: %w", err)
	}
	if err := os.Mkdir(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating run directory: %w", err)
	}
	return dir, nil
}

// freezeTemplate copies the template's source bytes verbatim into the
// run directory if sourcePath exists on disk; otherwise it dumps the
// already-parsed template as canonical YAML-equivalent JSON bytes (the
// loader can still read JSON-shaped YAML). Returns the frozen bytes and
// their hex SHA-256, which becomes template_hash.
func freezeTemplate(dir, sourcePath string, tpl *schema.Template) ([]byte, string, error) {
	var data []byte
	if sourcePath != "" {
		if b, err := os.ReadFile(sourcePath); err == nil {
			data = b
		}
	}
	if data == nil {
		canonical, err := schema.CanonicalJSONIndent(tpl)
		if err != nil {
			return nil, "", fmt.Errorf("canonicalizing template for freeze: %w", err)
		}
		data = canonical
	}

	frozenPath := filepath.Join(dir, frozenTemplateFile)
	if err := os.WriteFile(frozenPath, data, 0o640); err != nil {
		return nil, "", fmt.Errorf("writing frozen template: %w", err)
	}
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

// readSnapshot loads and parses state.json from a run directory.
func readSnapshot(dir string) (*schema.Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, snapshotFile))
	if err != nil {
		return nil, &schema.RuntimeError{Message: "reading run snapshot: " + err.Error()}
	}
	var snap schema.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &schema.RuntimeError{Message: "parsing run snapshot: " + err.Error()}
	}
	return &snap, nil
}

// writeSnapshot atomically rewrites state.json: canonical JSON, indent=2,
// written to a temp file in the same directory then renamed over the
// target, so a crash mid-write never leaves a half-written snapshot
// visible to a concurrent reader.
func writeSnapshot(dir string, snap *schema.Snapshot) error {
	data, err := schema.CanonicalJSONIndent(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	target := filepath.Join(dir, snapshotFile)
	tmp := fmt.Sprintf("%s.%d.tmp", target, os.Getpid())
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("writing snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming snapshot into place: %w", err)
	}
	return nil
}

func eventsPath(dir string) string {
	return filepath.Join(dir, eventsFile)
}
