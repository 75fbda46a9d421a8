// Package significance implements the six-dimension scoring engine that
// maps an audit checkpoint's impact onto one of three gate bands.
package significance

import (
	"fmt"
	"sort"

	"github.com/ormasoftchile/missionctl/pkg/kernel/schema"
)

// Dimension is one scored impact axis.
type Dimension struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Band is a contiguous slice of the 0..18 composite range.
type Band struct {
	Name     string `json:"name"`
	MinScore int    `json:"min_score"`
	MaxScore int    `json:"max_score"`
}

// DefaultBands are the fixed low/medium/high cutoffs when a policy does
// not override them.
var DefaultBands = []Band{
	{Name: "low", MinScore: 0, MaxScore: 6},
	{Name: "medium", MinScore: 7, MaxScore: 11},
	{Name: "high", MinScore: 12, MaxScore: 18},
}

// Score is the composite result of evaluating significance.
type Score struct {
	Dimensions         []Dimension `json:"dimensions"`
	Composite          int         `json:"composite"`
	Band               Band        `json:"band"`
	HardTriggerClasses []string    `json:"hard_trigger_classes,omitempty"`
	EffectiveBand      Band        `json:"effective_band"`
}

var hardTriggerRegistry = map[string]bool{}

func init() {
	for _, c := range schema.HardTriggerClasses {
		hardTriggerRegistry[c] = true
	}
}

// BandCutoffs is the custom-cutoff shape accepted from policy.extras:
// a map of band name to [min, max].
type BandCutoffs map[string][2]int

// ValidateBandCutoffs checks that cutoffs cover exactly {low, medium,
// high}, are individually well-formed (min <= max), start at 0, end at
// 18, and are contiguous with no gaps or overlaps.
func ValidateBandCutoffs(cutoffs BandCutoffs) error {
	expected := map[string]bool{"low": true, "medium": true, "high": true}
	if len(cutoffs) != len(expected) {
		return fmt.Errorf("expected exactly 3 bands (low, medium, high), got %d", len(cutoffs))
	}
	for name := range cutoffs {
		if !expected[name] {
			return fmt.Errorf("unknown band name %q", name)
		}
	}

	type named struct {
		name     string
		min, max int
	}
	bands := make([]named, 0, 3)
	for name, pair := range cutoffs {
		if pair[0] > pair[1] {
			return fmt.Errorf("band %q: min_score (%d) > max_score (%d)", name, pair[0], pair[1])
		}
		bands = append(bands, named{name, pair[0], pair[1]})
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i].min < bands[j].min })

	if bands[0].min != 0 {
		return fmt.Errorf("band %q must start at 0, starts at %d", bands[0].name, bands[0].min)
	}
	if bands[len(bands)-1].max != 18 {
		return fmt.Errorf("band %q must end at 18, ends at %d", bands[len(bands)-1].name, bands[len(bands)-1].max)
	}
	for i := 1; i < len(bands); i++ {
		prev, next := bands[i-1], bands[i]
		if next.min > prev.max+1 {
			return fmt.Errorf("gap between band %q (max=%d) and %q (min=%d)", prev.name, prev.max, next.name, next.min)
		}
		if next.min <= prev.max {
			return fmt.Errorf("overlap between band %q (max=%d) and %q (min=%d)", prev.name, prev.max, next.name, next.min)
		}
	}
	return nil
}

// MakeBands builds bands from custom cutoffs, or returns DefaultBands
// when cutoffs is nil.
func MakeBands(cutoffs BandCutoffs) ([]Band, error) {
	if cutoffs == nil {
		return DefaultBands, nil
	}
	if err := ValidateBandCutoffs(cutoffs); err != nil {
		return nil, err
	}
	out := make([]Band, 0, 3)
	for _, name := range []string{"low", "medium", "high"} {
		pair := cutoffs[name]
		out = append(out, Band{Name: name, MinScore: pair[0], MaxScore: pair[1]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MinScore < out[j].MinScore })
	return out, nil
}

// ResolveHardTriggers validates classIDs against the fixed v1 registry.
func ResolveHardTriggers(classIDs []string) ([]string, error) {
	for _, id := range classIDs {
		if !hardTriggerRegistry[id] {
			return nil, fmt.Errorf("unknown hard-trigger class %q", id)
		}
	}
	out := append([]string(nil), classIDs...)
	return out, nil
}

// Evaluate is the pure significance scoring function. Same inputs always
// produce an identical Score: no side effects, no randomness, no clock.
func Evaluate(dimensionScores map[string]int, hardTriggerClasses []string, bandCutoffs BandCutoffs) (*Score, error) {
	if err := validateDimensionScores(dimensionScores); err != nil {
		return nil, err
	}

	names := schema.SortedDimensionNames()
	dims := make([]Dimension, 0, len(names))
	composite := 0
	for _, name := range names {
		score := dimensionScores[name]
		dims = append(dims, Dimension{Name: name, Score: score})
		composite += score
	}

	bands, err := MakeBands(bandCutoffs)
	if err != nil {
		return nil, err
	}

	var band *Band
	for i := range bands {
		if composite >= bands[i].MinScore && composite <= bands[i].MaxScore {
			band = &bands[i]
			break
		}
	}
	if band == nil {
		return nil, fmt.Errorf("composite score %d does not fall within any band", composite)
	}

	triggers, err := ResolveHardTriggers(hardTriggerClasses)
	if err != nil {
		return nil, err
	}

	effective := *band
	if len(triggers) > 0 {
		for _, b := range bands {
			if b.Name == "high" {
				effective = b
				break
			}
		}
	}

	return &Score{
		Dimensions:         dims,
		Composite:          composite,
		Band:               *band,
		HardTriggerClasses: triggers,
		EffectiveBand:      effective,
	}, nil
}

func validateDimensionScores(scores map[string]int) error {
	if len(scores) != len(schema.DimensionNames) {
		return fmt.Errorf("dimension scores must contain exactly %d dimensions, got %d", len(schema.DimensionNames), len(scores))
	}
	known := make(map[string]bool, len(schema.DimensionNames))
	for _, d := range schema.DimensionNames {
		known[d] = true
	}
	for name, score := range scores {
		if !known[name] {
			return fmt.Errorf("unknown dimension %q", name)
		}
		if score < 0 || score > 3 {
			return fmt.Errorf("dimension %q score must be 0-3, got %d", name, score)
		}
	}
	for _, name := range schema.DimensionNames {
		if _, ok := scores[name]; !ok {
			return fmt.Errorf("missing dimension %q", name)
		}
	}
	return nil
}

// TimeoutPolicy governs the timeout window for a decision.
type TimeoutPolicy struct {
	DefaultTimeoutSeconds     int  `json:"default_timeout_seconds"`
	PerDecisionTimeoutSeconds *int `json:"per_decision_timeout_seconds,omitempty"`
}

// Effective returns the per-decision override if set, else the default.
func (p TimeoutPolicy) Effective() int {
	if p.PerDecisionTimeoutSeconds != nil {
		return *p.PerDecisionTimeoutSeconds
	}
	return p.DefaultTimeoutSeconds
}

// Validate checks both timeout values are positive when present.
func (p TimeoutPolicy) Validate() error {
	if p.DefaultTimeoutSeconds <= 0 {
		return fmt.Errorf("default_timeout_seconds must be > 0, got %d", p.DefaultTimeoutSeconds)
	}
	if p.PerDecisionTimeoutSeconds != nil && *p.PerDecisionTimeoutSeconds <= 0 {
		return fmt.Errorf("per_decision_timeout_seconds must be > 0, got %d", *p.PerDecisionTimeoutSeconds)
	}
	return nil
}

// ParseBandCutoffsFromPolicy extracts significance_band_cutoffs from
// policy.Extras. Returns nil, nil when absent (meaning "use defaults").
func ParseBandCutoffsFromPolicy(policy schema.Policy) (BandCutoffs, error) {
	raw, ok := policy.Extras["significance_band_cutoffs"]
	if !ok || raw == nil {
		return nil, nil
	}
	asMap, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("significance_band_cutoffs must be a map, got %T", raw)
	}
	cutoffs := make(BandCutoffs, len(asMap))
	for name, v := range asMap {
		pair, err := toIntPair(v)
		if err != nil {
			return nil, fmt.Errorf("band %q cutoff: %w", name, err)
		}
		cutoffs[name] = pair
	}
	if err := ValidateBandCutoffs(cutoffs); err != nil {
		return nil, err
	}
	return cutoffs, nil
}

func toIntPair(v any) ([2]int, error) {
	list, ok := v.([]any)
	if !ok || len(list) != 2 {
		return [2]int{}, fmt.Errorf("must be a [min, max] pair, got %v", v)
	}
	var out [2]int
	for i, item := range list {
		n, ok := toInt(item)
		if !ok {
			return [2]int{}, fmt.Errorf("values must be integers, got %v", item)
		}
		out[i] = n
	}
	return out, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// ParseTimeoutFromPolicy extracts significance_default_timeout_seconds
// from policy.Extras, defaulting to 600 seconds when absent.
func ParseTimeoutFromPolicy(policy schema.Policy) (int, error) {
	raw, ok := policy.Extras["significance_default_timeout_seconds"]
	if !ok || raw == nil {
		return 600, nil
	}
	n, ok := toInt(raw)
	if !ok {
		return 0, fmt.Errorf("significance_default_timeout_seconds must be an integer, got %v", raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("significance_default_timeout_seconds must be > 0, got %d", n)
	}
	return n, nil
}
