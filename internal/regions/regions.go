// Package regions resolves geographic attribution: canonical region names,
// spelling/script variants, and district-to-parent-region lookups.
package regions

import (
	_ "embed"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed regions.yaml
var tableYAML []byte

type regionEntry struct {
	Canonical string   `yaml:"canonical"`
	Variants  []string `yaml:"variants"`
}

type districtEntry struct {
	Name   string `yaml:"name"`
	Region string `yaml:"region"`
}

type table struct {
	Regions   []regionEntry   `yaml:"regions"`
	Districts []districtEntry `yaml:"districts"`
}

var lowerCaser = cases.Lower(language.Und)

type pattern struct {
	needle string // lowercased variant or district name
	region string // canonical region it resolves to
}

// Table holds the loaded lookup structures. The package-level instance is
// built from the embedded YAML at init.
type Table struct {
	canonical          []string
	variantToCanonical map[string]string
	// patterns is ordered longest-needle-first so "Ташкентская область"
	// wins over the bare "Ташкент" in free-text scans.
	patterns []pattern
}

var std = mustLoad()

func mustLoad() *Table {
	var t table
	if err := yaml.Unmarshal(tableYAML, &t); err != nil {
		panic("regions: parse embedded table: " + err.Error())
	}

	out := &Table{variantToCanonical: make(map[string]string)}
	add := func(needle, region string) {
		low := lowerCaser.String(needle)
		out.variantToCanonical[low] = region
		out.patterns = append(out.patterns, pattern{needle: low, region: region})
	}
	for _, r := range t.Regions {
		out.canonical = append(out.canonical, r.Canonical)
		add(r.Canonical, r.Canonical)
		for _, v := range r.Variants {
			add(v, r.Canonical)
		}
	}
	for _, d := range t.Districts {
		out.patterns = append(out.patterns, pattern{
			needle: lowerCaser.String(d.Name),
			region: d.Region,
		})
	}

	sort.SliceStable(out.patterns, func(i, j int) bool {
		return len(out.patterns[i].needle) > len(out.patterns[j].needle)
	})
	return out
}

// All returns the canonical region names in table order.
func All() []string {
	return std.canonical
}

// Canonical maps a region value in any known spelling or script to its
// canonical name. Unknown values are returned unchanged (trimmed).
func Canonical(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	if c, ok := std.variantToCanonical[lowerCaser.String(v)]; ok {
		return c
	}
	// Region values sometimes carry suffixes ("Самарқанд вилояти"); fall back
	// to a substring scan before giving up.
	if c := FromText(v); c != nil {
		return *c
	}
	return v
}

// FromText searches free text for a region name (any variant) or a district
// name, districts resolving to their parent region. Returns nil when nothing
// matches.
func FromText(text string) *string {
	if text == "" {
		return nil
	}
	lower := lowerCaser.String(text)
	for _, p := range std.patterns {
		if strings.Contains(lower, p.needle) {
			r := p.region
			return &r
		}
	}
	return nil
}
