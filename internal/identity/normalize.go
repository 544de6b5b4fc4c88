// Package identity canonicalizes company names and merges observations into
// company records keyed by STIR.
package identity

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// legalForms lists legal-entity-form tokens stripped during canonicalization,
// in Latin and Cyrillic spellings. Compared against upper-cased tokens.
var legalForms = map[string]struct{}{
	"OOO":  {},
	"MCHJ": {},
	"МЧЖ":  {},
	"ООО":  {},
	"ОАО":  {},
	"АО":   {},
	"АЖ":   {},
	"AJ":   {},
	"QK":   {},
	"QMJ":  {},
	"ХК":   {},
	"XK":   {},
	"GMBH": {},
	"LLC":  {},
	"ЯТТ":  {},
	"YATT": {},
	"ЧП":   {},
	"XP":   {},
}

var quoteStripper = strings.NewReplacer(
	"«", "", "»", "",
	"“", "", "”", "",
	`"`, "", "'", "",
	"’", "", "`", "",
)

var upperCaser = cases.Upper(language.Und)

// CleanName normalizes a raw company name for identity matching: quotes are
// removed, legal-form tokens dropped, whitespace collapsed, and the result
// upper-cased with full Unicode folding (names mix Latin and Cyrillic).
func CleanName(raw string) string {
	name := quoteStripper.Replace(raw)
	name = upperCaser.String(name)

	fields := strings.Fields(name)
	kept := fields[:0]
	for _, f := range fields {
		if _, ok := legalForms[strings.Trim(f, ".,")]; ok {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}
