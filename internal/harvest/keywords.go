package harvest

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// constructionKeywords are positive domain signals matched against deal text.
// Mixed Latin-Uzbek and Cyrillic stems, matched case-insensitively.
var constructionKeywords = []string{
	"qurilish", "строительств", "ta'mir", "tamir", "ремонт",
	"школ", "дорог", "больниц", "мост", "ирригаци",
	"бино", "здани", "канализаци", "водоснабж",
	"электромонтаж", "кровл", "фасад", "бетон",
	"асфальт", "газоснабж", "теплоснабж",
}

// nonConstructionKeywords mark clearly out-of-domain deals. A negative match
// overrides a positive one: "питание в дошкольных" hits both "школ" and
// "питан", and the more specific negative keyword wins.
var nonConstructionKeywords = []string{
	"питан", "oziq-ovqat", "озиқ-овқат", "продукт",
	"мебел", "канцеляр", "дезинфекц", "дори", "лекарств",
	"охран", "страхован", "транспорт хизмат",
}

var foldCaser = cases.Lower(language.Und)

func containsAny(lowerText string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lowerText, kw) {
			return true
		}
	}
	return false
}

// IsConstructionDeal applies the two-tier construction-relevance filter.
//
// Tier 1 matches positive keywords against the category/description text;
// a simultaneous negative match rejects the deal. Tier 2 runs only when
// Tier 1 found no positive match, re-checking the positive keywords against
// the party names with the same negative override.
func IsConstructionDeal(category, customerName, providerName string) bool {
	cat := foldCaser.String(category)
	negative := containsAny(cat, nonConstructionKeywords)

	if containsAny(cat, constructionKeywords) {
		return !negative
	}

	secondary := foldCaser.String(customerName + " " + providerName)
	if containsAny(secondary, constructionKeywords) {
		return !negative
	}

	return false
}
