package nlp

import "regexp"

// urgencyRule tags a text span with a canonical label and the number of
// priority levels it escalates (0 = tag only, 3 = auto-critical).
type urgencyRule struct {
	re    *regexp.Regexp
	label string
	boost int
}

var urgencyRules = []urgencyRule{
	// Life-threatening
	{regexp.MustCompile(`\b(unconscious|unresponsive|not breathing|cardiac arrest)\b`), "unconscious", 3},
	{regexp.MustCompile(`\b(trapped|pinned|buried|stuck under)\b`), "trapped", 3},
	{regexp.MustCompile(`\b(heavy bleeding|hemorrhag|severe bleed|blood loss)\b`), "severe_bleeding", 3},
	{regexp.MustCompile(`\b(drowning|submerged)\b`), "drowning", 3},
	{regexp.MustCompile(`\b(crush(ed|ing)?)\b`), "crush_injury", 3},
	{regexp.MustCompile(`\b(not moving|paralyz)\b`), "immobile", 2},
	// Vulnerable populations
	{regexp.MustCompile(`\b(infant|newborn|baby|toddler)\b`), "infant", 2},
	{regexp.MustCompile(`\b(elderly|senior|aged|old (man|woman|person))\b`), "elderly", 2},
	{regexp.MustCompile(`\b(pregnant|expecting)\b`), "pregnant", 2},
	{regexp.MustCompile(`\b(disabled|wheelchair|disability)\b`), "disabled", 2},
	// Deprivation
	{regexp.MustCompile(`\bno (water|food|medicine) for \d+ day`), "prolonged_deprivation", 2},
	{regexp.MustCompile(`\b(dehydrat|starv)\w*\b`), "dehydration_starvation", 2},
	{regexp.MustCompile(`\b(no (clean )?water)\b`), "no_water", 1},
	{regexp.MustCompile(`\b(no food|hungry|starving)\b`), "no_food", 1},
	{regexp.MustCompile(`\b(no shelter|homeless|exposed)\b`), "no_shelter", 1},
	{regexp.MustCompile(`\b(no medic(ine|ation)|out of med)\b`), "no_medicine", 1},
	// Medical urgency
	{regexp.MustCompile(`\b(bleeding|wound|injur|fracture|broken bone)\b`), "injury", 1},
	{regexp.MustCompile(`\b(infection|fever|sepsis)\b`), "infection", 1},
	{regexp.MustCompile(`\b(diabete?s|insulin)\b`), "chronic_medical", 1},
	{regexp.MustCompile(`\b(asthma|inhaler|breathing difficult)\b`), "respiratory", 1},
	{regexp.MustCompile(`\b(chest pain|heart)\b`), "cardiac_symptom", 2},
	{regexp.MustCompile(`\b(seizure|convuls)\b`), "seizure", 2},
	// Scale indicators
	{regexp.MustCompile(`\b(\d{2,}) (people|persons|family members|families)\b`), "large_group", 1},
	{regexp.MustCompile(`\b(children|kids)\b`), "children_present", 1},
}

// priorityLevels is the escalation ladder, lowest first.
var priorityLevels = []string{"low", "medium", "high", "critical"}

// resourceKeywords is the bag-of-words vocabulary per resource type.
// Keyword order within a type does not matter; type iteration order is
// fixed so scoring is deterministic.
var resourceTypeOrder = []string{
	"Food", "Water", "Medical", "Shelter", "Clothing",
	"Evacuation", "Volunteers", "Financial Aid",
}

var resourceKeywords = map[string][]string{
	"Food": {
		"food", "meal", "rice", "bread", "ration", "nutrition", "hungry",
		"starving", "eat", "cook", "canned", "supplies", "grocery",
	},
	"Water": {
		"water", "drink", "thirst", "dehydrat", "purif", "clean water",
		"bottled water", "gallons",
	},
	"Medical": {
		"medic", "doctor", "nurse", "ambulance", "hospital", "first aid",
		"bandage", "insulin", "inhaler", "medicine", "drug", "pharma",
		"wound", "bleeding", "injury", "fracture", "pain", "fever",
		"infection", "antibiot",
	},
	"Shelter": {
		"shelter", "tent", "tarp", "blanket", "roof", "housing", "sleep",
		"camp", "refuge", "cover", "mattress",
	},
	"Clothing": {
		"cloth", "shirt", "pants", "jacket", "coat", "shoe", "warm",
		"winter gear", "diaper",
	},
	"Evacuation": {
		"evacuat", "transport", "rescue", "helicopter", "boat", "vehicle",
		"trapped", "stranded", "airlift",
	},
	"Volunteers": {
		"volunteer", "helper", "manpower", "people to help", "assistance",
		"hands",
	},
	"Financial Aid": {
		"money", "cash", "fund", "financial", "donation", "payment",
	},
}

// phraseRule maps an unambiguous phrase to a resource type with a
// confidence above what single keywords earn.
type phraseRule struct {
	re    *regexp.Regexp
	rtype string
	conf  float64
}

var phraseRules = []phraseRule{
	{regexp.MustCompile(`need(s)?\s+(clean\s+)?water`), "Water", 0.9},
	{regexp.MustCompile(`need(s)?\s+food`), "Food", 0.9},
	{regexp.MustCompile(`(medical|first.?aid)\s+(help|attention|care|supplies)`), "Medical", 0.9},
	{regexp.MustCompile(`need(s)?\s+(a\s+)?shelter`), "Shelter", 0.9},
	{regexp.MustCompile(`need(s)?\s+(to\s+be\s+)?evacuat`), "Evacuation", 0.9},
	{regexp.MustCompile(`need(s)?\s+cloth`), "Clothing", 0.85},
	{regexp.MustCompile(`(house|home|building)\s+(collapse|destroy|damage)`), "Shelter", 0.85},
	{regexp.MustCompile(`run(ning)?\s+out\s+of\s+(food|water|medicine)`), "Food", 0.85},
	{regexp.MustCompile(`(no|without)\s+(access\s+to\s+)?(food|water|medicine)`), "Food", 0.85},
	{regexp.MustCompile(`(financial|monetary)\s+(help|aid|assistance|support)`), "Financial Aid", 0.9},
}

var quantityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d+)\s*(people|persons|family members?|families|adults|children|kids)`),
	regexp.MustCompile(`(\d+)\s*(bottles?|gallons?|liters?|litres?|packs?|boxes?|kits?|units?|bags?|cans?)`),
	regexp.MustCompile(`need\s+(\d+)`),
	regexp.MustCompile(`(\d+)\s*(of us|of them|mouths?)`),
	regexp.MustCompile(`family of (\d+)`),
}

// keywordRegexps holds one compiled pattern per keyword, built once.
var keywordRegexps = buildKeywordRegexps()

func buildKeywordRegexps() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp)
	for _, keywords := range resourceKeywords {
		for _, kw := range keywords {
			if _, ok := out[kw]; !ok {
				out[kw] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\w*\b`)
			}
		}
	}
	return out
}
