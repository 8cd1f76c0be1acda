// Package nlp is the rule-based triage engine for victim requests.
// It classifies free text into resource types, extracts urgency
// signals, estimates quantities and escalates priorities. No model
// files and no network calls; everything is keyword and regex driven.
package nlp

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// UrgencySignal is a single detected urgency marker in the text.
type UrgencySignal struct {
	Keyword       string `json:"keyword"`
	Label         string `json:"label"`
	SeverityBoost int    `json:"severity_boost"`
	Offset        int    `json:"offset"`
}

// ClassificationResult is the full triage output for one request.
type ClassificationResult struct {
	ResourceTypes        []string           `json:"resource_types"`
	ResourceTypeScores   map[string]float64 `json:"resource_type_scores"`
	RecommendedPriority  string             `json:"recommended_priority"`
	PriorityConfidence   float64            `json:"priority_confidence"`
	OriginalPriority     string             `json:"original_priority"`
	PriorityWasEscalated bool               `json:"priority_was_escalated"`
	EstimatedQuantity    int                `json:"estimated_quantity"`
	UrgencySignals       []UrgencySignal    `json:"urgency_signals"`
	Confidence           float64            `json:"confidence"`
}

// ExtractUrgencySignals scans text for urgency keywords. Each label is
// reported at most once, at its first occurrence; results are ordered
// highest boost first.
func ExtractUrgencySignals(text string) []UrgencySignal {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	var signals []UrgencySignal

	for _, rule := range urgencyRules {
		if seen[rule.label] {
			continue
		}
		if loc := rule.re.FindStringIndex(lower); loc != nil {
			signals = append(signals, UrgencySignal{
				Keyword:       lower[loc[0]:loc[1]],
				Label:         rule.label,
				SeverityBoost: rule.boost,
				Offset:        loc[0],
			})
			seen[rule.label] = true
		}
	}

	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].SeverityBoost > signals[j].SeverityBoost
	})
	return signals
}

// ClassifyResourceType maps free text onto resource types. Phrase rules
// win over keyword scores for the same type; keyword scores are the
// match count weighted by keyword length and normalized by 3, capped at
// 1.0. Types scoring below 0.3 are dropped unless nothing clears the
// bar, in which case the top scorer survives alone. Empty or unmatched
// text falls back to Custom at 0.3.
func ClassifyResourceType(text string) ([]string, map[string]float64) {
	if text == "" {
		return []string{"Custom"}, map[string]float64{"Custom": 0.3}
	}

	lower := strings.ToLower(text)
	scores := make(map[string]float64)

	for _, rule := range phraseRules {
		if rule.re.MatchString(lower) {
			if rule.conf > scores[rule.rtype] {
				scores[rule.rtype] = rule.conf
			}
		}
	}

	for _, rtype := range resourceTypeOrder {
		kwScore := 0.0
		for _, kw := range resourceKeywords[rtype] {
			matches := len(keywordRegexps[kw].FindAllStringIndex(lower, -1))
			if matches > 0 {
				weight := 0.6
				if len(kw) > 4 {
					weight = 1.0
				}
				kwScore += float64(matches) * weight
			}
		}
		if kwScore > 0 {
			normalized := math.Min(kwScore/3.0, 1.0)
			if normalized > scores[rtype] {
				scores[rtype] = normalized
			}
		}
	}

	if len(scores) == 0 {
		return []string{"Custom"}, map[string]float64{"Custom": 0.3}
	}

	type scored struct {
		rtype string
		score float64
	}
	ranked := make([]scored, 0, len(scores))
	for t, sc := range scores {
		ranked = append(ranked, scored{t, sc})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].rtype < ranked[j].rtype
	})

	var primary []string
	for _, r := range ranked {
		if r.score >= 0.3 {
			primary = append(primary, r.rtype)
		}
	}
	if len(primary) == 0 {
		primary = []string{ranked[0].rtype}
	}
	return primary, scores
}

// EstimateQuantity pulls the largest quantity hint from the text,
// capped at 9999. Defaults to 1.
func EstimateQuantity(text string) int {
	if text == "" {
		return 1
	}
	lower := strings.ToLower(text)

	maxQty := 1
	for _, re := range quantityPatterns {
		for _, m := range re.FindAllStringSubmatch(lower, -1) {
			if qty, err := strconv.Atoi(m[1]); err == nil && qty > maxQty {
				maxQty = qty
			}
		}
	}
	if maxQty > 9999 {
		maxQty = 9999
	}
	return maxQty
}

// EscalatePriority raises base by the largest signal boost, clamped at
// critical. Unknown base priorities are treated as medium.
func EscalatePriority(base string, signals []UrgencySignal) (string, bool) {
	if len(signals) == 0 {
		return base, false
	}

	baseIdx := 1
	for i, p := range priorityLevels {
		if p == base {
			baseIdx = i
			break
		}
	}
	maxBoost := 0
	for _, s := range signals {
		if s.SeverityBoost > maxBoost {
			maxBoost = s.SeverityBoost
		}
	}
	newIdx := baseIdx + maxBoost
	if newIdx > len(priorityLevels)-1 {
		newIdx = len(priorityLevels) - 1
	}
	return priorityLevels[newIdx], newIdx > baseIdx
}

// ClassifyRequest runs the full triage pipeline on a description.
func ClassifyRequest(description, userPriority string) ClassificationResult {
	if userPriority == "" {
		userPriority = "medium"
	}

	result := ClassificationResult{
		OriginalPriority: userPriority,
	}

	signals := ExtractUrgencySignals(description)
	result.UrgencySignals = signals

	types, scores := ClassifyResourceType(description)
	result.ResourceTypes = types
	result.ResourceTypeScores = scores

	result.EstimatedQuantity = EstimateQuantity(description)

	recommended, escalated := EscalatePriority(userPriority, signals)
	result.RecommendedPriority = recommended
	result.PriorityWasEscalated = escalated

	typeConf := 0.0
	for _, sc := range scores {
		if sc > typeConf {
			typeConf = sc
		}
	}
	if typeConf == 0 {
		typeConf = 0.3
	}
	signalConf := 0.4
	if len(signals) > 0 {
		signalConf = math.Min(float64(len(signals))*0.15+0.4, 0.95)
	}
	result.PriorityConfidence = signalConf
	result.Confidence = math.Round((typeConf+signalConf)/2*1000) / 1000

	return result
}
