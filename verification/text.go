package verification

import (
	"sort"

	"github.com/linesmerrill/emergency-report-api/config"
	"github.com/linesmerrill/emergency-report-api/models"
)

// ScoreText runs the lexicon pass over a description. It never fails; an
// empty description scores the base emergency score with no keywords.
func ScoreText(t *config.Tuning, description string) models.TextSignal {
	tokens := Tokenize(description)
	lex := t.Lexicons
	ts := t.Text

	emergency := newWordSet(lex.Emergency)
	urgency := newWordSet(lex.Urgency)
	specificity := newWordSet(lex.Specificity)
	contextWords := newWordSet(lex.Context)
	fraud := newWordSet(lex.Fraud)
	lifeThreatening := newWordSet(lex.LifeThreatening)

	sig := models.TextSignal{
		WordCount:       len(tokens),
		EmergencyHits:   emergency.count(tokens),
		UrgencyHits:     urgency.count(tokens),
		SpecificityHits: specificity.count(tokens),
		ContextHits:     contextWords.count(tokens),
		FraudHits:       fraud.count(tokens),
		FoundKeywords:   []string{},
	}

	found := make(wordSet)
	for _, tok := range tokens {
		if emergency.has(tok) || urgency.has(tok) || specificity.has(tok) || contextWords.has(tok) || fraud.has(tok) {
			found[tok] = struct{}{}
		}
		if lifeThreatening.has(tok) && (urgency.has(tok) || specificity.has(tok)) {
			sig.LifeThreatening = true
		}
	}
	for w := range found {
		sig.FoundKeywords = append(sig.FoundKeywords, w)
	}
	sort.Strings(sig.FoundKeywords)

	boost := capped(sig.EmergencyHits, ts.KeywordStep, ts.KeywordCap) +
		tierValue(ts.LengthBoosts, sig.WordCount, 0) +
		capped(sig.SpecificityHits, ts.SpecificityStep, ts.SpecificityCap) +
		capped(sig.UrgencyHits, ts.UrgencyStep, ts.UrgencyCap) +
		capped(sig.ContextHits, ts.ContextStep, ts.ContextCap)
	sig.EmergencyScore = clamp(ts.Base+boost, 0, ts.Cap)

	switch {
	case sig.LifeThreatening:
		sig.PriorityHint = models.PriorityCritical
	case sig.EmergencyHits >= ts.HighPriorityMinHits:
		sig.PriorityHint = models.PriorityHigh
	case sig.EmergencyHits >= ts.MediumPriorityMinHits && ts.MediumPriorityMinHits > 0:
		sig.PriorityHint = models.PriorityMedium
	default:
		sig.PriorityHint = models.PriorityLow
	}

	sig.FraudScore = fraudScore(t.Thresholds, sig.FraudHits, sig.WordCount)
	return sig
}

// fraudScore combines the raw number of fraud markers with their density
func fraudScore(th config.Thresholds, hits, words int) float64 {
	if hits == 0 || words == 0 {
		return 0
	}
	density := float64(hits) / float64(words)
	return clamp(th.FraudPerHit*float64(hits)+th.FraudDensityWeight*density, 0, 1)
}

// DescriptionQuality grades a description by its length
func DescriptionQuality(t *config.Tuning, wordCount int) float64 {
	return tierValue(t.Text.QualityTiers, wordCount, t.Text.QualityFloor)
}

// EmergencyStrength saturates the emergency keyword count into [0,1]
func EmergencyStrength(t *config.Tuning, hits int) float64 {
	return clamp(float64(hits)/float64(t.Text.StrengthSaturation), 0, 1)
}

func tierValue(tiers []config.Tier, words int, floor float64) float64 {
	for _, tier := range tiers {
		if words >= tier.MinWords {
			return tier.Value
		}
	}
	return floor
}
