package verification

import (
	"github.com/linesmerrill/emergency-report-api/config"
	"github.com/linesmerrill/emergency-report-api/models"
)

// Align checks how well a description matches its declared disaster type and
// location. OTHER and undeclared types get the neutral alignment.
func Align(t *config.Tuning, description string, disasterType models.DisasterType, location string) float64 {
	a := t.Alignment
	keywords, ok := t.DisasterKeywords[string(disasterType)]
	if disasterType == "" || disasterType == models.DisasterOther || !ok || len(keywords) == 0 {
		return a.Neutral
	}

	tokens := Tokenize(description)
	typeHits := newWordSet(keywords).count(tokens)

	// location overlap counts distinct description tokens that appear in the
	// declared location or in the location vocabulary
	locWords := newWordSet(t.LocationVocabulary)
	for _, w := range Tokenize(location) {
		if len([]rune(w)) >= 3 {
			locWords[w] = struct{}{}
		}
	}
	seen := make(wordSet)
	for _, tok := range tokens {
		if locWords.has(tok) {
			seen[tok] = struct{}{}
		}
	}

	kw := clamp(float64(typeHits)/float64(a.KeywordSaturation), 0, 1)
	loc := clamp(float64(len(seen))/float64(a.LocationSaturation), 0, 1)
	return clamp(a.KeywordWeight*kw+a.LocationWeight*loc, 0, 1)
}
