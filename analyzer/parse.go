package analyzer

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/linesmerrill/emergency-report-api/models"
)

// wireVerdict mirrors the provider JSON with pointer fields so missing keys
// can be told apart from zero values
type wireVerdict struct {
	IsEmergency     *bool     `json:"is_emergency"`
	Confidence      *float64  `json:"confidence"`
	FraudScore      *float64  `json:"fraud_score"`
	EmergencyLevel  *string   `json:"emergency_level"`
	Priority        *string   `json:"priority"`
	Observations    *[]string `json:"observations"`
	Recommendations *[]string `json:"recommendations"`
}

var errMissingFields = errors.New("verdict is missing required fields")

// ParseVerdict reads the analyzer's answer. It first requires the full JSON
// shape, then falls back to a best-effort text parse. The second return value
// reports whether the fallback was used.
func ParseVerdict(content string) (models.AIVerdict, bool, error) {
	if v, err := parseStrict(content); err == nil {
		return v, false, nil
	}
	if span := jsonSpan(stripFences(content)); span != "" {
		if v, err := parseStrict(span); err == nil {
			return v, true, nil
		}
		if v, err := parseLenient(span); err == nil {
			return v, true, nil
		}
	}
	v, err := scanFields(content)
	if err != nil {
		return models.AIVerdict{}, true, err
	}
	return v, true, nil
}

func parseStrict(s string) (models.AIVerdict, error) {
	var w wireVerdict
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(s)))
	if err := dec.Decode(&w); err != nil {
		return models.AIVerdict{}, err
	}
	if w.IsEmergency == nil || w.Confidence == nil || w.FraudScore == nil || w.EmergencyLevel == nil ||
		w.Priority == nil || w.Observations == nil || w.Recommendations == nil {
		return models.AIVerdict{}, errMissingFields
	}
	return finish(models.AIVerdict{
		IsEmergency:     *w.IsEmergency,
		Confidence:      *w.Confidence,
		FraudScore:      *w.FraudScore,
		EmergencyLevel:  *w.EmergencyLevel,
		Priority:        models.Priority(strings.ToUpper(*w.Priority)),
		Observations:    *w.Observations,
		Recommendations: *w.Recommendations,
	}), nil
}

// parseLenient accepts JSON that carries at least the three scoring fields
func parseLenient(s string) (models.AIVerdict, error) {
	var w wireVerdict
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return models.AIVerdict{}, err
	}
	if w.IsEmergency == nil || w.Confidence == nil || w.FraudScore == nil {
		return models.AIVerdict{}, errMissingFields
	}
	v := models.AIVerdict{
		IsEmergency: *w.IsEmergency,
		Confidence:  *w.Confidence,
		FraudScore:  *w.FraudScore,
	}
	if w.EmergencyLevel != nil {
		v.EmergencyLevel = *w.EmergencyLevel
	}
	if w.Priority != nil {
		v.Priority = models.Priority(strings.ToUpper(*w.Priority))
	}
	if w.Observations != nil {
		v.Observations = *w.Observations
	}
	if w.Recommendations != nil {
		v.Recommendations = *w.Recommendations
	}
	return finish(v), nil
}

var (
	reBool  = regexp.MustCompile(`(?i)"?is_emergency"?\s*[:=]\s*"?(true|false|yes|no)"?`)
	reConf  = regexp.MustCompile(`(?i)"?confidence"?\s*[:=]\s*"?([0-9]*\.?[0-9]+)`)
	reFraud = regexp.MustCompile(`(?i)"?fraud_score"?\s*[:=]\s*"?([0-9]*\.?[0-9]+)`)
	rePrio  = regexp.MustCompile(`(?i)"?priority"?\s*[:=]\s*"?(low|medium|high|critical)`)
	reLevel = regexp.MustCompile(`(?i)"?emergency_level"?\s*[:=]\s*"?([a-z_]+)`)
)

// scanFields pulls key/value pairs out of free text, e.g. a truncated JSON
// body or a prose answer that names the fields
func scanFields(s string) (models.AIVerdict, error) {
	b := reBool.FindStringSubmatch(s)
	c := reConf.FindStringSubmatch(s)
	f := reFraud.FindStringSubmatch(s)
	if b == nil || c == nil || f == nil {
		return models.AIVerdict{}, errMissingFields
	}
	conf, err := strconv.ParseFloat(c[1], 64)
	if err != nil {
		return models.AIVerdict{}, err
	}
	fraud, err := strconv.ParseFloat(f[1], 64)
	if err != nil {
		return models.AIVerdict{}, err
	}
	v := models.AIVerdict{
		IsEmergency: strings.EqualFold(b[1], "true") || strings.EqualFold(b[1], "yes"),
		Confidence:  conf,
		FraudScore:  fraud,
	}
	if p := rePrio.FindStringSubmatch(s); p != nil {
		v.Priority = models.Priority(strings.ToUpper(p[1]))
	}
	if l := reLevel.FindStringSubmatch(s); l != nil {
		v.EmergencyLevel = strings.ToLower(l[1])
	}
	return finish(v), nil
}

// finish normalises ranges and nil slices
func finish(v models.AIVerdict) models.AIVerdict {
	// some providers answer on a 0-100 scale
	if v.Confidence > 1 && v.Confidence <= 100 {
		v.Confidence /= 100
	}
	if v.FraudScore > 1 && v.FraudScore <= 100 {
		v.FraudScore /= 100
	}
	v.Confidence = clamp01(v.Confidence)
	v.FraudScore = clamp01(v.FraudScore)
	if !v.Priority.Valid() {
		v.Priority = ""
	}
	if v.Observations == nil {
		v.Observations = []string{}
	}
	if v.Recommendations == nil {
		v.Recommendations = []string{}
	}
	return v
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

func jsonSpan(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
