package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tuning is every numeric threshold and word list the verification core
// reads. A loaded Tuning is never mutated; reloads swap in a new value.
type Tuning struct {
	Label              string              `yaml:"label" json:"-"`
	Thresholds         Thresholds          `yaml:"thresholds" json:"thresholds"`
	Text               TextScoring         `yaml:"text" json:"text"`
	Alignment          AlignmentScoring    `yaml:"alignment" json:"alignment"`
	Lexicons           Lexicons            `yaml:"lexicons" json:"lexicons"`
	DisasterKeywords   map[string][]string `yaml:"disaster_keywords" json:"disasterKeywords"`
	LocationVocabulary []string            `yaml:"location_vocabulary" json:"locationVocabulary"`
	Dedup              DedupTuning         `yaml:"dedup" json:"dedup"`
	Votes              VoteTuning          `yaml:"votes" json:"votes"`
	Operators          []Operator          `yaml:"operators" json:"-"`
}

// Thresholds drive the fusion engine's priority override, suggested status
// and fallback formula
type Thresholds struct {
	PriorityLowCutoff      float64 `yaml:"priority_low_cutoff" json:"priority_low_cutoff"`
	PriorityLowFraud       float64 `yaml:"priority_low_fraud" json:"priority_low_fraud"`
	PriorityMediumCutoff   float64 `yaml:"priority_medium_cutoff" json:"priority_medium_cutoff"`
	PriorityMediumFraudCap float64 `yaml:"priority_medium_fraud_cap" json:"priority_medium_fraud_cap"`
	PriorityHighCutoff     float64 `yaml:"priority_high_cutoff" json:"priority_high_cutoff"`
	PriorityHighFraudCap   float64 `yaml:"priority_high_fraud_cap" json:"priority_high_fraud_cap"`

	FraudReject          float64 `yaml:"fraud_reject" json:"fraud_reject"`
	AutoVerifyConfidence float64 `yaml:"auto_verify_confidence" json:"auto_verify_confidence"`
	AutoVerifyFraudCap   float64 `yaml:"auto_verify_fraud_cap" json:"auto_verify_fraud_cap"`

	AlignmentFloor       float64 `yaml:"alignment_floor" json:"alignment_floor"`
	AlignmentAttenuation float64 `yaml:"alignment_attenuation" json:"alignment_attenuation"`
	ImageFloor           float64 `yaml:"image_floor" json:"image_floor"`
	ImageAttenuation     float64 `yaml:"image_attenuation" json:"image_attenuation"`

	FallbackBaseWeight        float64 `yaml:"fallback_base_weight" json:"fallback_base_weight"`
	FallbackQualityWeight     float64 `yaml:"fallback_quality_weight" json:"fallback_quality_weight"`
	FallbackImageWeight       float64 `yaml:"fallback_image_weight" json:"fallback_image_weight"`
	FallbackAlignmentWeight   float64 `yaml:"fallback_alignment_weight" json:"fallback_alignment_weight"`
	FallbackStrengthWeight    float64 `yaml:"fallback_strength_weight" json:"fallback_strength_weight"`
	FallbackConfidenceCap     float64 `yaml:"fallback_confidence_cap" json:"fallback_confidence_cap"`
	FallbackEmergencyMin      float64 `yaml:"fallback_emergency_min" json:"fallback_emergency_min"`
	FallbackEmergencyFraudCap float64 `yaml:"fallback_emergency_fraud_cap" json:"fallback_emergency_fraud_cap"`

	FraudPerHit        float64 `yaml:"fraud_per_hit" json:"fraud_per_hit"`
	FraudDensityWeight float64 `yaml:"fraud_density_weight" json:"fraud_density_weight"`
}

// Tier maps a minimum word count onto a value
type Tier struct {
	MinWords int     `yaml:"min_words" json:"minWords"`
	Value    float64 `yaml:"value" json:"value"`
}

// TextScoring holds the additive boosts of the description scorer
type TextScoring struct {
	Base            float64 `yaml:"base" json:"base"`
	Cap             float64 `yaml:"cap" json:"cap"`
	KeywordStep     float64 `yaml:"keyword_step" json:"keywordStep"`
	KeywordCap      float64 `yaml:"keyword_cap" json:"keywordCap"`
	SpecificityStep float64 `yaml:"specificity_step" json:"specificityStep"`
	SpecificityCap  float64 `yaml:"specificity_cap" json:"specificityCap"`
	UrgencyStep     float64 `yaml:"urgency_step" json:"urgencyStep"`
	UrgencyCap      float64 `yaml:"urgency_cap" json:"urgencyCap"`
	ContextStep     float64 `yaml:"context_step" json:"contextStep"`
	ContextCap      float64 `yaml:"context_cap" json:"contextCap"`
	// LengthBoosts and QualityTiers must be ordered by descending MinWords.
	LengthBoosts          []Tier  `yaml:"length_boosts" json:"lengthBoosts"`
	QualityTiers          []Tier  `yaml:"quality_tiers" json:"qualityTiers"`
	QualityFloor          float64 `yaml:"quality_floor" json:"qualityFloor"`
	StrengthSaturation    int     `yaml:"strength_saturation" json:"strengthSaturation"`
	HighPriorityMinHits   int     `yaml:"high_priority_min_hits" json:"highPriorityMinHits"`
	MediumPriorityMinHits int     `yaml:"medium_priority_min_hits" json:"mediumPriorityMinHits"`
}

// AlignmentScoring weighs disaster keyword overlap against location overlap
type AlignmentScoring struct {
	KeywordWeight      float64 `yaml:"keyword_weight" json:"keywordWeight"`
	KeywordSaturation  int     `yaml:"keyword_saturation" json:"keywordSaturation"`
	LocationWeight     float64 `yaml:"location_weight" json:"locationWeight"`
	LocationSaturation int     `yaml:"location_saturation" json:"locationSaturation"`
	Neutral            float64 `yaml:"neutral" json:"neutral"`
}

// Lexicons are the word lists of the description scorer
type Lexicons struct {
	Emergency       []string `yaml:"emergency" json:"emergency"`
	Urgency         []string `yaml:"urgency" json:"urgency"`
	Specificity     []string `yaml:"specificity" json:"specificity"`
	Context         []string `yaml:"context" json:"context"`
	LifeThreatening []string `yaml:"life_threatening" json:"lifeThreatening"`
	Fraud           []string `yaml:"fraud" json:"fraud"`
}

// DedupTuning is the space and time box of the duplicate guard
type DedupTuning struct {
	RadiusMeters   float64 `yaml:"radius_meters" json:"radiusMeters"`
	WindowSeconds  int     `yaml:"window_seconds" json:"windowSeconds"`
	TextSimilarity float64 `yaml:"text_similarity" json:"textSimilarity"`
}

// VoteTuning configures the community threshold rule
type VoteTuning struct {
	CommunityMin int     `yaml:"community_min" json:"communityMin"`
	MajorityPct  float64 `yaml:"majority_pct" json:"majorityPct"`
}

// Operator is an account allowed to request operator tokens
type Operator struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	PasswordHash string   `yaml:"password_hash"`
	Roles        []string `yaml:"roles"`
}

// DefaultTuning returns the built-in thresholds and lexicons
func DefaultTuning() *Tuning {
	return &Tuning{
		Label: "default",
		Thresholds: Thresholds{
			PriorityLowCutoff:      0.3,
			PriorityLowFraud:       0.7,
			PriorityMediumCutoff:   0.6,
			PriorityMediumFraudCap: 0.4,
			PriorityHighCutoff:     0.8,
			PriorityHighFraudCap:   0.2,

			FraudReject:          0.6,
			AutoVerifyConfidence: 0.8,
			AutoVerifyFraudCap:   0.2,

			AlignmentFloor:       0.2,
			AlignmentAttenuation: 0.85,
			ImageFloor:           0.2,
			ImageAttenuation:     0.90,

			FallbackBaseWeight:        0.75,
			FallbackQualityWeight:     0.15,
			FallbackImageWeight:       0.10,
			FallbackAlignmentWeight:   0.10,
			FallbackStrengthWeight:    0.05,
			FallbackConfidenceCap:     0.98,
			FallbackEmergencyMin:      0.5,
			FallbackEmergencyFraudCap: 0.5,

			FraudPerHit:        0.2,
			FraudDensityWeight: 0.5,
		},
		Text: TextScoring{
			Base:            0.40,
			Cap:             0.95,
			KeywordStep:     0.10,
			KeywordCap:      0.30,
			SpecificityStep: 0.03,
			SpecificityCap:  0.15,
			UrgencyStep:     0.02,
			UrgencyCap:      0.10,
			ContextStep:     0.02,
			ContextCap:      0.10,
			LengthBoosts: []Tier{
				{MinWords: 20, Value: 0.15},
				{MinWords: 10, Value: 0.10},
				{MinWords: 5, Value: 0.05},
			},
			QualityTiers: []Tier{
				{MinWords: 20, Value: 1.0},
				{MinWords: 10, Value: 0.7},
				{MinWords: 5, Value: 0.4},
			},
			QualityFloor:          0.1,
			StrengthSaturation:    3,
			HighPriorityMinHits:   2,
			MediumPriorityMinHits: 1,
		},
		Alignment: AlignmentScoring{
			KeywordWeight:      0.8,
			KeywordSaturation:  3,
			LocationWeight:     0.2,
			LocationSaturation: 2,
			Neutral:            0.5,
		},
		Lexicons: Lexicons{
			Emergency: []string{
				"help", "urgent", "emergency", "trapped", "rescue", "sos", "danger",
				"fire", "flood", "flooding", "stuck", "collapsed", "drowning",
				"bleeding", "explosion", "accident",
			},
			Urgency: []string{
				"critical", "immediate", "immediately", "severe", "asap", "serious",
				"quickly", "hurry",
			},
			Specificity: []string{
				"injured", "injury", "injuries", "damage", "damaged", "evacuation",
				"evacuate", "medical", "ambulance", "casualties", "dead", "dying",
				"unconscious", "wounded", "missing", "children", "elderly",
			},
			Context: []string{
				"street", "road", "building", "near", "floor", "bridge", "house",
				"village", "river", "school", "hospital", "area", "block", "junction",
			},
			LifeThreatening: []string{
				"critical", "unconscious", "dying", "dead", "casualties",
			},
			Fraud: []string{
				"haha", "lol", "lmao", "joke", "joking", "fake", "test", "testing",
				"prank", "kidding", "dummy",
			},
		},
		DisasterKeywords: map[string][]string{
			"FLOOD":      {"water", "rain", "flood", "flooding", "flooded", "overflow", "river", "submerged", "drowning", "dam", "inundated"},
			"EARTHQUAKE": {"earthquake", "quake", "tremor", "shaking", "collapsed", "collapse", "cracks", "rubble", "aftershock"},
			"FIRE":       {"fire", "flame", "flames", "smoke", "burning", "burn", "blaze", "burnt", "fumes", "explosion"},
			"CYCLONE":    {"cyclone", "wind", "winds", "storm", "hurricane", "typhoon", "gale", "uprooted", "roof"},
			"LANDSLIDE":  {"landslide", "mud", "mudslide", "rocks", "slope", "debris", "hill", "buried"},
			"MEDICAL":    {"injured", "unconscious", "bleeding", "heart", "breathing", "ambulance", "medical", "pain", "fainted", "seizure"},
			"ACCIDENT":   {"accident", "crash", "collision", "vehicle", "car", "truck", "bike", "overturned", "hit"},
		},
		LocationVocabulary: []string{
			"street", "road", "avenue", "lane", "highway", "bridge", "building",
			"market", "school", "hospital", "village", "district", "sector",
			"block", "near", "junction", "station",
		},
		Dedup: DedupTuning{
			RadiusMeters:   150,
			WindowSeconds:  1800,
			TextSimilarity: 0.60,
		},
		Votes: VoteTuning{
			CommunityMin: 3,
			MajorityPct:  60,
		},
	}
}

// LoadTuning reads tuning from a YAML file on top of the defaults.
// If the file doesn't exist, it returns the defaults and no error.
func LoadTuning(path string) (*Tuning, error) {
	t := DefaultTuning()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if t.Label == "" {
		t.Label = "default"
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Version is the threshold set version recorded on every verdict. It changes
// whenever a threshold or lexicon changes.
func (t *Tuning) Version() string {
	b, err := json.Marshal(t)
	if err != nil {
		return t.Label + "-unversioned"
	}
	sum := sha256.Sum256(b)
	return t.Label + "-" + hex.EncodeToString(sum[:])[:12]
}

// Validate rejects thresholds outside their usable range
func (t *Tuning) Validate() error {
	th := t.Thresholds
	unit := map[string]float64{
		"priority_low_cutoff":          th.PriorityLowCutoff,
		"priority_low_fraud":           th.PriorityLowFraud,
		"priority_medium_cutoff":       th.PriorityMediumCutoff,
		"priority_medium_fraud_cap":    th.PriorityMediumFraudCap,
		"priority_high_cutoff":         th.PriorityHighCutoff,
		"priority_high_fraud_cap":      th.PriorityHighFraudCap,
		"fraud_reject":                 th.FraudReject,
		"auto_verify_confidence":       th.AutoVerifyConfidence,
		"auto_verify_fraud_cap":        th.AutoVerifyFraudCap,
		"alignment_floor":              th.AlignmentFloor,
		"image_floor":                  th.ImageFloor,
		"fallback_confidence_cap":      th.FallbackConfidenceCap,
		"fallback_emergency_min":       th.FallbackEmergencyMin,
		"fallback_emergency_fraud_cap": th.FallbackEmergencyFraudCap,
		"dedup.text_similarity":        t.Dedup.TextSimilarity,
	}
	for name, v := range unit {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
	}
	if th.AlignmentAttenuation <= 0 || th.AlignmentAttenuation > 1 {
		return errors.New("alignment_attenuation must be within (0,1]")
	}
	if th.ImageAttenuation <= 0 || th.ImageAttenuation > 1 {
		return errors.New("image_attenuation must be within (0,1]")
	}
	for name, w := range map[string]float64{
		"fallback_base_weight":      th.FallbackBaseWeight,
		"fallback_quality_weight":   th.FallbackQualityWeight,
		"fallback_image_weight":     th.FallbackImageWeight,
		"fallback_alignment_weight": th.FallbackAlignmentWeight,
		"fallback_strength_weight":  th.FallbackStrengthWeight,
		"fraud_per_hit":             th.FraudPerHit,
		"fraud_density_weight":      th.FraudDensityWeight,
	} {
		if w < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if t.Text.Cap <= 0 || t.Text.Cap > 1 || t.Text.Base < 0 || t.Text.Base > t.Text.Cap {
		return errors.New("text.base and text.cap must satisfy 0 <= base <= cap <= 1")
	}
	if t.Alignment.KeywordSaturation < 1 || t.Alignment.LocationSaturation < 1 {
		return errors.New("alignment saturations must be at least 1")
	}
	if t.Text.StrengthSaturation < 1 {
		return errors.New("text.strength_saturation must be at least 1")
	}
	if t.Dedup.RadiusMeters <= 0 {
		return errors.New("dedup.radius_meters must be positive")
	}
	if t.Dedup.WindowSeconds <= 0 {
		return errors.New("dedup.window_seconds must be positive")
	}
	if t.Votes.CommunityMin < 1 {
		return errors.New("votes.community_min must be at least 1")
	}
	if t.Votes.MajorityPct <= 0 || t.Votes.MajorityPct > 100 {
		return errors.New("votes.majority_pct must be within (0,100]")
	}
	if len(t.Lexicons.Emergency) == 0 || len(t.Lexicons.Fraud) == 0 {
		return errors.New("lexicons.emergency and lexicons.fraud must not be empty")
	}
	return nil
}
