package models

// Branch names which path of the fusion engine produced a verdict
type Branch string

// Fusion branches
const (
	BranchAnalyzer Branch = "analyzer"
	BranchFallback Branch = "fallback"
)

// AnalysisDetail makes a stored verdict reproducible: it records the branch,
// every input sub-score, the threshold set version and any attenuation applied.
type AnalysisDetail struct {
	Branch              Branch   `bson:"branch" json:"branch"`
	ThresholdSetVersion string   `bson:"thresholdSetVersion" json:"thresholdSetVersion"`
	AnalyzerVersion     string   `bson:"analyzerVersion" json:"analyzerVersion"`
	Provider            string   `bson:"provider,omitempty" json:"provider,omitempty"`
	AnalyzerFailure     string   `bson:"analyzerFailure,omitempty" json:"analyzerFailure,omitempty"`
	RejectedByFraud     bool     `bson:"rejectedByFraud" json:"rejectedByFraud"`
	IsEmergency         bool     `bson:"isEmergency" json:"isEmergency"`
	Attenuations        []string `bson:"attenuations,omitempty" json:"attenuations,omitempty"`
	PriorityOverride    string   `bson:"priorityOverride,omitempty" json:"priorityOverride,omitempty"`

	Text      TextSignal `bson:"text" json:"text"`
	ImageMean float64    `bson:"imageMean" json:"imageMean"`
	Alignment float64    `bson:"alignment" json:"alignment"`
	Analyzer  *AIVerdict `bson:"analyzer,omitempty" json:"analyzer,omitempty"`

	// ProviderPayload keeps the raw analyzer answer for debugging only.
	ProviderPayload string `bson:"providerPayload,omitempty" json:"providerPayload,omitempty"`
}

// Clone deep-copies the detail
func (d AnalysisDetail) Clone() AnalysisDetail {
	c := d
	c.Attenuations = append([]string(nil), d.Attenuations...)
	c.Text.FoundKeywords = append([]string(nil), d.Text.FoundKeywords...)
	if d.Analyzer != nil {
		a := *d.Analyzer
		a.Observations = append([]string(nil), d.Analyzer.Observations...)
		a.Recommendations = append([]string(nil), d.Analyzer.Recommendations...)
		c.Analyzer = &a
	}
	return c
}

// TextSignal is the output of the description lexicon scorer
type TextSignal struct {
	EmergencyScore  float64  `bson:"emergencyScore" json:"emergencyScore"`
	FraudScore      float64  `bson:"fraudScore" json:"fraudScore"`
	PriorityHint    Priority `bson:"priorityHint" json:"priorityHint"`
	FoundKeywords   []string `bson:"foundKeywords" json:"foundKeywords"`
	WordCount       int      `bson:"wordCount" json:"wordCount"`
	EmergencyHits   int      `bson:"emergencyHits" json:"emergencyHits"`
	UrgencyHits     int      `bson:"urgencyHits" json:"urgencyHits"`
	SpecificityHits int      `bson:"specificityHits" json:"specificityHits"`
	ContextHits     int      `bson:"contextHits" json:"contextHits"`
	FraudHits       int      `bson:"fraudHits" json:"fraudHits"`
	LifeThreatening bool     `bson:"lifeThreatening" json:"lifeThreatening"`
}

// AIVerdict is the structured answer of the external analyzer
type AIVerdict struct {
	IsEmergency     bool     `bson:"isEmergency" json:"is_emergency"`
	Confidence      float64  `bson:"confidence" json:"confidence"`
	FraudScore      float64  `bson:"fraudScore" json:"fraud_score"`
	EmergencyLevel  string   `bson:"emergencyLevel" json:"emergency_level"`
	Priority        Priority `bson:"priority" json:"priority"`
	Observations    []string `bson:"observations" json:"observations"`
	Recommendations []string `bson:"recommendations" json:"recommendations"`
}
