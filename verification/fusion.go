package verification

import (
	"github.com/linesmerrill/emergency-report-api/config"
	"github.com/linesmerrill/emergency-report-api/models"
)

// Attenuation labels recorded in the analysis detail
const (
	AttenuationAlignment = "low_alignment"
	AttenuationImage     = "low_image_quality"
)

// Signals is everything the fusion engine consumes for one submission
type Signals struct {
	DisasterType models.DisasterType
	Text         models.TextSignal
	ImageMean    float64
	// ImagesSent is true when the analyzer was given at least one image
	ImagesSent bool
	Alignment  float64

	// Analyzer is nil when the analyzer failed; AnalyzerFailure then names
	// the failure kind.
	Analyzer        *models.AIVerdict
	AnalyzerFailure string
	AnalyzerVersion string
	Provider        string
	ProviderPayload string
}

// Verdict is the fused outcome of a submission
type Verdict struct {
	Confidence      float64
	FraudScore      float64
	Priority        models.Priority
	IsEmergency     bool
	SuggestedStatus models.Status
	Detail          models.AnalysisDetail
}

// Fuse combines the signals into a verdict. It is pure: the same tuning and
// signals always produce the same verdict.
func Fuse(t *config.Tuning, s Signals) Verdict {
	th := t.Thresholds
	v := Verdict{
		Detail: models.AnalysisDetail{
			ThresholdSetVersion: t.Version(),
			AnalyzerVersion:     s.AnalyzerVersion,
			Provider:            s.Provider,
			AnalyzerFailure:     s.AnalyzerFailure,
			Text:                s.Text,
			ImageMean:           s.ImageMean,
			Alignment:           s.Alignment,
			ProviderPayload:     s.ProviderPayload,
		},
	}

	if s.Analyzer != nil {
		a := *s.Analyzer
		v.Detail.Branch = models.BranchAnalyzer
		v.Detail.Analyzer = &a
		v.Confidence = clamp(a.Confidence, 0, 1)
		v.FraudScore = clamp(a.FraudScore, 0, 1)
		v.IsEmergency = a.IsEmergency
		v.Priority = a.Priority
		if !v.Priority.Valid() {
			v.Priority = s.Text.PriorityHint
		}

		if s.Alignment < th.AlignmentFloor && s.DisasterType != models.DisasterOther {
			v.Confidence *= th.AlignmentAttenuation
			v.Detail.Attenuations = append(v.Detail.Attenuations, AttenuationAlignment)
		}
		if s.ImagesSent && s.ImageMean < th.ImageFloor {
			v.Confidence *= th.ImageAttenuation
			v.Detail.Attenuations = append(v.Detail.Attenuations, AttenuationImage)
		}
	} else {
		v.Detail.Branch = models.BranchFallback
		quality := DescriptionQuality(t, s.Text.WordCount)
		strength := EmergencyStrength(t, s.Text.EmergencyHits)
		conf := th.FallbackBaseWeight*s.Text.EmergencyScore +
			th.FallbackQualityWeight*quality +
			th.FallbackImageWeight*s.ImageMean +
			th.FallbackAlignmentWeight*s.Alignment +
			th.FallbackStrengthWeight*strength
		v.Confidence = clamp(conf, 0, th.FallbackConfidenceCap)
		v.FraudScore = clamp(s.Text.FraudScore, 0, 1)
		v.Priority = s.Text.PriorityHint
		v.IsEmergency = v.Confidence >= th.FallbackEmergencyMin && v.FraudScore <= th.FallbackEmergencyFraudCap
	}

	inherited := v.Priority
	switch {
	case v.FraudScore > th.PriorityLowFraud || v.Confidence < th.PriorityLowCutoff:
		v.Priority = models.PriorityLow
	case v.Confidence > th.PriorityHighCutoff && v.FraudScore < th.PriorityHighFraudCap:
		v.Priority = models.PriorityHigh
	case v.Confidence > th.PriorityMediumCutoff && v.FraudScore < th.PriorityMediumFraudCap:
		v.Priority = models.PriorityMedium
	}
	if !v.Priority.Valid() {
		v.Priority = models.PriorityLow
	}
	if v.Priority != inherited {
		v.Detail.PriorityOverride = string(inherited) + "->" + string(v.Priority)
	}

	// Only a successful analyzer verdict may auto-verify; the fallback branch
	// tops out at PENDING.
	switch {
	case v.FraudScore > th.FraudReject || !v.IsEmergency:
		v.SuggestedStatus = models.StatusRejected
		v.Detail.RejectedByFraud = v.FraudScore > th.FraudReject
	case v.Detail.Branch == models.BranchAnalyzer &&
		v.Confidence > th.AutoVerifyConfidence && v.FraudScore < th.AutoVerifyFraudCap:
		v.SuggestedStatus = models.StatusVerified
	default:
		v.SuggestedStatus = models.StatusPending
	}

	v.Detail.IsEmergency = v.IsEmergency
	return v
}
