package verification

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linesmerrill/emergency-report-api/config"
	"github.com/linesmerrill/emergency-report-api/models"
)

func fireSignals(tu *config.Tuning) Signals {
	return Signals{
		DisasterType: models.DisasterFire,
		Text:         ScoreText(tu, fireDescription),
		ImageMean:    0.9,
		ImagesSent:   true,
		Alignment:    Align(tu, fireDescription, models.DisasterFire, ""),
	}
}

func TestAlign(t *testing.T) {
	tu := config.DefaultTuning()
	assert.InDelta(t, 0.8/3+0.1, Align(tu, fireDescription, models.DisasterFire, ""), 1e-9)
	assert.Equal(t, 0.5, Align(tu, fireDescription, models.DisasterOther, ""))
	assert.Equal(t, 0.5, Align(tu, fireDescription, "", ""))
	assert.Zero(t, Align(tu, "cat stuck in tree", models.DisasterFlood, ""))

	full := Align(tu, "water rising, river overflow flooding Baker street near Elm junction", models.DisasterFlood, "Baker Street")
	assert.InDelta(t, 1.0, full, 1e-9)
}

func TestFuseAnalyzerClearEmergency(t *testing.T) {
	tu := config.DefaultTuning()
	s := fireSignals(tu)
	s.Analyzer = &models.AIVerdict{IsEmergency: true, Confidence: 0.92, FraudScore: 0.05, Priority: models.PriorityHigh}
	s.Provider = "openai"

	v := Fuse(tu, s)
	assert.Equal(t, models.BranchAnalyzer, v.Detail.Branch)
	assert.InDelta(t, 0.92, v.Confidence, 1e-9)
	assert.Equal(t, models.PriorityHigh, v.Priority)
	assert.Equal(t, models.StatusVerified, v.SuggestedStatus)
	assert.Empty(t, v.Detail.Attenuations)
	assert.Equal(t, tu.Version(), v.Detail.ThresholdSetVersion)
	assert.Equal(t, "openai", v.Detail.Provider)
}

func TestFuseFallbackStrongText(t *testing.T) {
	tu := config.DefaultTuning()
	s := fireSignals(tu)
	s.AnalyzerFailure = "UNAVAILABLE"

	v := Fuse(tu, s)
	assert.Equal(t, models.BranchFallback, v.Detail.Branch)
	assert.GreaterOrEqual(t, v.Confidence, 0.70)
	assert.InDelta(t, 0.63+0.105+0.09+0.1*(0.8/3+0.1)+0.05, v.Confidence, 1e-9)
	assert.Equal(t, models.PriorityHigh, v.Priority)
	assert.True(t, v.IsEmergency)
	assert.Equal(t, models.StatusPending, v.SuggestedStatus)
	assert.Equal(t, "UNAVAILABLE", v.Detail.AnalyzerFailure)
}

func TestFuseFraudText(t *testing.T) {
	tu := config.DefaultTuning()
	desc := "haha just testing fake report"
	v := Fuse(tu, Signals{
		DisasterType: models.DisasterFire,
		Text:         ScoreText(tu, desc),
		Alignment:    Align(tu, desc, models.DisasterFire, ""),
	})

	assert.Greater(t, v.FraudScore, 0.6)
	assert.Equal(t, models.PriorityLow, v.Priority)
	assert.Equal(t, models.StatusRejected, v.SuggestedStatus)
	assert.True(t, v.Detail.RejectedByFraud)
	assert.False(t, v.IsEmergency)
}

func TestFuseAttenuations(t *testing.T) {
	tu := config.DefaultTuning()
	s := Signals{
		DisasterType: models.DisasterFire,
		Text:         ScoreText(tu, "something happened"),
		ImageMean:    0.1,
		ImagesSent:   true,
		Alignment:    0.1,
		Analyzer:     &models.AIVerdict{IsEmergency: true, Confidence: 0.9, FraudScore: 0.05, Priority: models.PriorityHigh},
	}

	v := Fuse(tu, s)
	assert.InDelta(t, 0.9*0.85*0.90, v.Confidence, 1e-9)
	assert.Equal(t, []string{AttenuationAlignment, AttenuationImage}, v.Detail.Attenuations)
	assert.Equal(t, models.PriorityMedium, v.Priority)
	assert.Equal(t, "HIGH->MEDIUM", v.Detail.PriorityOverride)
	assert.Equal(t, models.StatusPending, v.SuggestedStatus)

	s.DisasterType = models.DisasterOther
	s.ImagesSent = false
	v = Fuse(tu, s)
	assert.InDelta(t, 0.9, v.Confidence, 1e-9)
	assert.Empty(t, v.Detail.Attenuations)
}

func TestFuseAnalyzerSaysNotEmergency(t *testing.T) {
	tu := config.DefaultTuning()
	s := fireSignals(tu)
	s.Analyzer = &models.AIVerdict{IsEmergency: false, Confidence: 0.55, FraudScore: 0.3, Priority: models.PriorityMedium}

	v := Fuse(tu, s)
	assert.Equal(t, models.StatusRejected, v.SuggestedStatus)
	assert.False(t, v.Detail.RejectedByFraud)
	assert.Equal(t, models.PriorityMedium, v.Priority)
}

func TestFuseClampsAnalyzerOutput(t *testing.T) {
	tu := config.DefaultTuning()
	s := fireSignals(tu)
	s.Analyzer = &models.AIVerdict{IsEmergency: true, Confidence: 1.7, FraudScore: -0.2, Priority: "URGENT"}

	v := Fuse(tu, s)
	assert.Equal(t, 1.0, v.Confidence)
	assert.Equal(t, 0.0, v.FraudScore)
	assert.True(t, v.Priority.Valid())
}

func TestFuseIsReproducible(t *testing.T) {
	tu := config.DefaultTuning()
	s := fireSignals(tu)
	a := Fuse(tu, s)
	b := Fuse(config.DefaultTuning(), s)

	assert.Equal(t, a.Confidence, b.Confidence)
	assert.Equal(t, a.FraudScore, b.FraudScore)
	assert.Equal(t, a.Priority, b.Priority)
	assert.Equal(t, a.SuggestedStatus, b.SuggestedStatus)
	assert.Equal(t, a.Detail.Branch, b.Detail.Branch)
	assert.Equal(t, a.Detail.ThresholdSetVersion, b.Detail.ThresholdSetVersion)
}

func TestFuseVersionFollowsThresholds(t *testing.T) {
	tu := config.DefaultTuning()
	changed := config.DefaultTuning()
	changed.Thresholds.AutoVerifyConfidence = 0.95

	s := fireSignals(tu)
	s.Analyzer = &models.AIVerdict{IsEmergency: true, Confidence: 0.92, FraudScore: 0.05, Priority: models.PriorityHigh}

	a := Fuse(tu, s)
	b := Fuse(changed, s)
	assert.NotEqual(t, a.Detail.ThresholdSetVersion, b.Detail.ThresholdSetVersion)
	assert.Equal(t, models.StatusVerified, a.SuggestedStatus)
	assert.Equal(t, models.StatusPending, b.SuggestedStatus)
}
