package lifecycle

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/linesmerrill/emergency-report-api/analyzer"
	"github.com/linesmerrill/emergency-report-api/config"
	"github.com/linesmerrill/emergency-report-api/models"
	"github.com/linesmerrill/emergency-report-api/verification"
)

// Pipeline runs the scorers and the analyzer for a submission and fuses them
type Pipeline struct {
	Analyzer analyzer.Port
	Images   verification.ImageResolver
}

// Evaluation is the pipeline outcome for one submission
type Evaluation struct {
	Verdict verification.Verdict
	Images  verification.ImageScore
}

// Evaluate scores text, images and alignment while the analyzer runs, then
// fuses the results. An analyzer failure falls back to the heuristic branch;
// only cancellation of ctx is returned as an error.
func (p *Pipeline) Evaluate(ctx context.Context, t *config.Tuning, sub models.Submission) (Evaluation, error) {
	images := sub.Images()
	uris := make([]string, 0, len(images))
	for _, m := range images {
		if analyzer.Forwardable(m.URI) {
			uris = append(uris, m.URI)
		}
	}

	var (
		text       models.TextSignal
		alignment  float64
		imageScore verification.ImageScore
		result     analyzer.Result
		failure    string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		text = verification.ScoreText(t, sub.Description)
		alignment = verification.Align(t, sub.Description, sub.DisasterType, sub.Address)
		return nil
	})
	g.Go(func() error {
		var err error
		imageScore, err = verification.ScoreImages(gctx, p.Images, images)
		return err
	})
	g.Go(func() error {
		var err error
		result, err = p.Analyzer.Analyze(gctx, analyzer.Request{
			Description:  sub.Description,
			ImageURIs:    uris,
			DisasterType: sub.DisasterType,
			Location:     sub.Address,
		})
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if f, ok := analyzer.AsFailure(err); ok {
			failure = f.Label()
		} else {
			failure = string(analyzer.FailureUnavailable)
		}
		zap.S().Warnw("analyzer failed, using fallback scoring",
			"analyzer", p.Analyzer.Name(),
			"failure", failure,
			"error", err)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Evaluation{}, err
	}
	if err := ctx.Err(); err != nil {
		return Evaluation{}, err
	}

	signals := verification.Signals{
		DisasterType:    sub.DisasterType,
		Text:            text,
		ImageMean:       imageScore.Mean,
		ImagesSent:      len(uris) > 0,
		Alignment:       alignment,
		AnalyzerFailure: failure,
		AnalyzerVersion: p.Analyzer.Version(),
		Provider:        p.Analyzer.Name(),
	}
	if failure == "" {
		v := result.Verdict
		signals.Analyzer = &v
		signals.ProviderPayload = result.Raw
		if result.Provider != "" {
			signals.Provider = result.Provider
		}
		if result.Version != "" {
			signals.AnalyzerVersion = result.Version
		}
	}
	return Evaluation{Verdict: verification.Fuse(t, signals), Images: imageScore}, nil
}
