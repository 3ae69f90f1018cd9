package verification

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/linesmerrill/emergency-report-api/models"
)

// Color modes reported by an ImageResolver
const (
	ColorModeColor     = "color"
	ColorModeGrayscale = "grayscale"
)

// ImageInfo is what the image scorer needs to know about one image
type ImageInfo struct {
	Width     int
	Height    int
	Bytes     int64
	ColorMode string
}

// ImageResolver opens a media URI far enough to describe the image
type ImageResolver interface {
	Resolve(ctx context.Context, uri string) (ImageInfo, error)
}

// ImageScore is the result of scoring every image of a submission
type ImageScore struct {
	Items []models.ImageQuality
	Mean  float64
}

// maxParallelImageReads bounds concurrent resolver calls per intake
const maxParallelImageReads = 4

// ScoreImageInfo scores a single resolved image
func ScoreImageInfo(info ImageInfo) float64 {
	score := 0.0

	mp := float64(info.Width) * float64(info.Height) / 1_000_000
	switch {
	case mp >= 2:
		score += 0.40
	case mp >= 1:
		score += 0.30
	case mp >= 0.5:
		score += 0.20
	default:
		score += 0.10
	}

	if info.Height > 0 {
		aspect := float64(info.Width) / float64(info.Height)
		switch {
		case aspect >= 0.7 && aspect <= 1.4:
			score += 0.20
		case aspect >= 0.5 && aspect <= 2.0:
			score += 0.10
		}
	}

	switch {
	case info.Bytes >= 1<<20:
		score += 0.20
	case info.Bytes >= 500<<10:
		score += 0.10
	case info.Bytes >= 100<<10:
		score += 0.05
	}

	switch info.ColorMode {
	case ColorModeColor:
		score += 0.20
	case ColorModeGrayscale:
		score += 0.10
	}

	return clamp(score, 0, 1)
}

// ScoreImages resolves and scores every image. An image that can't be read
// contributes 0 and is flagged. Only context cancellation is returned as an error.
func ScoreImages(ctx context.Context, resolver ImageResolver, images []models.MediaRef) (ImageScore, error) {
	out := ImageScore{Items: make([]models.ImageQuality, len(images))}
	if len(images) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelImageReads)
	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			info, err := resolver.Resolve(gctx, img.URI)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				zap.S().Warnw("failed to read image",
					"uri", img.URI,
					"error", err)
				mu.Lock()
				out.Items[i] = models.ImageQuality{ReadError: true}
				mu.Unlock()
				return nil
			}
			q := models.ImageQuality{
				Score:     ScoreImageInfo(info),
				Width:     info.Width,
				Height:    info.Height,
				Bytes:     info.Bytes,
				ColorMode: info.ColorMode,
			}
			mu.Lock()
			out.Items[i] = q
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ImageScore{}, err
	}

	sum := 0.0
	for _, q := range out.Items {
		sum += q.Score
	}
	out.Mean = sum / float64(len(out.Items))
	return out, nil
}
