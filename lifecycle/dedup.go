package lifecycle

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/linesmerrill/emergency-report-api/config"
	"github.com/linesmerrill/emergency-report-api/databases"
	"github.com/linesmerrill/emergency-report-api/models"
	"github.com/linesmerrill/emergency-report-api/verification"
)

const earthRadiusMeters = 6371008.8

// Haversine returns the great-circle distance in meters between two points
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}

func bigrams(s string) map[string]int {
	norm := strings.Join(verification.Tokenize(s), " ")
	runes := []rune(norm)
	out := make(map[string]int, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		out[string(runes[i:i+2])]++
	}
	return out
}

// Similarity is the cosine similarity of the character bigram vectors of a
// and b, after lowercasing and collapsing punctuation to single spaces.
func Similarity(a, b string) float64 {
	va, vb := bigrams(a), bigrams(b)
	if len(va) == 0 || len(vb) == 0 {
		return 0
	}
	var dot, na, nb float64
	for k, x := range va {
		na += float64(x * x)
		if y, ok := vb[k]; ok {
			dot += float64(x * y)
		}
	}
	for _, y := range vb {
		nb += float64(y * y)
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// DedupGuard finds an existing report a new submission duplicates
type DedupGuard struct {
	DB databases.ReportDatabase
}

// Find returns the oldest report matching sub on disaster type, distance,
// recency and description similarity, or nil when there is none.
func (g *DedupGuard) Find(ctx context.Context, t config.DedupTuning, sub models.Submission, now time.Time) (*models.Report, error) {
	since := now.Add(-time.Duration(t.WindowSeconds) * time.Second)
	candidates, err := g.DB.FindRecentNear(ctx, databases.NearQuery{
		DisasterType: sub.DisasterType,
		Latitude:     sub.Latitude,
		Longitude:    sub.Longitude,
		RadiusMeters: t.RadiusMeters,
		Since:        since,
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	for i := range candidates {
		c := &candidates[i]
		if c.DisasterType != sub.DisasterType || c.CreatedAt.Before(since) {
			continue
		}
		if Haversine(sub.Latitude, sub.Longitude, c.Latitude, c.Longitude) > t.RadiusMeters {
			continue
		}
		if Similarity(sub.Description, c.Description) < t.TextSimilarity {
			continue
		}
		return c, nil
	}
	return nil, nil
}
