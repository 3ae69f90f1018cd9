package databases

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/linesmerrill/emergency-report-api/models"
)

// MemoryReportDatabase is a process-local ReportDatabase used when no DB_URI
// is configured and in tests. FindRecentNear filters on type and time only;
// callers apply the exact distance check.
type MemoryReportDatabase struct {
	mu      sync.RWMutex
	reports map[string]*models.Report
}

// NewMemoryReportDatabase returns an empty in-memory report store
func NewMemoryReportDatabase() *MemoryReportDatabase {
	return &MemoryReportDatabase{reports: make(map[string]*models.Report)}
}

// FindOne returns a copy of the stored report
func (m *MemoryReportDatabase) FindOne(ctx context.Context, reportID string) (*models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[reportID]
	if !ok {
		return nil, models.NewError(models.CodeNotFound, "report %s not found", reportID)
	}
	return r.Clone(), nil
}

// FindRecentNear returns copies of same-type reports created at or after
// q.Since, oldest first
func (m *MemoryReportDatabase) FindRecentNear(ctx context.Context, q NearQuery) ([]models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Report
	for _, r := range m.reports {
		if r.DisasterType != q.DisasterType || r.CreatedAt.Before(q.Since) {
			continue
		}
		out = append(out, *r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ReportID < out[j].ReportID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// List returns one page of matching reports, newest first
func (m *MemoryReportDatabase) List(ctx context.Context, q ListQuery) ([]models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	var out []models.Report
	for _, r := range m.reports {
		if q.Status != "" && r.Status != q.Status {
			continue
		}
		if q.DisasterType != "" && r.DisasterType != q.DisasterType {
			continue
		}
		out = append(out, *r.Clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ReportID < out[j].ReportID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	q.Limit, q.Page = normalizePage(q.Limit, q.Page)
	skip := (q.Page - 1) * q.Limit
	if skip < 0 || skip >= len(out) {
		return nil, nil
	}
	out = out[skip:]
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// InsertOne stores a copy of report
func (m *MemoryReportDatabase) InsertOne(ctx context.Context, report models.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[report.ReportID]; ok {
		return models.NewError(models.CodeStoreConflict, "report id already exists")
	}
	m.reports[report.ReportID] = report.Clone()
	return nil
}

// ReplaceOne swaps in report when the stored updatedAt equals prevUpdatedAt
func (m *MemoryReportDatabase) ReplaceOne(ctx context.Context, report models.Report, prevUpdatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.reports[report.ReportID]
	if !ok || !cur.UpdatedAt.Equal(prevUpdatedAt) {
		return models.ErrStoreConflict
	}
	m.reports[report.ReportID] = report.Clone()
	return nil
}

// DeleteOne removes a report
func (m *MemoryReportDatabase) DeleteOne(ctx context.Context, reportID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[reportID]; !ok {
		return models.NewError(models.CodeNotFound, "report %s not found", reportID)
	}
	delete(m.reports, reportID)
	return nil
}

// EnsureIndexes is a no-op
func (m *MemoryReportDatabase) EnsureIndexes(context.Context) error { return nil }

// Len returns the number of stored reports
func (m *MemoryReportDatabase) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.reports)
}
