package databases

// go generate: mockery --name ReportDatabase

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/emergency-report-api/models"
)

const reportName = "reports"

// earthRadiusMeters converts $centerSphere distances to radians; it matches the dedup guard
const earthRadiusMeters = 6371008.8

// NearQuery selects dedup candidates: reports of one disaster type created at
// or after Since within RadiusMeters of a point
type NearQuery struct {
	DisasterType models.DisasterType
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
	Since        time.Time
}

// ListQuery selects a page of reports, newest first. Empty fields match all.
type ListQuery struct {
	Status       models.Status
	DisasterType models.DisasterType
	Limit        int
	Page         int
}

// ReportDatabase contains the methods to use with the report database.
// Every write is atomic per report.
type ReportDatabase interface {
	FindOne(ctx context.Context, reportID string) (*models.Report, error)
	FindRecentNear(ctx context.Context, q NearQuery) ([]models.Report, error)
	List(ctx context.Context, q ListQuery) ([]models.Report, error)
	InsertOne(ctx context.Context, report models.Report) error
	// ReplaceOne writes report only if the stored copy still carries
	// prevUpdatedAt; otherwise it returns models.ErrStoreConflict.
	ReplaceOne(ctx context.Context, report models.Report, prevUpdatedAt time.Time) error
	DeleteOne(ctx context.Context, reportID string) error
	EnsureIndexes(ctx context.Context) error
}

type reportDatabase struct {
	db DatabaseHelper
}

// NewReportDatabase initializes a new instance of report database with the provided db connection
func NewReportDatabase(db DatabaseHelper) ReportDatabase {
	return &reportDatabase{
		db: db,
	}
}

func (c *reportDatabase) FindOne(ctx context.Context, reportID string) (*models.Report, error) {
	report := &models.Report{}
	err := c.db.Collection(reportName).FindOne(ctx, bson.M{"reportId": reportID}).Decode(report)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewError(models.CodeNotFound, "report %s not found", reportID)
		}
		return nil, err
	}
	return report, nil
}

func (c *reportDatabase) FindRecentNear(ctx context.Context, q NearQuery) ([]models.Report, error) {
	filter := bson.M{
		"disasterType": q.DisasterType,
		"createdAt":    bson.M{"$gte": q.Since},
		"location": bson.M{
			"$geoWithin": bson.M{
				"$centerSphere": bson.A{
					bson.A{q.Longitude, q.Latitude},
					q.RadiusMeters / earthRadiusMeters,
				},
			},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := c.db.Collection(reportName).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var reports []models.Report
	if err := cursor.Decode(&reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (c *reportDatabase) List(ctx context.Context, q ListQuery) ([]models.Report, error) {
	filter := bson.M{}
	if q.Status != "" {
		filter["status"] = q.Status
	}
	if q.DisasterType != "" {
		filter["disasterType"] = q.DisasterType
	}
	opts := newMongoPaginate(q.Limit, q.Page).getPaginatedOpts().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "reportId", Value: 1}})
	cursor, err := c.db.Collection(reportName).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var reports []models.Report
	if err := cursor.Decode(&reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (c *reportDatabase) InsertOne(ctx context.Context, report models.Report) error {
	_, err := c.db.Collection(reportName).InsertOne(ctx, report)
	if mongo.IsDuplicateKeyError(err) {
		return models.WrapError(models.CodeStoreConflict, "report id already exists", err)
	}
	return err
}

func (c *reportDatabase) ReplaceOne(ctx context.Context, report models.Report, prevUpdatedAt time.Time) error {
	filter := bson.M{"reportId": report.ReportID, "updatedAt": prevUpdatedAt}
	res, err := c.db.Collection(reportName).ReplaceOne(ctx, filter, report)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return models.ErrStoreConflict
	}
	return nil
}

func (c *reportDatabase) DeleteOne(ctx context.Context, reportID string) error {
	res, err := c.db.Collection(reportName).DeleteOne(ctx, bson.M{"reportId": reportID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return models.NewError(models.CodeNotFound, "report %s not found", reportID)
	}
	return nil
}

// EnsureIndexes creates the unique report id index, the 2dsphere location
// index and the createdAt index used by the dedup window
func (c *reportDatabase) EnsureIndexes(ctx context.Context) error {
	return c.db.Collection(reportName).CreateIndexes(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reportId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("reportId_unique"),
		},
		{
			Keys:    bson.D{{Key: "location", Value: "2dsphere"}},
			Options: options.Index().SetName("location_2dsphere"),
		},
		{
			Keys:    bson.D{{Key: "disasterType", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("disasterType_createdAt"),
		},
	})
}
