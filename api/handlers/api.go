package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/linesmerrill/emergency-report-api/analyzer"
	"github.com/linesmerrill/emergency-report-api/api"
	"github.com/linesmerrill/emergency-report-api/api/scheduler"
	"github.com/linesmerrill/emergency-report-api/config"
	"github.com/linesmerrill/emergency-report-api/databases"
	"github.com/linesmerrill/emergency-report-api/events"
	"github.com/linesmerrill/emergency-report-api/lifecycle"
	"github.com/linesmerrill/emergency-report-api/logging"
	"github.com/linesmerrill/emergency-report-api/verification"
)

// RequestTimeout bounds every /api/v1 request. Intake waits on the analyzer
// and image reads, so it is well above the analyzer deadline.
const RequestTimeout = 30 * time.Second

// Store names reported by the health check
const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// App stores the router and db connection, so it can be reused
type App struct {
	Router    *mux.Router
	Config    config.Config
	Tuning    *config.TuningStore
	Service   *lifecycle.Service
	Auth      *api.Auth
	Events    events.Publisher
	Scheduler *scheduler.Scheduler

	client   databases.ClientHelper
	dbHelper databases.DatabaseHelper
	store    string
	stop     context.CancelFunc
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	r := mux.NewRouter()
	r.Use(api.LoggingMiddleware)
	rep := Report{Svc: a.Service}

	// healthchex
	r.HandleFunc("/health", api.HealthCheckHandler(a.store, a.Tuning))

	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	apiCreate.Use(api.TimeoutMiddleware(RequestTimeout))

	apiCreate.Handle("/auth/token", a.Auth.Middleware(http.HandlerFunc(a.Auth.CreateToken))).Methods("POST")

	apiCreate.Handle("/reports", a.Auth.Optional(http.HandlerFunc(rep.CreateReportHandler))).Methods("POST")
	apiCreate.Handle("/reports", http.HandlerFunc(rep.ListReportsHandler)).Methods("GET")
	apiCreate.Handle("/reports/{report_id}", http.HandlerFunc(rep.ReportByIDHandler)).Methods("GET")
	apiCreate.Handle("/reports/{report_id}", a.Auth.Middleware(http.HandlerFunc(rep.DeleteReportHandler))).Methods("DELETE")
	apiCreate.Handle("/reports/{report_id}/votes", a.Auth.Middleware(http.HandlerFunc(rep.VoteHandler))).Methods("POST")
	apiCreate.Handle("/reports/{report_id}/actions", a.Auth.Middleware(http.HandlerFunc(rep.ActionHandler))).Methods("POST")

	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {
	log := logging.New("app")

	if a.Config.Tuning == nil {
		a.Config.Tuning = config.DefaultTuning()
	}
	if err := a.Config.Validate(); err != nil {
		log.Errorw("invalid configuration", "error", err)
		return err
	}
	a.Tuning = config.NewTuningStore(a.Config.TuningPath, a.Config.Tuning)

	db, err := a.openStore()
	if err != nil {
		return err
	}

	a.Events = a.openEvents()
	pipeline := &lifecycle.Pipeline{
		Analyzer: newAnalyzer(&a.Config),
		Images:   verification.NewURIResolver(a.Config.MediaFileRoot),
	}
	ctx, stop := context.WithCancel(context.Background())
	a.stop = stop
	a.Service = lifecycle.NewService(db, a.Tuning, pipeline, a.Events, lifecycle.NewIdempotencyCache(ctx, a.Config.IdempotencyWindow))
	a.Auth = api.NewAuth(a.Tuning, a.Config.JWTSecret)
	if a.Config.JWTSecret == "" {
		log.Warn("JWT_SECRET is not set, bearer tokens are disabled")
	}

	a.Scheduler = scheduler.NewScheduler(a.Tuning)
	a.Scheduler.Start()

	log.Infow("evlc initialized",
		"store", a.store,
		"analyzer", pipeline.Analyzer.Version(),
		"thresholdSetVersion", a.Tuning.Load().Version())

	// initialize api router
	a.initializeRoutes()
	return nil
}

// openStore connects to mongo when DB_URI is set and falls back to the
// in-memory store otherwise
func (a *App) openStore() (databases.ReportDatabase, error) {
	if a.Config.URL == "" {
		zap.S().Warn("DB_URI is not set, reports are kept in memory")
		a.store = StoreMemory
		return databases.NewMemoryReportDatabase(), nil
	}

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return nil, err
	}
	ctx, cancel := api.WithQueryTimeout(context.Background())
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return nil, err
	}
	a.client = client
	a.dbHelper = databases.NewDatabase(&a.Config, client)
	zap.S().Info("evlc has connected to the database")

	rdb := databases.NewReportDatabase(a.dbHelper)
	if err := rdb.EnsureIndexes(ctx); err != nil {
		zap.S().With(err).Error("failed to create report indexes")
		return nil, err
	}
	a.store = StoreMongo
	return rdb, nil
}

func (a *App) openEvents() events.Publisher {
	if a.Config.AMQPURL == "" {
		return events.Noop{}
	}
	p, err := events.NewRabbitMQ(a.Config.AMQPURL)
	if err != nil {
		zap.S().Errorw("failed to connect to rabbitmq, events are disabled", "error", err)
		return events.Noop{}
	}
	return p
}

func newAnalyzer(c *config.Config) analyzer.Port {
	if c.AnalyzerMode == config.AnalyzerDisabled {
		return analyzer.Disabled{}
	}
	return analyzer.WithDeadline(analyzer.NewOpenAI(c.AnalyzerAPIURL, c.AnalyzerAPIKey, c.AnalyzerModel), c.AnalyzerTimeout)
}

// Shutdown stops background jobs and releases connections
func (a *App) Shutdown(ctx context.Context) error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.stop != nil {
		a.stop()
	}
	var errs []error
	if a.Events != nil {
		errs = append(errs, a.Events.Close())
	}
	if a.client != nil {
		errs = append(errs, a.client.Disconnect(ctx))
	}
	return errors.Join(errs...)
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}
