package core

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vrsandeep/catalog-importer/internal/blob"
	"github.com/vrsandeep/catalog-importer/internal/config"
	"github.com/vrsandeep/catalog-importer/internal/db"
	"github.com/vrsandeep/catalog-importer/internal/importer"
	"github.com/vrsandeep/catalog-importer/internal/jobs"
	"github.com/vrsandeep/catalog-importer/internal/store"
	"github.com/vrsandeep/catalog-importer/internal/websocket"
	"github.com/vrsandeep/catalog-importer/migrations"
)

// App holds the core components of the application that are shared
// between the server and the CLI.
type App struct {
	config     *config.Config
	db         *sql.DB
	blob       blob.Storage
	wsHub      *websocket.Hub
	log        *logrus.Entry
	jobManager *jobs.JobManager

	store     *store.Store
	orch      *importer.Orchestrator
	submitter *importer.Submitter
}

// New sets up and returns a new App instance. It handles loading the
// configuration, initializing the database connection, and running migrations.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig builds the App from an already loaded configuration.
func NewWithConfig(cfg *config.Config) (*App, error) {
	log, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// We can't proceed without a valid database schema.
	if err := db.RunMigrations(database, migrations.FS); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	bs, err := blob.New(context.Background(), cfg.Storage)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to open blob storage: %w", err)
	}

	app := &App{
		config: cfg,
		db:     database,
		blob:   bs,
		wsHub:  websocket.NewHub(),
		log:    logrus.NewEntry(log),
		store:  store.New(database),
	}
	app.jobManager = jobs.NewManager(app)
	jobs.RegisterAll(app.jobManager)

	opts := importer.OptionsFromConfig(cfg)
	app.orch = importer.NewOrchestrator(app.store, bs, app.wsHub, opts, app.log)
	app.submitter = importer.NewSubmitter(app.store, bs, app.wsHub, opts, app.log)

	app.log.Info("Core application setup complete.")
	return app, nil
}

// NewLogger builds the process logger from the log.* settings.
func NewLogger(cfg *config.Config) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Log.Format)
	}
	return log, nil
}

func (a *App) Config() *config.Config               { return a.config }
func (a *App) DB() *sql.DB                          { return a.db }
func (a *App) Blob() blob.Storage                   { return a.blob }
func (a *App) WsHub() *websocket.Hub                { return a.wsHub }
func (a *App) Log() *logrus.Entry                   { return a.log }
func (a *App) JobManager() *jobs.JobManager         { return a.jobManager }
func (a *App) Store() *store.Store                  { return a.store }
func (a *App) Orchestrator() *importer.Orchestrator { return a.orch }
func (a *App) Submitter() *importer.Submitter       { return a.submitter }

// NewPool builds the background import workers from the import.* settings.
func (a *App) NewPool() *importer.Pool {
	ic := a.config.Import
	return importer.NewPool(a.orch, a.store, ic.Workers, ic.PollInterval, a.log)
}

// Close gracefully closes the application's resources, like the DB connection.
func (a *App) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
