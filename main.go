package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-pipeline/internal/database"
	"media-pipeline/internal/filesystem"
	"media-pipeline/internal/handlers"
	"media-pipeline/internal/layout"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/media"
	"media-pipeline/internal/mediaexec"
	"media-pipeline/internal/metrics"
	"media-pipeline/internal/middleware"
	"media-pipeline/internal/pipeline"
	"media-pipeline/internal/queue"
	"media-pipeline/internal/startup"
	"media-pipeline/internal/transcoder"
)

// collectorInterval is how often catalog gauges are refreshed.
const collectorInterval = time.Minute

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	// Metrics wiring comes first so startup I/O is observed too
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	filesystem.SetDefaultVolumeResolver(volumeResolver(config))
	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	// Initialize encoder tooling
	startup.LogEncoderInit(config.FFmpegPath, config.FFprobePath)
	runner := mediaexec.NewCommandRunner()
	trans := transcoder.New(transcoder.Config{
		FFmpegPath:    config.FFmpegPath,
		FFprobePath:   config.FFprobePath,
		ProbeTimeout:  config.ProbeTimeout,
		EncodeTimeout: config.EncodeTimeout,
		Observe:       metrics.ObserveEncoderCall,
	}, runner)

	l := layout.New(config.MediaRoot)
	thumbs := media.NewThumbnailer(l, db, runner, media.ThumbnailConfig{
		FFmpegPath: config.FFmpegPath,
		MaxWidth:   config.ThumbnailMaxWidth,
		Observe:    metrics.ObserveEncoderCall,
	})

	// Initialize job queue
	startup.LogQueueInit(config.QueueBackend, config.Workers, config.JobMaxAttempts)
	ledger := pipeline.NewLedger(db)
	q, err := newQueue(context.Background(), config, queueOptions(config, ledger))
	if err != nil {
		startup.LogFatal("Failed to initialize job queue: %v", err)
	}

	p := pipeline.New(pipeline.Config{
		Layout:      l,
		Store:       db,
		Queue:       q,
		Renderer:    trans.Renderer(),
		Packager:    trans.Packager(),
		Thumbnailer: thumbs,
	})
	db.Subscribe(p)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	if err := p.Start(workerCtx); err != nil {
		startup.LogFatal("Failed to start job workers: %v", err)
	}
	startup.LogQueueStarted()

	// Start metrics collector
	collector := metrics.NewCollector(&statsAdapter{db: db, runner: runner}, collectorInterval)
	collector.Start()

	var metricsServer *http.Server
	if config.MetricsEnabled {
		metricsServer = newMetricsServer(config.MetricsPort)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Setup router
	h := handlers.New(db, p, l, config.UploadMaxBytes)
	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	loggedHandler := middleware.Logger(loggingConfig)(router)
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(loggedHandler)

	// Create server
	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		// Uploads and segment streams are long-lived; no body or write timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go handleShutdown(srv, metricsServer, shutdownTargets{
		stopWorkers: stopWorkers,
		queue:       q,
		transcoder:  trans,
		collector:   collector,
		db:          db,
	})

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	// ListenAndServe returns as soon as Shutdown starts; wait for the rest.
	<-shutdownDone
}

var shutdownDone = make(chan struct{})

// volumeResolver labels filesystem metrics with the volume a path is on.
func volumeResolver(config *startup.Config) *filesystem.VolumeResolver {
	return filesystem.NewVolumeResolver(map[string]string{
		"media":    config.MediaRoot,
		"database": config.DatabaseDir,
	})
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	h.Register(r)
	return r
}

func newMetricsServer(port string) *http.Server {
	m := http.NewServeMux()
	m.Handle("/metrics", promhttp.Handler())
	m.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:         ":" + port,
		Handler:      m,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}

// queueOptions builds the worker and retry settings shared by both queue
// backends.
func queueOptions(config *startup.Config, ledger *pipeline.Ledger) queue.Options {
	return queue.Options{
		Workers: config.Workers,
		Policy: queue.RetryPolicy{
			MaxAttempts:    config.JobMaxAttempts,
			InitialBackoff: config.JobInitialBackoff,
			MaxBackoff:     config.JobMaxBackoff,
		},
		OnResult: ledger.Record,
		DeadLetter: func(job queue.Job, err error) {
			logging.Error("Job %s dead-lettered after %d attempt(s): %v", job, job.Attempt, err)
		},
	}
}

// newQueue creates the configured queue backend.
func newQueue(ctx context.Context, config *startup.Config, opts queue.Options) (queue.Queue, error) {
	switch config.QueueBackend {
	case startup.QueueMemory:
		return queue.NewMemoryQueue(opts, 0), nil
	case startup.QueueSQS:
		client, err := queue.NewSQSClient(ctx, config.SQSRegion, config.SQSEndpoint)
		if err != nil {
			return nil, err
		}
		return queue.NewSQSQueue(client, queue.SQSConfig{
			QueueURL:        config.SQSQueueURL,
			WaitTimeSeconds: int32(config.SQSWaitSeconds),
			Options:         opts,
		}), nil
	}
	return nil, fmt.Errorf("unknown queue backend %q", config.QueueBackend)
}

// statsAdapter exposes catalog figures to the metrics collector.
type statsAdapter struct {
	db     statsSource
	runner activeCounter
}

type statsSource interface {
	GetStats(ctx context.Context) (database.Stats, error)
}

type activeCounter interface {
	Active() int
}

// GetStats implements metrics.StatsProvider
func (a *statsAdapter) GetStats() metrics.Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var stats metrics.Stats
	if a.runner != nil {
		stats.ActiveProcs = a.runner.Active()
	}
	dbStats, err := a.db.GetStats(ctx)
	if err != nil {
		logging.Warn("Failed to collect catalog stats: %v", err)
		return stats
	}
	stats.TotalVideos = dbStats.TotalVideos
	stats.JobsByStatus = dbStats.JobsByStatus
	return stats
}

type shutdownTargets struct {
	stopWorkers context.CancelFunc
	queue       queue.Queue
	transcoder  *transcoder.Transcoder
	collector   *metrics.Collector
	db          *database.Database
}

func handleShutdown(srv, metricsServer *http.Server, t shutdownTargets) {
	defer close(shutdownDone)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	// Interrupted jobs stay pending in SQS and are re-run on the next start.
	startup.LogShutdownStep("Stopping job workers")
	t.stopWorkers()
	t.transcoder.Cleanup()
	if err := t.queue.Close(); err != nil {
		logging.Warn("Queue close error: %v", err)
	}
	startup.LogShutdownStepComplete("Job workers stopped")

	startup.LogShutdownStep("Stopping metrics collector")
	t.collector.Stop()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
	}
	startup.LogShutdownStepComplete("Metrics stopped")

	startup.LogShutdownStep("Closing database")
	if err := t.db.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	startup.LogShutdownComplete()
}
