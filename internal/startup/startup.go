package startup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"media-pipeline/internal/logging"
	"media-pipeline/internal/workers"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// Queue backends.
const (
	QueueMemory = "memory"
	QueueSQS    = "sqs"
)

// workerLimit caps the automatic worker count.
const workerLimit = 16

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	MediaRoot       string
	DatabaseDir     string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogHealthChecks bool

	Workers           int
	JobMaxAttempts    int
	JobInitialBackoff time.Duration
	JobMaxBackoff     time.Duration

	FFmpegPath        string
	FFprobePath       string
	EncodeTimeout     time.Duration
	ProbeTimeout      time.Duration
	ThumbnailMaxWidth int
	UploadMaxBytes    int64

	QueueBackend   string
	SQSQueueURL    string
	SQSRegion      string
	SQSEndpoint    string
	SQSWaitSeconds int

	// Derived paths
	DatabasePath string
}

// LoadConfig loads an optional .env file, reads configuration from the
// environment, logs it, and prepares the media and database directories.
func LoadConfig() (*Config, error) {
	loadDotEnv(".env")
	printBanner()
	logSystemInfo()

	config, err := configFromEnv()
	if err != nil {
		return nil, err
	}
	logConfig(config)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")
	if err := PrepareDirectories(config); err != nil {
		return nil, err
	}
	return config, nil
}

// FromEnv loads an optional .env file and reads configuration from the
// environment without logging or touching the filesystem. Command-line
// tools use it.
func FromEnv() (*Config, error) {
	loadDotEnv(".env")
	return configFromEnv()
}

// loadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadDotEnv(path string) {
	err := godotenv.Load(path)
	switch {
	case err == nil:
		logging.Info("Loaded environment from %s", path)
	case errors.Is(err, fs.ErrNotExist):
		logging.Debug("No %s file found", path)
	default:
		logging.Warn("Failed to load %s: %v", path, err)
	}
}

// configFromEnv reads and validates configuration without touching the
// filesystem.
func configFromEnv() (*Config, error) {
	c := &Config{
		MediaRoot:         getEnv("MEDIA_ROOT", "/media"),
		DatabaseDir:       getEnv("DATABASE_DIR", "/database"),
		Port:              getEnv("PORT", "8080"),
		MetricsPort:       getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:    getEnvBool("METRICS_ENABLED", true),
		LogHealthChecks:   getEnvBool("LOG_HEALTH_CHECKS", true),
		Workers:           getEnvInt("PIPELINE_WORKERS", 0),
		JobMaxAttempts:    getEnvInt("JOB_MAX_ATTEMPTS", 3),
		JobInitialBackoff: getEnvDuration("JOB_INITIAL_BACKOFF", 5*time.Second),
		JobMaxBackoff:     getEnvDuration("JOB_MAX_BACKOFF", 2*time.Minute),
		FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:       getEnv("FFPROBE_PATH", "ffprobe"),
		EncodeTimeout:     getEnvDuration("ENCODE_TIMEOUT", 2*time.Hour),
		ProbeTimeout:      getEnvDuration("PROBE_TIMEOUT", 30*time.Second),
		ThumbnailMaxWidth: getEnvInt("THUMBNAIL_MAX_WIDTH", 0),
		UploadMaxBytes:    int64(getEnvInt("UPLOAD_MAX_MB", 2048)) << 20,
		QueueBackend:      strings.ToLower(getEnv("QUEUE_BACKEND", QueueMemory)),
		SQSQueueURL:       getEnv("SQS_QUEUE_URL", ""),
		SQSRegion:         getEnv("AWS_REGION", ""),
		SQSEndpoint:       getEnv("SQS_ENDPOINT", ""),
		SQSWaitSeconds:    getEnvInt("SQS_WAIT_SECONDS", 20),
	}

	if c.Workers <= 0 {
		c.Workers = workers.ForEncoding(workerLimit)
	}
	if c.JobMaxAttempts < 1 {
		return nil, fmt.Errorf("JOB_MAX_ATTEMPTS must be at least 1, got %d", c.JobMaxAttempts)
	}
	if c.JobMaxBackoff < c.JobInitialBackoff {
		return nil, fmt.Errorf("JOB_MAX_BACKOFF (%v) is shorter than JOB_INITIAL_BACKOFF (%v)", c.JobMaxBackoff, c.JobInitialBackoff)
	}
	if c.SQSWaitSeconds < 0 || c.SQSWaitSeconds > 20 {
		return nil, fmt.Errorf("SQS_WAIT_SECONDS must be between 0 and 20, got %d", c.SQSWaitSeconds)
	}
	switch c.QueueBackend {
	case QueueMemory:
	case QueueSQS:
		if c.SQSQueueURL == "" {
			return nil, fmt.Errorf("QUEUE_BACKEND=sqs requires SQS_QUEUE_URL")
		}
	default:
		return nil, fmt.Errorf("unknown QUEUE_BACKEND %q (want %s or %s)", c.QueueBackend, QueueMemory, QueueSQS)
	}

	var err error
	if c.MediaRoot, err = filepath.Abs(c.MediaRoot); err != nil {
		return nil, fmt.Errorf("failed to resolve media root path: %w", err)
	}
	if c.DatabaseDir, err = filepath.Abs(c.DatabaseDir); err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	c.DatabasePath = filepath.Join(c.DatabaseDir, "pipeline.db")
	return c, nil
}

func logConfig(c *Config) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  MEDIA_ROOT:          %s", c.MediaRoot)
	logging.Info("  DATABASE_DIR:        %s", c.DatabaseDir)
	logging.Info("  PORT:                %s", c.Port)
	logging.Info("  METRICS_PORT:        %s", c.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", c.MetricsEnabled)
	logging.Info("  PIPELINE_WORKERS:    %d", c.Workers)
	logging.Info("  JOB_MAX_ATTEMPTS:    %d", c.JobMaxAttempts)
	logging.Info("  JOB_INITIAL_BACKOFF: %v", c.JobInitialBackoff)
	logging.Info("  JOB_MAX_BACKOFF:     %v", c.JobMaxBackoff)
	logging.Info("  ENCODE_TIMEOUT:      %v", c.EncodeTimeout)
	logging.Info("  PROBE_TIMEOUT:       %v", c.ProbeTimeout)
	logging.Info("  FFMPEG_PATH:         %s", c.FFmpegPath)
	logging.Info("  FFPROBE_PATH:        %s", c.FFprobePath)
	logging.Info("  THUMBNAIL_MAX_WIDTH: %d", c.ThumbnailMaxWidth)
	logging.Info("  UPLOAD_MAX_MB:       %d", c.UploadMaxBytes>>20)
	logging.Info("  QUEUE_BACKEND:       %s", c.QueueBackend)
	if c.QueueBackend == QueueSQS {
		logging.Info("  SQS_QUEUE_URL:       %s", c.SQSQueueURL)
		logging.Info("  SQS_WAIT_SECONDS:    %d", c.SQSWaitSeconds)
		if c.SQSEndpoint != "" {
			logging.Info("  SQS_ENDPOINT:        %s", c.SQSEndpoint)
		}
	}
	logging.Info("  LOG_HEALTH_CHECKS:   %v", c.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())
}

// PrepareDirectories creates the media tree (videos/, images/) and the
// database directory and checks that both are writable.
func PrepareDirectories(c *Config) error {
	for _, dir := range []struct{ path, name string }{
		{c.MediaRoot, "media"},
		{filepath.Join(c.MediaRoot, "videos"), "videos"},
		{filepath.Join(c.MediaRoot, "images"), "images"},
		{c.DatabaseDir, "database"},
	} {
		if err := ensureDirectory(dir.path, dir.name); err != nil {
			return fmt.Errorf("%s directory error: %w", dir.name, err)
		}
	}

	if err := testWriteAccess(c.MediaRoot); err != nil {
		return fmt.Errorf("media root is not writable: %w", err)
	}
	logging.Info("  [OK] Media root is writable")

	if err := testWriteAccess(c.DatabaseDir); err != nil {
		return fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")
	return nil
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogEncoderInit reports whether the encoder tools can be executed. Missing
// tools only produce warnings: jobs fail and retry until they are installed.
func LogEncoderInit(ffmpegPath, ffprobePath string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("ENCODER INITIALIZATION")
	logging.Info("------------------------------------------------------------")

	for _, tool := range []string{ffmpegPath, ffprobePath} {
		version, err := checkTool(tool)
		if err != nil {
			logging.Warn("  %s check failed: %v", tool, err)
			logging.Warn("  Processing jobs will fail until it is available")
			continue
		}
		logging.Info("  [OK] %s", version)
	}
}

// LogQueueInit logs the job queue setup
func LogQueueInit(backend string, workerCount, maxAttempts int) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("JOB QUEUE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Backend:      %s", backend)
	logging.Info("  Workers:      %d", workerCount)
	logging.Info("  Max attempts: %d", maxAttempts)
}

// LogQueueStarted logs successful queue start
func LogQueueStarted() {
	logging.Info("  [OK] Job workers started")
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes at debug level
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group == "" {
				logging.Debug("  [root]")
			} else {
				logging.Debug("  [%s]", group)
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	if logHealthChecks {
		logging.Info("  Health check logging: ON")
	} else {
		logging.Info("  Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 3)
	if parts[0] == "api" && len(parts) > 1 {
		return "api/" + parts[1]
	}
	return parts[0]
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("  API:             http://0.0.0.0:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("  Metrics:         http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("  Metrics:         DISABLED")
	}
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	fmt.Println(`
------------------------------------------------------------
   media-pipeline
   upload -> renditions, thumbnail, HLS
------------------------------------------------------------`)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}
	if hostname, err := os.Hostname(); err == nil {
		logging.Debug("  Hostname:        %s", hostname)
	}
	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

// checkTool runs "<tool> -version" and returns the first output line.
func checkTool(tool string) (string, error) {
	path, err := exec.LookPath(tool)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH", tool)
	}
	logging.Debug("  %s path: %s", tool, path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get %s version: %w", tool, err)
	}
	first, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(first), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
