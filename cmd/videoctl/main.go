package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"media-pipeline/internal/database"
	"media-pipeline/internal/layout"
	"media-pipeline/internal/mediaexec"
	"media-pipeline/internal/queue"
	"media-pipeline/internal/startup"
	"media-pipeline/internal/transcoder"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	// Create a context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	config, err := startup.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to database: %v\n", err)
		fmt.Fprintf(os.Stderr, "Make sure DATABASE_DIR is set correctly (current: %s)\n", config.DatabaseDir)
		os.Exit(1)
	}

	runner := mediaexec.NewCommandRunner()
	a := &app{
		config: config,
		db:     db,
		layout: layout.New(config.MediaRoot),
		trans: transcoder.New(transcoder.Config{
			FFmpegPath:    config.FFmpegPath,
			FFprobePath:   config.FFprobePath,
			ProbeTimeout:  config.ProbeTimeout,
			EncodeTimeout: config.EncodeTimeout,
		}, runner),
		runner:      runner,
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		interactive: term.IsTerminal(int(os.Stdin.Fd())),
		newQueue:    newQueue,
	}

	code := a.run(ctx, os.Args[1], os.Args[2:])
	a.trans.Cleanup()
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
	os.Exit(code)
}

// newQueue creates the configured backend. A memory queue runs the jobs in
// this process.
func newQueue(ctx context.Context, config *startup.Config, opts queue.Options) (queue.Queue, error) {
	if config.QueueBackend == startup.QueueSQS {
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
	return queue.NewMemoryQueue(opts, 0), nil
}

// sanitizeCommand returns a safe representation of a command string for
// display: anything outside [a-zA-Z0-9_-] becomes '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Media Pipeline Operator CLI")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: videoctl <command> [arguments]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  reprocess <id>                - Re-run every processing job of a video")
	fmt.Fprintln(w, "  purge [-y] <id>               - Delete a video and all of its artifacts")
	fmt.Fprintln(w, "  failed                        - List jobs that exhausted their retries")
	fmt.Fprintln(w, "  package <src> <outdir> <res>  - Package one source into HLS")
	fmt.Fprintln(w, "  probe <src>                   - Print the duration of a media file")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  MEDIA_ROOT   - Media root (default: /media)")
	fmt.Fprintln(w, "  DATABASE_DIR - Path to database directory (default: /database)")
}
