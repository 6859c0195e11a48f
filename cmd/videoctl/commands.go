package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"media-pipeline/internal/database"
	"media-pipeline/internal/layout"
	"media-pipeline/internal/media"
	"media-pipeline/internal/mediaexec"
	"media-pipeline/internal/pipeline"
	"media-pipeline/internal/queue"
	"media-pipeline/internal/startup"
	"media-pipeline/internal/transcoder"
)

// pollInterval is how often a local reprocess checks for completion.
const pollInterval = 200 * time.Millisecond

type queueFactory func(ctx context.Context, config *startup.Config, opts queue.Options) (queue.Queue, error)

type app struct {
	config *startup.Config
	db     *database.Database
	layout layout.Layout
	trans  *transcoder.Transcoder
	runner mediaexec.Runner

	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	interactive bool
	newQueue    queueFactory
}

// run executes one command and returns the process exit code.
func (a *app) run(ctx context.Context, command string, args []string) int {
	var err error
	switch command {
	case "reprocess":
		err = a.reprocess(ctx, args)
	case "purge":
		err = a.purge(ctx, args)
	case "failed":
		err = a.failed(ctx)
	case "package":
		err = a.pack(ctx, args)
	case "probe":
		err = a.probe(ctx, args)
	case "help", "-h", "--help":
		printUsage(a.stdout)
		return 0
	default:
		fmt.Fprintf(a.stderr, "Unknown command: %s\n", sanitizeCommand(command))
		printUsage(a.stderr)
		return 1
	}
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid video id %q", s)
	}
	return id, nil
}

// tally counts terminal job outcomes of a local reprocess.
type tally struct {
	mu        sync.Mutex
	succeeded int
	failed    []string
}

func (t *tally) record(res queue.Result) {
	if res.Outcome == queue.OutcomeRetry {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if res.Outcome == queue.OutcomeSuccess {
		t.succeeded++
		return
	}
	t.failed = append(t.failed, fmt.Sprintf("%s: %v", res.Job.Key(), res.Err))
}

func (a *app) reprocess(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: videoctl reprocess <id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	ledger := pipeline.NewLedger(a.db)
	var t tally
	opts := queue.Options{
		Workers: a.config.Workers,
		Policy: queue.RetryPolicy{
			MaxAttempts:    a.config.JobMaxAttempts,
			InitialBackoff: a.config.JobInitialBackoff,
			MaxBackoff:     a.config.JobMaxBackoff,
		},
		OnResult: func(res queue.Result) {
			ledger.Record(res)
			t.record(res)
		},
	}

	q, err := a.newQueue(ctx, a.config, opts)
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	p := pipeline.New(pipeline.Config{
		Layout:   a.layout,
		Store:    a.db,
		Queue:    q,
		Renderer: a.trans.Renderer(),
		Packager: a.trans.Packager(),
		Thumbnailer: media.NewThumbnailer(a.layout, a.db, a.runner, media.ThumbnailConfig{
			FFmpegPath: a.config.FFmpegPath,
			MaxWidth:   a.config.ThumbnailMaxWidth,
		}),
	})

	local, isLocal := q.(*queue.MemoryQueue)
	if isLocal {
		if err := p.Start(ctx); err != nil {
			return err
		}
	}

	n, err := p.Reprocess(ctx, id)
	if err != nil && n == 0 {
		return err
	}
	if err != nil {
		fmt.Fprintf(a.stderr, "Warning: %v\n", err)
	}

	if !isLocal {
		fmt.Fprintf(a.stdout, "Enqueued %d jobs for video %d\n", n, id)
		return nil
	}

	fmt.Fprintf(a.stdout, "Running %d jobs for video %d...\n", n, id)
	if err := waitIdle(ctx, local); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(a.stdout, "Succeeded: %d, failed: %d\n", t.succeeded, len(t.failed))
	for _, f := range t.failed {
		fmt.Fprintf(a.stdout, "  %s\n", f)
	}
	if len(t.failed) > 0 {
		return fmt.Errorf("%d jobs failed", len(t.failed))
	}
	return nil
}

func waitIdle(ctx context.Context, q *queue.MemoryQueue) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for q.Pending() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (a *app) purge(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	yes := fs.Bool("y", false, "do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: videoctl purge [-y] <id>")
	}
	id, err := parseID(fs.Arg(0))
	if err != nil {
		return err
	}

	v, err := a.db.GetVideo(ctx, id)
	if err != nil {
		return fmt.Errorf("video %d: %w", id, err)
	}

	if !*yes {
		if !a.interactive {
			return errors.New("stdin is not a terminal; pass -y to confirm")
		}
		if !a.confirm(fmt.Sprintf("Delete video %d (%q) and all of its artifacts?", v.ID, v.Title)) {
			fmt.Fprintln(a.stdout, "Aborted.")
			return nil
		}
	}

	// The reaper runs inside the delete.
	a.db.Subscribe(pipeline.New(pipeline.Config{Layout: a.layout, Store: a.db}))
	if err := a.db.DeleteVideo(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Deleted video %d\n", id)
	return nil
}

func (a *app) confirm(prompt string) bool {
	fmt.Fprintf(a.stdout, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func (a *app) failed(ctx context.Context) error {
	runs, err := a.db.ListJobRuns(ctx, database.JobStatusFailed)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.stdout, "No failed jobs.")
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tATTEMPTS\tUPDATED\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.Key, r.Attempts, r.UpdatedAt.Format(time.RFC3339), oneLine(r.LastError))
	}
	return tw.Flush()
}

// oneLine flattens and truncates an error for table output.
func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}

func (a *app) pack(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: videoctl package <src> <outdir> <res>")
	}
	manifest, err := a.trans.Packager().Package(ctx, args[0], args[1], args[2])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, manifest)
	return nil
}

func (a *app) probe(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: videoctl probe <src>")
	}
	d, err := a.trans.Probe().Duration(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%.3f\n", d)
	return nil
}
