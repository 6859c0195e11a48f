package pipeline

import (
	"context"

	"media-pipeline/internal/database"
	"media-pipeline/internal/layout"
	"media-pipeline/internal/queue"
)

// Ladder is the fixed set of widths every upload is rendered and packaged at.
var Ladder = []int{120, 360, 480, 720, 1080}

// Store is the part of the record store the pipeline reads.
type Store interface {
	GetVideo(ctx context.Context, id int64) (*database.Video, error)
}

// Renderer produces one scaled MP4 rendition.
type Renderer interface {
	Render(ctx context.Context, source string, width int) (string, error)
}

// Packager produces one HLS package.
type Packager interface {
	Package(ctx context.Context, source, outputDir, resolution string) (string, error)
}

// Thumbnailer extracts a poster frame and stores it on the record.
type Thumbnailer interface {
	Generate(ctx context.Context, videoID int64) (string, error)
}

// Config wires a Pipeline to its collaborators.
type Config struct {
	Layout      layout.Layout
	Store       Store
	Queue       queue.Queue
	Renderer    Renderer
	Packager    Packager
	Thumbnailer Thumbnailer
	// Widths overrides Ladder, mainly for tests.
	Widths []int
}

// Pipeline is the explicitly constructed processing context. It implements
// database.LifecycleListener.
type Pipeline struct {
	layout      layout.Layout
	store       Store
	queue       queue.Queue
	renderer    Renderer
	packager    Packager
	thumbnailer Thumbnailer
	widths      []int
	locks       *keyedMutex
	reaped      *reapMarks
}

var _ database.LifecycleListener = (*Pipeline)(nil)

// New creates a Pipeline from cfg.
func New(cfg Config) *Pipeline {
	widths := cfg.Widths
	if len(widths) == 0 {
		widths = Ladder
	}
	return &Pipeline{
		layout:      cfg.Layout,
		store:       cfg.Store,
		queue:       cfg.Queue,
		renderer:    cfg.Renderer,
		packager:    cfg.Packager,
		thumbnailer: cfg.Thumbnailer,
		widths:      append([]int(nil), widths...),
		locks:       newKeyedMutex(),
		reaped:      newReapMarks(),
	}
}

// Start begins consuming jobs from the queue.
func (p *Pipeline) Start(ctx context.Context) error {
	return p.queue.Start(ctx, p.Handle)
}

// Layout returns the on-disk layout the pipeline writes to.
func (p *Pipeline) Layout() layout.Layout {
	return p.layout
}
