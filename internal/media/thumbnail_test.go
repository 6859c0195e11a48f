package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"golang.org/x/image/bmp"

	"media-pipeline/internal/database"
	"media-pipeline/internal/layout"
	"media-pipeline/internal/mediaexec"
)

type memStore struct {
	mu          sync.Mutex
	videos      map[int64]*database.Video
	deleteOnSet bool
}

func newMemStore(videos ...*database.Video) *memStore {
	s := &memStore{videos: map[int64]*database.Video{}}
	for _, v := range videos {
		s.videos[v.ID] = v
	}
	return s
}

func (s *memStore) GetVideo(_ context.Context, id int64) (*database.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *memStore) SetThumbnail(_ context.Context, id int64, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteOnSet {
		delete(s.videos, id)
	}
	v, ok := s.videos[id]
	if !ok {
		return database.ErrNotFound
	}
	v.Thumbnail = ref
	return nil
}

// frameRunner returns a BMP frame, optionally failing calls that seek.
type frameRunner struct {
	mu       sync.Mutex
	calls    [][]string
	width    int
	failSeek bool
	failAll  bool
}

func (f *frameRunner) Run(_ context.Context, name string, args ...string) (mediaexec.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()

	if f.failAll || (f.failSeek && slices.Contains(args, "-ss")) {
		return mediaexec.Result{Stderr: []byte("Output file is empty")}, errors.New("exit status 1")
	}

	w := f.width
	if w == 0 {
		w = 64
	}
	img := image.NewRGBA(image.Rect(0, 0, w, w/2))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		return mediaexec.Result{}, err
	}
	return mediaexec.Result{Stdout: buf.Bytes()}, nil
}

func setupThumbnailer(t *testing.T, runner mediaexec.Runner, cfg ThumbnailConfig, videos ...*database.Video) (*Thumbnailer, *memStore, string) {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "videos"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, v := range videos {
		if v.VideoFile != "" {
			if err := os.WriteFile(filepath.Join(root, filepath.FromSlash(v.VideoFile)), []byte("video"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
	store := newMemStore(videos...)
	return NewThumbnailer(layout.New(root), store, runner, cfg), store, root
}

func TestGenerate(t *testing.T) {
	runner := &frameRunner{}
	th, store, root := setupThumbnailer(t, runner, ThumbnailConfig{},
		&database.Video{ID: 1, Title: "clip", VideoFile: "videos/clip.mp4"})

	path, err := th.Generate(context.Background(), 1)
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	want := filepath.Join(root, "images", "clip_thumb.jpg")
	if path != want {
		t.Errorf("Expected %s, got %s", want, path)
	}

	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("thumbnail not written: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("thumbnail is not a JPEG: %v", err)
	}

	v, _ := store.GetVideo(context.Background(), 1)
	if v.Thumbnail != "images/clip_thumb.jpg" {
		t.Errorf("Expected thumbnail reference, got %q", v.Thumbnail)
	}

	args := runner.calls[0]
	if !slices.Contains(args, "-ss") || !slices.Contains(args, FrameOffset) {
		t.Errorf("Expected seek to %s, got %v", FrameOffset, args)
	}
}

func TestGenerateIdempotent(t *testing.T) {
	th, _, root := setupThumbnailer(t, &frameRunner{}, ThumbnailConfig{},
		&database.Video{ID: 1, Title: "clip", VideoFile: "videos/clip.mp4"})

	for i := 0; i < 2; i++ {
		if _, err := th.Generate(context.Background(), 1); err != nil {
			t.Fatalf("Generate() run %d failed: %v", i, err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(root, "images"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected exactly one file in images/, got %d", len(entries))
	}
}

func TestGenerateNotFound(t *testing.T) {
	runner := &frameRunner{}
	th, _, root := setupThumbnailer(t, runner, ThumbnailConfig{})

	path, err := th.Generate(context.Background(), 99)
	if !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if path != "" {
		t.Errorf("Expected empty path, got %s", path)
	}
	if _, err := os.Stat(filepath.Join(root, "images")); !os.IsNotExist(err) {
		t.Error("Expected no images directory to be created")
	}
	if len(runner.calls) != 0 {
		t.Error("Expected no ffmpeg calls")
	}
}

func TestGenerateNoSource(t *testing.T) {
	runner := &frameRunner{}
	th, store, _ := setupThumbnailer(t, runner, ThumbnailConfig{},
		&database.Video{ID: 2, Title: "metadata only"})

	if _, err := th.Generate(context.Background(), 2); !errors.Is(err, ErrNoSource) {
		t.Fatalf("Expected ErrNoSource, got %v", err)
	}
	if len(runner.calls) != 0 {
		t.Error("Expected no ffmpeg calls")
	}
	v, _ := store.GetVideo(context.Background(), 2)
	if v.Thumbnail != "" {
		t.Error("Expected thumbnail to stay unset")
	}
}

func TestGenerateShortClipFallback(t *testing.T) {
	runner := &frameRunner{failSeek: true}
	th, _, _ := setupThumbnailer(t, runner, ThumbnailConfig{},
		&database.Video{ID: 1, Title: "blip", VideoFile: "videos/blip.mp4"})

	if _, err := th.Generate(context.Background(), 1); err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("Expected 2 ffmpeg calls, got %d", len(runner.calls))
	}
	if slices.Contains(runner.calls[1], "-ss") {
		t.Error("Expected fallback call without -ss")
	}
}

func TestGenerateExtractionFailure(t *testing.T) {
	th, store, root := setupThumbnailer(t, &frameRunner{failAll: true}, ThumbnailConfig{},
		&database.Video{ID: 1, Title: "broken", VideoFile: "videos/broken.mp4"})

	path, err := th.Generate(context.Background(), 1)
	if err == nil {
		t.Fatal("Expected error")
	}
	if path != "" {
		t.Errorf("Expected empty path, got %s", path)
	}
	if _, err := os.Stat(filepath.Join(root, "images", "broken_thumb.jpg")); !os.IsNotExist(err) {
		t.Error("Expected no thumbnail file")
	}
	v, _ := store.GetVideo(context.Background(), 1)
	if v.Thumbnail != "" {
		t.Error("Expected thumbnail to stay unset")
	}
}

func TestGenerateMissingSourceFile(t *testing.T) {
	th, _, _ := setupThumbnailer(t, &frameRunner{}, ThumbnailConfig{})
	th.store = newMemStore(&database.Video{ID: 5, Title: "gone", VideoFile: "videos/gone.mp4"})

	if _, err := th.Generate(context.Background(), 5); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
}

func TestGenerateMaxWidth(t *testing.T) {
	th, _, _ := setupThumbnailer(t, &frameRunner{width: 640}, ThumbnailConfig{MaxWidth: 160},
		&database.Video{ID: 1, Title: "wide", VideoFile: "videos/wide.mp4"})

	path, err := th.Generate(context.Background(), 1)
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	cfg, err := jpeg.DecodeConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 160 || cfg.Height != 80 {
		t.Errorf("Expected 160x80, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestGenerateRecordDeletedMidway(t *testing.T) {
	th, store, root := setupThumbnailer(t, &frameRunner{}, ThumbnailConfig{},
		&database.Video{ID: 1, Title: "clip", VideoFile: "videos/clip.mp4"})
	store.deleteOnSet = true

	if _, err := th.Generate(context.Background(), 1); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "images", "clip_thumb.jpg")); !os.IsNotExist(err) {
		t.Error("Expected orphaned thumbnail to be removed")
	}
}

func TestFrameArgs(t *testing.T) {
	args := frameArgs("/m/videos/a.mp4", true)
	want := []string{"-v", "error", "-ss", "00:00:01", "-i", "/m/videos/a.mp4", "-frames:v", "1", "-f", "image2pipe", "-c:v", "bmp", "-"}
	if !slices.Equal(args, want) {
		t.Errorf("frameArgs() = %v, want %v", args, want)
	}
}

func TestGenerateWithFFmpeg(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping ffmpeg test in short mode")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}

	root := t.TempDir()
	source := filepath.Join(root, "videos", "bars.mp4")
	if err := os.MkdirAll(filepath.Dir(source), 0o755); err != nil {
		t.Fatal(err)
	}
	gen := exec.Command("ffmpeg", "-y", "-f", "lavfi", "-i", "testsrc=duration=2:size=320x240:rate=25",
		"-c:v", "libx264", "-pix_fmt", "yuv420p", source)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("could not generate sample clip: %v\n%s", err, out)
	}

	store := newMemStore(&database.Video{ID: 1, Title: "bars", VideoFile: "videos/bars.mp4"})
	th := NewThumbnailer(layout.New(root), store, nil, ThumbnailConfig{})

	path, err := th.Generate(context.Background(), 1)
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if path != filepath.Join(root, "images", "bars_thumb.jpg") {
		t.Errorf("Unexpected path %s", path)
	}
}
