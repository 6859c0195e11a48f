package transcoder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	tc := New(Config{}, newFakeRunner())
	cfg := tc.Config()

	if cfg.FFmpegPath != DefaultFFmpegPath {
		t.Errorf("Expected FFmpegPath=%s, got %s", DefaultFFmpegPath, cfg.FFmpegPath)
	}
	if cfg.FFprobePath != DefaultFFprobePath {
		t.Errorf("Expected FFprobePath=%s, got %s", DefaultFFprobePath, cfg.FFprobePath)
	}
	if cfg.ProbeTimeout != DefaultProbeTimeout {
		t.Errorf("Expected ProbeTimeout=%v, got %v", DefaultProbeTimeout, cfg.ProbeTimeout)
	}
	if cfg.EncodeTimeout != DefaultEncodeTimeout {
		t.Errorf("Expected EncodeTimeout=%v, got %v", DefaultEncodeTimeout, cfg.EncodeTimeout)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{"Plain", "12.500000\n", 12.5, false},
		{"Whitespace", "  3.2  ", 3.2, false},
		{"Integer", "60", 60, false},
		{"MultiLine", "4.0\n5.0\n", 4.0, false},
		{"Empty", "", 0, true},
		{"NotANumber", "N/A\n", 0, true},
		{"Negative", "-1", 0, true},
		{"NaN", "NaN", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestProbeDuration(t *testing.T) {
	fr := newFakeRunner()
	tc := New(Config{}, fr)

	d, err := tc.Probe().Duration(context.Background(), "/media/videos/clip.mp4")
	if err != nil {
		t.Fatalf("Duration() failed: %v", err)
	}
	if d != 12.5 {
		t.Errorf("Expected 12.5, got %v", d)
	}

	args := fr.lastCall("ffprobe")
	if argValue(args, "-show_entries") != "format=duration" {
		t.Errorf("Expected format=duration query, got %v", args)
	}
	if args[len(args)-1] != "/media/videos/clip.mp4" {
		t.Errorf("Expected path as last argument, got %v", args)
	}
}

func TestProbeErrors(t *testing.T) {
	t.Run("ToolFailure", func(t *testing.T) {
		fr := newFakeRunner()
		fr.probeErr = errors.New("exit status 1")
		_, err := New(Config{}, fr).Probe().Duration(context.Background(), "x.mp4")

		var pe *ProbeError
		if !errors.As(err, &pe) {
			t.Fatalf("Expected ProbeError, got %v", err)
		}
	})

	t.Run("BadOutput", func(t *testing.T) {
		fr := newFakeRunner()
		fr.probeOut = "garbage"
		_, err := New(Config{}, fr).Probe().Duration(context.Background(), "x.mp4")

		var pe *ProbeError
		if !errors.As(err, &pe) {
			t.Fatalf("Expected ProbeError, got %v", err)
		}
	})
}

func TestObserverCalled(t *testing.T) {
	var tools, statuses []string
	tc := New(Config{Observe: func(tool, status string, _ time.Duration) {
		tools = append(tools, tool)
		statuses = append(statuses, status)
	}}, newFakeRunner())

	if _, err := tc.Probe().Duration(context.Background(), "x.mp4"); err != nil {
		t.Fatalf("Duration() failed: %v", err)
	}
	if len(tools) != 1 || tools[0] != "ffprobe" || statuses[0] != "success" {
		t.Errorf("Expected one successful ffprobe observation, got %v %v", tools, statuses)
	}
}

func TestRenderArgs(t *testing.T) {
	args := RenderArgs("/m/videos/clip.mp4", "/m/videos/out.mp4", 480)

	if argValue(args, "-vf") != "scale=480:-2" {
		t.Errorf("Expected scale=480:-2, got %s", argValue(args, "-vf"))
	}
	if argValue(args, "-c:a") != "copy" {
		t.Errorf("Expected audio copy, got %s", argValue(args, "-c:a"))
	}
	if argValue(args, "-crf") != "23" {
		t.Errorf("Expected crf 23, got %s", argValue(args, "-crf"))
	}
	if args[len(args)-1] != "/m/videos/out.mp4" {
		t.Errorf("Expected output last, got %v", args)
	}
}

func TestRender(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(source, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}

	fr := newFakeRunner()
	got, err := New(Config{}, fr).Renderer().Render(context.Background(), source, 720)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	want := filepath.Join(dir, "clip_720p.mp4")
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("Expected rendition on disk: %v", err)
	}

	// The encoder must write to a staging path, never to the final name.
	out := fr.lastCall("ffmpeg")
	if out[len(out)-1] == want {
		t.Error("Expected encoder output to be a staging path")
	}
	assertNoStaging(t, dir)
}

func TestRenderFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(source, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}

	fr := newFakeRunner()
	fr.encodeErr = errors.New("exit status 1")

	_, err := New(Config{}, fr).Renderer().Render(context.Background(), source, 360)
	var ee *EncodeError
	if !errors.As(err, &ee) {
		t.Fatalf("Expected EncodeError, got %v", err)
	}
	if ee.Stderr != "Conversion failed!" {
		t.Errorf("Expected captured stderr, got %q", ee.Stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "clip_360p.mp4")); !os.IsNotExist(err) {
		t.Error("Expected no rendition after failure")
	}
	assertNoStaging(t, dir)
}

func TestRenderMissingSource(t *testing.T) {
	_, err := New(Config{}, newFakeRunner()).Renderer().Render(context.Background(), filepath.Join(t.TempDir(), "gone.mp4"), 480)

	var ioe *IOError
	if !errors.As(err, &ioe) || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected IOError wrapping ErrNotExist, got %v", err)
	}
}

func TestRenderInvalidWidth(t *testing.T) {
	if _, err := New(Config{}, newFakeRunner()).Renderer().Render(context.Background(), "x.mp4", 0); err == nil {
		t.Error("Expected error for zero width")
	}
}

func assertNoStaging(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".partial-") || strings.Contains(e.Name(), ".old-") {
			t.Errorf("Unexpected staging entry %s", e.Name())
		}
	}
}
