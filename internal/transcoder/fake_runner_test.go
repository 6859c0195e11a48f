package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"media-pipeline/internal/mediaexec"
)

// fakeRunner imitates ffprobe and ffmpeg by writing the files the real
// tools would produce.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string

	probeOut   string
	probeErr   error
	encodeErr  error
	segments   int
	emptyIndex int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{probeOut: "12.5\n", segments: 3, emptyIndex: -1}
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (mediaexec.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return mediaexec.Result{}, err
	}

	switch filepath.Base(name) {
	case "ffprobe":
		return mediaexec.Result{Stdout: []byte(f.probeOut)}, f.probeErr
	case "ffmpeg":
		if f.encodeErr != nil {
			return mediaexec.Result{Stderr: []byte("Conversion failed!")}, f.encodeErr
		}
		out := args[len(args)-1]
		if slices.Contains(args, "hls") {
			return mediaexec.Result{}, f.writePackage(filepath.Dir(out))
		}
		return mediaexec.Result{}, os.WriteFile(out, []byte("mp4 rendition"), 0o644)
	}
	return mediaexec.Result{}, errors.New("unexpected tool " + name)
}

func (f *fakeRunner) writePackage(dir string) error {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:10\n#EXT-X-MEDIA-SEQUENCE:0\n#EXT-X-PLAYLIST-TYPE:VOD\n")
	for i := 0; i < f.segments; i++ {
		name := fmt.Sprintf("segment_%03d.ts", i)
		data := []byte("ts data")
		if i == f.emptyIndex {
			data = nil
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(&b, "#EXTINF:4.166667,\n%s\n", name)
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return os.WriteFile(filepath.Join(dir, "index.m3u8"), []byte(b.String()), 0o644)
}

func (f *fakeRunner) lastCall(tool string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if filepath.Base(f.calls[i][0]) == tool {
			return f.calls[i][1:]
		}
	}
	return nil
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}
