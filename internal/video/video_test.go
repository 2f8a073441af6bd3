package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ivlev/slidecast/internal/logging"
	"github.com/ivlev/slidecast/internal/renderer"
	"github.com/ivlev/slidecast/internal/timeline"
)

type recordingSink struct {
	mu       sync.Mutex
	ids      []uint64
	black    int
	finished bool
	aborted  bool
	gate     chan struct{}
	failAt   int
}

func (r *recordingSink) write(f *renderer.Frame) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && len(r.ids)+1 == r.failAt {
		return errors.New("disk full")
	}
	r.ids = append(r.ids, f.ID())
	if f.Image().RGBAAt(0, 0) == (color.RGBA{A: 0xff}) {
		r.black++
	}
	return nil
}

func (r *recordingSink) finish() error { r.finished = true; return nil }
func (r *recordingSink) abort()        { r.aborted = true }

func ts(n int64) timeline.Timestamp { return timeline.Timestamp{Frames: n, Rate: 30} }

func solid(w, h int, c color.RGBA) *renderer.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return renderer.NewFrame(img)
}

func testOptions(t *testing.T, name string) Options {
	return Options{Path: filepath.Join(t.TempDir(), name), Width: 16, Height: 8, Rate: 30}
}

func TestSessionAppendsInOrder(t *testing.T) {
	rec := &recordingSink{}
	s := newSession(testOptions(t, "out.bin"), rec, 4, logging.Discard())

	red := solid(16, 8, color.RGBA{R: 255, A: 255})
	for i := int64(0); i < 5; i++ {
		if err := s.Append(red, ts(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := s.Finish(context.Background()); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if len(rec.ids) != 5 || !rec.finished {
		t.Fatalf("expected 5 frames and a finished sink, got %d / %v", len(rec.ids), rec.finished)
	}
	if red.Refs() != 1 {
		t.Errorf("session leaked frame references: %d", red.Refs())
	}
}

func TestSessionRejectsNonIncreasingTimestamps(t *testing.T) {
	s := newSession(testOptions(t, "out.bin"), &recordingSink{}, 4, logging.Discard())
	defer s.Abort()

	f := solid(16, 8, color.RGBA{A: 255})
	if err := s.Append(f, ts(3)); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(f, ts(3)); !errors.Is(err, ErrNonMonotonic) {
		t.Errorf("expected ErrNonMonotonic for repeated pts, got %v", err)
	}
	if err := s.Append(f, ts(1)); !errors.Is(err, ErrNonMonotonic) {
		t.Errorf("expected ErrNonMonotonic for earlier pts, got %v", err)
	}
	if err := s.Append(f, timeline.Timestamp{Frames: 10, Rate: 25}); !errors.Is(err, ErrNonMonotonic) {
		t.Errorf("expected ErrNonMonotonic for foreign rate, got %v", err)
	}
}

func TestSessionFillsGapsWithBlack(t *testing.T) {
	rec := &recordingSink{}
	s := newSession(testOptions(t, "out.bin"), rec, 4, logging.Discard())

	white := solid(16, 8, color.RGBA{255, 255, 255, 255})
	if err := s.Append(white, ts(0)); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(white, ts(4)); err != nil {
		t.Fatal(err)
	}
	if err := s.Finish(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(rec.ids) != 5 {
		t.Fatalf("expected 5 frames, got %d", len(rec.ids))
	}
	if rec.black != 3 {
		t.Errorf("expected 3 black filler frames, got %d", rec.black)
	}
}

func TestSessionRejectsWrongFrameSize(t *testing.T) {
	s := newSession(testOptions(t, "out.bin"), &recordingSink{}, 4, logging.Discard())
	defer s.Abort()

	if err := s.Append(solid(8, 8, color.RGBA{A: 255}), ts(0)); err == nil {
		t.Error("expected size mismatch error")
	}
}

func TestSessionBackPressure(t *testing.T) {
	rec := &recordingSink{gate: make(chan struct{})}
	s := newSession(testOptions(t, "out.bin"), rec, 1, logging.Discard())

	f := solid(16, 8, color.RGBA{A: 255})
	if !s.Ready() {
		t.Fatal("fresh session should be ready")
	}
	// The writer takes the first frame and blocks in the sink; the second
	// one fills the queue.
	if err := s.Append(f, ts(0)); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(s.queue) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := s.Append(f, ts(1)); err != nil {
		t.Fatal(err)
	}
	if s.Ready() {
		t.Error("session with a full queue should not be ready")
	}

	close(rec.gate)
	for !s.Ready() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !s.Ready() {
		t.Error("session did not drain")
	}
	if err := s.Finish(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestSessionWriteFailure(t *testing.T) {
	rec := &recordingSink{failAt: 2}
	s := newSession(testOptions(t, "out.bin"), rec, 8, logging.Discard())

	f := solid(16, 8, color.RGBA{A: 255})
	for i := int64(0); i < 4; i++ {
		if err := s.Append(f, ts(i)); err != nil {
			if !errors.Is(err, ErrExport) {
				t.Fatalf("expected ErrExport from append, got %v", err)
			}
			break
		}
	}
	if err := s.Finish(context.Background()); !errors.Is(err, ErrExport) {
		t.Errorf("expected ErrExport from finish, got %v", err)
	}
	if !rec.aborted || rec.finished {
		t.Error("failed session should abort the sink")
	}
	if f.Refs() != 1 {
		t.Errorf("leaked references after failure: %d", f.Refs())
	}
}

func TestSessionFinishWithoutFrames(t *testing.T) {
	s := newSession(testOptions(t, "out.bin"), &recordingSink{}, 4, logging.Discard())
	if err := s.Finish(context.Background()); !errors.Is(err, ErrExport) {
		t.Errorf("expected ErrExport for empty session, got %v", err)
	}
}

func TestSessionAbortRemovesOutput(t *testing.T) {
	opts := testOptions(t, "partial.bin")
	if err := os.WriteFile(opts.Path, []byte("partial"), 0644); err != nil {
		t.Fatal(err)
	}
	rec := &recordingSink{}
	s := newSession(opts, rec, 4, logging.Discard())
	if err := s.Append(solid(16, 8, color.RGBA{A: 255}), ts(0)); err != nil {
		t.Fatal(err)
	}
	if err := s.Abort(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(opts.Path); !os.IsNotExist(err) {
		t.Errorf("partial output still exists: %v", err)
	}
	if !rec.aborted {
		t.Error("sink was not aborted")
	}
	if err := s.Append(solid(16, 8, color.RGBA{A: 255}), ts(1)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after abort, got %v", err)
	}
}

func TestOptionsValidation(t *testing.T) {
	bad := []Options{
		{Path: "a.mp4", Width: 15, Height: 8, Rate: 30},
		{Path: "a.mp4", Width: 16, Height: 0, Rate: 30},
		{Path: "", Width: 16, Height: 8, Rate: 30},
		{Path: "a.mp4", Width: 16, Height: 8, Rate: 0},
	}
	for _, o := range bad {
		if err := o.validate(); !errors.Is(err, ErrTrackCreation) {
			t.Errorf("%+v: expected ErrTrackCreation, got %v", o, err)
		}
	}
}

func TestFFmpegArgs(t *testing.T) {
	tests := []struct {
		codec string
		key   string
		value string
	}{
		{"", "-crf", "23"},
		{"h264_nvenc", "-cq", "23"},
		{"h264_videotoolbox", "-b:v", "2300k"},
	}
	for _, tt := range tests {
		e := &FFmpegEncoder{Codec: tt.codec, Quality: 23}
		args := e.Args(Options{Path: "/tmp/out.mp4", Width: 1920, Height: 1080, Rate: 30})

		for _, pair := range [][2]string{
			{"-f", "rawvideo"},
			{"-s", "1920x1080"},
			{"-i", "pipe:0"},
			{"-pix_fmt", "yuv420p"},
			{"-movflags", "+faststart"},
			{tt.key, tt.value},
		} {
			if !hasPair(args, pair[0], pair[1]) {
				t.Errorf("codec %q: missing %s %s in %v", tt.codec, pair[0], pair[1], args)
			}
		}
		if !contains(args, "-y") {
			t.Errorf("codec %q: expected overwrite flag in %v", tt.codec, args)
		}
		if !contains(args, "/tmp/out.mp4") {
			t.Errorf("codec %q: output path missing from %v", tt.codec, args)
		}
	}
}

func TestFFmpegMissingBinary(t *testing.T) {
	e := &FFmpegEncoder{Binary: filepath.Join(t.TempDir(), "no-such-ffmpeg"), Logger: logging.Discard()}
	_, err := e.Open(context.Background(), testOptions(t, "out.mp4"))
	if !errors.Is(err, ErrTrackCreation) {
		t.Errorf("expected ErrTrackCreation, got %v", err)
	}
}

func TestMJPEGWritesAVI(t *testing.T) {
	opts := testOptions(t, "out.avi")
	if err := os.WriteFile(opts.Path, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	e := &MJPEGEncoder{Logger: logging.Discard()}
	s, err := e.Open(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}

	red := solid(16, 8, color.RGBA{R: 255, A: 255})
	blue := solid(16, 8, color.RGBA{B: 255, A: 255})
	for i := int64(0); i < 3; i++ {
		if err := s.Append(red, ts(i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Append(blue, ts(5)); err != nil {
		t.Fatal(err)
	}
	if err := s.Finish(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(opts.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("RIFF")) || !bytes.Contains(data[:16], []byte("AVI ")) {
		t.Errorf("output is not an AVI file: % x", data[:16])
	}
	if n := bytes.Count(data, []byte("00dc")); n < 6 {
		t.Errorf("expected at least 6 frame chunks, found %d", n)
	}
	if red.Refs() != 1 || blue.Refs() != 1 {
		t.Error("encoder leaked frame references")
	}
}

func TestMJPEGRejectsOddSize(t *testing.T) {
	opts := testOptions(t, "odd.avi")
	opts.Width = 15
	_, err := (&MJPEGEncoder{}).Open(context.Background(), opts)
	if !errors.Is(err, ErrTrackCreation) {
		t.Errorf("expected ErrTrackCreation, got %v", err)
	}
	if _, err := os.Stat(opts.Path); !os.IsNotExist(err) {
		t.Error("no file should be created for a rejected configuration")
	}
}

func TestTailWriterKeepsEnd(t *testing.T) {
	w := &tailWriter{limit: 4}
	w.Write([]byte("abc"))
	w.Write([]byte("defg"))
	if got := w.String(); got != "defg" {
		t.Errorf("expected defg, got %q", got)
	}
}

func hasPair(args []string, key, value string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == key && args[i+1] == value {
			return true
		}
	}
	return false
}

func contains(args []string, s string) bool {
	for _, a := range args {
		if a == s {
			return true
		}
	}
	return false
}
