package video

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/ivlev/slidecast/internal/renderer"
)

const maxStderrBytes = 8 * 1024

// FFmpegEncoder pipes raw RGBA frames into an ffmpeg process that writes an
// H.264 MP4.
type FFmpegEncoder struct {
	// Binary is the ffmpeg executable; "ffmpeg" when empty.
	Binary string
	// Codec is the ffmpeg video encoder, libx264 when empty.
	Codec   string
	Quality int
	// QueueSize bounds the frames buffered ahead of the pipe.
	QueueSize int
	Logger    *slog.Logger
}

func (e *FFmpegEncoder) Name() string { return "ffmpeg/" + e.codec() }

func (e *FFmpegEncoder) binary() string {
	if e.Binary == "" {
		return "ffmpeg"
	}
	return e.Binary
}

func (e *FFmpegEncoder) codec() string {
	if e.Codec == "" {
		return "libx264"
	}
	return e.Codec
}

func (e *FFmpegEncoder) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Args returns the ffmpeg command line for opts, without the binary.
func (e *FFmpegEncoder) Args(opts Options) []string {
	out := ffmpeg.KwArgs{
		"c:v":      e.codec(),
		"pix_fmt":  "yuv420p",
		"r":        opts.Rate,
		"movflags": "+faststart",
	}
	switch e.codec() {
	case "h264_videotoolbox":
		out["b:v"] = fmt.Sprintf("%dk", e.Quality*100)
	case "h264_nvenc":
		out["cq"] = e.Quality
	default:
		out["crf"] = e.Quality
		out["preset"] = "medium"
	}

	return ffmpeg.Input("pipe:0", ffmpeg.KwArgs{
		"f":         "rawvideo",
		"pix_fmt":   "rgba",
		"s":         fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"framerate": opts.Rate,
	}).Output(opts.Path, out).OverWriteOutput().GetArgs()
}

func (e *FFmpegEncoder) Open(ctx context.Context, opts Options) (Session, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	bin, err := exec.LookPath(e.binary())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrackCreation, err)
	}
	if err := prepareOutput(opts.Path); err != nil {
		return nil, err
	}

	pctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(pctx, bin, e.Args(opts)...)
	stderr := &tailWriter{limit: maxStderrBytes}
	cmd.Stderr = stderr
	cmd.Stdout = io.Discard

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrTrackCreation, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: ffmpeg start: %v", ErrTrackCreation, err)
	}

	logger := e.logger().With("encoder", e.Name())
	logger.Debug("ffmpeg started", "args", strings.Join(cmd.Args, " "))

	s := &ffmpegSink{cmd: cmd, stdin: stdin, stderr: stderr, cancel: cancel, logger: logger}
	return newSession(opts, s, e.QueueSize, logger), nil
}

type ffmpegSink struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailWriter
	cancel context.CancelFunc
	logger *slog.Logger
}

func (s *ffmpegSink) write(f *renderer.Frame) error {
	return writeRawRGBA(s.stdin, f)
}

func (s *ffmpegSink) finish() error {
	defer s.cancel()
	if err := s.stdin.Close(); err != nil {
		return err
	}
	if err := s.cmd.Wait(); err != nil {
		tail := s.stderr.String()
		s.logger.Warn("ffmpeg failed", "error", err, "stderr_tail", truncate(tail, 512))
		return fmt.Errorf("ffmpeg: %v: %s", err, truncate(tail, 512))
	}
	return nil
}

func (s *ffmpegSink) abort() {
	s.cancel()
	s.stdin.Close()
	s.cmd.Wait()
}

func (s *ffmpegSink) interrupt() { s.cancel() }

// writeRawRGBA writes the frame as tightly packed RGBA rows.
func writeRawRGBA(w io.Writer, f *renderer.Frame) error {
	img := f.Image()
	width, height := f.Size()
	rowLen := width * 4
	if img.Stride == rowLen {
		_, err := w.Write(img.Pix[:rowLen*height])
		return err
	}
	for y := 0; y < height; y++ {
		off := y * img.Stride
		if _, err := w.Write(img.Pix[off : off+rowLen]); err != nil {
			return err
		}
	}
	return nil
}

// tailWriter keeps only the last limit bytes written to it.
type tailWriter struct {
	buf   bytes.Buffer
	limit int
}

func (t *tailWriter) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if t.buf.Len() > t.limit {
		b := t.buf.Bytes()
		tail := append([]byte(nil), b[len(b)-t.limit:]...)
		t.buf.Reset()
		t.buf.Write(tail)
	}
	return n, nil
}

func (t *tailWriter) String() string { return t.buf.String() }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
