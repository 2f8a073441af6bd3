package video

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"log/slog"

	"github.com/icza/mjpeg"

	"github.com/ivlev/slidecast/internal/renderer"
)

// DefaultJPEGQuality is used when MJPEGEncoder.Quality is zero.
const DefaultJPEGQuality = 90

// MJPEGEncoder writes Motion-JPEG AVI files in-process. It needs no external
// tools, which makes it the fallback when ffmpeg is unavailable.
type MJPEGEncoder struct {
	Quality   int
	QueueSize int
	Logger    *slog.Logger
}

func (e *MJPEGEncoder) Name() string { return "mjpeg" }

func (e *MJPEGEncoder) Open(ctx context.Context, opts Options) (Session, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := prepareOutput(opts.Path); err != nil {
		return nil, err
	}

	aw, err := mjpeg.New(opts.Path, int32(opts.Width), int32(opts.Height), int32(opts.Rate))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrackCreation, err)
	}

	q := e.Quality
	if q <= 0 || q > 100 {
		q = DefaultJPEGQuality
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("encoder", e.Name())

	return newSession(opts, &mjpegSink{aw: aw, quality: q}, e.QueueSize, logger), nil
}

// mjpegSink compresses each distinct frame once; repeats of the same frame
// reuse the cached JPEG.
type mjpegSink struct {
	aw      mjpeg.AviWriter
	quality int

	lastID uint64
	last   []byte
	buf    bytes.Buffer
}

func (s *mjpegSink) write(f *renderer.Frame) error {
	if s.last == nil || f.ID() != s.lastID {
		s.buf.Reset()
		if err := jpeg.Encode(&s.buf, f.Image(), &jpeg.Options{Quality: s.quality}); err != nil {
			return fmt.Errorf("jpeg encode: %w", err)
		}
		s.last = append(s.last[:0], s.buf.Bytes()...)
		s.lastID = f.ID()
	}
	return s.aw.AddFrame(s.last)
}

func (s *mjpegSink) finish() error {
	return s.aw.Close()
}

func (s *mjpegSink) abort() {
	s.aw.Close()
}
