package video

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ivlev/slidecast/internal/renderer"
	"github.com/ivlev/slidecast/internal/timeline"
)

// sink is the format-specific half of a session. All methods are called from
// the writer goroutine only.
type sink interface {
	write(f *renderer.Frame) error
	finish() error
	abort()
}

// interrupter is implemented by sinks whose writes can block on an external
// process. interrupt may be called from any goroutine.
type interrupter interface {
	interrupt()
}

type item struct {
	frame  *renderer.Frame
	repeat int64
}

// session queues frames for a sink and drains them on its own goroutine.
type session struct {
	opts   Options
	sink   sink
	logger *slog.Logger

	queue chan item
	done  chan struct{}

	mu      sync.Mutex
	next    int64
	closed  bool
	aborted atomic.Bool

	failOnce sync.Once
	failed   chan struct{}
	werr     error
	err      error
}

func newSession(opts Options, s sink, queueSize int, logger *slog.Logger) *session {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ss := &session{
		opts:   opts,
		sink:   s,
		logger: logger,
		queue:  make(chan item, queueSize),
		done:   make(chan struct{}),
		failed: make(chan struct{}),
	}
	go ss.run()
	return ss
}

func (s *session) run() {
	defer close(s.done)

	var written int64
	for it := range s.queue {
		if s.writeErr() == nil && !s.aborted.Load() {
			for i := int64(0); i < it.repeat; i++ {
				if err := s.sink.write(it.frame); err != nil {
					s.fail(err)
					break
				}
				written++
			}
		}
		it.frame.Release()
	}

	switch {
	case s.aborted.Load():
		s.sink.abort()
		s.err = ErrClosed
	case s.writeErr() != nil:
		s.sink.abort()
		s.err = fmt.Errorf("%w: %v", ErrExport, s.writeErr())
	case written == 0:
		s.sink.abort()
		s.err = fmt.Errorf("%w: no frames were written", ErrExport)
	default:
		if err := s.sink.finish(); err != nil {
			s.err = fmt.Errorf("%w: %v", ErrExport, err)
		}
	}
	s.logger.Debug("session closed", "frames", written, "error", s.err)
}

func (s *session) fail(err error) {
	s.failOnce.Do(func() {
		s.werr = err
		close(s.failed)
	})
}

func (s *session) writeErr() error {
	select {
	case <-s.failed:
		return s.werr
	default:
		return nil
	}
}

func (s *session) Ready() bool {
	return len(s.queue) < cap(s.queue)
}

func (s *session) Append(f *renderer.Frame, pts timeline.Timestamp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.writeErr(); err != nil {
		return fmt.Errorf("%w: %v", ErrExport, err)
	}
	if pts.Rate != s.opts.Rate {
		return fmt.Errorf("%w: timestamp %v does not match rate %d", ErrNonMonotonic, pts, s.opts.Rate)
	}
	if pts.Frames < s.next {
		return fmt.Errorf("%w: got %v, expected at least frame %d", ErrNonMonotonic, pts, s.next)
	}
	if w, h := f.Size(); w != s.opts.Width || h != s.opts.Height {
		return fmt.Errorf("frame is %dx%d, session expects %dx%d", w, h, s.opts.Width, s.opts.Height)
	}

	if gap := pts.Frames - s.next; gap > 0 {
		if err := s.push(item{frame: renderer.Black(s.opts.Width, s.opts.Height), repeat: gap}); err != nil {
			return err
		}
	}
	if err := s.push(item{frame: f.Retain(), repeat: 1}); err != nil {
		return err
	}
	s.next = pts.Frames + 1
	return nil
}

func (s *session) push(it item) error {
	select {
	case s.queue <- it:
		return nil
	case <-s.failed:
		it.frame.Release()
		return fmt.Errorf("%w: %v", ErrExport, s.werr)
	}
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
}

func (s *session) Finish(ctx context.Context) error {
	s.close()
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		s.Abort()
		return ctx.Err()
	}
}

func (s *session) Abort() error {
	s.aborted.Store(true)
	s.fail(ErrClosed)
	if in, ok := s.sink.(interrupter); ok {
		in.interrupt()
	}
	s.close()
	<-s.done

	if err := os.Remove(s.opts.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("could not remove partial output", "path", s.opts.Path, "error", err)
		return err
	}
	return nil
}

// prepareOutput clears a stale file at path so a failed run never leaves
// an older video behind under the same name.
func prepareOutput(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrTrackCreation, err)
	}
	return nil
}
