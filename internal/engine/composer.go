// Package engine drives a composition run: it lays out the timeline, renders
// each entry once, feeds the frames to an encoder session and reports
// progress and a single typed outcome.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/slidecast/internal/config"
	"github.com/ivlev/slidecast/internal/logging"
	"github.com/ivlev/slidecast/internal/renderer"
	"github.com/ivlev/slidecast/internal/source"
	"github.com/ivlev/slidecast/internal/system"
	"github.com/ivlev/slidecast/internal/timeline"
	"github.com/ivlev/slidecast/internal/video"
)

// DefaultPollInterval is how long the appender sleeps while the encoder
// signals back-pressure.
const DefaultPollInterval = 10 * time.Millisecond

// State is the phase of a run.
type State int32

const (
	Idle State = iota
	Rendering
	Finalizing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Rendering:
		return "rendering"
	case Finalizing:
		return "finalizing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Options configure a Composer.
type Options struct {
	Encoder video.Encoder
	Logger  *slog.Logger
	// RenderAhead is how many entries may be rendered before the appender
	// needs them. Zero renders strictly one entry at a time.
	RenderAhead  int
	PollInterval time.Duration
}

// Request is one composition run.
type Request struct {
	Media    []source.MediaEntry
	Settings config.Settings
	Output   string
	Progress ProgressFunc
}

// Composer runs compositions. It is safe for concurrent use; runs that target
// the same output path are rejected while one is in progress.
type Composer struct {
	opts   Options
	logger *slog.Logger

	mu   sync.Mutex
	busy map[string]struct{}
}

func New(opts Options) *Composer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RenderAhead < 0 {
		opts.RenderAhead = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		opts:   opts,
		logger: logging.WithComponent(logger, "engine"),
		busy:   make(map[string]struct{}),
	}
}

// Compose runs req to completion on the calling goroutine and returns the
// output path. Any failure is an *Error; nothing is left at the output path
// after a failure when it can be removed.
func (c *Composer) Compose(ctx context.Context, req Request) (string, error) {
	return c.compose(ctx, req, nil)
}

func (c *Composer) compose(ctx context.Context, req Request, states func(State)) (string, error) {
	r := &run{
		c:      c,
		req:    req,
		logger: logging.WithJobID(c.logger, uuid.NewString()),
		states: states,
	}
	lease := system.AcquireLease()
	defer lease.Release()

	path, err := r.execute(ctx)
	if err != nil {
		r.progress.stop()
		r.setState(Failed)
		e := classify(ctx, -1, err)
		r.logger.Warn("composition failed", "kind", e.Kind, "entry", e.Entry, "error", e.Err)
		return "", e
	}
	r.setState(Done)
	return path, nil
}

// claim marks path as in use until the returned release is called.
func (c *Composer) claim(path string) (func(), error) {
	key, err := filepath.Abs(path)
	if err != nil {
		key = filepath.Clean(path)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.busy[key]; ok {
		return nil, fmt.Errorf("%s: %w", path, ErrDestinationBusy)
	}
	c.busy[key] = struct{}{}
	return func() {
		c.mu.Lock()
		delete(c.busy, key)
		c.mu.Unlock()
	}, nil
}

type run struct {
	c        *Composer
	req      Request
	logger   *slog.Logger
	progress *reporter
	states   func(State)
}

func (r *run) setState(s State) {
	r.logger.Debug("state", "state", s)
	if r.states != nil {
		r.states(s)
	}
}

func (r *run) execute(ctx context.Context) (string, error) {
	s := r.req.Settings
	tl := timeline.Build(r.req.Media, s)
	r.progress = newReporter(r.req.Progress, tl.TotalFrames())

	if tl.Empty() {
		return "", &Error{Kind: EmptyInput, Entry: -1}
	}
	if err := s.Validate(); err != nil {
		return "", &Error{Kind: TrackCreationFailed, Entry: -1, Err: err}
	}
	if err := source.CheckStill(r.req.Media); err != nil {
		return "", &Error{Kind: Unknown, Entry: -1, Err: err}
	}
	if r.c.opts.Encoder == nil {
		return "", &Error{Kind: TrackCreationFailed, Entry: -1, Err: errors.New("no encoder configured")}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	release, err := r.c.claim(r.req.Output)
	if err != nil {
		return "", err
	}
	defer release()

	r.logger.Info("composition started",
		"output", logging.SanitizePath(r.req.Output),
		"entries", len(tl.Entries),
		"frames", tl.TotalFrames(),
		"duration_s", tl.Duration().Seconds(),
		"size", fmt.Sprintf("%dx%d", s.Width, s.Height),
		"encoder", r.c.opts.Encoder.Name(),
	)
	start := time.Now()

	sess, err := r.c.opts.Encoder.Open(ctx, video.Options{
		Path:   r.req.Output,
		Width:  s.Width,
		Height: s.Height,
		Rate:   tl.Rate,
	})
	if err != nil {
		r.removeOutput()
		return "", classify(ctx, -1, err)
	}

	r.setState(Rendering)
	if err := r.appendAll(ctx, tl, sess); err != nil {
		r.discard(sess)
		return "", err
	}

	r.setState(Finalizing)
	if err := sess.Finish(ctx); err != nil {
		r.discard(sess)
		return "", classify(ctx, len(tl.Entries)-1, err)
	}
	r.progress.set(1)

	r.logger.Info("composition finished",
		"output", logging.SanitizePath(r.req.Output),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return r.req.Output, nil
}

func (r *run) discard(sess video.Session) {
	if err := sess.Abort(); err != nil {
		r.logger.Warn("abort failed", "error", err)
	}
	r.removeOutput()
}

// removeOutput deletes the output file. Failures are logged, never escalated.
func (r *run) removeOutput() {
	if err := os.Remove(r.req.Output); err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.logger.Warn("could not remove partial output", "path", r.req.Output, "error", err)
	}
}

type renderedEntry struct {
	index int
	entry timeline.Entry
	frame *renderer.Frame
}

// appendAll renders every entry once and appends its frame once per output
// frame slot. Rendering may run up to RenderAhead entries ahead; appends stay
// in timeline order on a single goroutine.
func (r *run) appendAll(ctx context.Context, tl *timeline.Timeline, sess video.Session) error {
	ahead := r.c.opts.RenderAhead
	if ahead == 0 {
		for i, e := range tl.Entries {
			if e.Frames == 0 {
				continue
			}
			if err := ctx.Err(); err != nil {
				return r.fail(ctx, i, err)
			}
			f, err := r.render(e)
			if err != nil {
				return r.fail(ctx, i, err)
			}
			if err := r.appendEntry(ctx, sess, renderedEntry{index: i, entry: e, frame: f}); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	rendered := make(chan renderedEntry, ahead-1)

	g.Go(func() error {
		defer close(rendered)
		for i, e := range tl.Entries {
			if e.Frames == 0 {
				continue
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := r.render(e)
			if err != nil {
				return r.fail(ctx, i, err)
			}
			select {
			case rendered <- renderedEntry{index: i, entry: e, frame: f}:
			case <-gctx.Done():
				f.Release()
				return gctx.Err()
			}
		}
		return nil
	})

	// next is the entry the appender is on; g.Wait orders the final read.
	next := 0
	g.Go(func() error {
		for re := range rendered {
			next = re.index
			// Cancellation is honoured between entries.
			if err := ctx.Err(); err != nil {
				re.frame.Release()
				return r.fail(ctx, re.index, err)
			}
			if err := r.appendEntry(gctx, sess, re); err != nil {
				return err
			}
			next = re.index + 1
		}
		return nil
	})

	err := g.Wait()
	for re := range rendered {
		re.frame.Release()
	}
	if err != nil {
		return r.fail(ctx, next, err)
	}
	return nil
}

// fail stops progress reporting at the failing step and classifies err.
func (r *run) fail(ctx context.Context, entry int, err error) error {
	r.progress.stop()
	return classify(ctx, entry, err)
}

// appendEntry appends re.frame for each of the entry's frame slots and drops
// the renderer's reference afterwards.
func (r *run) appendEntry(ctx context.Context, sess video.Session, re renderedEntry) error {
	defer re.frame.Release()

	for k := int64(0); k < re.entry.Frames; k++ {
		if err := r.waitReady(ctx, sess); err != nil {
			return r.fail(ctx, re.index, err)
		}
		if err := sess.Append(re.frame, re.entry.Start.Add(k)); err != nil {
			return r.fail(ctx, re.index, err)
		}
		r.progress.frames(1)
	}
	r.logger.Debug("entry appended", "entry", re.index, "kind", re.entry.Kind, "frames", re.entry.Frames)
	return nil
}

// waitReady sleeps in PollInterval steps until the session accepts a frame.
func (r *run) waitReady(ctx context.Context, sess video.Session) error {
	if sess.Ready() {
		return nil
	}
	t := time.NewTicker(r.c.opts.PollInterval)
	defer t.Stop()
	for !sess.Ready() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

func (r *run) render(e timeline.Entry) (*renderer.Frame, error) {
	s := r.req.Settings
	if e.Kind == timeline.Intro {
		return renderer.RenderIntro(s.IntroText, s.Width, s.Height)
	}
	m := r.req.Media[e.Media]
	img, err := m.Source.Load()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", m.Source.Name(), renderer.ErrImageLoad, err)
	}
	f, err := renderer.Render(img, s.Width, s.Height)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Source.Name(), err)
	}
	return f, nil
}
