// Package video turns a stream of rendered frames into a video file.
//
// An Encoder opens a Session for one destination. The caller appends frames
// with strictly increasing presentation times while Ready reports room in the
// write queue, then calls Finish, which blocks until the file is complete.
// Abort stops a session early and removes whatever was written.
package video

import (
	"context"
	"errors"
	"fmt"

	"github.com/ivlev/slidecast/internal/renderer"
	"github.com/ivlev/slidecast/internal/timeline"
)

var (
	// ErrTrackCreation means the output could not be configured: bad
	// dimensions, a missing encoder binary, an unwritable destination.
	ErrTrackCreation = errors.New("video track creation failed")
	// ErrExport means encoding or finalization failed after the session
	// started.
	ErrExport = errors.New("video export failed")
	// ErrNonMonotonic is returned when a presentation time does not advance.
	ErrNonMonotonic = errors.New("presentation time did not increase")
	// ErrClosed is returned when appending to a finished or aborted session.
	ErrClosed = errors.New("video session closed")
)

// DefaultQueueSize is the number of pending frames a session buffers before
// Ready reports back-pressure.
const DefaultQueueSize = 8

// Options describe the output of one session.
type Options struct {
	Path   string
	Width  int
	Height int
	Rate   int
}

func (o Options) validate() error {
	if o.Path == "" {
		return fmt.Errorf("%w: empty output path", ErrTrackCreation)
	}
	if o.Width < 2 || o.Height < 2 || o.Width%2 != 0 || o.Height%2 != 0 {
		return fmt.Errorf("%w: unsupported size %dx%d", ErrTrackCreation, o.Width, o.Height)
	}
	if o.Rate <= 0 {
		return fmt.Errorf("%w: frame rate %d", ErrTrackCreation, o.Rate)
	}
	return nil
}

// Encoder creates sessions.
type Encoder interface {
	Name() string
	Open(ctx context.Context, opts Options) (Session, error)
}

// Session is a single in-progress output file.
type Session interface {
	// Ready reports whether Append will not block.
	Ready() bool
	// Append queues f for presentation at pts. The session takes its own
	// reference to f; the caller keeps ownership of the one it holds.
	// Frame slots skipped between two appends are filled with black.
	Append(f *renderer.Frame, pts timeline.Timestamp) error
	// Finish flushes the queue and finalizes the file.
	Finish(ctx context.Context) error
	// Abort cancels encoding and removes the partial file.
	Abort() error
}
