package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ivlev/slidecast/internal/renderer"
	"github.com/ivlev/slidecast/internal/video"
)

// Kind is the class of a failed composition.
type Kind int

const (
	Unknown Kind = iota
	EmptyInput
	ImageLoadFailed
	TrackCreationFailed
	ExportFailed
	Cancelled
)

var kindNames = map[Kind]string{
	Unknown:             "Unknown",
	EmptyInput:          "EmptyInput",
	ImageLoadFailed:     "ImageLoadFailed",
	TrackCreationFailed: "TrackCreationFailed",
	ExportFailed:        "ExportFailed",
	Cancelled:           "Cancelled",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Sentinels for errors.Is matching against an *Error.
var (
	ErrUnknown             = errors.New("composition failed")
	ErrEmptyInput          = errors.New("nothing to compose")
	ErrImageLoadFailed     = errors.New("image could not be loaded")
	ErrTrackCreationFailed = errors.New("video track could not be created")
	ErrExportFailed        = errors.New("video export failed")
	ErrCancelled           = errors.New("composition cancelled")

	// ErrDestinationBusy is wrapped in an ExportFailed error when another run
	// already writes to the same output path.
	ErrDestinationBusy = errors.New("destination is in use by another composition")
)

var kindSentinels = map[Kind]error{
	Unknown:             ErrUnknown,
	EmptyInput:          ErrEmptyInput,
	ImageLoadFailed:     ErrImageLoadFailed,
	TrackCreationFailed: ErrTrackCreationFailed,
	ExportFailed:        ErrExportFailed,
	Cancelled:           ErrCancelled,
}

// Error is the single terminal failure of a composition run.
type Error struct {
	Kind Kind
	// Entry is the timeline entry being processed, or -1.
	Entry int
	Err   error
}

func (e *Error) Error() string {
	msg := kindSentinels[e.Kind].Error()
	if e.Entry >= 0 {
		msg = fmt.Sprintf("%s (entry %d)", msg, e.Entry)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return target == kindSentinels[e.Kind]
}

// KindOf returns the kind of err, Unknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// classify converts any lower-level failure into an *Error. A run whose
// context was cancelled is reported as Cancelled whatever the failing step
// returned.
func classify(ctx context.Context, entry int, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		if ctx.Err() != nil && e.Kind != Cancelled {
			return &Error{Kind: Cancelled, Entry: e.Entry, Err: ctx.Err()}
		}
		return e
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return &Error{Kind: Cancelled, Entry: entry, Err: err}
	}

	kind := Unknown
	switch {
	case errors.Is(err, renderer.ErrImageLoad):
		kind = ImageLoadFailed
	case errors.Is(err, video.ErrTrackCreation):
		kind = TrackCreationFailed
	case errors.Is(err, video.ErrExport), errors.Is(err, ErrDestinationBusy):
		kind = ExportFailed
	}
	return &Error{Kind: kind, Entry: entry, Err: err}
}
