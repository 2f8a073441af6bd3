// Package timeline turns an ordered list of photos into a gap-free sequence
// of frame-exact segments.
package timeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/ivlev/slidecast/internal/config"
	"github.com/ivlev/slidecast/internal/source"
)

// Timestamp is an exact presentation time: Frames / Rate seconds.
type Timestamp struct {
	Frames int64
	Rate   int
}

// Seconds converts t to floating-point seconds, for display only.
func (t Timestamp) Seconds() float64 {
	if t.Rate == 0 {
		return 0
	}
	return float64(t.Frames) / float64(t.Rate)
}

// Add returns t advanced by n frames.
func (t Timestamp) Add(n int64) Timestamp {
	return Timestamp{Frames: t.Frames + n, Rate: t.Rate}
}

// Before reports whether t is strictly earlier than u. Timestamps with
// different rates are compared exactly by cross-multiplication.
func (t Timestamp) Before(u Timestamp) bool {
	if t.Rate == u.Rate {
		return t.Frames < u.Frames
	}
	return t.Frames*int64(u.Rate) < u.Frames*int64(t.Rate)
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d/%d", t.Frames, t.Rate)
}

// FrameCount is the number of whole frames that fit in d at rate fps:
// floor(d × rate). Integer arithmetic keeps 3s at 30fps at exactly 90.
func FrameCount(d time.Duration, rate int) int64 {
	if d <= 0 || rate <= 0 {
		return 0
	}
	// Whole seconds and the remainder are scaled apart so long loops do not
	// overflow int64 nanoseconds.
	r := int64(rate)
	sec, frac := int64(d/time.Second), int64(d%time.Second)
	return sec*r + frac*r/int64(time.Second)
}

// Kind tells the orchestrator what to render for an entry.
type Kind int

const (
	Intro Kind = iota
	Photo
)

func (k Kind) String() string {
	if k == Intro {
		return "intro"
	}
	return "photo"
}

// Entry is one segment of the timeline: a single rendered image shown for
// Frames consecutive frames starting at Start.
type Entry struct {
	Kind Kind
	// Media indexes the caller's media list; -1 for the intro.
	Media int
	// Pass is the 0-based repetition when the slideshow loops.
	Pass   int
	Start  Timestamp
	Frames int64
}

// Duration of the entry as an exact timestamp delta.
func (e Entry) Duration() Timestamp {
	return Timestamp{Frames: e.Frames, Rate: e.Start.Rate}
}

// End is the first frame slot after the entry.
func (e Entry) End() Timestamp {
	return e.Start.Add(e.Frames)
}

// Timeline is the ordered, contiguous list of entries of one run.
type Timeline struct {
	Entries []Entry
	Rate    int
	Passes  int
}

// TotalFrames is the number of frames the encoder will receive.
func (tl *Timeline) TotalFrames() int64 {
	if len(tl.Entries) == 0 {
		return 0
	}
	return tl.Entries[len(tl.Entries)-1].End().Frames
}

// Duration is the total output length.
func (tl *Timeline) Duration() Timestamp {
	return Timestamp{Frames: tl.TotalFrames(), Rate: tl.Rate}
}

// Empty reports whether the timeline would produce no frames at all.
func (tl *Timeline) Empty() bool {
	return tl.TotalFrames() == 0
}

// Build lays out media at the fixed output frame rate.
func Build(media []source.MediaEntry, s config.Settings) *Timeline {
	return BuildAt(media, s, config.FrameRate)
}

// BuildAt lays out media at the given frame rate.
//
// A non-blank intro text adds a title card of config.IntroDuration first.
// Each media entry follows in order for its own Duration, or the global
// PhotoDuration when it has none. With a Loop target the whole sequence is
// repeated floor(Loop / sequence length) times, at least once.
func BuildAt(media []source.MediaEntry, s config.Settings, rate int) *Timeline {
	tl := &Timeline{Rate: rate, Passes: 1}

	var pass []Entry
	if strings.TrimSpace(s.IntroText) != "" {
		pass = append(pass, Entry{
			Kind:   Intro,
			Media:  -1,
			Frames: FrameCount(config.IntroDuration, rate),
		})
	}
	for i, m := range media {
		d := m.Duration
		if d <= 0 {
			d = s.PhotoDuration
		}
		pass = append(pass, Entry{
			Kind:   Photo,
			Media:  i,
			Frames: FrameCount(d, rate),
		})
	}

	var passFrames int64
	for _, e := range pass {
		passFrames += e.Frames
	}
	if passFrames == 0 {
		return tl
	}

	if s.Loop > 0 {
		if n := FrameCount(s.Loop, rate) / passFrames; n > 1 {
			tl.Passes = int(n)
		}
	}

	tl.Entries = make([]Entry, 0, len(pass)*tl.Passes)
	start := Timestamp{Rate: rate}
	for p := 0; p < tl.Passes; p++ {
		for _, e := range pass {
			e.Pass = p
			e.Start = start
			tl.Entries = append(tl.Entries, e)
			start = start.Add(e.Frames)
		}
	}
	return tl
}
