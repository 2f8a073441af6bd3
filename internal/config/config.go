package config

import (
	"fmt"
	"time"
	"unicode/utf8"
)

const (
	// FrameRate is the only output rate the composer produces.
	FrameRate = 30

	// IntroDuration is how long the title card stays on screen.
	IntroDuration = 4 * time.Second

	// MaxIntroRunes is the upstream limit on intro text.
	MaxIntroRunes = 100

	DefaultPhotoDuration = 5 * time.Second
	MinPhotoDuration     = 3 * time.Second
	MaxPhotoDuration     = 10 * time.Second
)

// Orientation names one of the output size presets.
type Orientation string

const (
	Landscape Orientation = "landscape"
	Portrait  Orientation = "portrait"
	Square    Orientation = "square"
)

// Size returns the frame dimensions of a preset. Unknown presets fall back to landscape.
func (o Orientation) Size() (int, int) {
	switch o {
	case Portrait:
		return 1080, 1920
	case Square:
		return 1080, 1080
	default:
		return 1920, 1080
	}
}

// Settings are the presentation parameters of one composition run.
// They must not change while the run is in progress.
type Settings struct {
	IntroText     string
	PhotoDuration time.Duration
	Width         int
	Height        int
	// Loop is the total playback the slideshow should be repeated to fill.
	// Zero plays it once.
	Loop time.Duration
}

// NewSettings returns settings for a preset with the default photo duration.
func NewSettings(o Orientation) Settings {
	w, h := o.Size()
	return Settings{
		PhotoDuration: DefaultPhotoDuration,
		Width:         w,
		Height:        h,
	}
}

// Validate checks the frame size invariant: both sides even and at least 2.
func (s Settings) Validate() error {
	if s.Width < 2 || s.Height < 2 {
		return fmt.Errorf("output size %dx%d is too small", s.Width, s.Height)
	}
	if s.Width%2 != 0 || s.Height%2 != 0 {
		return fmt.Errorf("output size %dx%d must have even sides", s.Width, s.Height)
	}
	return nil
}

// Landscape reports whether the frame is wider than tall.
func (s Settings) Landscape() bool {
	return s.Width > s.Height
}

// ClampPhotoDuration pins d to the range offered to users.
func ClampPhotoDuration(d time.Duration) time.Duration {
	if d < MinPhotoDuration {
		return MinPhotoDuration
	}
	if d > MaxPhotoDuration {
		return MaxPhotoDuration
	}
	return d
}

// TruncateIntro cuts text to MaxIntroRunes runes without splitting a rune.
func TruncateIntro(text string) string {
	if utf8.RuneCountInString(text) <= MaxIntroRunes {
		return text
	}
	n := 0
	for i := range text {
		if n == MaxIntroRunes {
			return text[:i]
		}
		n++
	}
	return text
}

// Config is the CLI-level configuration of one invocation.
type Config struct {
	InputPath    string
	ProjectPath  string
	InitProject  string
	OutputVideo  string
	Orientation  Orientation
	Settings     Settings
	Encoder      string // auto, ffmpeg, mjpeg
	VideoEncoder string // ffmpeg codec, e.g. libx264
	FFmpegPath   string
	Quality      int
	RenderAhead  int
	DPI          int
	Publish      string
	S3Region     string
	S3Profile    string
	LogLevel     string
	ShowStats    bool
	BuildVersion string
}
