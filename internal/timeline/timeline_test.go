package timeline

import (
	"image"
	"math"
	"testing"
	"time"

	"github.com/ivlev/slidecast/internal/config"
	"github.com/ivlev/slidecast/internal/source"
)

func photos(n int) []source.MediaEntry {
	media := make([]source.MediaEntry, n)
	for i := range media {
		media[i] = source.MediaEntry{
			ID:     string(rune('a' + i)),
			Source: &source.MemoryImage{ID: "m", Image: image.NewRGBA(image.Rect(0, 0, 2, 2))},
		}
	}
	return media
}

func TestFrameCount(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int64
	}{
		{3 * time.Second, 90},
		{4 * time.Second, 120},
		{3300 * time.Millisecond, 99},
		{10 * time.Second, 300},
		{33 * time.Millisecond, 0},
		{34 * time.Millisecond, 1},
		{0, 0},
		{-time.Second, 0},
		{2 * time.Hour, 216000},
	}
	for _, tt := range tests {
		if got := FrameCount(tt.d, 30); got != tt.want {
			t.Errorf("FrameCount(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

func TestFrameCountLongDurations(t *testing.T) {
	const day = 24 * time.Hour
	tests := []struct {
		d    time.Duration
		want int64
	}{
		{3650 * day, 3650 * 86400 * 30},
		{3650*day + 500*time.Millisecond, 3650*86400*30 + 15},
		{time.Duration(math.MaxInt64), 9223372036*30 + 25},
	}
	for _, tt := range tests {
		if got := FrameCount(tt.d, 30); got != tt.want {
			t.Errorf("FrameCount(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

func TestBuildThreePhotosNoIntro(t *testing.T) {
	s := config.Settings{PhotoDuration: 5 * time.Second, Width: 1920, Height: 1080}
	tl := Build(photos(3), s)

	if len(tl.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(tl.Entries))
	}
	if tl.TotalFrames() != 450 {
		t.Errorf("expected 450 frames, got %d", tl.TotalFrames())
	}
	if tl.Duration().Seconds() != 15.0 {
		t.Errorf("expected 15s, got %v", tl.Duration().Seconds())
	}
	for i, e := range tl.Entries {
		if e.Kind != Photo || e.Media != i {
			t.Errorf("entry %d: unexpected kind/media %v/%d", i, e.Kind, e.Media)
		}
		if e.Start.Frames != int64(i)*150 {
			t.Errorf("entry %d: expected start %d, got %d", i, i*150, e.Start.Frames)
		}
	}
}

func TestBuildWithIntro(t *testing.T) {
	s := config.Settings{IntroText: "Summer 2024", PhotoDuration: 3 * time.Second}
	tl := Build(photos(2), s)

	if len(tl.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(tl.Entries))
	}
	intro := tl.Entries[0]
	if intro.Kind != Intro || intro.Media != -1 || intro.Frames != 120 {
		t.Errorf("unexpected intro entry %+v", intro)
	}
	if tl.Entries[1].Start.Frames != 120 || tl.Entries[2].Start.Frames != 210 {
		t.Errorf("unexpected photo starts %d, %d", tl.Entries[1].Start.Frames, tl.Entries[2].Start.Frames)
	}
	if tl.TotalFrames() != 300 || tl.Duration().Seconds() != 10.0 {
		t.Errorf("expected 300 frames / 10s, got %d / %v", tl.TotalFrames(), tl.Duration().Seconds())
	}
}

func TestBuildBlankIntroIsSkipped(t *testing.T) {
	for _, text := range []string{"   ", "\t\n"} {
		tl := Build(photos(2), config.Settings{IntroText: text, PhotoDuration: 3 * time.Second})
		if len(tl.Entries) != 2 || tl.Entries[0].Kind != Photo {
			t.Errorf("intro %q: expected photos only, got %+v", text, tl.Entries)
		}
		if tl.TotalFrames() != 180 {
			t.Errorf("intro %q: expected 180 frames, got %d", text, tl.TotalFrames())
		}
	}
}

func TestIntroDurationIgnoresPhotoDuration(t *testing.T) {
	for _, d := range []time.Duration{3 * time.Second, 10 * time.Second} {
		tl := Build(photos(1), config.Settings{IntroText: "x", PhotoDuration: d})
		if got := tl.Entries[0].Duration().Seconds(); got != 4.0 {
			t.Errorf("photo duration %v: intro lasted %vs", d, got)
		}
	}
}

func TestBuildPerItemOverride(t *testing.T) {
	media := photos(3)
	media[1].Duration = 7 * time.Second
	tl := Build(media, config.Settings{PhotoDuration: 3 * time.Second})

	want := []int64{90, 210, 90}
	for i, e := range tl.Entries {
		if e.Frames != want[i] {
			t.Errorf("entry %d: expected %d frames, got %d", i, want[i], e.Frames)
		}
	}
}

func TestBuildEmpty(t *testing.T) {
	tl := Build(nil, config.Settings{PhotoDuration: 5 * time.Second})
	if !tl.Empty() || len(tl.Entries) != 0 {
		t.Errorf("expected empty timeline, got %+v", tl)
	}

	tl = Build(photos(2), config.Settings{})
	if !tl.Empty() {
		t.Error("zero-length photos should give an empty timeline")
	}
}

func TestBuildIntroOnly(t *testing.T) {
	tl := Build(nil, config.Settings{IntroText: "Title"})
	if tl.Empty() || tl.TotalFrames() != 120 {
		t.Errorf("intro-only timeline should have 120 frames, got %d", tl.TotalFrames())
	}
}

func TestBuildLoop(t *testing.T) {
	s := config.Settings{PhotoDuration: 5 * time.Second, Loop: time.Minute}
	tl := Build(photos(2), s)

	if tl.Passes != 6 {
		t.Fatalf("expected 6 passes, got %d", tl.Passes)
	}
	if len(tl.Entries) != 12 {
		t.Fatalf("expected 12 entries, got %d", len(tl.Entries))
	}
	last := tl.Entries[11]
	if last.Pass != 5 || last.Media != 1 || last.Start.Frames != 11*150 {
		t.Errorf("unexpected last entry %+v", last)
	}
	if tl.Duration().Seconds() != 60 {
		t.Errorf("expected 60s, got %v", tl.Duration().Seconds())
	}

	short := Build(photos(2), config.Settings{PhotoDuration: 5 * time.Second, Loop: 7 * time.Second})
	if short.Passes != 1 {
		t.Errorf("a loop shorter than the slideshow plays once, got %d passes", short.Passes)
	}
}

func TestTimelineIsContiguous(t *testing.T) {
	media := photos(5)
	for i := range media {
		media[i].Duration = time.Duration(3000+i*1237) * time.Millisecond
	}
	tl := Build(media, config.Settings{IntroText: "Trip", Loop: 2 * time.Minute})

	var want Timestamp
	want.Rate = 30
	var sum int64
	for i, e := range tl.Entries {
		if e.Start != want {
			t.Fatalf("entry %d starts at %v, expected %v", i, e.Start, want)
		}
		want = e.End()
		sum += e.Frames
	}
	if sum != tl.TotalFrames() {
		t.Errorf("sum of entries %d != total %d", sum, tl.TotalFrames())
	}
}

func TestTimestampBefore(t *testing.T) {
	a := Timestamp{Frames: 30, Rate: 30}
	b := Timestamp{Frames: 61, Rate: 60}
	if !a.Before(b) || b.Before(a) {
		t.Error("1s should be before 61/60s")
	}
	if a.Before(Timestamp{Frames: 60, Rate: 60}) {
		t.Error("equal times are not strictly before")
	}
	if a.String() != "30/30" {
		t.Errorf("unexpected String %q", a.String())
	}
}
