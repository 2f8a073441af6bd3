package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ivlev/slidecast/internal/config"
)

// parseConfig reads flags from args. Defaults of a few flags come from
// SLIDECAST_* environment variables.
func parseConfig(args []string, getenv func(string) string, stderr io.Writer) (*config.Config, error) {
	env := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	fs := flag.NewFlagSet("slidecast", flag.ContinueOnError)
	fs.SetOutput(stderr)

	projectPtr := fs.String("project", "", "Slideshow manifest (YAML)")
	inputPtr := fs.String("input", "", "Image, directory of images or PDF (default: input/photos)")
	outputPtr := fs.String("output", "", "Output video (default: generated in output/)")
	introPtr := fs.String("intro", "", "Intro card text, empty for no intro")
	photoDurPtr := fs.Duration("photo-duration", config.DefaultPhotoDuration, "How long each photo is shown (3s-10s)")
	orientationPtr := fs.String("orientation", string(config.Landscape), "Output preset: landscape, portrait, square")
	widthPtr := fs.Int("width", 0, "Custom width (overrides -orientation)")
	heightPtr := fs.Int("height", 0, "Custom height (overrides -orientation)")
	loopPtr := fs.Duration("loop", 0, "Repeat the slideshow to fill this duration, e.g. 1h")
	encoderPtr := fs.String("encoder", env("SLIDECAST_ENCODER", "auto"), "Encoder: auto, ffmpeg, mjpeg")
	ffmpegPtr := fs.String("ffmpeg", env("SLIDECAST_FFMPEG", "ffmpeg"), "ffmpeg binary")
	codecPtr := fs.String("codec", env("SLIDECAST_CODEC", ""), "ffmpeg video codec (default: best available H.264)")
	qualityPtr := fs.Int("quality", 0, "Quality (0 = auto; x264: CRF, VideoToolbox: bitrate = Q*100 kbit/s, mjpeg: JPEG quality)")
	aheadPtr := fs.Int("render-ahead", 1, "Entries rendered ahead of the encoder (0 = sequential)")
	dpiPtr := fs.Int("dpi", 150, "DPI for PDF pages")
	publishPtr := fs.String("publish", env("SLIDECAST_PUBLISH", ""), "Publish target: dir:/path or s3://bucket/prefix")
	s3RegionPtr := fs.String("s3-region", env("SLIDECAST_S3_REGION", ""), "S3 region")
	s3ProfilePtr := fs.String("s3-profile", env("SLIDECAST_S3_PROFILE", ""), "AWS shared config profile")
	logLevelPtr := fs.String("log-level", env("SLIDECAST_LOG_LEVEL", "warn"), "Log level: debug, info, warn, error")
	statsPtr := fs.Bool("stats", false, "Print a performance report")
	initPtr := fs.String("init-project", "", "Write a manifest for -input to this path and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	o := config.Orientation(*orientationPtr)
	switch o {
	case config.Landscape, config.Portrait, config.Square:
	default:
		return nil, fmt.Errorf("unknown orientation %q", *orientationPtr)
	}

	s := config.NewSettings(o)
	if *widthPtr != 0 || *heightPtr != 0 {
		s.Width, s.Height = *widthPtr, *heightPtr
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s.IntroText = config.TruncateIntro(*introPtr)
	s.PhotoDuration = config.ClampPhotoDuration(*photoDurPtr)
	if *loopPtr < 0 {
		return nil, fmt.Errorf("negative loop duration %v", *loopPtr)
	}
	s.Loop = *loopPtr

	switch *encoderPtr {
	case "auto", "ffmpeg", "mjpeg":
	default:
		return nil, fmt.Errorf("unknown encoder %q", *encoderPtr)
	}

	return &config.Config{
		InputPath:    *inputPtr,
		ProjectPath:  *projectPtr,
		InitProject:  *initPtr,
		OutputVideo:  *outputPtr,
		Orientation:  o,
		Settings:     s,
		Encoder:      *encoderPtr,
		VideoEncoder: *codecPtr,
		FFmpegPath:   *ffmpegPtr,
		Quality:      *qualityPtr,
		RenderAhead:  *aheadPtr,
		DPI:          *dpiPtr,
		Publish:      *publishPtr,
		S3Region:     *s3RegionPtr,
		S3Profile:    *s3ProfilePtr,
		LogLevel:     *logLevelPtr,
		ShowStats:    *statsPtr,
		BuildVersion: buildVersion(getenv),
	}, nil
}

var version = "dev"

func buildVersion(getenv func(string) string) string {
	if v := getenv("SLIDECAST_BUILD"); v != "" {
		return v
	}
	return version
}

// percent formats progress for the console.
func percent(p float64) string {
	return strconv.Itoa(int(p*100+0.5)) + "%"
}

// outputName is the default output file name for a slideshow.
func outputName(base string, ext string, now time.Time) string {
	return fmt.Sprintf("%s_%s%s", base, now.Format("2006-01-02_15-04-05"), ext)
}
