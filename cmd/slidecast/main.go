package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ivlev/slidecast/internal/config"
	"github.com/ivlev/slidecast/internal/engine"
	"github.com/ivlev/slidecast/internal/logging"
	"github.com/ivlev/slidecast/internal/project"
	"github.com/ivlev/slidecast/internal/publish"
	"github.com/ivlev/slidecast/internal/source"
	"github.com/ivlev/slidecast/internal/system"
	"github.com/ivlev/slidecast/internal/video"
)

const defaultInputDir = "input/photos"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[!] .env: %v", err)
	}

	cfg, err := parseConfig(os.Args[1:], os.Getenv, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("[-] %v", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	system.InitResourceLimits(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Stdout); err != nil {
		stop()
		log.Fatalf("[-] %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	startTime := time.Now()

	media, inputs, err := loadInput(cfg)
	if err != nil {
		return err
	}

	if cfg.InitProject != "" {
		p := project.FromMedia(inputs, cfg.Settings)
		p.Orientation = cfg.Orientation
		if err := project.Write(p, cfg.InitProject); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
		fmt.Fprintf(out, "[+++] Manifest written: %s\n", cfg.InitProject)
		return nil
	}

	enc, ext, err := selectEncoder(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if cfg.OutputVideo == "" {
		cfg.OutputVideo = defaultOutput(cfg, ext)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.OutputVideo), 0755); err != nil {
		return err
	}

	s := cfg.Settings
	fmt.Fprintln(out, "--- [SLIDECAST] ---")
	fmt.Fprintf(out, "[*] Photos: %d | Intro: %q\n", len(media), s.IntroText)
	fmt.Fprintf(out, "[*] Output: %dx%d @ %d FPS | Photo: %v | Loop: %v | Encoder: %s\n",
		s.Width, s.Height, config.FrameRate, s.PhotoDuration, s.Loop, enc.Name())
	fmt.Fprintln(out, "-------------------")

	// Composing takes the first 70% of the bar when a publish step follows.
	composeShare := 1.0
	if cfg.Publish != "" {
		composeShare = 0.7
	}
	bar := &progressBar{w: out}

	composer := engine.New(engine.Options{
		Encoder:     enc,
		Logger:      logger,
		RenderAhead: cfg.RenderAhead,
	})
	job := composer.Start(ctx, engine.Request{
		Media:    media,
		Settings: s,
		Output:   cfg.OutputVideo,
	}, engine.Callbacks{
		Progress: engine.Band(0, composeShare, bar.update),
	})
	path, err := job.Wait()
	bar.finish()
	if err != nil {
		if engine.KindOf(err) == engine.Cancelled {
			fmt.Fprintln(out, "[!] Cancelled, nothing was saved")
		}
		return err
	}
	composeTime := time.Since(startTime)

	location := path
	if cfg.Publish != "" {
		pub, err := publish.Parse(ctx, cfg.Publish, publish.S3Config{Region: cfg.S3Region, Profile: cfg.S3Profile})
		if err != nil {
			return err
		}
		location, err = pub.Publish(ctx, path)
		if err != nil {
			return fmt.Errorf("publish: %w (video kept at %s)", err, path)
		}
		bar.update(1)
		bar.finish()
	}

	if cfg.ShowStats {
		printReport(out, cfg, len(media), composeTime, time.Since(startTime))
	}
	fmt.Fprintf(out, "[+++] Done! Result: %s\n", location)
	return nil
}

// loadInput returns the slideshow media and the input paths they came from.
// A manifest's settings replace those given by flags.
func loadInput(cfg *config.Config) ([]source.MediaEntry, []string, error) {
	if cfg.ProjectPath != "" {
		p, err := project.Read(cfg.ProjectPath)
		if err != nil {
			return nil, nil, err
		}
		s, err := p.Settings()
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", cfg.ProjectPath, err)
		}
		cfg.Settings = s
		if cfg.OutputVideo == "" {
			cfg.OutputVideo = p.Output
		}
		if p.Encoder != "" && cfg.Encoder == "auto" {
			cfg.Encoder = p.Encoder
		}
		media, err := p.Media(cfg.DPI)
		if err != nil {
			return nil, nil, err
		}
		var inputs []string
		for _, ph := range p.Photos {
			inputs = append(inputs, ph.Path)
		}
		return media, inputs, nil
	}

	if cfg.InputPath == "" {
		cfg.InputPath = defaultInputDir
		fmt.Printf("[*] Using %s\n", cfg.InputPath)
	}
	media, err := source.Collect(cfg.InputPath, cfg.DPI)
	if err != nil {
		return nil, nil, err
	}
	var inputs []string
	for _, m := range media {
		if f, ok := m.Source.(*source.FileImage); ok {
			inputs = append(inputs, f.Path)
		}
	}
	if len(inputs) != len(media) {
		inputs = []string{cfg.InputPath}
	}
	return media, inputs, nil
}

// selectEncoder returns the encoder for cfg.Encoder and the matching file
// extension. "auto" prefers ffmpeg and falls back to in-process MJPEG.
func selectEncoder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (video.Encoder, string, error) {
	useFFmpeg := cfg.Encoder == "ffmpeg"
	if cfg.Encoder == "auto" {
		if _, err := exec.LookPath(cfg.FFmpegPath); err == nil {
			useFFmpeg = true
		} else {
			fmt.Println("[!] ffmpeg not found, writing Motion-JPEG AVI")
		}
	}

	if !useFFmpeg {
		return &video.MJPEGEncoder{Quality: cfg.Quality, Logger: logger}, ".avi", nil
	}

	codec := cfg.VideoEncoder
	if codec == "" {
		codec = system.GetBestH264Encoder(ctx, cfg.FFmpegPath)
		if codec != "libx264" {
			fmt.Printf("[*] Hardware acceleration: %s\n", codec)
		}
	}
	quality := cfg.Quality
	if quality == 0 {
		quality = system.DefaultQuality(codec)
	}
	logger.Info("encoder selected", "codec", codec, "quality", quality)
	return &video.FFmpegEncoder{
		Binary:  cfg.FFmpegPath,
		Codec:   codec,
		Quality: quality,
		Logger:  logger,
	}, ".mp4", nil
}

func defaultOutput(cfg *config.Config, ext string) string {
	nameSource := cfg.InputPath
	if cfg.ProjectPath != "" {
		nameSource = cfg.ProjectPath
	} else if latest, err := system.FindLatestImage(cfg.InputPath); err == nil {
		nameSource = latest
	}
	base := strings.TrimSuffix(filepath.Base(nameSource), filepath.Ext(nameSource))
	base = strings.ReplaceAll(base, " ", "_")
	return filepath.Join("output", outputName(base, ext, time.Now()))
}

func printReport(w io.Writer, cfg *config.Config, photos int, compose, total time.Duration) {
	fmt.Fprintf(w,
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Photos: %d\n"+
			"Compose: %.2fs\n"+
			"Total Time: %.2fs\n"+
			"%s\n"+
			"----------------------------\n",
		cfg.BuildVersion, photos, compose.Seconds(), total.Seconds(), system.TakeSnapshot())
}

// progressBar prints whole-percent steps on one console line.
type progressBar struct {
	w    io.Writer
	last string
	open bool
}

func (b *progressBar) update(p float64) {
	s := percent(p)
	if s == b.last {
		return
	}
	b.last = s
	b.open = true
	fmt.Fprintf(b.w, "\r[>] %s", s)
}

func (b *progressBar) finish() {
	if b.open {
		fmt.Fprintln(b.w)
		b.open = false
	}
}
