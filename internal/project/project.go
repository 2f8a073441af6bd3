// Package project reads and writes slideshow manifests.
//
// A manifest lists the photos of a slideshow in order, with optional
// per-photo durations, and the presentation settings:
//
//	version: "1"
//	intro: Summer 2024
//	orientation: landscape
//	photo_duration: 5s
//	loop: 1h
//	photos:
//	  - path: beach.jpg
//	  - path: sunset.jpg
//	    duration: 8s
//	  - path: scans/        # every image in the directory, by name
//	  - path: tickets.pdf   # one photo per page
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/slidecast/internal/config"
	"github.com/ivlev/slidecast/internal/source"
)

const Version = "1"

// Project is a slideshow manifest.
type Project struct {
	Version       string             `yaml:"version"`
	Intro         string             `yaml:"intro,omitempty"`
	Orientation   config.Orientation `yaml:"orientation,omitempty"`
	Width         int                `yaml:"width,omitempty"`
	Height        int                `yaml:"height,omitempty"`
	PhotoDuration time.Duration      `yaml:"photo_duration,omitempty"`
	Loop          time.Duration      `yaml:"loop,omitempty"`
	Encoder       string             `yaml:"encoder,omitempty"`
	Output        string             `yaml:"output,omitempty"`
	Photos        []Photo            `yaml:"photos"`

	// dir resolves relative photo paths; set by Read.
	dir string
}

// Photo is one manifest entry. Path may name an image, a directory of
// images or a PDF.
type Photo struct {
	Path     string        `yaml:"path"`
	Duration time.Duration `yaml:"duration,omitempty"`
}

// Read loads a manifest. Relative photo paths are resolved against the
// manifest's directory.
func Read(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if p.Version != "" && p.Version != Version {
		return nil, fmt.Errorf("%s: unsupported manifest version %q", path, p.Version)
	}
	p.dir = filepath.Dir(path)
	return &p, nil
}

// Write stores p as YAML.
func Write(p *Project, path string) error {
	if p.Version == "" {
		p.Version = Version
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// FromMedia builds a manifest listing the given files in order.
func FromMedia(paths []string, s config.Settings) *Project {
	p := &Project{
		Version:       Version,
		Intro:         s.IntroText,
		Width:         s.Width,
		Height:        s.Height,
		PhotoDuration: s.PhotoDuration,
		Loop:          s.Loop,
	}
	for _, path := range paths {
		p.Photos = append(p.Photos, Photo{Path: path})
	}
	return p
}

// Settings derives the composition settings. The intro is cut to
// config.MaxIntroRunes and the photo duration pinned to the supported range.
func (p *Project) Settings() (config.Settings, error) {
	o := p.Orientation
	switch o {
	case "", config.Landscape, config.Portrait, config.Square:
	default:
		return config.Settings{}, fmt.Errorf("unknown orientation %q", o)
	}

	s := config.NewSettings(o)
	if p.Width != 0 || p.Height != 0 {
		s.Width, s.Height = p.Width, p.Height
	}
	if err := s.Validate(); err != nil {
		return config.Settings{}, err
	}
	if p.PhotoDuration > 0 {
		s.PhotoDuration = config.ClampPhotoDuration(p.PhotoDuration)
	}
	if p.Loop < 0 {
		return config.Settings{}, fmt.Errorf("negative loop duration %v", p.Loop)
	}
	s.Loop = p.Loop
	s.IntroText = config.TruncateIntro(p.Intro)
	return s, nil
}

// Media expands the photo list into media entries. Entries coming from a
// directory or PDF share that photo's duration override.
func (p *Project) Media(dpi int) ([]source.MediaEntry, error) {
	var media []source.MediaEntry
	for i, ph := range p.Photos {
		if ph.Path == "" {
			return nil, fmt.Errorf("photo %d has no path", i)
		}
		if ph.Duration < 0 {
			return nil, fmt.Errorf("photo %d (%s): negative duration", i, ph.Path)
		}
		entries, err := source.Collect(p.resolve(ph.Path), dpi)
		if err != nil {
			return nil, fmt.Errorf("photo %d (%s): %w", i, ph.Path, err)
		}
		for _, e := range entries {
			if ph.Duration > 0 {
				e.Duration = ph.Duration
			}
			media = append(media, e)
		}
	}
	return media, nil
}

func (p *Project) resolve(path string) string {
	if filepath.IsAbs(path) || p.dir == "" {
		return path
	}
	return filepath.Join(p.dir, path)
}
