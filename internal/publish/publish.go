// Package publish hands a finished video to its library: a local directory
// or an S3 bucket.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Publisher stores a finished video and returns where it ended up.
type Publisher interface {
	Publish(ctx context.Context, path string) (string, error)
}

// Parse builds a Publisher from a target: "dir:/path", a plain directory
// path, or "s3://bucket/prefix".
func Parse(ctx context.Context, target string, cfg S3Config) (Publisher, error) {
	switch {
	case target == "":
		return nil, errors.New("empty publish target")
	case strings.HasPrefix(target, "s3://"):
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(target, "s3://"), "/")
		if bucket == "" {
			return nil, fmt.Errorf("publish target %q has no bucket", target)
		}
		return NewS3Publisher(ctx, bucket, prefix, cfg)
	case strings.HasPrefix(target, "dir:"):
		return &DirPublisher{Dir: strings.TrimPrefix(target, "dir:")}, nil
	case strings.Contains(target, "://"):
		return nil, fmt.Errorf("unsupported publish target %q", target)
	}
	return &DirPublisher{Dir: target}, nil
}

// DirPublisher moves videos into a library directory. An existing file of
// the same name is never overwritten; a numbered name is used instead.
type DirPublisher struct {
	Dir string
}

func (d *DirPublisher) Publish(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return "", fmt.Errorf("create library dir: %w", err)
	}
	dest, err := freeName(d.Dir, filepath.Base(path))
	if err != nil {
		return "", err
	}

	if err := os.Rename(path, dest); err == nil {
		return dest, nil
	}
	// Different filesystem: copy, then drop the original.
	if err := copyFile(path, dest); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("publish %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil {
		return dest, fmt.Errorf("published but could not remove %s: %w", path, err)
	}
	return dest, nil
}

func freeName(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(dir, name)
	for i := 1; i < 1000; i++ {
		if _, err := os.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
	}
	return "", fmt.Errorf("no free name for %s in %s", name, dir)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ContentType returns the MIME type for a video file name.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	}
	return "application/octet-stream"
}
