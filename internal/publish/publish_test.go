package publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestDirPublisherMovesFile(t *testing.T) {
	work := t.TempDir()
	lib := filepath.Join(t.TempDir(), "Library", "Videos")
	src := filepath.Join(work, "trip.mp4")
	if err := os.WriteFile(src, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}

	dest, err := (&DirPublisher{Dir: lib}).Publish(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if dest != filepath.Join(lib, "trip.mp4") {
		t.Errorf("unexpected destination %s", dest)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source should be moved")
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "video" {
		t.Errorf("published content mismatch: %q %v", data, err)
	}
}

func TestDirPublisherKeepsExisting(t *testing.T) {
	lib := t.TempDir()
	if err := os.WriteFile(filepath.Join(lib, "trip.mp4"), []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(t.TempDir(), "trip.mp4")
	if err := os.WriteFile(src, []byte("new"), 0644); err != nil {
		t.Fatal(err)
	}

	dest, err := (&DirPublisher{Dir: lib}).Publish(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(dest) != "trip (1).mp4" {
		t.Errorf("expected numbered name, got %s", dest)
	}
	old, _ := os.ReadFile(filepath.Join(lib, "trip.mp4"))
	if string(old) != "old" {
		t.Error("existing video was overwritten")
	}
}

func TestParse(t *testing.T) {
	ctx := context.Background()
	p, err := Parse(ctx, "dir:/tmp/library", S3Config{})
	if err != nil {
		t.Fatal(err)
	}
	if d, ok := p.(*DirPublisher); !ok || d.Dir != "/tmp/library" {
		t.Errorf("unexpected publisher %#v", p)
	}

	p, err = Parse(ctx, "videos", S3Config{})
	if err != nil {
		t.Fatal(err)
	}
	if d, ok := p.(*DirPublisher); !ok || d.Dir != "videos" {
		t.Errorf("unexpected publisher %#v", p)
	}

	for _, bad := range []string{"", "s3://", "ftp://host/x"} {
		if _, err := Parse(ctx, bad, S3Config{}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

type fakePutter struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3PublisherUploads(t *testing.T) {
	src := filepath.Join(t.TempDir(), "trip.avi")
	if err := os.WriteFile(src, []byte("avi-data"), 0644); err != nil {
		t.Fatal(err)
	}
	fp := &fakePutter{}
	p := &S3Publisher{Bucket: "media", Prefix: "slideshows/2024", client: fp}

	loc, err := p.Publish(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if loc != "s3://media/slideshows/2024/trip.avi" {
		t.Errorf("unexpected location %s", loc)
	}
	if aws.ToString(fp.in.Bucket) != "media" || aws.ToString(fp.in.Key) != "slideshows/2024/trip.avi" {
		t.Errorf("unexpected object %s/%s", aws.ToString(fp.in.Bucket), aws.ToString(fp.in.Key))
	}
	if aws.ToString(fp.in.ContentType) != "video/x-msvideo" || string(fp.body) != "avi-data" {
		t.Errorf("unexpected upload %q %q", aws.ToString(fp.in.ContentType), fp.body)
	}
}

func TestS3PublisherError(t *testing.T) {
	src := filepath.Join(t.TempDir(), "trip.mp4")
	if err := os.WriteFile(src, nil, 0644); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("access denied")
	p := &S3Publisher{Bucket: "media", client: &fakePutter{err: boom}}
	if _, err := p.Publish(context.Background(), src); !errors.Is(err, boom) {
		t.Errorf("expected wrapped upload error, got %v", err)
	}
}
