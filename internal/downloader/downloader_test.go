package downloader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"otaupdate/internal/fetch"
)

// fakeFetcher serves canned responses keyed by call count, letting tests
// simulate a failure on the first N attempts before succeeding.
type fakeFetcher struct {
	responses []fetchCall
	calls     int
}

type fetchCall struct {
	body       string
	ranged     bool
	err        error
	resumeSeen int64
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, resumeFrom int64, timeout time.Duration) (*fetch.Response, error) {
	if f.calls >= len(f.responses) {
		return nil, errors.New("no more canned responses")
	}
	call := &f.responses[f.calls]
	call.resumeSeen = resumeFrom
	f.calls++
	if call.err != nil {
		return nil, call.err
	}
	return &fetch.Response{Body: io.NopCloser(bytes.NewReader([]byte(call.body))), Ranged: call.ranged, StatusCode: 200}, nil
}

func TestDownloadSucceedsFirstTry(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "app.bin")

	f := &fakeFetcher{responses: []fetchCall{{body: "hello world"}}}
	d := New(f)

	result, err := d.Download(context.Background(), Options{
		URL:      "http://example.test/app.bin",
		DestPath: dest,
		Retries:  2,
	})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if result.Bytes != int64(len("hello world")) {
		t.Errorf("Bytes = %d, want %d", result.Bytes, len("hello world"))
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("content = %q, want %q", got, "hello world")
	}
}

func TestDownloadRetriesThenSucceeds(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "app.bin")

	f := &fakeFetcher{responses: []fetchCall{
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		{body: "payload"},
	}}
	d := New(f)

	var retries []AttemptEvent
	result, err := d.Download(context.Background(), Options{
		URL:              "http://example.test/app.bin",
		DestPath:         dest,
		Retries:          2,
		RetryBaseDelayMS: 1,
		OnRetry:          func(e AttemptEvent) { retries = append(retries, e) },
	})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if result.Bytes != int64(len("payload")) {
		t.Errorf("Bytes = %d, want %d", result.Bytes, len("payload"))
	}
	if len(retries) != 2 {
		t.Errorf("retry events = %d, want 2", len(retries))
	}
}

func TestDownloadExhaustsRetries(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "app.bin")

	f := &fakeFetcher{responses: []fetchCall{
		{err: errors.New("boom")},
		{err: errors.New("boom")},
	}}
	d := New(f)

	_, err := d.Download(context.Background(), Options{
		URL:              "http://example.test/app.bin",
		DestPath:         dest,
		Retries:          1,
		RetryBaseDelayMS: 1,
	})
	if err == nil {
		t.Fatal("Download() error = nil, want error after exhausting retries")
	}
}

func TestDownloadResumeAppendsToPartFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "app.bin")
	partPath := dest + ".part"
	if err := os.WriteFile(partPath, []byte("hello "), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	f := &fakeFetcher{responses: []fetchCall{{body: "world", ranged: true}}}
	d := New(f)

	result, err := d.Download(context.Background(), Options{
		URL:             "http://example.test/app.bin",
		DestPath:        dest,
		ResumeDownloads: true,
	})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if f.responses[0].resumeSeen != int64(len("hello ")) {
		t.Errorf("resumeFrom seen = %d, want %d", f.responses[0].resumeSeen, len("hello "))
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("content = %q, want %q", got, "hello world")
	}
	if result.MD5 == "" {
		t.Error("expected a non-empty MD5 after resumed download completes")
	}
}

func TestDownloadResumeRestartsWhenServerIgnoresRange(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "app.bin")
	partPath := dest + ".part"
	if err := os.WriteFile(partPath, []byte("stale partial"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	f := &fakeFetcher{responses: []fetchCall{{body: "fresh full body", ranged: false}}}
	d := New(f)

	_, err := d.Download(context.Background(), Options{
		URL:             "http://example.test/app.bin",
		DestPath:        dest,
		ResumeDownloads: true,
	})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "fresh full body" {
		t.Errorf("content = %q, want restart from scratch %q", got, "fresh full body")
	}
}
