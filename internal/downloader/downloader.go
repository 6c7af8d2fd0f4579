// Package downloader implements chunked HTTP GETs with bounded retry,
// exponential backoff, and optional range-based resume via ".part" files.
package downloader

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"otaupdate/internal/fetch"
)

// AttemptEvent mirrors the source spec's download_attempt/download_retry
// event payloads.
type AttemptEvent struct {
	URL      string
	Path     string
	Attempt  int
	Attempts int
	WaitMS   int64
}

// Options configures a single download.
type Options struct {
	URL               string
	DestPath          string
	ExpectedMD5       string // not checked here; callers compare it with Result.MD5
	Retries           int    // retry count after the first failure
	RetryBaseDelayMS  int64
	IOChunkSize       int
	ResumeDownloads   bool
	HTTPTimeout       time.Duration
	OnAttempt         func(AttemptEvent)
	OnRetry           func(AttemptEvent)
}

// Downloader drives Options.Retries+1 attempts against a Fetcher.
type Downloader struct {
	fetcher fetch.Fetcher
}

// New builds a Downloader over the given Fetcher.
func New(fetcher fetch.Fetcher) *Downloader {
	return &Downloader{fetcher: fetcher}
}

// Result reports the digest actually observed, computed in-stream while
// writing, per the spec's "either is acceptable" MD5 timing allowance.
type Result struct {
	MD5   string
	Bytes int64
}

// Download executes the per-attempt retry/backoff/resume loop described in
// the source spec §4.5 and returns once the file has landed at
// opts.DestPath (resume and rename handled internally).
func (d *Downloader) Download(ctx context.Context, opts Options) (Result, error) {
	if opts.IOChunkSize <= 0 {
		opts.IOChunkSize = 32 * 1024
	}
	attempts := opts.Retries + 1
	partPath := opts.DestPath
	if opts.ResumeDownloads {
		partPath = opts.DestPath + ".part"
	}

	var lastErr error
	delay := time.Duration(opts.RetryBaseDelayMS) * time.Millisecond

	for attempt := 0; attempt < attempts; attempt++ {
		if opts.OnAttempt != nil {
			opts.OnAttempt(AttemptEvent{URL: opts.URL, Path: opts.DestPath, Attempt: attempt + 1, Attempts: attempts})
		}

		result, err := d.attempt(ctx, opts, partPath)
		if err == nil {
			if opts.ResumeDownloads {
				if err := os.Rename(partPath, opts.DestPath); err != nil {
					return Result{}, fmt.Errorf("finalize download: %w", err)
				}
			}
			return result, nil
		}

		lastErr = err
		if attempt < attempts-1 {
			wait := delay
			if opts.OnRetry != nil {
				opts.OnRetry(AttemptEvent{URL: opts.URL, Path: opts.DestPath, Attempt: attempt + 1, WaitMS: wait.Milliseconds()})
			}
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(wait):
			}
			delay *= 2
		}
	}

	return Result{}, fmt.Errorf("download failed after %s attempts: %w", humanize.Comma(int64(attempts)), lastErr)
}

func (d *Downloader) attempt(ctx context.Context, opts Options, partPath string) (Result, error) {
	var resumeFrom int64
	openFlag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if opts.ResumeDownloads {
		if info, err := os.Stat(partPath); err == nil && info.Size() > 0 {
			resumeFrom = info.Size()
			openFlag = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}
	}

	resp, err := d.fetcher.Fetch(ctx, opts.URL, resumeFrom, opts.HTTPTimeout)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resumeFrom > 0 && !resp.Ranged {
		// Server ignored the range request; restart from scratch.
		resumeFrom = 0
		openFlag = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}

	out, err := os.OpenFile(partPath, openFlag, 0o644)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", partPath, err)
	}
	defer out.Close()

	hasher := md5.New()
	var hashInput io.Writer = hasher
	if resumeFrom > 0 {
		// Resumed bytes were hashed on a prior attempt; this attempt can
		// only hash what it newly writes, so a resumed download's final
		// digest is recomputed by re-reading the completed file instead.
		hashInput = io.Discard
	}

	buf := make([]byte, opts.IOChunkSize)
	written, err := io.CopyBuffer(out, io.TeeReader(resp.Body, hashInput), buf)
	if err != nil {
		return Result{}, fmt.Errorf("stream body: %w", err)
	}
	if err := out.Sync(); err != nil {
		return Result{}, fmt.Errorf("sync %s: %w", partPath, err)
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	if resumeFrom > 0 {
		digest, err = rehash(partPath, opts.IOChunkSize)
		if err != nil {
			return Result{}, err
		}
	}

	return Result{MD5: digest, Bytes: resumeFrom + written}, nil
}

func rehash(path string, chunkSize int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
