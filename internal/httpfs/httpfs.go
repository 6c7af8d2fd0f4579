// Package httpfs implements the HTTP-FS mode alternative to manifest mode:
// a recursive crawl of an HTTP directory listing, with no manifest, no MD5
// validation, and no signature.
package httpfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

// hrefPattern extracts href attribute values from an HTML directory
// listing body. A targeted regexp is used rather than a full HTML parser,
// matching this codebase's general preference for small regexes over a
// parsing dependency for simple, structured text.
var hrefPattern = regexp.MustCompile(`href="([^"]+)"`)

// Link is one entry parsed out of a directory listing.
type Link struct {
	URL   string
	IsDir bool
}

// Fetcher abstracts the GET used to retrieve a directory listing body;
// kept distinct from the Downloader's ranged Fetcher since listings are
// always read whole (they are HTML index pages, not update payloads).
type Fetcher func(ctx context.Context, url string) (io.ReadCloser, error)

// DefaultFetcher issues a plain net/http GET.
func DefaultFetcher(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("listing fetch %s: status %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

// ParseLinks extracts file/directory links from a listing body relative to
// baseURL. A trailing "/" classifies a link as a subdirectory to recurse
// into; anything else is a file.
func ParseLinks(body []byte, baseURL string) []Link {
	matches := hrefPattern.FindAllSubmatch(body, -1)
	links := make([]Link, 0, len(matches))
	for _, m := range matches {
		href := string(m[1])
		if href == "" || href == "../" || href == "." || strings.HasPrefix(href, "?") || strings.HasPrefix(href, "#") {
			continue
		}
		resolved := resolve(baseURL, href)
		links = append(links, Link{URL: resolved, IsDir: strings.HasSuffix(href, "/")})
	}
	return links
}

func resolve(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.TrimPrefix(href, "/")
}

// FileVisitor is invoked once per discovered file link during a crawl,
// with its URL and its path relative to the crawl root.
type FileVisitor func(url, relPath string) error

// Crawl walks rootURL recursively, calling visit for every file link
// discovered. A visited-URL set prevents infinite recursion on a listing
// that (accidentally or adversarially) links back to an ancestor.
func Crawl(ctx context.Context, fetcher Fetcher, rootURL string, visit FileVisitor) error {
	visited := make(map[string]bool)
	return crawl(ctx, fetcher, rootURL, rootURL, visited, visit)
}

func crawl(ctx context.Context, fetcher Fetcher, rootURL, dirURL string, visited map[string]bool, visit FileVisitor) error {
	if visited[dirURL] {
		return nil
	}
	visited[dirURL] = true

	body, err := fetcher(ctx, dirURL)
	if err != nil {
		return fmt.Errorf("fetch listing %s: %w", dirURL, err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read listing %s: %w", dirURL, err)
	}

	for _, link := range ParseLinks(data, dirURL) {
		if link.IsDir {
			if err := crawl(ctx, fetcher, rootURL, link.URL, visited, visit); err != nil {
				return err
			}
			continue
		}
		rel := strings.TrimPrefix(link.URL, rootURL)
		rel = strings.TrimPrefix(rel, "/")
		if err := visit(link.URL, rel); err != nil {
			return err
		}
	}
	return nil
}
