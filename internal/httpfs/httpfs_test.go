package httpfs

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestParseLinksSkipsParentAndQuery(t *testing.T) {
	body := []byte(`<a href="../">../</a><a href="sub/">sub/</a><a href="file.bin">file.bin</a><a href="?sort=name">sort</a>`)
	links := ParseLinks(body, "http://host/dir/")

	if len(links) != 2 {
		t.Fatalf("ParseLinks() = %d links, want 2", len(links))
	}
	if !links[0].IsDir || links[0].URL != "http://host/dir/sub/" {
		t.Errorf("links[0] = %+v, want dir http://host/dir/sub/", links[0])
	}
	if links[1].IsDir || links[1].URL != "http://host/dir/file.bin" {
		t.Errorf("links[1] = %+v, want file http://host/dir/file.bin", links[1])
	}
}

func TestCrawlVisitsFilesAndAvoidsCycles(t *testing.T) {
	pages := map[string]string{
		"http://host/":     `<a href="sub/">sub/</a><a href="root.bin">root.bin</a>`,
		"http://host/sub/": `<a href="../">../</a><a href="leaf.bin">leaf.bin</a>`,
	}

	fetcher := func(ctx context.Context, url string) (io.ReadCloser, error) {
		body, ok := pages[url]
		if !ok {
			t.Fatalf("unexpected fetch of %s", url)
		}
		return io.NopCloser(strings.NewReader(body)), nil
	}

	var visited []string
	err := Crawl(context.Background(), fetcher, "http://host/", func(url, rel string) error {
		visited = append(visited, rel)
		return nil
	})
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}
	if len(visited) != 2 {
		t.Fatalf("visited = %v, want 2 files", visited)
	}
}
