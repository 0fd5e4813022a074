// Package download fetches manifest videos to local files. Sources are
// http(s) URLs or gs:// objects; the GCS client is only created when a
// manifest actually references a gs:// source.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"cloud.google.com/go/storage"
)

type Fetcher struct {
	httpClient *http.Client
	gcs        *storage.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{httpClient: http.DefaultClient}
}

// Fetch downloads rawURL into dest, overwriting any existing file.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dest string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse source URL %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, rawURL, dest)
	case "gs":
		return f.fetchGCS(ctx, u.Host, strings.TrimPrefix(u.Path, "/"), dest)
	default:
		return fmt.Errorf("unsupported source URL scheme %q", u.Scheme)
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download %s: unexpected status %s", rawURL, resp.Status)
	}

	return writeTo(dest, resp.Body)
}

func (f *Fetcher) fetchGCS(ctx context.Context, bucket, object, dest string) error {
	if f.gcs == nil {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create GCS client: %w", err)
		}
		f.gcs = client
	}

	r, err := f.gcs.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("open gs://%s/%s: %w", bucket, object, err)
	}
	defer func() { _ = r.Close() }()

	return writeTo(dest, r)
}

func writeTo(dest string, r io.Reader) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return out.Close()
}
