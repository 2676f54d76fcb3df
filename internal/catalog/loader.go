package catalog

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Loader fetches manifest.json from an HTTP location, a local file, or both
// (the file being the fallback read when the fetch fails).
type Loader struct {
	URL     string
	Path    string
	Options Options
	Client  *http.Client

	now func() time.Time
}

// NewLoader creates a catalog loader
func NewLoader(rawURL, path string, opts Options) *Loader {
	return &Loader{
		URL:     rawURL,
		Path:    path,
		Options: opts,
		Client:  &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}
}

// Load fetches and orders the catalog. Every fetch bypasses caches. When the
// primary read fails a single fallback read is attempted before giving up
// with ErrCatalogUnavailable.
func (l *Loader) Load(ctx context.Context) (*Catalog, error) {
	data, err := l.primary(ctx)
	if err != nil {
		log.Printf("[CATALOG] Primary load failed: %v", err)
		fallbackData, fallbackErr := l.fallback(ctx)
		if fallbackErr != nil {
			return nil, fmt.Errorf("%w: %v (fallback: %v)", ErrCatalogUnavailable, err, fallbackErr)
		}
		data = fallbackData
	}

	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}

	c := manifest.Build(l.Options)
	log.Printf("[CATALOG] Loaded %d music files, %d sound effects in %d categories",
		len(c.Tracks), len(c.SoundEffects()), len(c.Categories))
	return c, nil
}

func (l *Loader) primary(ctx context.Context) ([]byte, error) {
	if l.URL != "" {
		return l.fetch(ctx, l.bustedURL(), true)
	}
	if l.Path != "" {
		return l.readFile()
	}
	return nil, fmt.Errorf("no catalog location configured")
}

// fallback reads the local file when one is configured alongside the URL,
// otherwise repeats the request once without the cache-busting decoration.
func (l *Loader) fallback(ctx context.Context) ([]byte, error) {
	if l.URL == "" {
		return nil, fmt.Errorf("no fallback location")
	}
	if l.Path != "" {
		return l.readFile()
	}
	return l.fetch(ctx, l.URL, false)
}

func (l *Loader) readFile() ([]byte, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", l.Path, err)
	}
	return data, nil
}

// bustedURL randomizes the request identity so no intermediate cache can answer it
func (l *Loader) bustedURL() string {
	u, err := url.Parse(l.URL)
	if err != nil {
		return l.URL
	}
	q := u.Query()
	q.Set("v", strconv.FormatInt(l.now().UnixNano(), 10))
	u.RawQuery = q.Encode()
	return u.String()
}

func (l *Loader) fetch(ctx context.Context, target string, noCache bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if noCache {
		req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		req.Header.Set("Pragma", "no-cache")
		req.Header.Set("Expires", "0")
	}

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: HTTP %d", target, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return data, nil
}
