// Package arxiv implements the crawler.Fetcher port against the arXiv Atom
// export API (export.arxiv.org/api/query).
package arxiv

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/arxiv-crawler/internal/crawler"
)

const (
	// DefaultBaseURL is the public metadata endpoint.
	DefaultBaseURL = "https://export.arxiv.org/api/query"
	// defaultUserAgent identifies the crawler per arXiv's API etiquette.
	defaultUserAgent = "arxiv-crawler/1.0"

	maxResponseBytes = 32 << 20
)

// Config holds the client's tunables. Zero values fall back to defaults.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithArchive mirrors every raw Atom response into the blob store before
// parsing. Archive failures are logged and never fail a fetch.
func WithArchive(store crawler.BlobStore) Option {
	return func(c *Client) { c.archive = store }
}

// Client queries one day of one category at a time, paging with start and
// max_results. It maps HTTP and decode failures onto the crawler error
// taxonomy so the retry layer can tell transient from fatal.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	archive   crawler.BlobStore
	logger    *zap.Logger
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns one page of papers submitted to category on the given day.
// A day with no submissions yields a nil slice and nil error.
func (c *Client) Fetch(ctx context.Context, category string, date time.Time, offset, limit int) ([]crawler.Paper, error) {
	reqURL := c.queryURL(category, date, offset, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &crawler.FatalError{Op: "build request", Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &crawler.TransientError{Op: "query arxiv", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &crawler.TransientError{Op: "read response", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// arXiv answers 404 for some empty windows; treat it as no results.
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return nil, &crawler.TransientError{
			Op:  "query arxiv",
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, &crawler.FatalError{
			Op:  "query arxiv",
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	c.archiveFeed(ctx, category, date, offset, body)

	papers, skipped, err := parseFeed(body)
	if err != nil {
		// The feed endpoint intermittently serves truncated XML under load;
		// let the retry layer take another pass.
		return nil, &crawler.TransientError{Op: "parse feed", Err: err}
	}
	if skipped > 0 {
		c.logger.Warn("skipped malformed feed entries",
			zap.String("category", category),
			zap.String("date", date.Format(crawler.DateLayout)),
			zap.Int("skipped", skipped),
		)
	}
	return papers, nil
}

// queryURL builds the search request for one page of one (category, day) pair:
// submittedDate:[YYYYMMDD0000 TO YYYYMMDD2359] AND cat:<category>.
func (c *Client) queryURL(category string, date time.Time, offset, limit int) string {
	day := date.UTC().Format("20060102")
	search := fmt.Sprintf("submittedDate:[%s0000 TO %s2359] AND cat:%s", day, day, category)

	q := url.Values{}
	q.Set("search_query", search)
	q.Set("start", strconv.Itoa(offset))
	q.Set("max_results", strconv.Itoa(limit))
	q.Set("sortBy", "submittedDate")
	q.Set("sortOrder", "ascending")
	return c.baseURL + "?" + q.Encode()
}

func (c *Client) archiveFeed(ctx context.Context, category string, date time.Time, offset int, body []byte) {
	if c.archive == nil {
		return
	}
	path := fmt.Sprintf("feeds/%s/%s/%06d.xml", category, date.UTC().Format(crawler.DateLayout), offset)
	uri, err := c.archive.PutObject(ctx, path, "application/atom+xml", bytes.NewReader(body))
	if err != nil {
		c.logger.Warn("feed archive failed", zap.String("path", path), zap.Error(err))
		return
	}
	c.logger.Debug("archived raw feed", zap.String("uri", uri))
}
