// Package fetch retrieves remote images over HTTP, decodes them to RGB, and memoizes them by URL.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/hyperjump/clipsim/internal/config"
	"github.com/hyperjump/clipsim/pkg/utils"
)

// HTTPDoer is the subset of *http.Client used by the Fetcher.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Stats counts cache behavior since the Fetcher was created.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Fetches int64 `json:"fetches"` // HTTP requests issued, retries included
	Cached  int   `json:"cached"`
}

// Fetcher downloads images and keeps successfully decoded ones in a bounded LRU keyed by URL.
// It is safe for concurrent use.
type Fetcher struct {
	client     HTTPDoer
	cache      *lru.Cache[string, *image.RGBA]
	timeout    time.Duration
	maxRetries int
	maxBytes   int64
	userAgent  string
	logger     *zap.Logger

	hits, misses, fetches atomic.Int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(c HTTPDoer) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithLogger sets a logger for debug output (cache hits, retries).
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a fetcher from cfg. Zero values in cfg fall back to config defaults.
func NewFetcher(cfg config.FetchConfig, opts ...Option) (*Fetcher, error) {
	config.ApplyFetchDefaults(&cfg)
	cache, err := lru.New[string, *image.RGBA](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}
	f := &Fetcher{
		client:     &http.Client{},
		cache:      cache,
		timeout:    cfg.Timeout,
		maxRetries: cfg.Retries(),
		maxBytes:   cfg.MaxBytes,
		userAgent:  cfg.UserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = utils.OrNop(f.logger)
	return f, nil
}

// Fetch returns the decoded RGB image at url, from cache when available.
// Errors are *RetrievalError or *DecodeError; failures are not cached.
func (f *Fetcher) Fetch(ctx context.Context, url string) (image.Image, error) {
	if img, ok := f.cache.Get(url); ok {
		f.hits.Add(1)
		f.logger.Debug("image cache hit", zap.String("url", url))
		return img, nil
	}
	f.misses.Add(1)

	var body []byte
	op := func() error {
		b, err := f.get(ctx, url)
		if err != nil {
			var re *RetrievalError
			if errors.As(err, &re) && re.transient() && ctx.Err() == nil {
				f.logger.Debug("image fetch failed, retrying", zap.String("url", url), zap.Error(err))
				return err
			}
			return backoff.Permanent(err)
		}
		body = b
		return nil
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(), uint64(f.maxRetries)),
		ctx,
	)
	if err := backoff.Retry(op, b); err != nil {
		var re *RetrievalError
		if !errors.As(err, &re) {
			var de *DecodeError
			if !errors.As(err, &de) {
				err = &RetrievalError{URL: url, Err: err}
			}
		}
		return nil, err
	}

	img, err := decodeRGB(url, body)
	if err != nil {
		return nil, err
	}
	f.cache.Add(url, img)
	return img, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &RetrievalError{URL: url, Err: err, permanent: true}
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return nil, &RetrievalError{URL: url, Err: fmt.Errorf("unsupported scheme %q", req.URL.Scheme), permanent: true}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	f.fetches.Add(1)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &RetrievalError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &RetrievalError{URL: url, StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &RetrievalError{URL: url, Err: err}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &RetrievalError{URL: url, Err: fmt.Errorf("response exceeds %d bytes", f.maxBytes), permanent: true}
	}
	return data, nil
}

// Stats returns a snapshot of cache counters.
func (f *Fetcher) Stats() Stats {
	return Stats{
		Hits:    f.hits.Load(),
		Misses:  f.misses.Load(),
		Fetches: f.fetches.Load(),
		Cached:  f.cache.Len(),
	}
}

// Purge drops every cached image.
func (f *Fetcher) Purge() {
	f.cache.Purge()
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// decodeRGB decodes data and converts it to an opaque RGBA image.
func decodeRGB(url string, data []byte) (*image.RGBA, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{URL: url, Err: err}
	}
	return ToRGB(src), nil
}

// ToRGB copies src into a fresh RGBA image composited over white, dropping transparency.
func ToRGB(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}
