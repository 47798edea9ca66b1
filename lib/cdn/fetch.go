// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package cdn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/polymorph-tact/polymorph/lib/clock"
	"github.com/polymorph-tact/polymorph/lib/netutil"
	"github.com/polymorph-tact/polymorph/lib/tact"
)

// source is where blobs for one build live: a product path on each of
// an ordered list of hosts.
type source struct {
	path  string
	hosts []string
}

func (r *BuildRecord) source() source {
	return source{path: r.CDNPath, hosts: r.Hosts}
}

// byteRange selects [offset, offset+length) of a remote blob.
type byteRange struct {
	offset int64
	length int64
}

func (r byteRange) header() string {
	return fmt.Sprintf("bytes=%d-%d", r.offset, r.offset+r.length-1)
}

// Stats counts network and cache activity since the Fetcher was
// created.
type Stats struct {
	// Requests is the number of HTTP requests issued, including
	// failed attempts against individual hosts.
	Requests int64

	// Downloads is the number of blobs written to the cache.
	Downloads int64

	// BytesDownloaded is the total size of those blobs.
	BytesDownloaded int64

	// CacheHits is the number of retrievals served from the cache.
	CacheHits int64
}

type counters struct {
	requests        atomic.Int64
	downloads       atomic.Int64
	bytesDownloaded atomic.Int64
	cacheHits       atomic.Int64
}

// fetchCached returns the blob cached as cacheKey, downloading it from
// remotePath first if needed.
func (f *Fetcher) fetchCached(ctx context.Context, src source, remotePath, cacheKey string, rng *byteRange) ([]byte, error) {
	if err := f.ensureCached(ctx, src, remotePath, cacheKey, rng); err != nil {
		return nil, err
	}
	return f.cache.Get(cacheKey)
}

// ensureCached makes cacheKey present in the cache. A present entry is
// trusted as-is. Concurrent callers for one key share one download; a
// caller whose context ends stops waiting but does not cancel the
// download for the others.
func (f *Fetcher) ensureCached(ctx context.Context, src source, remotePath, cacheKey string, rng *byteRange) error {
	if f.cache.Has(cacheKey) {
		f.counters.cacheHits.Add(1)
		return nil
	}
	if f.config.Offline {
		return fmt.Errorf("%w: %s is not cached and fetching is disabled", tact.ErrNotFound, cacheKey)
	}

	flightCtx := context.WithoutCancel(ctx)
	result := f.flights.DoChan(cacheKey, func() (any, error) {
		// A flight that finished between Has and DoChan already
		// wrote the entry.
		if f.cache.Has(cacheKey) {
			return nil, nil
		}
		return nil, f.download(flightCtx, src, remotePath, cacheKey, rng)
	})

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for %s: %w", tact.ErrNetwork, remotePath, ctx.Err())
	case outcome := <-result:
		return outcome.Err
	}
}

// download tries each host once, in order, and writes the first
// successful response to the cache. A local write failure stops the
// loop: another host cannot fix the disk.
func (f *Fetcher) download(ctx context.Context, src source, remotePath, cacheKey string, rng *byteRange) error {
	if len(src.hosts) == 0 {
		return fmt.Errorf("%w: no CDN hosts to fetch %s from", tact.ErrNetwork, remotePath)
	}

	var networkErr, notFoundErr error
	for _, host := range src.hosts {
		url := hostURL(host) + "/" + remotePath
		err := f.downloadFrom(ctx, url, cacheKey, rng)
		if err == nil {
			return nil
		}
		if errors.Is(err, tact.ErrIO) || ctx.Err() != nil {
			return err
		}
		f.config.Logger.Warn("cdn host failed",
			"host", host,
			"path", remotePath,
			"error", err,
		)
		if errors.Is(err, tact.ErrNotFound) {
			notFoundErr = err
		} else {
			networkErr = err
		}
	}
	if networkErr != nil {
		return networkErr
	}
	return notFoundErr
}

func (f *Fetcher) downloadFrom(ctx context.Context, url, cacheKey string, rng *byteRange) error {
	start := f.config.Clock.Now()
	response, err := f.get(ctx, url, rng)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	var written int64
	if rng != nil {
		body, err := netutil.ReadResponse(response.Body)
		if err != nil {
			return fmt.Errorf("%w: reading %s: %w", tact.ErrNetwork, url, err)
		}
		// A short range means the archive ends before the index says
		// it does, the same disagreement ReadRange reports on a cached
		// archive.
		if int64(len(body)) != rng.length {
			return fmt.Errorf("%w: %s returned %d bytes for a %d byte range",
				tact.ErrMalformed, url, len(body), rng.length)
		}
		if err := f.cache.Put(cacheKey, body); err != nil {
			return err
		}
		written = int64(len(body))
	} else {
		body := &trackingReader{reader: response.Body}
		written, err = f.cache.PutStream(cacheKey, body)
		if err != nil {
			if body.err != nil {
				return fmt.Errorf("%w: reading %s: %w", tact.ErrNetwork, url, body.err)
			}
			return err
		}
	}

	f.counters.downloads.Add(1)
	f.counters.bytesDownloaded.Add(written)
	f.config.Logger.Debug("downloaded",
		"url", url,
		"bytes", written,
		"duration", clock.Since(f.config.Clock, start),
	)
	return nil
}

// get issues one GET and classifies the outcome: 404 is
// tact.ErrNotFound, 416 is tact.ErrMalformed (the archive index points
// past the end of the archive), every other failure is
// tact.ErrNetwork. The caller
// closes the body of a successful response.
func (f *Fetcher) get(ctx context.Context, url string, rng *byteRange) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request for %s: %w", tact.ErrNetwork, url, err)
	}
	if rng != nil {
		request.Header.Set("Range", rng.header())
	}

	f.counters.requests.Add(1)
	response, err := f.config.HTTPClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", tact.ErrNetwork, url, err)
	}

	wantStatus := http.StatusOK
	if rng != nil {
		wantStatus = http.StatusPartialContent
	}
	if response.StatusCode == wantStatus {
		return response, nil
	}

	defer response.Body.Close()
	switch {
	case response.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: GET %s: 404", tact.ErrNotFound, url)
	case rng != nil && response.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		return nil, fmt.Errorf("%w: GET %s: range %s is outside the archive", tact.ErrMalformed, url, rng.header())
	case rng != nil && response.StatusCode == http.StatusOK:
		return nil, fmt.Errorf("%w: GET %s: server ignored the range request", tact.ErrNetwork, url)
	default:
		return nil, fmt.Errorf("%w: GET %s: status %d: %s",
			tact.ErrNetwork, url, response.StatusCode, strings.TrimSpace(netutil.ErrorBody(response.Body)))
	}
}

// getManifest reads a patch server manifest. Manifests change with
// every release and are never cached.
func (f *Fetcher) getManifest(ctx context.Context, name string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s/%s", f.config.PatchServer, f.config.Product, name)
	response, err := f.get(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	data, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", tact.ErrNetwork, url, err)
	}
	return data, nil
}

// hostURL accepts bare hosts from the cdns manifest and full base URLs.
func hostURL(host string) string {
	if strings.Contains(host, "://") {
		return strings.TrimRight(host, "/")
	}
	return "http://" + host
}

// trackingReader remembers a read failure so a failed stream can be
// reported as a network error rather than a cache error.
type trackingReader struct {
	reader io.Reader
	err    error
}

func (r *trackingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		r.err = err
	}
	return n, err
}
