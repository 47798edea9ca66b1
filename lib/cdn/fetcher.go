// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package cdn

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/polymorph-tact/polymorph/lib/archiveindex"
	"github.com/polymorph-tact/polymorph/lib/blobcache"
	"github.com/polymorph-tact/polymorph/lib/blte"
	"github.com/polymorph-tact/polymorph/lib/rootfile"
	"github.com/polymorph-tact/polymorph/lib/tact"
	"github.com/polymorph-tact/polymorph/lib/tactconfig"
)

// Fetcher answers "give me the bytes for file id X" for one product
// and region. It is safe for concurrent use.
type Fetcher struct {
	config   Config
	cache    *blobcache.Cache
	flights  singleflight.Group
	state    atomic.Pointer[buildState]
	counters counters
}

// buildState is one resolved build. It is never modified after it is
// stored; Refresh replaces the pointer.
type buildState struct {
	record   *BuildRecord
	root     *rootfile.Index
	archives *archiveindex.Index
}

// New initializes a Fetcher. Every failure wraps tact.ErrConfigFetch
// along with the underlying kind (tact.ErrNetwork, tact.ErrNotFound,
// tact.ErrMalformed, ...).
func New(ctx context.Context, config Config) (*Fetcher, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, fmt.Errorf("%w: %w", tact.ErrConfigFetch, err)
	}
	cache, err := blobcache.Open(config.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tact.ErrConfigFetch, err)
	}

	fetcher := &Fetcher{
		config: config,
		cache:  cache,
	}
	state, err := fetcher.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tact.ErrConfigFetch, err)
	}
	fetcher.state.Store(state)
	return fetcher, nil
}

// load resolves the current build (or reads the persisted one when
// offline) and builds its indices.
func (f *Fetcher) load(ctx context.Context) (*buildState, error) {
	var record *BuildRecord
	var err error
	if f.config.Offline {
		record, err = LoadRecord(f.cache)
		if err != nil {
			return nil, err
		}
		if record.Product != f.config.Product || record.Region != f.config.Region {
			return nil, fmt.Errorf("%w: cached build is %s/%s, not %s/%s",
				tact.ErrNotFound, record.Product, record.Region, f.config.Product, f.config.Region)
		}
	} else {
		record, err = f.resolve(ctx)
		if err != nil {
			return nil, err
		}
	}

	state, err := f.buildIndices(ctx, record)
	if err != nil {
		return nil, err
	}

	if !f.config.Offline {
		if err := saveRecord(f.cache, record); err != nil {
			return nil, err
		}
	}

	truncated, _ := state.root.Truncated()
	f.config.Logger.Info("build loaded",
		"product", record.Product,
		"region", record.Region,
		"build", record.BuildName,
		"version", record.VersionsName,
		"root_entries", state.root.Len(),
		"root_truncated", truncated,
		"archives", len(record.Archives),
		"archive_entries", state.archives.Len(),
		"offline", f.config.Offline,
	)
	return state, nil
}

// resolve walks versions → cdns → build config → CDN config.
func (f *Fetcher) resolve(ctx context.Context) (*BuildRecord, error) {
	versionsData, err := f.getManifest(ctx, "versions")
	if err != nil {
		return nil, fmt.Errorf("fetching versions manifest: %w", err)
	}
	version, err := tactconfig.ParseVersions(versionsData, f.config.Region)
	if err != nil {
		return nil, err
	}

	cdnsData, err := f.getManifest(ctx, "cdns")
	if err != nil {
		return nil, fmt.Errorf("fetching cdns manifest: %w", err)
	}
	hosts, err := tactconfig.ParseCDNs(cdnsData, f.config.Region)
	if err != nil {
		return nil, err
	}
	src := source{path: hosts.Path, hosts: hosts.Endpoints()}

	buildHash := version.BuildConfig.String()
	buildData, err := f.fetchCached(ctx, src, tact.Path(src.path, tact.CategoryConfig, buildHash), buildHash, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching build config %s: %w", buildHash, err)
	}
	build, err := tactconfig.ParseBuildConfig(buildData)
	if err != nil {
		return nil, err
	}

	cdnHash := version.CDNConfig.String()
	cdnData, err := f.fetchCached(ctx, src, tact.Path(src.path, tact.CategoryConfig, cdnHash), cdnHash, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching cdn config %s: %w", cdnHash, err)
	}
	cdnConfig, err := tactconfig.ParseCDNConfig(cdnData)
	if err != nil {
		return nil, err
	}

	return &BuildRecord{
		Product:      f.config.Product,
		Region:       f.config.Region,
		BuildName:    build.BuildName,
		VersionsName: version.VersionsName,
		BuildID:      version.BuildID,
		BuildConfig:  version.BuildConfig,
		CDNConfig:    version.CDNConfig,
		Root:         build.Root,
		RootBlob:     build.RootBlob,
		CDNPath:      hosts.Path,
		Hosts:        src.hosts,
		Archives:     cdnConfig.Archives,
		ResolvedAt:   f.config.Clock.Now().UTC(),
	}, nil
}

// buildIndices fetches and decodes the root file and every archive
// index of record. Indices are downloaded in parallel but merged in
// CDN configuration order.
func (f *Fetcher) buildIndices(ctx context.Context, record *BuildRecord) (*buildState, error) {
	src := record.source()

	rootHash := record.RootBlob.String()
	rootData, err := f.fetchCached(ctx, src, tact.Path(src.path, tact.CategoryData, rootHash), rootHash, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching root file %s: %w", rootHash, err)
	}
	root, err := rootfile.Parse(rootData)
	if err != nil {
		return nil, err
	}
	if truncated, offset := root.Truncated(); truncated {
		if f.config.StrictRoot {
			return nil, fmt.Errorf("%w: root file %s ends inside a block at offset %d",
				tact.ErrTruncated, rootHash, offset)
		}
		f.config.Logger.Warn("root file truncated, using complete blocks",
			"root", rootHash,
			"offset", offset,
			"entries", root.Len(),
		)
	}

	parsed := make([][]archiveindex.Entry, len(record.Archives))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.config.Concurrency)
	for i, archive := range record.Archives {
		group.Go(func() error {
			name := archive.String() + tact.IndexSuffix
			data, err := f.fetchCached(groupCtx, src, tact.ArchiveIndexPath(src.path, archive), name, nil)
			if err != nil {
				return fmt.Errorf("fetching archive index %s: %w", archive, err)
			}
			entries, err := archiveindex.Parse(archive, data)
			if err != nil {
				return fmt.Errorf("archive index %s: %w", archive, err)
			}
			parsed[i] = entries
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	builder := archiveindex.NewBuilder()
	for i, archive := range record.Archives {
		builder.Add(archive, parsed[i])
	}

	return &buildState{
		record:   record,
		root:     root,
		archives: builder.Build(),
	}, nil
}

// FetchFileID returns the decoded bytes of file id. An id missing from
// the root index, or a content key the root lists but no archive index
// holds, is tact.ErrNotFound.
func (f *Fetcher) FetchFileID(ctx context.Context, id uint32) ([]byte, error) {
	state := f.state.Load()
	key, ok := state.root.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: file id %d is not in the root index", tact.ErrNotFound, id)
	}
	data, err := f.fetchContent(ctx, state, key)
	if err != nil {
		return nil, fmt.Errorf("file id %d: %w", id, err)
	}
	return data, nil
}

// FetchContent returns the decoded bytes stored under a content key.
func (f *Fetcher) FetchContent(ctx context.Context, key tact.ContentKey) ([]byte, error) {
	return f.fetchContent(ctx, f.state.Load(), key)
}

func (f *Fetcher) fetchContent(ctx context.Context, state *buildState, key tact.ContentKey) ([]byte, error) {
	entry, ok := state.archives.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: content key %s is not in any archive index", tact.ErrNotFound, key)
	}

	encoded, err := f.readEntry(ctx, state, key, entry)
	if err != nil {
		return nil, err
	}
	decoded, err := blte.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding %s from archive %s: %w", key, entry.Archive, err)
	}
	return decoded, nil
}

// readEntry returns the encoded bytes of one archive entry. A copy
// cached under the content key (from an earlier range request) wins;
// otherwise the range is requested on its own or sliced from the
// whole cached archive, depending on configuration.
func (f *Fetcher) readEntry(ctx context.Context, state *buildState, key tact.ContentKey, entry archiveindex.Entry) ([]byte, error) {
	src := state.record.source()
	archiveName := entry.Archive.String()
	remotePath := tact.ArchivePath(src.path, entry.Archive)

	if f.cache.Has(key.String()) || (f.config.RangeRequests && !f.cache.Has(archiveName)) {
		rng := &byteRange{offset: int64(entry.Offset), length: int64(entry.Length)}
		return f.fetchCached(ctx, src, remotePath, key.String(), rng)
	}

	if err := f.ensureCached(ctx, src, remotePath, archiveName, nil); err != nil {
		return nil, fmt.Errorf("fetching archive %s: %w", archiveName, err)
	}
	return f.cache.ReadRange(archiveName, int64(entry.Offset), int(entry.Length))
}

// FetchArchive downloads a whole archive into the cache. It is a no-op
// when the archive is already cached.
func (f *Fetcher) FetchArchive(ctx context.Context, archive tact.ArchiveKey) error {
	src := f.state.Load().record.source()
	if err := f.ensureCached(ctx, src, tact.ArchivePath(src.path, archive), archive.String(), nil); err != nil {
		return fmt.Errorf("fetching archive %s: %w", archive, err)
	}
	return nil
}

// ArchiveProgress reports one completed archive during FetchAllArchives.
type ArchiveProgress struct {
	Archive tact.ArchiveKey
	Done    int
	Total   int
}

// FetchAllArchives downloads every archive of the current build, at
// most Config.Concurrency at a time. progress, if non-nil, is called
// once per archive as it completes, never concurrently. The first
// failure cancels the remaining downloads and is returned.
func (f *Fetcher) FetchAllArchives(ctx context.Context, progress func(ArchiveProgress)) error {
	archives := f.state.Load().record.Archives

	var progressMu sync.Mutex
	done := 0

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.config.Concurrency)
	for _, archive := range archives {
		group.Go(func() error {
			if err := f.FetchArchive(groupCtx, archive); err != nil {
				return err
			}
			if progress != nil {
				progressMu.Lock()
				done++
				progress(ArchiveProgress{Archive: archive, Done: done, Total: len(archives)})
				progressMu.Unlock()
			}
			return nil
		})
	}
	return group.Wait()
}

// Refresh resolves the build again and swaps the new indices in. It
// reports whether the build changed. On failure the current indices
// stay in place.
func (f *Fetcher) Refresh(ctx context.Context) (bool, error) {
	state, err := f.load(ctx)
	if err != nil {
		return false, fmt.Errorf("refreshing build: %w", err)
	}
	previous := f.state.Swap(state)
	changed := previous.record.BuildConfig != state.record.BuildConfig ||
		previous.record.CDNConfig != state.record.CDNConfig
	if changed {
		f.config.Logger.Info("build changed",
			"previous", previous.record.BuildName,
			"current", state.record.BuildName,
		)
	}
	return changed, nil
}

// Record returns a copy of the current build record.
func (f *Fetcher) Record() BuildRecord {
	return copyRecord(f.state.Load().record)
}

func copyRecord(original *BuildRecord) BuildRecord {
	record := *original
	record.Hosts = append([]string(nil), record.Hosts...)
	record.Archives = append([]tact.ArchiveKey(nil), record.Archives...)
	return record
}

// Status summarizes the current build and activity counters.
type Status struct {
	Record         BuildRecord
	RootEntries    int
	RootTruncated  bool
	ArchiveEntries int
	Offline        bool
	Stats          Stats
}

// Status returns a snapshot of the Fetcher's state.
func (f *Fetcher) Status() Status {
	state := f.state.Load()
	truncated, _ := state.root.Truncated()
	return Status{
		Record:         copyRecord(state.record),
		RootEntries:    state.root.Len(),
		RootTruncated:  truncated,
		ArchiveEntries: state.archives.Len(),
		Offline:        f.config.Offline,
		Stats:          f.Stats(),
	}
}

// Stats returns the activity counters.
func (f *Fetcher) Stats() Stats {
	return Stats{
		Requests:        f.counters.requests.Load(),
		Downloads:       f.counters.downloads.Load(),
		BytesDownloaded: f.counters.bytesDownloaded.Load(),
		CacheHits:       f.counters.cacheHits.Load(),
	}
}

// CacheDir returns the cache directory.
func (f *Fetcher) CacheDir() string {
	return f.cache.Dir()
}
