// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package cdn

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/polymorph-tact/polymorph/lib/cdn/cdntest"
	"github.com/polymorph-tact/polymorph/lib/tact"
	"github.com/polymorph-tact/polymorph/lib/testutil"
)

var (
	smallFile  = []byte("hello from archive zero")
	largeFile  = bytes.Repeat([]byte("a large file spanning several chunks. "), 200)
	secondFile = []byte("the only file in archive one")
)

func standardRelease() cdntest.Release {
	return cdntest.Release{
		Name: "WOW-1234patch1.13.2_ClassicRetail",
		Archives: [][]cdntest.File{
			{{ID: 1, Data: smallFile}, {ID: 5, Data: largeFile}},
			{{ID: 7, Data: secondFile}},
		},
		RootOnly: map[uint32]tact.ContentKey{9: testutil.Key(0x90)},
	}
}

func newFetcher(t *testing.T, config Config) *Fetcher {
	t.Helper()
	fetcher, err := New(context.Background(), config)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return fetcher
}

func TestInitAndFetchFileID(t *testing.T) {
	cdn := cdntest.NewServer(t)
	cdn.Publish(standardRelease())
	fetcher := newFetcher(t, testConfig(cdn, t.TempDir()))

	for id, want := range map[uint32][]byte{1: smallFile, 5: largeFile, 7: secondFile} {
		got, err := fetcher.FetchFileID(context.Background(), id)
		if err != nil {
			t.Fatalf("FetchFileID(%d) failed: %v", id, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("FetchFileID(%d) returned %d bytes, want %d", id, len(got), len(want))
		}
	}

	status := fetcher.Status()
	if status.RootEntries != 4 {
		t.Errorf("RootEntries = %d, want 4", status.RootEntries)
	}
	if status.ArchiveEntries != 3 {
		t.Errorf("ArchiveEntries = %d, want 3", status.ArchiveEntries)
	}
	if status.Record.BuildName != "WOW-1234patch1.13.2_ClassicRetail" || status.Record.BuildID != 1234 {
		t.Errorf("Record = %+v", status.Record)
	}
	if len(status.Record.Archives) != 2 {
		t.Errorf("Record.Archives = %d, want 2", len(status.Record.Archives))
	}
}

func TestFetchFileIDNotFound(t *testing.T) {
	cdn := cdntest.NewServer(t)
	cdn.Publish(standardRelease())
	fetcher := newFetcher(t, testConfig(cdn, t.TempDir()))

	// Absent from the root index.
	if _, err := fetcher.FetchFileID(context.Background(), 2); !errors.Is(err, tact.ErrNotFound) {
		t.Errorf("FetchFileID(2) error = %v, want ErrNotFound", err)
	}
	// In the root index but in no archive index.
	if _, err := fetcher.FetchFileID(context.Background(), 9); !errors.Is(err, tact.ErrNotFound) {
		t.Errorf("FetchFileID(9) error = %v, want ErrNotFound", err)
	}
}

func TestFetchFileIDIsIdempotent(t *testing.T) {
	cdn := cdntest.NewServer(t)
	cdn.Publish(standardRelease())
	fetcher := newFetcher(t, testConfig(cdn, t.TempDir()))

	first, err := fetcher.FetchFileID(context.Background(), 1)
	if err != nil {
		t.Fatalf("first FetchFileID failed: %v", err)
	}
	afterFirst := cdn.TotalRequests()

	second, err := fetcher.FetchFileID(context.Background(), 1)
	if err != nil {
		t.Fatalf("second FetchFileID failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("second FetchFileID returned different bytes")
	}

	// A different file in the same archive is sliced from the cached
	// archive as well.
	if _, err := fetcher.FetchFileID(context.Background(), 5); err != nil {
		t.Fatalf("FetchFileID(5) failed: %v", err)
	}
	if got := cdn.TotalRequests(); got != afterFirst {
		t.Errorf("network requests grew from %d to %d on cached fetches", afterFirst, got)
	}
	if stats := fetcher.Stats(); stats.CacheHits == 0 {
		t.Errorf("Stats = %+v, want cache hits", stats)
	}
}

func TestConcurrentFetchesShareOneDownload(t *testing.T) {
	cdn := cdntest.NewServer(t)
	published := cdn.Publish(standardRelease())
	fetcher := newFetcher(t, testConfig(cdn, t.TempDir()))

	arrived, release := cdn.HoldData()
	results := make(chan error, 8)
	var group sync.WaitGroup
	for range 8 {
		group.Add(1)
		go func() {
			defer group.Done()
			data, err := fetcher.FetchFileID(context.Background(), 1)
			if err == nil && !bytes.Equal(data, smallFile) {
				err = errors.New("wrong bytes")
			}
			results <- err
		}()
	}

	testutil.RequireClosed(t, arrived, 5*time.Second, "first archive request")
	release()
	group.Wait()
	close(results)
	for err := range results {
		if err != nil {
			t.Errorf("concurrent FetchFileID failed: %v", err)
		}
	}

	archivePath := tact.ArchivePath(testCDNPath, published.Archives[0])
	if got := cdn.RequestCount(archivePath); got != 1 {
		t.Errorf("archive requested %d times, want 1", got)
	}
}

func TestArchiveIndexLaterArchiveWins(t *testing.T) {
	shared := testutil.Key(0x40)
	cdn := cdntest.NewServer(t)
	cdn.Publish(cdntest.Release{
		Name: "overlap",
		Archives: [][]cdntest.File{
			{{ID: 3, Key: shared, Data: []byte("stale copy")}},
			{{ID: 3, Key: shared, Data: []byte("current copy")}},
		},
	})
	fetcher := newFetcher(t, testConfig(cdn, t.TempDir()))

	got, err := fetcher.FetchContent(context.Background(), shared)
	if err != nil {
		t.Fatalf("FetchContent failed: %v", err)
	}
	if string(got) != "current copy" {
		t.Errorf("FetchContent = %q, want the later archive's copy", got)
	}
}

func TestInitFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*cdntest.Server, *cdntest.Published)
		release  cdntest.Release
		wantKind error
	}{
		{
			name:     "versions server error",
			release:  standardRelease(),
			setup:    func(m *cdntest.Server, _ *cdntest.Published) { m.Fail(testProduct+"/versions", http.StatusInternalServerError) },
			wantKind: tact.ErrNetwork,
		},
		{
			name:     "region missing",
			release:  cdntest.Release{Name: "eu only", RegionRow: "eu"},
			wantKind: tact.ErrNotFound,
		},
		{
			name:    "archive index missing",
			release: standardRelease(),
			setup: func(m *cdntest.Server, p *cdntest.Published) {
				m.Remove(tact.ArchiveIndexPath(testCDNPath, p.Archives[1]))
			},
			wantKind: tact.ErrNotFound,
		},
		{
			name:    "archive index malformed",
			release: standardRelease(),
			setup: func(m *cdntest.Server, p *cdntest.Published) {
				m.Put(tact.ArchiveIndexPath(testCDNPath, p.Archives[0]), make([]byte, 25))
			},
			wantKind: tact.ErrMalformed,
		},
		{
			name:     "cdns manifest missing",
			release:  standardRelease(),
			setup:    func(m *cdntest.Server, _ *cdntest.Published) { m.Remove(testProduct + "/cdns") },
			wantKind: tact.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cdn := cdntest.NewServer(t)
			published := cdn.Publish(tt.release)
			if tt.setup != nil {
				tt.setup(cdn, published)
			}

			fetcher, err := New(context.Background(), testConfig(cdn, t.TempDir()))
			if fetcher != nil {
				t.Error("New returned a Fetcher alongside an error")
			}
			if !errors.Is(err, tact.ErrConfigFetch) {
				t.Fatalf("error = %v, want ErrConfigFetch", err)
			}
			if !errors.Is(err, tt.wantKind) {
				t.Errorf("error = %v, want it to also be %v", err, tt.wantKind)
			}
		})
	}
}

func TestFailedDownloadLeavesNoCacheEntry(t *testing.T) {
	cdn := cdntest.NewServer(t)
	published := cdn.Publish(standardRelease())
	config := testConfig(cdn, t.TempDir())
	fetcher := newFetcher(t, config)

	archivePath := tact.ArchivePath(testCDNPath, published.Archives[0])
	cdn.Fail(archivePath, http.StatusBadGateway)

	if _, err := fetcher.FetchFileID(context.Background(), 1); !errors.Is(err, tact.ErrNetwork) {
		t.Fatalf("FetchFileID error = %v, want ErrNetwork", err)
	}
	if fetcher.cache.Has(published.Archives[0].String()) {
		t.Fatal("failed download left a cache entry")
	}

	cdn.Fail(archivePath, 0)
	cdn.Remove(archivePath)
	if _, err := fetcher.FetchFileID(context.Background(), 1); !errors.Is(err, tact.ErrNotFound) {
		t.Fatalf("FetchFileID error = %v, want ErrNotFound", err)
	}
	if fetcher.cache.Has(published.Archives[0].String()) {
		t.Fatal("404 left a cache entry")
	}
}

func TestHostFailover(t *testing.T) {
	cdn := cdntest.NewServer(t)
	r := standardRelease()
	// Nothing listens on port 1; the first host always refuses.
	r.ExtraHosts = []string{"127.0.0.1:1"}
	cdn.Publish(r)
	fetcher := newFetcher(t, testConfig(cdn, t.TempDir()))

	got, err := fetcher.FetchFileID(context.Background(), 7)
	if err != nil {
		t.Fatalf("FetchFileID failed: %v", err)
	}
	if !bytes.Equal(got, secondFile) {
		t.Errorf("FetchFileID(7) = %q", got)
	}
}

func TestServersColumnFeedsHostList(t *testing.T) {
	cdn := cdntest.NewServer(t)
	r := standardRelease()
	r.ExtraHosts = []string{"127.0.0.1:1"}
	r.ServersOnly = true
	cdn.Publish(r)
	fetcher := newFetcher(t, testConfig(cdn, t.TempDir()))

	got, err := fetcher.FetchFileID(context.Background(), 1)
	if err != nil {
		t.Fatalf("FetchFileID failed: %v", err)
	}
	if !bytes.Equal(got, smallFile) {
		t.Errorf("FetchFileID(1) = %q", got)
	}

	hosts := fetcher.Status().Record.Hosts
	if len(hosts) != 2 || hosts[0] != "127.0.0.1:1" || hosts[1] != cdn.URL() {
		t.Errorf("Record.Hosts = %v, want [127.0.0.1:1 %s]", hosts, cdn.URL())
	}
}

func TestChecksumMismatch(t *testing.T) {
	cdn := cdntest.NewServer(t)
	published := cdn.Publish(standardRelease())
	fetcher := newFetcher(t, testConfig(cdn, t.TempDir()))

	entry := published.Entries[published.Keys[5]]
	archivePath := tact.ArchivePath(testCDNPath, entry.Archive)
	corrupted := cdn.File(archivePath)
	corrupted[entry.Offset+uint64(entry.Length)-1] ^= 0xFF
	cdn.Put(archivePath, corrupted)

	data, err := fetcher.FetchFileID(context.Background(), 5)
	if !errors.Is(err, tact.ErrChecksumMismatch) {
		t.Fatalf("FetchFileID error = %v, want ErrChecksumMismatch", err)
	}
	if data != nil {
		t.Error("FetchFileID returned data alongside a checksum error")
	}
}

func TestRangeRequests(t *testing.T) {
	cdn := cdntest.NewServer(t)
	published := cdn.Publish(standardRelease())
	config := testConfig(cdn, t.TempDir())
	config.RangeRequests = true
	fetcher := newFetcher(t, config)

	for range 2 {
		got, err := fetcher.FetchFileID(context.Background(), 5)
		if err != nil {
			t.Fatalf("FetchFileID failed: %v", err)
		}
		if !bytes.Equal(got, largeFile) {
			t.Fatalf("FetchFileID(5) returned %d bytes, want %d", len(got), len(largeFile))
		}
	}

	if got := cdn.RangeRequests(); got != 1 {
		t.Errorf("range requests = %d, want 1", got)
	}
	if fetcher.cache.Has(published.Archives[0].String()) {
		t.Error("range mode cached the whole archive")
	}
	if !fetcher.cache.Has(published.Keys[5].String()) {
		t.Error("range mode did not cache the file under its content key")
	}
}

func TestRangePastArchiveEndIsMalformed(t *testing.T) {
	cdn := cdntest.NewServer(t)
	published := cdn.Publish(standardRelease())
	config := testConfig(cdn, t.TempDir())
	config.RangeRequests = true
	fetcher := newFetcher(t, config)

	// The index still describes the full archive. File 1 starts at
	// offset 0 and comes back short (206); file 5 starts past the new
	// end (416).
	archivePath := tact.ArchivePath(testCDNPath, published.Archives[0])
	cdn.Put(archivePath, cdn.File(archivePath)[:1])

	for _, id := range []uint32{1, 5} {
		_, err := fetcher.FetchFileID(context.Background(), id)
		if !errors.Is(err, tact.ErrMalformed) {
			t.Errorf("FetchFileID(%d) error = %v, want ErrMalformed", id, err)
		}
		if errors.Is(err, tact.ErrNetwork) {
			t.Errorf("FetchFileID(%d) error = %v, should not be ErrNetwork", id, err)
		}
	}
}

func TestFetchArchiveIsIdempotent(t *testing.T) {
	cdn := cdntest.NewServer(t)
	published := cdn.Publish(standardRelease())
	fetcher := newFetcher(t, testConfig(cdn, t.TempDir()))

	for range 3 {
		if err := fetcher.FetchArchive(context.Background(), published.Archives[1]); err != nil {
			t.Fatalf("FetchArchive failed: %v", err)
		}
	}
	if got := cdn.RequestCount(tact.ArchivePath(testCDNPath, published.Archives[1])); got != 1 {
		t.Errorf("archive requested %d times, want 1", got)
	}
}

func TestFetchAllArchives(t *testing.T) {
	cdn := cdntest.NewServer(t)
	published := cdn.Publish(standardRelease())
	fetcher := newFetcher(t, testConfig(cdn, t.TempDir()))

	var reports []ArchiveProgress
	err := fetcher.FetchAllArchives(context.Background(), func(progress ArchiveProgress) {
		reports = append(reports, progress)
	})
	if err != nil {
		t.Fatalf("FetchAllArchives failed: %v", err)
	}

	if len(reports) != 2 {
		t.Fatalf("progress called %d times, want 2", len(reports))
	}
	if last := reports[len(reports)-1]; last.Done != 2 || last.Total != 2 {
		t.Errorf("last progress = %+v, want 2/2", last)
	}
	for _, archive := range published.Archives {
		if !fetcher.cache.Has(archive.String()) {
			t.Errorf("archive %s not cached", archive)
		}
	}
}

func TestFetchAllArchivesReportsFailure(t *testing.T) {
	cdn := cdntest.NewServer(t)
	published := cdn.Publish(standardRelease())
	fetcher := newFetcher(t, testConfig(cdn, t.TempDir()))
	cdn.Remove(tact.ArchivePath(testCDNPath, published.Archives[1]))

	err := fetcher.FetchAllArchives(context.Background(), nil)
	if !errors.Is(err, tact.ErrNotFound) {
		t.Errorf("FetchAllArchives error = %v, want ErrNotFound", err)
	}
}

type refusingClient struct {
	t *testing.T
}

func (c refusingClient) Do(request *http.Request) (*http.Response, error) {
	c.t.Errorf("offline fetcher issued a request for %s", request.URL)
	return nil, errors.New("offline")
}

func TestOfflineMode(t *testing.T) {
	cdn := cdntest.NewServer(t)
	cdn.Publish(standardRelease())
	cacheDir := t.TempDir()

	online := newFetcher(t, testConfig(cdn, cacheDir))
	if _, err := online.FetchFileID(context.Background(), 1); err != nil {
		t.Fatalf("online FetchFileID failed: %v", err)
	}

	config := testConfig(cdn, cacheDir)
	config.Offline = true
	config.PatchServer = ""
	config.HTTPClient = refusingClient{t: t}
	offline := newFetcher(t, config)

	got, err := offline.FetchFileID(context.Background(), 1)
	if err != nil {
		t.Fatalf("offline FetchFileID of a cached file failed: %v", err)
	}
	if !bytes.Equal(got, smallFile) {
		t.Errorf("offline FetchFileID(1) = %q", got)
	}

	// Archive one was never downloaded.
	if _, err := offline.FetchFileID(context.Background(), 7); !errors.Is(err, tact.ErrNotFound) {
		t.Errorf("offline FetchFileID(7) error = %v, want ErrNotFound", err)
	}
}

func TestOfflineModeWithoutRecord(t *testing.T) {
	config := Config{
		Product:  testProduct,
		Region:   testRegion,
		CacheDir: t.TempDir(),
		Offline:  true,
	}
	_, err := New(context.Background(), config)
	if !errors.Is(err, tact.ErrConfigFetch) || !errors.Is(err, tact.ErrNotFound) {
		t.Errorf("New error = %v, want ErrConfigFetch and ErrNotFound", err)
	}
}

func TestRefreshSwapsBuild(t *testing.T) {
	cdn := cdntest.NewServer(t)
	cdn.Publish(standardRelease())
	fetcher := newFetcher(t, testConfig(cdn, t.TempDir()))

	changed, err := fetcher.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if changed {
		t.Error("Refresh reported a change with the same build published")
	}

	updated := []byte("patched content for file one")
	cdn.Publish(cdntest.Release{
		Name:     "WOW-1235patch1.13.3_ClassicRetail",
		Archives: [][]cdntest.File{{{ID: 1, Data: updated}}},
	})

	changed, err = fetcher.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !changed {
		t.Error("Refresh did not report the new build")
	}
	got, err := fetcher.FetchFileID(context.Background(), 1)
	if err != nil {
		t.Fatalf("FetchFileID after Refresh failed: %v", err)
	}
	if !bytes.Equal(got, updated) {
		t.Errorf("FetchFileID(1) after Refresh = %q, want %q", got, updated)
	}
	if _, err := fetcher.FetchFileID(context.Background(), 7); !errors.Is(err, tact.ErrNotFound) {
		t.Errorf("file from the previous build: error = %v, want ErrNotFound", err)
	}
	if fetcher.Record().BuildName != "WOW-1235patch1.13.3_ClassicRetail" {
		t.Errorf("Record().BuildName = %q", fetcher.Record().BuildName)
	}
}

func TestRefreshFailureKeepsCurrentBuild(t *testing.T) {
	cdn := cdntest.NewServer(t)
	cdn.Publish(standardRelease())
	fetcher := newFetcher(t, testConfig(cdn, t.TempDir()))

	cdn.Fail(testProduct+"/versions", http.StatusServiceUnavailable)
	if _, err := fetcher.Refresh(context.Background()); !errors.Is(err, tact.ErrNetwork) {
		t.Fatalf("Refresh error = %v, want ErrNetwork", err)
	}
	if _, err := fetcher.FetchFileID(context.Background(), 1); err != nil {
		t.Errorf("FetchFileID after a failed Refresh: %v", err)
	}
}

func TestTruncatedRoot(t *testing.T) {
	cdn := cdntest.NewServer(t)
	r := standardRelease()
	r.TruncateRoot = 3
	cdn.Publish(r)

	fetcher := newFetcher(t, testConfig(cdn, t.TempDir()))
	status := fetcher.Status()
	if !status.RootTruncated {
		t.Error("Status().RootTruncated = false for a truncated root")
	}
	// The only block is incomplete, so nothing is indexed.
	if status.RootEntries != 0 {
		t.Errorf("RootEntries = %d, want 0", status.RootEntries)
	}

	config := testConfig(cdn, t.TempDir())
	config.StrictRoot = true
	_, err := New(context.Background(), config)
	if !errors.Is(err, tact.ErrConfigFetch) || !errors.Is(err, tact.ErrMalformed) {
		t.Errorf("strict New error = %v, want ErrConfigFetch and ErrMalformed", err)
	}
}

func TestBuildRecordPersisted(t *testing.T) {
	cdn := cdntest.NewServer(t)
	published := cdn.Publish(standardRelease())
	config := testConfig(cdn, t.TempDir())
	newFetcher(t, config)

	fetcher := newFetcher(t, config)
	record, err := LoadRecord(fetcher.cache)
	if err != nil {
		t.Fatalf("LoadRecord failed: %v", err)
	}
	if record.Product != testProduct || record.CDNPath != testCDNPath {
		t.Errorf("record = %+v", record)
	}
	if len(record.Archives) != 2 || record.Archives[1] != published.Archives[1] {
		t.Errorf("record archives = %v, want %v", record.Archives, published.Archives)
	}
	if !record.ResolvedAt.Equal(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("ResolvedAt = %v", record.ResolvedAt)
	}
}

func TestConfigRequiresFields(t *testing.T) {
	for name, config := range map[string]Config{
		"product":      {Region: "us", CacheDir: "x", PatchServer: "http://p"},
		"region":       {Product: "p", CacheDir: "x", PatchServer: "http://p"},
		"cache":        {Product: "p", Region: "us", PatchServer: "http://p"},
		"patch server": {Product: "p", Region: "us", CacheDir: "x"},
	} {
		if _, err := New(context.Background(), config); !errors.Is(err, tact.ErrConfigFetch) {
			t.Errorf("%s missing: error = %v, want ErrConfigFetch", name, err)
		}
	}
}
