// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

// Package cdntest serves complete builds from an in-process patch
// server and CDN host for tests.
//
// A [Server] answers both the patch-server manifests and CDN data
// paths from one httptest server and counts requests by path.
// [Server.Publish] encodes a [Release] into everything a fetcher
// resolves: versions and cdns manifests, build and CDN config blobs,
// a BLTE root file, archives, and archive indices.
package cdntest

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/polymorph-tact/polymorph/lib/archiveindex"
	"github.com/polymorph-tact/polymorph/lib/blte"
	"github.com/polymorph-tact/polymorph/lib/rootfile"
	"github.com/polymorph-tact/polymorph/lib/tact"
)

// Values the published manifests use.
const (
	Product = "wow_classic"
	Region  = "us"
	CDNPath = "tpr/wow"
)

// Server is a combined patch server and CDN host.
type Server struct {
	t      testing.TB
	server *httptest.Server

	mu            sync.Mutex
	files         map[string][]byte
	status        map[string]int
	requests      map[string]int
	rangeRequests int

	// hold, when set, blocks data requests until it is closed.
	// arrived closes when the first held request comes in.
	hold    chan struct{}
	arrived chan struct{}
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		t:        t,
		files:    make(map[string][]byte),
		status:   make(map[string]int),
		requests: make(map[string]int),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.server.Close)
	return s
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	isData := strings.Contains(r.URL.Path, "/data/")

	s.mu.Lock()
	s.requests[r.URL.Path]++
	if r.Header.Get("Range") != "" {
		s.rangeRequests++
	}
	body, ok := s.files[r.URL.Path]
	status := s.status[r.URL.Path]
	hold, arrived := s.hold, s.arrived
	if hold != nil && isData {
		s.arrived = nil
	}
	s.mu.Unlock()

	if hold != nil && isData {
		if arrived != nil {
			close(arrived)
		}
		<-hold
	}

	if status != 0 {
		http.Error(w, "injected failure", status)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(body))
}

// URL is the patch server base URL.
func (s *Server) URL() string {
	return s.server.URL
}

// Host is the host:port listed in the cdns manifest.
func (s *Server) Host() string {
	return strings.TrimPrefix(s.server.URL, "http://")
}

// Client returns an HTTP client for the server.
func (s *Server) Client() *http.Client {
	return s.server.Client()
}

func normalize(path string) string {
	return "/" + strings.TrimPrefix(path, "/")
}

// Put serves data at path.
func (s *Server) Put(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[normalize(path)] = data
}

// File returns the bytes served at path, or nil.
func (s *Server) File(path string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.files[normalize(path)]...)
}

// Remove makes path answer 404.
func (s *Server) Remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, normalize(path))
}

// Fail makes path answer status. A zero status clears the failure.
func (s *Server) Fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.status, normalize(path))
		return
	}
	s.status[normalize(path)] = status
}

// RequestCount returns how many requests path received.
func (s *Server) RequestCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[normalize(path)]
}

// TotalRequests returns the number of requests across all paths.
func (s *Server) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, count := range s.requests {
		total += count
	}
	return total
}

// RangeRequests returns how many requests carried a Range header.
func (s *Server) RangeRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rangeRequests
}

// HoldData makes data requests block until release is called. The
// returned channel closes when the first held request arrives.
func (s *Server) HoldData() (arrived <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = make(chan struct{})
	s.arrived = make(chan struct{})
	hold := s.hold
	return s.arrived, func() { close(hold) }
}

// File is one file of a release. A zero Key defaults to the MD5 of
// Data.
type File struct {
	ID   uint32
	Key  tact.ContentKey
	Data []byte
}

// ContentKey returns the key the file is published under.
func (f File) ContentKey() tact.ContentKey {
	if !f.Key.IsZero() {
		return f.Key
	}
	return tact.ContentKey(md5.Sum(f.Data))
}

// Release describes a build to publish.
type Release struct {
	Name string

	// Archives lists the files of each archive, in CDN config order.
	Archives [][]File

	// RootOnly maps ids in the root file to keys no archive holds.
	RootOnly map[uint32]tact.ContentKey

	// TruncateRoot cuts this many bytes off the decoded root file.
	TruncateRoot int

	// ExtraHosts are listed before the server's own host.
	ExtraHosts []string

	// ServersOnly lists the server's own address only in the Servers
	// column, as a full URL, instead of in Hosts.
	ServersOnly bool

	// RegionRow overrides the region the manifests are published for.
	RegionRow string
}

// Published describes what Publish served.
type Published struct {
	Archives []tact.ArchiveKey
	Entries  map[tact.ContentKey]archiveindex.Entry
	Keys     map[uint32]tact.ContentKey
}

// EncodeFile wraps data in a chunk-table BLTE blob of 1 KiB zlib
// chunks, so corruption is caught by a chunk checksum.
func EncodeFile(t testing.TB, data []byte) []byte {
	t.Helper()
	builder := blte.NewBuilder()
	for start := 0; ; start += 1024 {
		end := min(start+1024, len(data))
		if _, err := builder.AddChunk(data[start:end], blte.ModeZlib); err != nil {
			t.Fatalf("AddChunk failed: %v", err)
		}
		if end == len(data) {
			break
		}
	}
	blob, err := builder.Bytes()
	if err != nil {
		t.Fatalf("building BLTE blob: %v", err)
	}
	return blob
}

// Publish serves a complete build, replacing the manifests of any
// earlier one. Data of earlier builds stays served.
func (s *Server) Publish(r Release) *Published {
	t := s.t
	t.Helper()

	result := &Published{
		Entries: make(map[tact.ContentKey]archiveindex.Entry),
		Keys:    make(map[uint32]tact.ContentKey),
	}
	for id, key := range r.RootOnly {
		result.Keys[id] = key
	}

	for _, files := range r.Archives {
		var archive []byte
		var entries []archiveindex.Entry
		for _, file := range files {
			key := file.ContentKey()
			blob := EncodeFile(t, file.Data)
			entries = append(entries, archiveindex.Entry{
				Key:    key,
				Offset: uint64(len(archive)),
				Length: uint32(len(blob)),
			})
			archive = append(archive, blob...)
			result.Keys[file.ID] = key
		}

		archiveKey := tact.ArchiveKey(md5.Sum(archive))
		index, err := archiveindex.Encode(entries)
		if err != nil {
			t.Fatalf("encoding archive index: %v", err)
		}
		s.Put(tact.ArchivePath(CDNPath, archiveKey), archive)
		s.Put(tact.ArchiveIndexPath(CDNPath, archiveKey), index)
		result.Archives = append(result.Archives, archiveKey)
		for _, entry := range entries {
			entry.Archive = archiveKey
			result.Entries[entry.Key] = entry
		}
	}

	ids := make([]uint32, 0, len(result.Keys))
	for id := range result.Keys {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	block := rootfile.Block{LocaleFlags: 0x2}
	for _, id := range ids {
		block.Files = append(block.Files, rootfile.File{ID: id, ContentKey: result.Keys[id]})
	}
	decodedRoot, err := rootfile.EncodeBlocks([]rootfile.Block{block})
	if err != nil {
		t.Fatalf("encoding root: %v", err)
	}
	decodedRoot = decodedRoot[:len(decodedRoot)-r.TruncateRoot]
	rootBlob, err := blte.EncodeSingle(decodedRoot, blte.ModeZlib)
	if err != nil {
		t.Fatalf("encoding root blob: %v", err)
	}
	rootKey := tact.ContentKey(md5.Sum(decodedRoot))
	rootBlobKey := tact.ContentKey(md5.Sum(rootBlob))
	s.Put(tact.Path(CDNPath, tact.CategoryData, rootBlobKey.String()), rootBlob)

	buildConfig := fmt.Sprintf("# Build Configuration\n\nroot = %s %s\nbuild-name = %s\n", rootKey, rootBlobKey, r.Name)
	buildKey := tact.ContentKey(md5.Sum([]byte(buildConfig)))
	s.Put(tact.Path(CDNPath, tact.CategoryConfig, buildKey.String()), []byte(buildConfig))

	archiveNames := make([]string, len(result.Archives))
	for i, archive := range result.Archives {
		archiveNames[i] = archive.String()
	}
	cdnConfig := fmt.Sprintf("# CDN Configuration\n\narchives = %s\n", strings.Join(archiveNames, " "))
	cdnKey := tact.ContentKey(md5.Sum([]byte(cdnConfig)))
	s.Put(tact.Path(CDNPath, tact.CategoryConfig, cdnKey.String()), []byte(cdnConfig))

	region := r.RegionRow
	if region == "" {
		region = Region
	}
	s.Put(Product+"/versions", []byte(fmt.Sprintf(
		"Region!STRING:0|BuildConfig!HEX:16|CDNConfig!HEX:16|KeyRing!HEX:16|BuildId!DEC:4|VersionsName!String:0|ProductConfig!HEX:16\n"+
			"## seqn = 1\n"+
			"%s|%s|%s||1234|1.13.2.1234|\n", region, buildKey, cdnKey)))

	hosts := append([]string(nil), r.ExtraHosts...)
	var servers string
	if r.ServersOnly {
		servers = s.URL() + "/?maxhosts=4"
	} else {
		hosts = append(hosts, s.Host())
	}
	s.Put(Product+"/cdns", []byte(fmt.Sprintf(
		"Name!STRING:0|Path!STRING:0|Hosts!STRING:0|Servers!STRING:0|ConfigPath!STRING:0\n"+
			"## seqn = 1\n"+
			"%s|%s|%s|%s|tpr/configs/data\n", region, CDNPath, strings.Join(hosts, " "), servers)))

	return result
}
