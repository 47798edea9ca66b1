// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package assetserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/polymorph-tact/polymorph/lib/cdn"
	"github.com/polymorph-tact/polymorph/lib/clock"
	"github.com/polymorph-tact/polymorph/lib/tact"
	"github.com/polymorph-tact/polymorph/lib/testutil"
)

type fakeSource struct {
	files  map[uint32][]byte
	errors map[uint32]error
}

func (f *fakeSource) FetchFileID(_ context.Context, id uint32) ([]byte, error) {
	if err, ok := f.errors[id]; ok {
		return nil, err
	}
	data, ok := f.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: file id %d", tact.ErrNotFound, id)
	}
	return data, nil
}

func (f *fakeSource) Status() cdn.Status {
	return cdn.Status{
		Record: cdn.BuildRecord{
			Product:   "wow_classic",
			Region:    "us",
			BuildName: "WOW-1234",
			Root:      testutil.Key(0x10),
			Hosts:     []string{"cdn.example"},
			Archives:  []tact.ArchiveKey{testutil.ArchiveKey(1), testutil.ArchiveKey(2)},
		},
		RootEntries:    3,
		ArchiveEntries: 2,
		Stats:          cdn.Stats{Requests: 7, CacheHits: 4},
	}
}

type fakeNames map[string]uint32

func (n fakeNames) Lookup(name string) (uint32, error) {
	id, ok := n[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", tact.ErrNotFound, name)
	}
	return id, nil
}

func newServer(names Names) *Server {
	return New(Config{
		Source: &fakeSource{
			files: map[uint32][]byte{1: []byte("payload one")},
			errors: map[uint32]error{
				10: fmt.Errorf("decoding: %w", tact.ErrChecksumMismatch),
				11: fmt.Errorf("decoding: %w", tact.ErrUnsupportedEncoding),
				12: fmt.Errorf("index: %w", tact.ErrTruncated),
				13: fmt.Errorf("GET: %w", tact.ErrNetwork),
				14: fmt.Errorf("cache: %w", tact.ErrIO),
			},
		},
		Names:  names,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:  clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
	return recorder
}

func TestGetByID(t *testing.T) {
	response := get(t, newServer(nil), "/id/1")
	if response.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.Code)
	}
	if response.Body.String() != "payload one" {
		t.Errorf("body = %q", response.Body.String())
	}
	if response.Header().Get("Content-Type") != "application/octet-stream" {
		t.Errorf("Content-Type = %q", response.Header().Get("Content-Type"))
	}
	if _, err := uuid.Parse(response.Header().Get("X-Request-Id")); err != nil {
		t.Errorf("X-Request-Id %q is not a uuid: %v", response.Header().Get("X-Request-Id"), err)
	}
}

func TestErrorStatusCodes(t *testing.T) {
	server := newServer(nil)
	tests := []struct {
		path string
		want int
	}{
		{"/id/2", http.StatusNotFound},
		{"/id/10", http.StatusBadGateway},
		{"/id/11", http.StatusBadGateway},
		{"/id/12", http.StatusBadGateway},
		{"/id/13", http.StatusBadGateway},
		{"/id/14", http.StatusInternalServerError},
		{"/id/99999999999", http.StatusBadRequest},
		{"/id/abc", http.StatusNotFound},
		{"/nowhere", http.StatusNotFound},
	}
	for _, tt := range tests {
		if got := get(t, server, tt.path).Code; got != tt.want {
			t.Errorf("GET %s status = %d, want %d", tt.path, got, tt.want)
		}
	}
}

func TestRequestIDsDiffer(t *testing.T) {
	server := newServer(nil)
	first := get(t, server, "/id/1").Header().Get("X-Request-Id")
	second := get(t, server, "/id/1").Header().Get("X-Request-Id")
	if first == "" || first == second {
		t.Errorf("request ids %q and %q, want two distinct ids", first, second)
	}
}

func TestGetByName(t *testing.T) {
	server := newServer(fakeNames{"interface/icons/x.blp": 1})

	response := get(t, server, "/name/interface/icons/x.blp")
	if response.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.Code)
	}
	if response.Body.String() != "payload one" || response.Header().Get("X-File-Id") != "1" {
		t.Errorf("body = %q, X-File-Id = %q", response.Body.String(), response.Header().Get("X-File-Id"))
	}

	if got := get(t, server, "/name/unknown.blp").Code; got != http.StatusNotFound {
		t.Errorf("unknown name status = %d, want 404", got)
	}
}

func TestGetByNameWithoutListfile(t *testing.T) {
	if got := get(t, newServer(nil), "/name/x.blp").Code; got != http.StatusNotFound {
		t.Errorf("status = %d, want 404", got)
	}
}

func TestStatus(t *testing.T) {
	response := get(t, newServer(nil), "/status")
	if response.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.Code)
	}
	var body statusResponse
	if err := json.Unmarshal(response.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if body.Product != "wow_classic" || body.Archives != 2 || body.RootEntries != 3 || body.Requests != 7 {
		t.Errorf("status = %+v", body)
	}
	if body.Root != testutil.Key(0x10).String() {
		t.Errorf("root = %q", body.Root)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	recorder := httptest.NewRecorder()
	newServer(nil).ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/id/1", nil))
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", recorder.Code)
	}
}
