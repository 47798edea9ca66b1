// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

// Package assetserver exposes resolved assets over HTTP.
//
// Routes:
//
//	GET /id/{id}      decoded bytes of a numeric file id
//	GET /name/{name}  decoded bytes of a listfile name
//	GET /status       JSON summary of the loaded build
//
// Every response carries an X-Request-Id header, and every request
// produces one structured log line with that id.
package assetserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/polymorph-tact/polymorph/lib/cdn"
	"github.com/polymorph-tact/polymorph/lib/clock"
	"github.com/polymorph-tact/polymorph/lib/tact"
)

// Source resolves file ids. *cdn.Fetcher satisfies it.
type Source interface {
	FetchFileID(ctx context.Context, id uint32) ([]byte, error)
	Status() cdn.Status
}

// Names resolves listfile names. *listfile.Listfile satisfies it.
type Names interface {
	Lookup(name string) (uint32, error)
}

// Config configures a Server.
type Config struct {
	// Source resolves file ids. Required.
	Source Source

	// Names resolves /name requests. When nil, every name is not found.
	Names Names

	// Logger is used for request logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Clock measures request durations. Defaults to clock.Real().
	Clock clock.Clock
}

// Server is the HTTP handler for asset requests.
type Server struct {
	source Source
	names  Names
	logger *slog.Logger
	clock  clock.Clock
	router *mux.Router
}

// New builds the handler.
func New(config Config) *Server {
	if config.Source == nil {
		panic("assetserver: Source is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	server := &Server{
		source: config.Source,
		names:  config.Names,
		logger: config.Logger,
		clock:  config.Clock,
		router: mux.NewRouter(),
	}
	server.router.HandleFunc("/id/{id:[0-9]+}", server.handleID).Methods(http.MethodGet)
	server.router.HandleFunc("/name/{name:.+}", server.handleName).Methods(http.MethodGet)
	server.router.HandleFunc("/status", server.handleStatus).Methods(http.MethodGet)
	server.router.Use(server.logRequests)
	return server
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		http.Error(w, "file id must fit in 32 bits", http.StatusBadRequest)
		return
	}
	s.serveFile(w, r, uint32(id))
}

func (s *Server) handleName(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if s.names == nil {
		s.writeError(w, r, errors.Join(tact.ErrNotFound, errors.New("no listfile loaded")))
		return
	}
	id, err := s.names.Lookup(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("X-File-Id", strconv.FormatUint(uint64(id), 10))
	s.serveFile(w, r, id)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, id uint32) {
	data, err := s.source.FetchFileID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type statusResponse struct {
	Product        string   `json:"product"`
	Region         string   `json:"region"`
	BuildName      string   `json:"build_name"`
	VersionsName   string   `json:"versions_name"`
	BuildConfig    string   `json:"build_config"`
	CDNConfig      string   `json:"cdn_config"`
	Root           string   `json:"root"`
	Hosts          []string `json:"hosts"`
	Archives       int      `json:"archives"`
	RootEntries    int      `json:"root_entries"`
	RootTruncated  bool     `json:"root_truncated"`
	ArchiveEntries int      `json:"archive_entries"`
	Offline        bool     `json:"offline"`
	ResolvedAt     string   `json:"resolved_at"`

	Requests        int64 `json:"requests"`
	Downloads       int64 `json:"downloads"`
	BytesDownloaded int64 `json:"bytes_downloaded"`
	CacheHits       int64 `json:"cache_hits"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.source.Status()
	response := statusResponse{
		Product:         status.Record.Product,
		Region:          status.Record.Region,
		BuildName:       status.Record.BuildName,
		VersionsName:    status.Record.VersionsName,
		BuildConfig:     status.Record.BuildConfig.String(),
		CDNConfig:       status.Record.CDNConfig.String(),
		Root:            status.Record.Root.String(),
		Hosts:           status.Record.Hosts,
		Archives:        len(status.Record.Archives),
		RootEntries:     status.RootEntries,
		RootTruncated:   status.RootTruncated,
		ArchiveEntries:  status.ArchiveEntries,
		Offline:         status.Offline,
		ResolvedAt:      status.Record.ResolvedAt.Format(time.RFC3339),
		Requests:        status.Stats.Requests,
		Downloads:       status.Stats.Downloads,
		BytesDownloaded: status.Stats.BytesDownloaded,
		CacheHits:       status.Stats.CacheHits,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("writing status response", "error", err)
	}
}

// StatusCode maps a pipeline error to an HTTP status: absent assets
// are 404, failures of the upstream CDN or its data are 502, and local
// failures are 500.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, tact.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tact.ErrNetwork),
		errors.Is(err, tact.ErrMalformed),
		errors.Is(err, tact.ErrChecksumMismatch),
		errors.Is(err, tact.ErrUnsupportedEncoding):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"request_id", w.Header().Get(requestIDHeader),
			"path", r.URL.Path,
			"error", err,
		)
	}
	http.Error(w, err.Error(), code)
}

const requestIDHeader = "X-Request-Id"

// statusRecorder captures the status and size of a response for the
// request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	written, err := r.ResponseWriter.Write(data)
	r.bytes += written
	return written, err
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock.Now()
		requestID := uuid.NewString()
		w.Header().Set(requestIDHeader, requestID)

		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		s.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"bytes", recorder.bytes,
			"duration", clock.Since(s.clock, start),
		)
	})
}
