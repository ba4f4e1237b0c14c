// Package api provides the HTTP server: thin routing and encoding over the
// pack store, manifest cache and diff engine.
package api

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/diff"
	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/logging"
	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/manifest"
	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/metrics"
	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/pack"
)

// maxDiffBodySize bounds client file-state uploads.
const maxDiffBodySize = 32 << 20

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// BundleRequest is the body for POST /api/v1/packs/{id}/bundle.
type BundleRequest struct {
	Paths []string `json:"paths"`
}

// Server is the HTTP server.
type Server struct {
	store *pack.Store
	cache *manifest.Cache
}

// NewServer creates a new server over the pack store and manifest cache.
func NewServer(store *pack.Store, cache *manifest.Cache) *Server {
	return &Server{store: store, cache: cache}
}

// Handler returns the HTTP handler with logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/v1/packs", s.handleListPacks)
	mux.HandleFunc("GET /api/v1/packs/{id}", s.handleManifest)
	mux.HandleFunc("POST /api/v1/packs/{id}/diff", s.handleDiff)
	mux.HandleFunc("GET /api/v1/packs/{id}/files/{path...}", s.handleFile)
	mux.HandleFunc("POST /api/v1/packs/{id}/bundle", s.handleBundle)

	return metrics.Middleware(logging.Middleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPacks(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.List()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	m, err := s.cache.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	var state []diff.FileState
	if err := json.NewDecoder(io.LimitReader(r.Body, maxDiffBodySize)).Decode(&state); err != nil {
		s.writeErrorStatus(w, http.StatusBadRequest, fmt.Errorf("decode file state: %w", err))
		return
	}
	m, err := s.cache.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ops := diff.Compute(m, state)
	if ops == nil {
		ops = []diff.Operation{}
	}
	writeJSON(w, http.StatusOK, ops)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	abs, err := s.store.SafeJoin(r.PathValue("id"), r.PathValue("path"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		s.writeErrorStatus(w, http.StatusNotFound, errors.New("file not found"))
		return
	}
	metrics.AddContentBytes(info.Size())
	http.ServeFile(w, r, abs)
}

// handleBundle streams a zip of the requested file subset. Files that
// vanish mid-stream are skipped; the archive is built on the fly so there
// is no content-length header.
func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req BundleRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxDiffBodySize)).Decode(&req); err != nil {
		s.writeErrorStatus(w, http.StatusBadRequest, fmt.Errorf("decode bundle request: %w", err))
		return
	}
	if len(req.Paths) == 0 {
		s.writeErrorStatus(w, http.StatusBadRequest, errors.New("no paths requested"))
		return
	}

	// Resolve everything up front so path errors become a 400 instead of a
	// broken stream.
	resolved := make(map[string]string, len(req.Paths))
	for _, rel := range req.Paths {
		abs, err := s.store.SafeJoin(id, rel)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resolved[rel] = abs
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".zip"))
	w.WriteHeader(http.StatusOK)

	zw := zip.NewWriter(w)
	defer zw.Close()
	for _, rel := range req.Paths {
		if r.Context().Err() != nil {
			return
		}
		if err := addToZip(zw, rel, resolved[rel]); err != nil {
			logging.Warn("bundle entry skipped", zap.String("path", rel), zap.Error(err))
		}
	}
}

func addToZip(zw *zip.Writer, rel, abs string) error {
	f, err := os.Open(abs)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return fmt.Errorf("not a regular file")
	}

	hdr := &zip.FileHeader{Name: rel, Method: zip.Deflate}
	hdr.Modified = info.ModTime()
	entry, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, f)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps core errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pack.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pack.ErrUnsafePath):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = 499 // client closed request
	}
	if status == http.StatusInternalServerError {
		logging.WithContext(r.Context()).Error("request failed", zap.Error(err))
	}
	s.writeErrorStatus(w, status, err)
}

func (s *Server) writeErrorStatus(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: status})
}

// Run serves the handler until ctx is cancelled, then shuts down
// gracefully within the given timeout.
func (s *Server) Run(ctx context.Context, addr string, readTimeout, writeTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
