// Copyright (C) 2026 Ironlog Authors.
// See LICENSE for copying information.

// Package consoleserver serves the HTTP query API and the embedded web UI.
package consoleserver

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/heety313/ironlog/collector/collectordb"
	"github.com/heety313/ironlog/collector/console"
	"github.com/heety313/ironlog/pkg/logmsg"
)

const (
	contentType = "Content-Type"

	applicationJSON = "application/json"
)

var (
	mon = monkit.Package()

	// Error is the console web server error class.
	Error = errs.Class("console web server")
)

//go:embed web
var staticAssets embed.FS

// Server serves the JSON query API and the embedded web UI.
type Server struct {
	log *zap.Logger

	service  *console.Service
	listener net.Listener

	server http.Server
}

// NewServer creates a new console web server on an already-bound listener.
func NewServer(log *zap.Logger, service *console.Service, listener net.Listener) *Server {
	server := Server{
		log:      log,
		service:  service,
		listener: listener,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/hashes", server.hashesHandler)
	mux.HandleFunc("/api/date_range", server.dateRangeHandler)
	mux.HandleFunc("/api/logs/", server.logsHandler)
	mux.HandleFunc("/api/log_info", server.logInfoHandler)
	mux.HandleFunc("/api/purge_logs", server.purgeHandler)
	mux.HandleFunc("/api/insert_log", server.insertHandler)

	static, err := fs.Sub(staticAssets, "web")
	if err == nil {
		mux.Handle("/", http.FileServer(http.FS(static)))
	}

	server.server = http.Server{
		Handler: mux,
	}

	return &server
}

// Addr returns the listener address.
func (server *Server) Addr() net.Addr { return server.listener.Addr() }

// Run starts the server that hosts the webapp and api endpoints.
func (server *Server) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		return server.server.Shutdown(context.Background())
	})
	group.Go(func() error {
		defer cancel()
		err := server.server.Serve(server.listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return Error.Wrap(err)
	})

	return group.Wait()
}

// Close closes server and underlying listener.
func (server *Server) Close() error {
	return Error.Wrap(server.server.Close())
}

// hashesHandler lists all stream ids.
func (server *Server) hashesHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer mon.Task()(&ctx)(nil)

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hashes, err := server.service.Hashes(ctx)
	if err != nil {
		server.writeError(w, http.StatusInternalServerError, err)
		return
	}
	server.writeJSON(w, hashes)
}

// dateRangeHandler reports the persisted timestamp span.
func (server *Server) dateRangeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer mon.Task()(&ctx)(nil)

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dateRange, err := server.service.Range(ctx)
	if err != nil {
		server.writeError(w, http.StatusInternalServerError, err)
		return
	}
	server.writeJSON(w, dateRange)
}

// logsHandler returns records for one stream, newest first. Query parameters
// count, start and end are optional and applied independently.
func (server *Server) logsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer mon.Task()(&ctx)(nil)

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hash, err := url.PathUnescape(strings.TrimPrefix(r.URL.Path, "/api/logs/"))
	if err != nil || hash == "" || strings.Contains(hash, "/") {
		http.NotFound(w, r)
		return
	}

	opts := collectordb.SelectOptions{
		Start: r.URL.Query().Get("start"),
		End:   r.URL.Query().Get("end"),
	}
	if raw := r.URL.Query().Get("count"); raw != "" {
		count, err := strconv.Atoi(raw)
		if err != nil || count < 0 {
			server.writeError(w, http.StatusBadRequest, errs.New("invalid count %q", raw))
			return
		}
		opts.Limit = count
	}

	logs, err := server.service.Logs(ctx, hash, opts)
	if err != nil {
		server.writeError(w, http.StatusInternalServerError, err)
		return
	}
	server.writeJSON(w, logs)
}

// logInfoHandler reports a store summary.
func (server *Server) logInfoHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer mon.Task()(&ctx)(nil)

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info, err := server.service.GetInfo(ctx)
	if err != nil {
		server.writeError(w, http.StatusInternalServerError, err)
		return
	}
	server.writeJSON(w, info)
}

// purgeHandler deletes all persisted records.
func (server *Server) purgeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer mon.Task()(&ctx)(nil)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := server.service.Purge(ctx); err != nil {
		server.writeError(w, http.StatusInternalServerError, err)
		return
	}
	server.writeJSON(w, console.StatusPurged)
}

// insertHandler is the synchronous ingestion endpoint.
func (server *Server) insertHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer mon.Task()(&ctx)(nil)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var msg logmsg.LogMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		server.writeError(w, http.StatusBadRequest, err)
		return
	}

	status, err := server.service.Insert(ctx, msg)
	if err != nil {
		if errors.Is(err, logmsg.ErrMissingHash) {
			server.writeError(w, http.StatusBadRequest, err)
			return
		}
		server.writeError(w, http.StatusInternalServerError, err)
		return
	}
	server.writeJSON(w, status)
}

// writeJSON is a helper method to write JSON to http.ResponseWriter and log
// encoding errors.
func (server *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set(contentType, applicationJSON)
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		server.log.Error("failed to write json response", zap.Error(err))
	}
}

// writeError is a helper method to write a JSON error to http.ResponseWriter.
func (server *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set(contentType, applicationJSON)
	w.WriteHeader(status)

	output := struct {
		Error string `json:"error"`
	}{Error: err.Error()}

	if err := json.NewEncoder(w).Encode(output); err != nil {
		server.log.Error("failed to write json error", zap.Error(err))
	}
}
