// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package api exposes the device store over HTTP.
//
// Every store operation has a route; the response carries the affected
// device or the new state. Operations that wait on a device (toggle,
// update, connect, disconnect, scan) hold the request open until the
// simulated round trip completes. GET /ws streams store snapshots.
package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/SP4567/smart-home-whisper/device"
	"github.com/SP4567/smart-home-whisper/pkg/notifications"
	"github.com/SP4567/smart-home-whisper/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// Options configures the HTTP surface.
type Options struct {
	RateLimit      float64  // requests per second on /health and /metrics; 0 disables
	RateBurst      int      // burst for RateLimit
	AllowedOrigins []string // extra origins allowed to open /ws
}

// Server serves the hub API.
type Server struct {
	store   *store.Store
	feed    *notifications.Feed
	opts    Options
	handler http.Handler
}

// New builds the API over st. feed may be nil, in which case
// /notifications returns an empty list.
func New(st *store.Store, feed *notifications.Feed, opts Options) *Server {
	s := &Server{store: st, feed: feed, opts: opts}
	s.handler = s.buildRouter()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware)

	r.Group(func(r chi.Router) {
		if s.opts.RateLimit > 0 {
			burst := s.opts.RateBurst
			if burst < 1 {
				burst = 1
			}
			r.Use(rateLimitMiddleware(rate.NewLimiter(rate.Limit(s.opts.RateLimit), burst)))
		}
		r.Get("/health", s.handleHealth)
		r.Handle("/metrics", promhttp.Handler())
	})

	r.Route("/devices", func(r chi.Router) {
		r.Get("/", s.handleListDevices)
		r.Post("/", s.handleAddDevice)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetDevice)
			r.Delete("/", s.handleRemoveDevice)
			r.Post("/toggle", s.handleToggle)
			r.Patch("/data", s.handleUpdateData)
			r.Post("/connect", s.handleConnect)
			r.Post("/disconnect", s.handleDisconnect)
		})
	})

	r.Route("/scan", func(r chi.Router) {
		r.Get("/", s.handleScanResults)
		r.Post("/", s.handleScan)
		r.Post("/{key}/connect", s.handleConnectNew)
	})

	r.Post("/refresh", s.handleRefresh)
	r.Get("/state", s.handleState)
	r.Delete("/state/error", s.handleClearError)
	r.Get("/notifications", s.handleNotifications)
	r.Delete("/notifications", s.handleClearNotifications)
	r.Get("/ws", s.handleWebSocket)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"devices": len(snap.Devices),
		"version": snap.Version,
	})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var devices []*device.Device
	if room := r.URL.Query().Get("room"); room != "" {
		devices = s.store.DevicesByRoom(room)
	} else {
		devices = s.store.Devices()
	}
	if devices == nil {
		devices = []*device.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (s *Server) handleAddDevice(w http.ResponseWriter, r *http.Request) {
	var in device.Input
	if !decodeBody(w, r, &in) {
		return
	}
	d, err := s.store.AddDevice(r.Context(), in)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.Device(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RemoveDevice(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.respondWithDevice(w, id, s.store.ToggleDevice(r.Context(), id))
}

func (s *Server) handleUpdateData(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch device.Patch
	if !decodeBody(w, r, &patch) {
		return
	}
	s.respondWithDevice(w, id, s.store.UpdateDeviceData(r.Context(), id, patch))
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.respondWithDevice(w, id, s.store.ConnectToDevice(r.Context(), id))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.respondWithDevice(w, id, s.store.DisconnectFromDevice(r.Context(), id))
}

// respondWithDevice writes err, or the device's current state on success.
func (s *Server) respondWithDevice(w http.ResponseWriter, id string, err error) {
	if err != nil {
		writeStoreError(w, err)
		return
	}
	d, err := s.store.Device(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleScanResults(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"isScanning":  snap.IsScanning,
		"scanResults": snap.ScanResults,
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ScanForNewDevices(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}
	s.handleScanResults(w, r)
}

func (s *Server) handleConnectNew(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid candidate key")
		return
	}
	d, err := s.store.ConnectToNewDevice(r.Context(), key)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RefreshDevices(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *Server) handleClearError(w http.ResponseWriter, _ *http.Request) {
	s.store.ClearError()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	toasts := []notifications.Toast{}
	if s.feed != nil {
		toasts = s.feed.List()
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": toasts})
}

func (s *Server) handleClearNotifications(w http.ResponseWriter, _ *http.Request) {
	if s.feed != nil {
		s.feed.Clear()
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody decodes a JSON body into v, rejecting unknown fields. It writes
// the error response itself and reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
