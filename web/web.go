package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/util/singleflight"

	"github.com/ShoshinNikita/gameicons/gameicons"
	"github.com/ShoshinNikita/gameicons/iconloader"
	"github.com/ShoshinNikita/gameicons/pkg/rlog"
)

type IconLoader interface {
	RequestIcon(id gameicons.TitleID)
	GetGameIcon(id gameicons.TitleID) (gameicons.Icon, error)
	Stats() iconloader.Stats
}

type TitleCatalog interface {
	Search(query string) []gameicons.Title
}

type Server struct {
	httpServer *http.Server

	loader IconLoader
	titles TitleCatalog
	events *EventHub

	encodeGroup singleflight.Group[gameicons.TitleID, []byte]
	// iconMaxSize is a part of icon ETags: icons change with it.
	iconMaxSize int

	// stopCh is closed on shutdown to finish event streams.
	stopCh chan struct{}
}

func NewServer(cfg gameicons.Config, loader IconLoader, titles TitleCatalog, events *EventHub) *Server {
	s := &Server{
		loader: loader,
		titles: titles,
		events: events,
		//
		iconMaxSize: cfg.IconMaxSize,
		stopCh:      make(chan struct{}),
	}

	mux := http.NewServeMux()

	// API
	mux.HandleFunc("POST /api/icons/{id}", s.handleRequestIcon)
	mux.HandleFunc("GET /api/icons/{id}", s.handleGetIcon)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/titles", s.handleTitles)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	// Debug
	mux.Handle("/debug/metrics", promhttp.Handler())

	handler := loggingMiddleware(mux)

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	rlog.Infof("start web server on %q", s.httpServer.Addr)

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stopCh)

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRequestIcon(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTitleID(w, r)
	if !ok {
		return
	}

	s.loader.RequestIcon(id)

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleGetIcon(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTitleID(w, r)
	if !ok {
		return
	}

	icon, err := s.loader.GetGameIcon(id)
	if err != nil {
		if errors.Is(err, gameicons.ErrIconNotFound) {
			writeError(w, http.StatusNotFound, "icon for title %s is not loaded", id)
			return
		}
		writeInternalServerError(w, "couldn't get icon: %s", err)
		return
	}

	// Icons never change, so concurrent requests can share the encoded image.
	data, err, _ := s.encodeGroup.Do(id, func() ([]byte, error) {
		buf := bytes.NewBuffer(nil)
		if err := png.Encode(buf, icon.Image()); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
	if err != nil {
		writeInternalServerError(w, "couldn't encode icon: %s", err)
		return
	}

	setCacheHeaders(w, 24*time.Hour, id.String()+"-"+strconv.Itoa(s.iconMaxSize))
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// handleEvents streams icon events as server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	events, unsubscribe := s.events.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		rlog.Errorf("couldn't flush event stream: %s", err)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.stopCh:
			return
		case e := <-events:
			data, err := json.Marshal(e)
			if err != nil {
				rlog.Errorf("couldn't marshal icon event: %s", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: icon\ndata: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

type TitleInfo struct {
	gameicons.Title

	IconLoaded bool `json:"icon_loaded"`
}

func (s *Server) handleTitles(w http.ResponseWriter, r *http.Request) {
	titles := s.titles.Search(r.URL.Query().Get("search"))

	res := make([]TitleInfo, 0, len(titles))
	for _, t := range titles {
		_, err := s.loader.GetGameIcon(t.ID)
		res = append(res, TitleInfo{
			Title:      t,
			IconLoaded: err == nil,
		})
	}

	writeJSON(w, res)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.loader.Stats())
}

func parseTitleID(w http.ResponseWriter, r *http.Request) (gameicons.TitleID, bool) {
	id, err := gameicons.ParseTitleID(r.PathValue("id"))
	if err != nil {
		writeBadRequestError(w, "%s", err)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		rlog.Errorf("couldn't write response: %s", err)
	}
}

func writeBadRequestError(w http.ResponseWriter, format string, a ...any) {
	writeError(w, http.StatusBadRequest, format, a...)
}

func writeInternalServerError(w http.ResponseWriter, format string, a ...any) {
	writeError(w, http.StatusInternalServerError, format, a...)
}

func writeError(w http.ResponseWriter, code int, format string, a ...any) {
	http.Error(w, fmt.Sprintf(format, a...), code)
}
