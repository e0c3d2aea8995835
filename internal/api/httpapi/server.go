// Package httpapi exposes hosted readers over HTTP and websockets.
package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/speedreader/internal/app/playback"
	"github.com/osa030/speedreader/internal/app/reader"
	"github.com/osa030/speedreader/internal/infra/config"
	"github.com/osa030/speedreader/internal/infra/metrics"
)

// Server serves the reader API.
type Server struct {
	cfg      *config.Config
	readers  *reader.Registry
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

// New creates a new API server.
func New(cfg *config.Config, readers *reader.Registry, m *metrics.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		readers: readers,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Server.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	r.Route("/v1/readers", func(r chi.Router) {
		r.Get("/", s.handleListReaders)
		r.Get("/{id}", s.handleGetReader)
		r.Get("/{id}/ws", s.handleReaderWS)

		r.Group(func(r chi.Router) {
			r.Use(s.adminAuth)
			r.Post("/", s.handleCreateReader)
			r.Delete("/{id}", s.handleDeleteReader)
			r.Post("/{id}/play", s.handleTransport("play", func(rd *reader.Reader, _ *http.Request) error {
				return rd.Engine().Play()
			}))
			r.Post("/{id}/pause", s.handleTransport("pause", func(rd *reader.Reader, _ *http.Request) error {
				return rd.Engine().Pause()
			}))
			r.Post("/{id}/reset", s.handleTransport("reset", resetFromQuery))
			r.Put("/{id}/speed", s.handleTransport("speed", setSpeedFromBody))
			r.Put("/{id}/chunk", s.handleTransport("chunk", setChunkFromBody))
			r.Put("/{id}/text", s.handleTransport("text", s.setTextFromBody))
		})
	})

	return r
}

type createReaderRequest struct {
	Text    string         `json:"text"`
	Options map[string]any `json:"options"`
}

type readerResponse struct {
	ID       string            `json:"id"`
	State    string            `json:"state"`
	Snapshot playback.Snapshot `json:"snapshot"`
}

type listReadersResponse struct {
	Readers []string `json:"readers"`
}

type speedRequest struct {
	Speed float64 `json:"speed"`
}

type chunkRequest struct {
	WordsPerChunk int `json:"words_per_chunk"`
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"readers": s.readers.Count(),
	})
}

func (s *Server) handleCreateReader(w http.ResponseWriter, r *http.Request) {
	var req createReaderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	options := s.cfg.PlaybackOptions()
	for k, v := range req.Options {
		options[k] = v
	}
	cfg, err := playback.DecodeOptions(options)
	if err != nil {
		s.metrics.ObserveTransport("create", err)
		writeError(w, err)
		return
	}

	rd, err := s.readers.Create(r.Context(), req.Text, cfg)
	s.metrics.ObserveTransport("create", err)
	if err != nil {
		writeError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, newReaderResponse(rd.ID, rd.Snapshot()))
}

func (s *Server) handleListReaders(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, listReadersResponse{Readers: s.readers.IDs()})
}

func (s *Server) handleGetReader(w http.ResponseWriter, r *http.Request) {
	rd, err := s.readers.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newReaderResponse(rd.ID, rd.Snapshot()))
}

func (s *Server) handleDeleteReader(w http.ResponseWriter, r *http.Request) {
	err := s.readers.Remove(chi.URLParam(r, "id"))
	s.metrics.ObserveTransport("delete", err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTransport wraps a reader operation with lookup, metrics and the
// snapshot response.
func (s *Server) handleTransport(op string, fn func(*reader.Reader, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rd, err := s.readers.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}

		err = fn(rd, r)
		s.metrics.ObserveTransport(op, err)
		if err != nil {
			writeError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, newReaderResponse(rd.ID, rd.Snapshot()))
	}
}

func resetFromQuery(rd *reader.Reader, r *http.Request) error {
	autoPlay := true
	if v := r.URL.Query().Get("auto_play"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Mark(errors.Wrap(err, "auto_play"), errBadRequest)
		}
		autoPlay = parsed
	}
	return rd.Engine().Reset(autoPlay)
}

func setSpeedFromBody(rd *reader.Reader, r *http.Request) error {
	var req speedRequest
	if err := decodeJSON(r, &req); err != nil {
		return errors.Mark(err, errBadRequest)
	}
	return rd.Engine().SetSpeed(req.Speed)
}

func setChunkFromBody(rd *reader.Reader, r *http.Request) error {
	var req chunkRequest
	if err := decodeJSON(r, &req); err != nil {
		return errors.Mark(err, errBadRequest)
	}
	return rd.Engine().SetWordsPerChunk(req.WordsPerChunk)
}

func (s *Server) setTextFromBody(rd *reader.Reader, r *http.Request) error {
	var req textRequest
	if err := decodeJSON(r, &req); err != nil {
		return errors.Mark(err, errBadRequest)
	}
	return s.readers.ReplaceText(r.Context(), rd, req.Text)
}

func newReaderResponse(id string, snap playback.Snapshot) readerResponse {
	return readerResponse{
		ID:       id,
		State:    snap.State().String(),
		Snapshot: snap,
	}
}

// requestLogger logs each request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zlog.Debug().Msgf("http: %s %s status=%d duration=%v", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var (
	errEmptyBody  = errors.New("empty body")
	errBadRequest = errors.New("bad request")
)

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeError maps domain errors onto HTTP responses.
func writeError(w http.ResponseWriter, err error) {
	var rejected *reader.RejectedError
	switch {
	case errors.As(err, &rejected):
		respondError(w, http.StatusUnprocessableEntity, rejected.Code, err.Error())
	case errors.Is(err, reader.ErrReaderNotFound):
		respondError(w, http.StatusNotFound, "reader_not_found", err.Error())
	case errors.Is(err, playback.ErrInvalidConfiguration):
		respondError(w, http.StatusBadRequest, "invalid_configuration", err.Error())
	case errors.Is(err, errBadRequest), errors.Is(err, errEmptyBody):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, reader.ErrRegistryFull):
		respondError(w, http.StatusTooManyRequests, "too_many_readers", err.Error())
	case errors.Is(err, playback.ErrClosed):
		respondError(w, http.StatusGone, "reader_closed", err.Error())
	default:
		zlog.Error().Err(err).Msg("http: unexpected error")
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
