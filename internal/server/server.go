// Package server exposes the dashboard over HTTP: status rows, position commands,
// a websocket feed of cycle results and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"watchdash/internal/indicator"
	"watchdash/internal/marketdata"
	"watchdash/internal/models"
	"watchdash/internal/positions"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// SeriesSource computes the indicator series of a single symbol.
type SeriesSource interface {
	Series(ctx context.Context, symbol string) ([]models.Snapshot, error)
}

// Server wires the HTTP routes to the cycler and the position store.
type Server struct {
	cycler  *Cycler
	series  SeriesSource
	store   *positions.Store
	hub     *Hub
	metrics *Metrics
	loc     *time.Location
	logger  *zap.Logger
	http    *http.Server
}

func New(addr string, cycler *Cycler, series SeriesSource, store *positions.Store, hub *Hub, metrics *Metrics, loc *time.Location, logger *zap.Logger) *Server {
	s := &Server{
		cycler:  cycler,
		series:  series,
		store:   store,
		hub:     hub,
		metrics: metrics,
		loc:     loc,
		logger:  logger,
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/status/latest", s.handleLatestStatus)
	r.Get("/symbols/{symbol}/indicators", s.handleIndicators)
	r.Route("/positions", func(r chi.Router) {
		r.Get("/", s.handleListPositions)
		r.Post("/", s.handleCreateEntry)
		r.Post("/{symbol}/half", s.handleHalfExit)
		r.Post("/{symbol}/close", s.handleClose)
	})
	r.Get("/ws", s.hub.ServeWS)
	r.Handle("/metrics", s.metrics.Handler())
	return r
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and disconnects websocket subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.http.Shutdown(ctx)
}

type statusResponse struct {
	Time time.Time          `json:"time"`
	Rows []models.StatusRow `json:"rows"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus runs a fresh cycle, the same as a dashboard refresh.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rows, err := s.cycler.Run(r.Context())
	if err != nil {
		s.logger.Error("cycle failed", zap.Error(err))
		if rows == nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	_, at := s.cycler.Last()
	writeJSON(w, http.StatusOK, statusResponse{Time: at, Rows: rows})
}

func (s *Server) handleLatestStatus(w http.ResponseWriter, r *http.Request) {
	rows, at := s.cycler.Last()
	if rows == nil {
		rows = []models.StatusRow{}
	}
	writeJSON(w, http.StatusOK, statusResponse{Time: at, Rows: rows})
}

type indicatorsResponse struct {
	Symbol string            `json:"symbol"`
	Series []models.Snapshot `json:"series"`
}

// handleIndicators returns the close, recent-high, drawdown and RSI series of one symbol.
// ?bars=N keeps only the last N snapshots.
func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	limit := 0
	if v := r.URL.Query().Get("bars"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, errors.New("bars must be a positive integer"))
			return
		}
		limit = n
	}

	series, err := s.series.Series(r.Context(), symbol)
	switch {
	case errors.Is(err, marketdata.ErrNoData), errors.Is(err, indicator.ErrEmptySeries):
		writeError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, indicator.ErrMissingField), errors.Is(err, indicator.ErrInvalidWindow):
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	case err != nil:
		s.logger.Warn("indicator fetch failed", zap.String("symbol", symbol), zap.Error(err))
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	writeJSON(w, http.StatusOK, indicatorsResponse{Symbol: symbol, Series: series})
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

type createEntryRequest struct {
	Symbol    string   `json:"symbol"`
	Price     float64  `json:"price"`
	Round     int      `json:"round"`
	Quantity  *float64 `json:"quantity,omitempty"`
	EntryDate string   `json:"entry_date,omitempty"`
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Round == 0 {
		req.Round = 1
	}
	var opts []positions.EntryOption
	if req.Quantity != nil {
		opts = append(opts, positions.WithQuantity(*req.Quantity))
	}
	if req.EntryDate != "" {
		opts = append(opts, positions.WithEntryDate(req.EntryDate))
	}

	id, err := s.store.CreateEntry(req.Symbol, req.Price, req.Round, opts...)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleHalfExit(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if err := s.store.RecordHalfExit(symbol); err != nil {
		writeStoreError(w, err)
		return
	}
	s.writePosition(w, symbol)
}

type closeRequest struct {
	Price float64 `json:"price"`
	Date  string  `json:"date,omitempty"`
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var date time.Time
	if req.Date != "" {
		d, err := time.ParseInLocation(models.DateLayout, req.Date, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		date = d
	}
	if err := s.store.RecordClose(symbol, req.Price, date); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"symbol": symbol, "status": "closed"})
}

func (s *Server) writePosition(w http.ResponseWriter, symbol string) {
	pos, ok, err := s.store.Open(symbol)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, positions.ErrNoOpenPosition)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, positions.ErrInvalidEntry), errors.Is(err, positions.ErrInvalidPrice):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, positions.ErrNoOpenPosition):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(err.Error())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
