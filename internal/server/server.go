// Package server exposes the trained model behind a small prediction API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hdb-research/resale-cli/internal/dataset"
	"github.com/hdb-research/resale-cli/internal/trainer"
	"github.com/hdb-research/resale-cli/pkg/onemap"
)

// Server serves price predictions from the current model artifact.
type Server struct {
	builder  *dataset.FeatureBuilder
	model    trainer.Model
	geocoder onemap.Client
	now      func() time.Time
}

// New wires a prediction server.
func New(builder *dataset.FeatureBuilder, model trainer.Model, geocoder onemap.Client) *Server {
	return &Server{builder: builder, model: model, geocoder: geocoder, now: time.Now}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Post("/predict", s.handlePredict)
	return r
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type predictRequest struct {
	Address       string  `json:"address"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	StoreyRange   string  `json:"storey_range"`
	FloorArea     float64 `json:"floor_area_sqm"`
	FlatType      string  `json:"flat_type"`
	LeaseCommence int     `json:"lease_commence"`
}

type predictResponse struct {
	Price float64 `json:"price"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.recordFromRequest(r.Context(), req)
	if err != nil {
		zap.L().Warn("predict request rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	vec, err := s.builder.Vector(rec)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, predictResponse{Price: s.model.Predict(vec)})
}

// recordFromRequest turns the request into a transaction record dated now.
// Coordinates come from the request when supplied, otherwise the address is
// geocoded.
func (s *Server) recordFromRequest(ctx context.Context, req predictRequest) (dataset.Record, error) {
	if req.FlatType == "" {
		return dataset.Record{}, eris.New("flat_type is required")
	}
	if req.FloorArea <= 0 {
		return dataset.Record{}, eris.New("floor_area_sqm is required")
	}

	storey, err := parseStorey(req.StoreyRange)
	if err != nil {
		return dataset.Record{}, err
	}

	lat, lon := req.Latitude, req.Longitude
	if lat == 0 && lon == 0 {
		if req.Address == "" {
			return dataset.Record{}, eris.New("address or coordinates required")
		}
		res, err := s.geocoder.Geocode(ctx, req.Address)
		if err != nil {
			return dataset.Record{}, eris.Wrap(err, "geocode address")
		}
		if !res.Matched {
			return dataset.Record{}, eris.Errorf("address %q not found", req.Address)
		}
		lat, lon = res.Latitude, res.Longitude
	}

	now := s.now()
	rec := dataset.Record{
		Address:       req.Address,
		Latitude:      lat,
		Longitude:     lon,
		Year:          now.Year(),
		Month:         int(now.Month()),
		StoreyRange:   storey,
		FloorArea:     req.FloorArea,
		FlatType:      strings.ToUpper(strings.TrimSpace(req.FlatType)),
		LeaseCommence: req.LeaseCommence,
		Kind:          dataset.KindResale,
	}
	if req.LeaseCommence > 0 {
		elapsed := float64(rec.Year-req.LeaseCommence) + float64(rec.Month-1)/12
		rec.RemainingLease = math.Round((dataset.LeaseTermYears-elapsed)*100) / 100
	} else {
		rec.RemainingLease = math.NaN()
	}
	return rec, nil
}

// parseStorey accepts either a plain number or the upstream "04 TO 06" form.
func parseStorey(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, eris.New("storey_range is required")
	}
	var v float64
	if _, err := fmt.Sscanf(s, "%f", &v); err == nil && !strings.Contains(strings.ToUpper(s), "TO") {
		return v, nil
	}
	var lo, hi float64
	if _, err := fmt.Sscanf(strings.ToUpper(s), "%f TO %f", &lo, &hi); err != nil {
		return 0, eris.Errorf("malformed storey_range %q", s)
	}
	return (lo + hi) / 2, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
