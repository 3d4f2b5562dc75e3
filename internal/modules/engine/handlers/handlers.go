// Package handlers provides HTTP handlers for the risk engine.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-risk/internal/domain"
	"github.com/aristath/sentinel-risk/internal/modules/allocation"
	"github.com/aristath/sentinel-risk/internal/modules/engine"
)

// maxBodyBytes bounds request bodies; models with a few hundred assets fit comfortably.
const maxBodyBytes = 8 << 20

// Defaults fill simulation fields a request leaves out.
type Defaults struct {
	Paths        int
	Steps        int
	Horizon      float64
	RetainPaths  int
	MaxPaths     int
	RiskFreeRate float64
}

// Handler handles risk engine HTTP requests
type Handler struct {
	service  *engine.Service
	defaults Defaults
	validate *validator.Validate
	log      zerolog.Logger
}

// NewHandler creates a new engine handler
func NewHandler(service *engine.Service, defaults Defaults, log zerolog.Logger) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		service:  service,
		defaults: defaults,
		validate: v,
		log:      log.With().Str("handler", "engine").Logger(),
	}
}

// HandleAllocation handles POST /api/allocation
func (h *Handler) HandleAllocation(w http.ResponseWriter, r *http.Request) {
	req := engine.AllocationRequest{Options: allocation.DefaultOptions()}
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.Allocate(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// HandleSimulation handles POST /api/simulation
func (h *Handler) HandleSimulation(w http.ResponseWriter, r *http.Request) {
	req := h.newRequest()
	if !h.decode(w, r, &req) {
		return
	}
	if !h.checkPaths(w, req.Config) {
		return
	}

	report, err := h.service.Run(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":     report.RunID,
		"allocation": report.Allocation,
		"simulation": report.Simulation,
		"fallbacks":  report.Fallbacks,
	})
}

// HandleRisk handles POST /api/risk
func (h *Handler) HandleRisk(w http.ResponseWriter, r *http.Request) {
	req := h.newRequest()
	if !h.decode(w, r, &req) {
		return
	}
	if !h.checkPaths(w, req.Config) {
		return
	}

	report, err := h.service.Run(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// HandleScenarios handles POST /api/scenarios
func (h *Handler) HandleScenarios(w http.ResponseWriter, r *http.Request) {
	base := h.newRequest()
	req := engine.ScenarioRequest{
		Model:          base.Model,
		Options:        base.Options,
		InitialCapital: base.InitialCapital,
		Config:         base.Config,
	}
	if !h.decode(w, r, &req) {
		return
	}
	if !h.checkPaths(w, req.Config) {
		return
	}

	report, err := h.service.RunScenarios(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// HandleBacktest handles POST /api/backtest
func (h *Handler) HandleBacktest(w http.ResponseWriter, r *http.Request) {
	req := engine.BacktestRequest{Confidence: 0.95}
	if !h.decode(w, r, &req) {
		return
	}

	report, err := h.service.Backtest(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// HandleCompare handles POST /api/backtest/compare
func (h *Handler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	base := h.newRequest()
	req := engine.CompareRequest{
		Model:      base.Model,
		Options:    base.Options,
		Config:     base.Config,
		Confidence: 0.95,
	}
	// One evaluation observation per simulated horizon: daily by default.
	req.Config.Steps = 1
	req.Config.Horizon = 1.0 / 252
	if !h.decode(w, r, &req) {
		return
	}
	if !h.checkPaths(w, req.Config) {
		return
	}

	report, err := h.service.Compare(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// newRequest returns a run request pre-filled with the configured defaults.
// JSON decoding overwrites only the fields present in the body.
func (h *Handler) newRequest() engine.Request {
	return engine.Request{
		Model:          domain.MomentsModel{RiskFreeRate: h.defaults.RiskFreeRate},
		Options:        allocation.DefaultOptions(),
		InitialCapital: 1,
		Config: domain.SimulationConfig{
			Paths:       h.defaults.Paths,
			Steps:       h.defaults.Steps,
			Horizon:     h.defaults.Horizon,
			RetainPaths: h.defaults.RetainPaths,
		},
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidParameter, err))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, fmt.Errorf("%w: %s", domain.ErrInvalidParameter, describeValidation(err)))
		return false
	}
	return true
}

func (h *Handler) checkPaths(w http.ResponseWriter, cfg domain.SimulationConfig) bool {
	if h.defaults.MaxPaths > 0 && cfg.Paths > h.defaults.MaxPaths {
		h.writeError(w, fmt.Errorf("%w: paths %d exceeds limit %d", domain.ErrInvalidParameter, cfg.Paths, h.defaults.MaxPaths))
		return false
	}
	return true
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidParameter), errors.Is(err, domain.ErrInsufficientData):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		h.log.Debug().Err(err).Int("status", status).Msg("Rejected request")
	}
	h.write(w, status, map[string]interface{}{"error": err.Error()})
}

// writeJSON writes data inside the standard response envelope.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	h.write(w, status, map[string]interface{}{"data": data})
}

func (h *Handler) write(w http.ResponseWriter, status int, body map[string]interface{}) {
	body["metadata"] = map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
