// Copyright 2026 The Shahin GRC Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package http exposes the provisioning workflow as an operator API. The
// single mutating endpoint is bearer-token protected; transport failures of
// the welcome email surface in the response body, never as request errors.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/shahin-grc/provisioner/internal/observability/logger"
	"github.com/shahin-grc/provisioner/internal/observability/metrics"
	"github.com/shahin-grc/provisioner/internal/provisioning"
)

// Provisioner runs the tenant onboarding workflow.
type Provisioner interface {
	Provision(ctx context.Context, req provisioning.Request) (*provisioning.Result, error)
}

// Handler holds HTTP handlers and dependencies
type Handler struct {
	provisioner Provisioner
	instruments *metrics.ProvisioningInstruments
	jwtSecret   []byte
}

// NewHandler creates a new HTTP handler. instruments may be nil when
// metrics are disabled.
func NewHandler(provisioner Provisioner, instruments *metrics.ProvisioningInstruments, jwtSecret string) *Handler {
	return &Handler{
		provisioner: provisioner,
		instruments: instruments,
		jwtSecret:   []byte(jwtSecret),
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			r.Post("/tenants/provision", h.ProvisionTenant)
		})
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "provisioner",
	})
}

// ProvisionResponse is the API shape of a completed run. The temporary
// password is returned exactly once, here, and never logged or stored in
// plaintext.
type ProvisionResponse struct {
	provisioning.Result
	Password  string `json:"temporary_password,omitempty"`
	Delivered bool   `json:"email_delivered"`
	Fallback  string `json:"fallback_artifact,omitempty"`
}

// ProvisionTenant handles POST /api/v1/tenants/provision
func (h *Handler) ProvisionTenant(w http.ResponseWriter, r *http.Request) {
	var req provisioning.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now()
	res, err := h.provisioner.Provision(r.Context(), req)
	if h.instruments != nil {
		h.instruments.Runs.Add(r.Context(), 1)
		h.instruments.RunDuration.Record(r.Context(), time.Since(start).Seconds())
	}
	if err != nil {
		if h.instruments != nil {
			h.instruments.Failures.Add(r.Context(), 1)
		}
		switch {
		case errors.Is(err, provisioning.ErrInvalidRequest):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, provisioning.ErrUserRepresentationSplit):
			respondError(w, http.StatusConflict, "admin user exists in an inconsistent state; manual repair required")
		case errors.Is(err, provisioning.ErrFallbackCodeInactive):
			respondError(w, http.StatusConflict, "catalog fallback codes are inactive; provisioning refused")
		default:
			slog.ErrorContext(r.Context(), "provisioning failed", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "provisioning failed")
		}
		return
	}

	if h.instruments != nil && res.Delivery.FallbackPath != "" {
		h.instruments.NotificationFallbacks.Add(r.Context(), 1)
	}

	// 201 only when the run materialized the tenant; a converged re-run
	// reports 200 with the same identifiers.
	status := http.StatusOK
	if res.TenantCreated {
		status = http.StatusCreated
	}

	resp := ProvisionResponse{
		Result:    *res,
		Delivered: res.Delivery.Delivered,
		Fallback:  res.Delivery.FallbackPath,
	}
	// The credential leaves the system by email; it is echoed to the caller
	// only when that delivery failed.
	if !res.Delivery.Delivered {
		resp.Password = res.Password
	}

	respondJSON(w, status, resp)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
