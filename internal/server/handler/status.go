package handler

import (
	"context"
	"net/http"
	"time"
)

// Features lists which optional backends are wired in this process.
type Features struct {
	Redis    bool `json:"redis"`
	Postgres bool `json:"postgres"`
	S3       bool `json:"s3"`
	TTS      bool `json:"tts"`
	DEX      bool `json:"dex"`
	Publish  bool `json:"publish"`
}

// HealthCheck reports whether one backend answers.
type HealthCheck func(ctx context.Context) error

// StatusHandler reports the running mode, enabled features and the
// reachability of each wired backend.
type StatusHandler struct {
	mode      string
	features  Features
	checks    map[string]HealthCheck
	startedAt time.Time
	now       func() time.Time
}

// NewStatusHandler creates a StatusHandler. checks maps a backend name to
// its check and may be nil.
func NewStatusHandler(mode string, features Features, startedAt time.Time, checks map[string]HealthCheck) *StatusHandler {
	return &StatusHandler{mode: mode, features: features, checks: checks, startedAt: startedAt, now: time.Now}
}

type statusResponse struct {
	OK            bool              `json:"ok"`
	Mode          string            `json:"mode"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Features      Features          `json:"features"`
	Backends      map[string]string `json:"backends,omitempty"`
	TS            int64             `json:"ts"`
}

// GetStatus responds with mode, uptime, feature flags and one "ok" or
// "down" entry per backend. A down backend does not fail the request.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	uptime := int64(now.Sub(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	writeJSON(w, http.StatusOK, statusResponse{
		OK:            true,
		Mode:          h.mode,
		UptimeSeconds: uptime,
		Features:      h.features,
		Backends:      h.checkBackends(r.Context()),
		TS:            now.Unix(),
	})
}

func (h *StatusHandler) checkBackends(ctx context.Context) map[string]string {
	if len(h.checks) == 0 {
		return nil
	}
	out := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			out[name] = "down"
			continue
		}
		out[name] = "ok"
	}
	return out
}
