// Package handler implements the HTTP endpoints of the sentinel API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// errMissingSymbol is reported when the symbol query parameter is empty.
var errMissingSymbol = errors.New("missing symbol")

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"ok":false,"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError sends the {ok:false, error} envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{OK: false, Error: msg})
}

type errorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// symbolParam returns the trimmed symbol query parameter.
func symbolParam(r *http.Request) (string, error) {
	s := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if s == "" {
		return "", errMissingSymbol
	}
	return s, nil
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
