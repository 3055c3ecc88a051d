package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
	"github.com/alanyoungcy/tradersentinel/internal/metrics"
	"github.com/alanyoungcy/tradersentinel/internal/stream"
)

const (
	// wsWriteWait bounds a single frame write.
	wsWriteWait = 10 * time.Second
	// wsMaxMessageSize caps frames read from stream clients, which are
	// expected to send nothing but control frames.
	wsMaxMessageSize = 512
)

// Streamer runs the periodic snapshot loop.
type Streamer interface {
	Run(ctx context.Context, symbol string, interval time.Duration, emit stream.EmitFunc) error
}

// StreamHandler serves the SSE and WebSocket snapshot streams.
type StreamHandler struct {
	streamer Streamer
	bounds   stream.Bounds
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewStreamHandler creates a StreamHandler accepting intervals within bounds.
// checkOrigin may be nil to accept every origin.
func NewStreamHandler(streamer Streamer, bounds stream.Bounds, checkOrigin func(*http.Request) bool, logger *slog.Logger) *StreamHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &StreamHandler{
		streamer: streamer,
		bounds:   bounds,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger: logHandler(logger, "stream"),
	}
}

// streamParams validates symbol and interval_ms.
func (h *StreamHandler) streamParams(r *http.Request) (string, time.Duration, error) {
	symbol, err := symbolParam(r)
	if err != nil {
		return "", 0, err
	}
	interval, err := h.bounds.ParseInterval(r.URL.Query().Get("interval_ms"))
	if err != nil {
		return "", 0, err
	}
	return symbol, interval, nil
}

// session opens a stream session: it tags the logger with a session id and
// tracks the open-session gauge until the returned func is called.
func (h *StreamHandler) session(transport, symbol string, interval time.Duration) (*slog.Logger, func()) {
	id := uuid.NewString()
	logger := h.logger.With(
		slog.String("session_id", id),
		slog.String("transport", transport),
		slog.String("symbol", symbol),
	)
	logger.Info("stream opened", slog.Duration("interval", interval))

	gauge := metrics.StreamSessions.WithLabelValues(transport)
	gauge.Inc()
	start := time.Now()
	return logger, func() {
		gauge.Dec()
		logger.Info("stream closed", slog.Duration("duration", time.Since(start)))
	}
}

// SSE streams snapshots as server-sent events until the client goes away.
// GET /api/market/stream?symbol=BTC/USDT&interval_ms=1000
func (h *StreamHandler) SSE(w http.ResponseWriter, r *http.Request) {
	symbol, interval, err := h.streamParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server-wide write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.WarnContext(r.Context(), "sse: flush unsupported", slog.String("error", err.Error()))
		return
	}

	logger, done := h.session("sse", symbol, interval)
	defer done()
	frames := metrics.StreamFrames.WithLabelValues("sse")

	emit := func(_ context.Context, snap domain.Snapshot) error {
		frame, err := stream.SSEFrame(snap)
		if err != nil {
			return err
		}
		if _, err := w.Write(frame); err != nil {
			return err
		}
		if err := rc.Flush(); err != nil {
			return err
		}
		frames.Inc()
		return nil
	}

	if err := h.streamer.Run(r.Context(), symbol, interval, emit); err != nil {
		logger.DebugContext(r.Context(), "sse stream ended", slog.String("error", err.Error()))
	}
}

// frameFormat selects the WebSocket frame encoding.
type frameFormat struct {
	name        string
	messageType int
	encode      func(any) ([]byte, error)
}

var (
	jsonFormat  = frameFormat{name: "json", messageType: websocket.TextMessage, encode: stream.JSONFrame}
	protoFormat = frameFormat{name: "proto", messageType: websocket.BinaryMessage, encode: stream.ProtoFrame}
)

var errUnknownFormat = errors.New("format must be json or proto")

func parseFormat(raw string) (frameFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "json":
		return jsonFormat, nil
	case "proto", "protobuf":
		return protoFormat, nil
	default:
		return frameFormat{}, errUnknownFormat
	}
}

// WebSocket streams snapshots over a WebSocket, one frame per snapshot: text
// JSON or binary protobuf Struct. Any read error, including the client's
// close frame, ends the stream.
// GET /ws/market?symbol=BTC/USDT&interval_ms=1000&format=json
func (h *StreamHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	symbol, interval, err := h.streamParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	format, err := parseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "ws: upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	logger, done := h.session("ws", symbol, interval)
	defer done()
	frames := metrics.StreamFrames.WithLabelValues("ws")

	// The request context is not cancelled when a hijacked client leaves,
	// so a read pump watches the connection instead.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		conn.SetReadLimit(wsMaxMessageSize)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	emit := func(_ context.Context, snap domain.Snapshot) error {
		frame, err := format.encode(snap)
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(format.messageType, frame); err != nil {
			return err
		}
		frames.Inc()
		return nil
	}

	if err := h.streamer.Run(ctx, symbol, interval, emit); err != nil {
		logger.Debug("ws stream ended", slog.String("error", err.Error()))
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
