package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
	"github.com/alanyoungcy/tradersentinel/internal/speech"
)

// SpeechService synthesizes text to MP3.
type SpeechService interface {
	Synthesize(ctx context.Context, text, lang, voice string) ([]byte, error)
}

// disabledTTSMessage is the error reported while synthesis is switched off.
const disabledTTSMessage = "GOOGLE_TTS_ENABLED=false"

// TTSHandler serves the text-to-speech endpoint.
type TTSHandler struct {
	speech SpeechService
	logger *slog.Logger
}

// NewTTSHandler creates a TTSHandler.
func NewTTSHandler(svc SpeechService, logger *slog.Logger) *TTSHandler {
	return &TTSHandler{speech: svc, logger: logHandler(logger, "tts")}
}

// Speak returns audio/mpeg for text. While synthesis is disabled it answers
// 200 with {ok:false, error}.
// GET /api/tts?text=&lang=&voice=
func (h *TTSHandler) Speak(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	audio, err := h.speech.Synthesize(r.Context(), q.Get("text"), q.Get("lang"), q.Get("voice"))
	switch {
	case err == nil:
		w.Header().Set("Content-Type", speech.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(audio)
	case errors.Is(err, domain.ErrFeatureDisabled):
		writeError(w, http.StatusOK, disabledTTSMessage)
	case errors.Is(err, speech.ErrEmptyText),
		errors.Is(err, speech.ErrInvalidText),
		errors.Is(err, speech.ErrTextTooLong),
		errors.Is(err, speech.ErrInvalidVoice):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "synthesis failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "speech synthesis failed")
	}
}
