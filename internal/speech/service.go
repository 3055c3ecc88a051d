// Package speech turns short texts into MP3 audio, caching each rendering in
// object storage so a repeated text is synthesized once.
package speech

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
	"github.com/alanyoungcy/tradersentinel/internal/metrics"
)

// MaxTextBytes is the upstream per-request input limit.
const MaxTextBytes = 5000

// ContentType is the media type of every rendering.
const ContentType = "audio/mpeg"

var (
	ErrEmptyText    = errors.New("speech: text is required")
	ErrInvalidText  = errors.New("speech: text is not valid UTF-8")
	ErrTextTooLong  = fmt.Errorf("speech: text exceeds %d bytes", MaxTextBytes)
	ErrInvalidVoice = errors.New("speech: lang and voice must match [A-Za-z0-9-]+")
)

// voiceName matches language codes and voice names; both become cache key
// path segments.
var voiceName = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Config selects defaults for requests that omit language or voice.
type Config struct {
	Enabled  bool
	Language string
	Voice    string
}

// Service synthesizes speech through a domain.Synthesizer with an optional
// blob cache in front.
type Service struct {
	cfg    Config
	synth  domain.Synthesizer
	reader domain.BlobReader
	writer domain.BlobWriter
	logger *slog.Logger
}

// NewService creates a Service. reader and writer may be nil to disable
// caching; synth may be nil only when cfg.Enabled is false.
func NewService(cfg Config, synth domain.Synthesizer, reader domain.BlobReader, writer domain.BlobWriter, logger *slog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		synth:  synth,
		reader: reader,
		writer: writer,
		logger: logger.With(slog.String("component", "speech")),
	}
}

// Enabled reports whether synthesis is configured.
func (s *Service) Enabled() bool {
	return s.cfg.Enabled && s.synth != nil
}

// CacheKey is the object path for one rendering:
// tts/{lang}/{voice}/{blake2b-256(text)}.mp3.
func CacheKey(text, lang, voice string) string {
	sum := blake2b.Sum256([]byte(text))
	return fmt.Sprintf("tts/%s/%s/%s.mp3", lang, voice, hex.EncodeToString(sum[:]))
}

// Synthesize returns MP3 audio for text. Empty lang or voice fall back to the
// configured defaults. It returns domain.ErrFeatureDisabled when synthesis
// is off.
func (s *Service) Synthesize(ctx context.Context, text, lang, voice string) ([]byte, error) {
	if !s.Enabled() {
		return nil, domain.ErrFeatureDisabled
	}

	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return nil, ErrEmptyText
	case !utf8.ValidString(text):
		return nil, ErrInvalidText
	case len(text) > MaxTextBytes:
		return nil, ErrTextTooLong
	}
	if lang = strings.TrimSpace(lang); lang == "" {
		lang = s.cfg.Language
	}
	if voice = strings.TrimSpace(voice); voice == "" {
		voice = s.cfg.Voice
	}
	if !voiceName.MatchString(lang) || !voiceName.MatchString(voice) {
		return nil, ErrInvalidVoice
	}

	key := CacheKey(text, lang, voice)
	if audio, ok := s.cached(ctx, key); ok {
		metrics.Speech.WithLabelValues("hit").Inc()
		return audio, nil
	}

	audio, err := s.synth.Synthesize(ctx, domain.SpeechRequest{Text: text, Language: lang, Voice: voice})
	if err != nil {
		metrics.Speech.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("speech: synthesize: %w", err)
	}
	metrics.Speech.WithLabelValues("miss").Inc()

	if s.writer != nil {
		if err := s.writer.Put(ctx, key, bytes.NewReader(audio), ContentType); err != nil {
			s.logger.WarnContext(ctx, "cache store failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
	return audio, nil
}

// cached reads key from the blob cache. Lookup failures are treated as a
// miss.
func (s *Service) cached(ctx context.Context, key string) ([]byte, bool) {
	if s.reader == nil {
		return nil, false
	}

	body, err := s.reader.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "cache lookup failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}
	defer body.Close()

	audio, err := io.ReadAll(body)
	if err != nil || len(audio) == 0 {
		return nil, false
	}
	return audio, true
}
