package domain

import "context"

// SpeechRequest describes one text-to-speech synthesis.
type SpeechRequest struct {
	Text     string
	Language string
	Voice    string
}

// Synthesizer turns text into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) ([]byte, error)
}
