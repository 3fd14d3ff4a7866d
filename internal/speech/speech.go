package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/TobiSchelling/CompanyPulse/internal/config"
)

// MaxInputChars is the longest text the speech endpoint accepts.
const MaxInputChars = 4096

// ErrDisabled is returned when speech output is turned off in config.
var ErrDisabled = errors.New("speech output disabled")

// Synthesizer renders text as audio.
type Synthesizer interface {
	Speak(ctx context.Context, text string) (io.ReadCloser, error)
}

// OpenAISpeaker renders MP3 audio through an OpenAI-compatible speech endpoint.
type OpenAISpeaker struct {
	client *openai.Client
	model  string
	voice  string
}

var _ Synthesizer = (*OpenAISpeaker)(nil)

// NewOpenAISpeaker creates a speaker from config. The API key is read from
// the environment variable named in cfg.
func NewOpenAISpeaker(cfg config.Speech) (*OpenAISpeaker, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	apiKey := config.Secret(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("speech API key not configured (set %s)", cfg.APIKeyEnv)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}

	return &OpenAISpeaker{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		voice:  cfg.Voice,
	}, nil
}

// Speak returns the MP3 stream for text. The caller closes it.
func (s *OpenAISpeaker) Speak(ctx context.Context, text string) (io.ReadCloser, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("no text to speak")
	}

	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.F(openai.SpeechModel(s.model)),
		Input:          openai.F(truncate(text, MaxInputChars)),
		Voice:          openai.F(openai.AudioSpeechNewParamsVoice(s.voice)),
		ResponseFormat: openai.F(openai.AudioSpeechNewParamsResponseFormatMP3),
	})
	if err != nil {
		return nil, fmt.Errorf("speech API error: %w", err)
	}
	return resp.Body, nil
}

func truncate(s string, max int) string {
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
