package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// maxSpeechBytes bounds a single synthesized clip.
const maxSpeechBytes = 8 << 20

// Speech is synthesized audio.
type Speech struct {
	Audio       []byte
	ContentType string
}

// SpeechService is the text-to-speech collaborator.
type SpeechService interface {
	Synthesize(ctx context.Context, text string) (*Speech, error)
}

// TTSError reports a failed synthesis. Callers fall back to the provider's own voice.
type TTSError struct {
	Provider string
	Err      error
}

func (e *TTSError) Error() string {
	return fmt.Sprintf("tts %s: %v", e.Provider, e.Err)
}

func (e *TTSError) Unwrap() error {
	return e.Err
}

// NewSpeechService creates the configured SpeechService.
// It returns nil and no error when synthesis is disabled.
func NewSpeechService(cfg *SpeechConfig, httpClient *http.Client) (SpeechService, error) {
	if cfg == nil || cfg.Provider == "" {
		return nil, nil
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	switch cfg.Provider {
	case "openai":
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
		clientConfig.HTTPClient = httpClient
		return &openAISpeech{
			client: openai.NewClientWithConfig(clientConfig),
			model:  cfg.Model,
			voice:  cfg.Voice,
		}, nil
	case "elevenlabs":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.elevenlabs.io"
		}
		return &elevenLabsSpeech{
			httpClient: httpClient,
			baseURL:    strings.TrimRight(baseURL, "/"),
			apiKey:     cfg.APIKey,
			voiceID:    cfg.Voice,
			model:      cfg.Model,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported speech provider: %s", cfg.Provider)
	}
}

type openAISpeech struct {
	client *openai.Client
	model  string
	voice  string
}

func (s *openAISpeech) Synthesize(ctx context.Context, text string) (*Speech, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &TTSError{Provider: "openai", Err: errors.New("empty text")}
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, &TTSError{Provider: "openai", Err: err}
	}
	defer resp.Close()

	audio, err := readAudio(resp)
	if err != nil {
		return nil, &TTSError{Provider: "openai", Err: err}
	}
	return &Speech{Audio: audio, ContentType: "audio/mpeg"}, nil
}

type elevenLabsSpeech struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	voiceID    string
	model      string
}

type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

func (s *elevenLabsSpeech) Synthesize(ctx context.Context, text string) (*Speech, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &TTSError{Provider: "elevenlabs", Err: errors.New("empty text")}
	}

	body, err := json.Marshal(elevenLabsRequest{Text: text, ModelID: s.model})
	if err != nil {
		return nil, &TTSError{Provider: "elevenlabs", Err: err}
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=mp3_22050_32", s.baseURL, s.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TTSError{Provider: "elevenlabs", Err: err}
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &TTSError{Provider: "elevenlabs", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &TTSError{Provider: "elevenlabs", Err: &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(msg)}}
	}

	audio, err := readAudio(resp.Body)
	if err != nil {
		return nil, &TTSError{Provider: "elevenlabs", Err: err}
	}
	return &Speech{Audio: audio, ContentType: "audio/mpeg"}, nil
}

func readAudio(r io.Reader) ([]byte, error) {
	audio, err := io.ReadAll(io.LimitReader(r, maxSpeechBytes+1))
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, errors.New("empty audio")
	}
	if len(audio) > maxSpeechBytes {
		return nil, errors.New("audio exceeds size limit")
	}
	return audio, nil
}
