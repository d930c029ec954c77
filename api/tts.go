package api

import (
	"context"
	"fmt"
	"net/http"

	"callkit/audio"
)

type Voice struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Language string   `json:"language,omitempty"`
	Gender   string   `json:"gender,omitempty"`
	Provider string   `json:"provider,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

type VoiceList struct {
	Data []Voice `json:"data"`
}

// SynthesizeRequest is the body for POST /tts/synthesize.
type SynthesizeRequest struct {
	Text         string         `json:"text"`
	VoiceID      string         `json:"voice_id"`
	OutputFormat audio.Encoding `json:"output_format,omitempty"`
	Speed        float64        `json:"speed,omitempty"`
}

// Audio is synthesized speech.
type Audio struct {
	Encoding    audio.Encoding
	ContentType string
	Data        []byte
}

// PCM16 returns mono PCM16 samples for raw PCM and mu-law payloads.
func (a *Audio) PCM16() ([]int16, error) {
	switch a.Encoding {
	case audio.EncodingMuLaw8k:
		return audio.MuLawToSamples(a.Data), nil
	case audio.EncodingPCM16k:
		pcm, err := audio.StripWAV(a.Data)
		if err != nil {
			return nil, err
		}
		return audio.BytesToSamples(pcm), nil
	default:
		return nil, fmt.Errorf("tts: cannot decode %q to pcm", a.Encoding)
	}
}

// TTSService lists voices and synthesizes speech.
type TTSService struct {
	client *Client
}

func (s *TTSService) ListVoices(ctx context.Context) (*VoiceList, error) {
	var out VoiceList
	if err := s.client.do(ctx, request{method: http.MethodGet, path: "/tts/voices"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Synthesize returns the raw audio body. OutputFormat defaults to pcm_16000.
func (s *TTSService) Synthesize(ctx context.Context, in SynthesizeRequest) (*Audio, error) {
	if in.OutputFormat == "" {
		in.OutputFormat = audio.EncodingPCM16k
	}
	data, header, err := s.client.doRaw(ctx, request{method: http.MethodPost, path: "/tts/synthesize", body: in})
	if err != nil {
		return nil, err
	}
	return &Audio{
		Encoding:    in.OutputFormat,
		ContentType: header.Get("Content-Type"),
		Data:        data,
	}, nil
}
