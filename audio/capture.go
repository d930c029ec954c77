// Package audio holds microphone capture settings, remote-audio level analysis
// and small PCM codecs.
package audio

import "github.com/samber/lo"

// Constraints reports which capture constraints the platform understands.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	VoiceIsolation   bool
}

// CaptureOptions configure local microphone acquisition.
type CaptureOptions struct {
	ChannelCount     int
	SampleRate       int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	VoiceIsolation   bool
	DeviceID         string
}

// CaptureOverrides replace baseline fields when non-nil.
type CaptureOverrides struct {
	ChannelCount     *int    `json:"channel_count,omitempty"`
	SampleRate       *int    `json:"sample_rate,omitempty"`
	EchoCancellation *bool   `json:"echo_cancellation,omitempty"`
	NoiseSuppression *bool   `json:"noise_suppression,omitempty"`
	AutoGainControl  *bool   `json:"auto_gain_control,omitempty"`
	VoiceIsolation   *bool   `json:"voice_isolation,omitempty"`
	DeviceID         *string `json:"device_id,omitempty"`
}

// DefaultSampleRate is the capture rate used when nothing overrides it.
const DefaultSampleRate = 48000

// BuildCaptureOptions returns the baseline tuned for voice agents merged with
// overrides. Noise suppression stays off since the agent pipeline runs its own.
func BuildCaptureOptions(supported Constraints, overrides *CaptureOverrides) CaptureOptions {
	opts := CaptureOptions{
		ChannelCount:     1,
		SampleRate:       DefaultSampleRate,
		EchoCancellation: true,
		NoiseSuppression: false,
		AutoGainControl:  true,
		VoiceIsolation:   supported.VoiceIsolation,
	}
	if overrides == nil {
		return opts
	}

	opts.ChannelCount = lo.FromPtrOr(overrides.ChannelCount, opts.ChannelCount)
	opts.SampleRate = lo.FromPtrOr(overrides.SampleRate, opts.SampleRate)
	opts.EchoCancellation = lo.FromPtrOr(overrides.EchoCancellation, opts.EchoCancellation)
	opts.NoiseSuppression = lo.FromPtrOr(overrides.NoiseSuppression, opts.NoiseSuppression)
	opts.AutoGainControl = lo.FromPtrOr(overrides.AutoGainControl, opts.AutoGainControl)
	opts.VoiceIsolation = lo.FromPtrOr(overrides.VoiceIsolation, opts.VoiceIsolation)
	opts.DeviceID = lo.FromPtrOr(overrides.DeviceID, opts.DeviceID)
	return opts
}
