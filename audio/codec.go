package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zaf/g711"
)

// Encoding names an audio payload format used by the TTS endpoint.
type Encoding string

const (
	EncodingPCM16k  Encoding = "pcm_16000"
	EncodingMuLaw8k Encoding = "mulaw_8000"
	EncodingMP3     Encoding = "mp3"
)

// SampleRate returns the nominal sample rate of e, or 0 for compressed formats.
func (e Encoding) SampleRate() int {
	switch e {
	case EncodingPCM16k:
		return 16000
	case EncodingMuLaw8k:
		return 8000
	default:
		return 0
	}
}

// MuLawToSamples decodes G.711 mu-law bytes into PCM16 samples.
func MuLawToSamples(ulaw []byte) []int16 {
	out := make([]int16, len(ulaw))
	for i, b := range ulaw {
		out[i] = g711.DecodeUlawFrame(b)
	}
	return out
}

// SamplesToMuLaw encodes PCM16 samples as G.711 mu-law.
func SamplesToMuLaw(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = g711.EncodeUlawFrame(s)
	}
	return out
}

// BytesToSamples interprets little-endian PCM16 bytes. A trailing odd byte is dropped.
func BytesToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// SamplesToBytes serialises samples as little-endian PCM16.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DownmixInterleaved averages interleaved channels into mono.
func DownmixInterleaved(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return out
}

// WrapWAV prefixes 16-bit PCM with a RIFF/WAVE header.
func WrapWAV(pcm []byte, channels, sampleRate int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, errors.New("wav: empty pcm")
	}
	if channels <= 0 || channels > 2 {
		return nil, fmt.Errorf("wav: unsupported channel count %d", channels)
	}
	if sampleRate <= 0 {
		return nil, errors.New("wav: sample rate must be positive")
	}
	if len(pcm)%(2*channels) != 0 {
		return nil, errors.New("wav: pcm length does not match channel count")
	}

	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// StripWAV returns the data chunk when b is a RIFF/WAVE file and b unchanged otherwise.
func StripWAV(b []byte) ([]byte, error) {
	if len(b) < 12 || !bytes.HasPrefix(b, []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		return b, nil
	}
	i := 12
	for i+8 <= len(b) {
		id := string(b[i : i+4])
		size := int(binary.LittleEndian.Uint32(b[i+4 : i+8]))
		next := i + 8 + size
		if id == "data" {
			if next > len(b) {
				return nil, errors.New("wav: data chunk exceeds buffer")
			}
			return b[i+8 : next], nil
		}
		if size%2 != 0 {
			next++
		}
		i = next
	}
	return nil, errors.New("wav: data chunk not found")
}
