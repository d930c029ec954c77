package audio

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	// FFTSize is the analysis window in samples.
	FFTSize = 512
	// SmoothingTimeConstant blends each spectrum with the previous one.
	SmoothingTimeConstant = 0.4
	// MinDecibels and MaxDecibels bound the byte spectrum scale.
	MinDecibels = -100.0
	MaxDecibels = -30.0

	// SpeechBins is the number of low bins averaged for the level.
	SpeechBins = 48
	// SpeakingThreshold is the level above which a tick counts as speech.
	SpeakingThreshold = 0.05
)

// Analyser computes a smoothed byte frequency spectrum over the most recent
// FFTSize samples, the way a browser AnalyserNode does.
type Analyser struct {
	mu       sync.Mutex
	size     int
	ring     []float64
	pos      int
	fft      *fourier.FFT
	frame    []float64
	coeffs   []complex128
	smoothed []float64
	tau      float64
}

// NewAnalyser creates an analyser with the given FFT size (a power of two) and
// smoothing constant in [0,1).
func NewAnalyser(size int, smoothing float64) *Analyser {
	return &Analyser{
		size:     size,
		ring:     make([]float64, size),
		fft:      fourier.NewFFT(size),
		frame:    make([]float64, size),
		smoothed: make([]float64, size/2),
		tau:      smoothing,
	}
}

// BinCount is half the FFT size.
func (a *Analyser) BinCount() int {
	return a.size / 2
}

// Write appends PCM16 samples to the time-domain window.
func (a *Analyser) Write(samples []int16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(samples) > a.size {
		samples = samples[len(samples)-a.size:]
	}
	for _, s := range samples {
		a.ring[a.pos] = float64(s) / 32768.0
		a.pos = (a.pos + 1) % a.size
	}
}

// ByteFrequencyData fills dst (len BinCount) with the current spectrum scaled
// from [MinDecibels, MaxDecibels] to [0,255].
func (a *Analyser) ByteFrequencyData(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := 0; i < a.size; i++ {
		a.frame[i] = a.ring[(a.pos+i)%a.size]
	}
	window.Blackman(a.frame)
	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	scale := 255.0 / (MaxDecibels - MinDecibels)
	n := min(len(dst), len(a.smoothed))
	for k := 0; k < n; k++ {
		re, im := real(a.coeffs[k]), imag(a.coeffs[k])
		mag := math.Sqrt(re*re+im*im) / float64(a.size)
		a.smoothed[k] = a.tau*a.smoothed[k] + (1-a.tau)*mag

		db := 20 * math.Log10(a.smoothed[k])
		v := (db - MinDecibels) * scale
		switch {
		case math.IsNaN(v) || v < 0:
			dst[k] = 0
		case v > 255:
			dst[k] = 255
		default:
			dst[k] = byte(v)
		}
	}
}

// LevelInfo is one tick of the monitor.
type LevelInfo struct {
	Level      float64
	IsSpeaking bool
}

// ComputeLevel weights the mean of the speech band 60/40 against its peak.
func ComputeLevel(bins []byte) LevelInfo {
	n := min(SpeechBins, len(bins))
	if n == 0 {
		return LevelInfo{}
	}
	var sum, peak int
	for _, b := range bins[:n] {
		sum += int(b)
		peak = max(peak, int(b))
	}
	mean := float64(sum) / float64(n)
	level := 0.6*mean/255 + 0.4*float64(peak)/255
	level = math.Max(0, math.Min(1, level))
	return LevelInfo{Level: level, IsSpeaking: level > SpeakingThreshold}
}
