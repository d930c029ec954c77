package session

import (
	"time"

	"callkit/core"
)

const (
	DefaultRetryDelay  = time.Second
	DefaultMaxAttempts = 3
)

type options struct {
	apiKey          string
	retryDelay      time.Duration
	maxAttempts     int
	playback        Playback
	agentMatcher    func(identity string) bool
	logger          *core.Logger
	logWriter       core.LogWriter
	callLogDir      string
	monitorInterval time.Duration
}

// Option configures a Session.
type Option func(*options)

// WithAPIKey sets the key used to negotiate connection details.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithRetryDelay sets the linear backoff unit between connect attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.retryDelay = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithPlayback routes remote audio tracks to p.
func WithPlayback(p Playback) Option {
	return func(o *options) { o.playback = p }
}

// WithAgentMatcher replaces IsAgentIdentity.
func WithAgentMatcher(fn func(identity string) bool) Option {
	return func(o *options) {
		if fn != nil {
			o.agentMatcher = fn
		}
	}
}

func WithLogger(logger *core.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLogWriter tees every session log line to w.
func WithLogWriter(w core.LogWriter) Option {
	return func(o *options) { o.logWriter = w }
}

// WithCallLogDir writes a JSONL log per call into dir.
func WithCallLogDir(dir string) Option {
	return func(o *options) { o.callLogDir = dir }
}

// WithMonitorInterval sets the audio level tick.
func WithMonitorInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.monitorInterval = d
		}
	}
}
