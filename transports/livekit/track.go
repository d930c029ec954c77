package livekit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"callkit/core"
	"callkit/events"
	"callkit/transports"

	media "github.com/livekit/media-sdk"
	lkmedia "github.com/livekit/server-sdk-go/v2/pkg/media"
	"github.com/pion/webrtc/v4"
)

// RemoteSampleRate is the rate remote audio is decoded to.
const RemoteSampleRate = 48000

var timeNow = time.Now

var errTrackClosed = errors.New("livekit: track closed")

// remoteTrack decodes a subscribed track once and fans PCM out to every
// Stream sink.
type remoteTrack struct {
	track  *webrtc.TrackRemote
	kind   transports.TrackKind
	logger *core.Logger
	sinks  events.Registry[[]int16]

	mu      sync.Mutex
	decoder *lkmedia.PCMRemoteTrack
	closed  bool
}

func newRemoteTrack(track *webrtc.TrackRemote, kind transports.TrackKind, logger *core.Logger) *remoteTrack {
	return &remoteTrack{track: track, kind: kind, logger: logger}
}

func (t *remoteTrack) ID() string { return t.track.ID() }

func (t *remoteTrack) Kind() transports.TrackKind { return t.kind }

// Stream registers sink for decoded mono PCM16. Decoding starts with the first sink.
func (t *remoteTrack) Stream(sink func([]int16)) (func(), error) {
	if t.kind != transports.TrackKindAudio {
		return nil, fmt.Errorf("livekit: track %s is %s, not audio", t.ID(), t.kind)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, errTrackClosed
	}
	remove := t.sinks.Add(sink)
	if t.decoder == nil {
		dec, err := lkmedia.NewPCMRemoteTrack(t.track, &pcmFanout{t: t},
			lkmedia.WithTargetSampleRate(RemoteSampleRate),
			lkmedia.WithTargetChannels(1),
		)
		if err != nil {
			remove()
			return nil, fmt.Errorf("livekit: decode track %s: %w", t.ID(), err)
		}
		t.decoder = dec
		t.logger.Debug("started decoding track", "trackID", t.ID())
	}
	return remove, nil
}

func (t *remoteTrack) close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	dec := t.decoder
	t.decoder = nil
	t.mu.Unlock()

	if dec != nil {
		dec.Close()
	}
	t.sinks.Clear()
}

// pcmFanout is the decoder's writer.
type pcmFanout struct {
	t *remoteTrack
}

func (w *pcmFanout) String() string { return "callkit-pcm-fanout" }

func (w *pcmFanout) SampleRate() int { return RemoteSampleRate }

func (w *pcmFanout) WriteSample(sample media.PCM16Sample) error {
	w.t.sinks.Emit([]int16(sample))
	return nil
}

func (w *pcmFanout) Close() error { return nil }
