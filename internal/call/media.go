package call

import (
	"context"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"wavelink-backend/internal/domain"
	apperrors "wavelink-backend/pkg/errors"
)

// Constraints describes which local media a call wants.
type Constraints struct {
	Audio bool
	Video bool
}

// ConstraintsFor returns the default constraints for a call type.
func ConstraintsFor(ct domain.CallType) Constraints {
	switch ct {
	case domain.CallTypeVideo, domain.CallTypeGroupVideo:
		return Constraints{Audio: true, Video: true}
	default:
		return Constraints{Audio: true}
	}
}

// Fallback returns the next weaker constraint set to try when acquisition
// fails, and whether one exists. A video request degrades to audio-only; an
// audio request has nowhere left to go.
func (c Constraints) Fallback() (Constraints, bool) {
	if c.Video {
		return Constraints{Audio: c.Audio}, true
	}
	return Constraints{}, false
}

// Provider acquires local capture streams. Implementations wrap whatever
// capture backend the platform has; tests use a fake.
type Provider interface {
	Acquire(ctx context.Context, c Constraints) (*Stream, error)
}

// Stream is one set of local tracks attached to peer connections. Mute state
// lives here: disabling a track flips a flag the sample writer consults, the
// track itself stays attached so no renegotiation is needed.
type Stream struct {
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample

	audioEnabled atomic.Bool
	videoEnabled atomic.Bool

	release func()
}

// NewStream builds a stream from pre-created tracks. release, if non-nil, is
// invoked exactly once when the stream closes.
func NewStream(audio, video *webrtc.TrackLocalStaticSample, release func()) *Stream {
	s := &Stream{audio: audio, video: video, release: release}
	s.audioEnabled.Store(audio != nil)
	s.videoEnabled.Store(video != nil)
	return s
}

// Tracks returns the local tracks to attach to a peer connection.
func (s *Stream) Tracks() []webrtc.TrackLocal {
	var tracks []webrtc.TrackLocal
	if s.audio != nil {
		tracks = append(tracks, s.audio)
	}
	if s.video != nil {
		tracks = append(tracks, s.video)
	}
	return tracks
}

// HasVideo reports whether the stream carries a video track.
func (s *Stream) HasVideo() bool {
	return s.video != nil
}

// SetAudioEnabled flips the audio mute flag. Returns the new enabled state.
func (s *Stream) SetAudioEnabled(enabled bool) bool {
	if s.audio == nil {
		return false
	}
	s.audioEnabled.Store(enabled)
	return enabled
}

// SetVideoEnabled flips the video mute flag. Returns the new enabled state.
func (s *Stream) SetVideoEnabled(enabled bool) bool {
	if s.video == nil {
		return false
	}
	s.videoEnabled.Store(enabled)
	return enabled
}

// AudioEnabled reports whether audio samples should be written.
func (s *Stream) AudioEnabled() bool { return s.audioEnabled.Load() }

// VideoEnabled reports whether video samples should be written.
func (s *Stream) VideoEnabled() bool { return s.videoEnabled.Load() }

// Close releases the underlying capture resources.
func (s *Stream) Close() {
	if s.release != nil {
		s.release()
		s.release = nil
	}
}

// AcquireWithFallback tries the requested constraints and walks the fallback
// chain on failure. Returns the stream and the constraints that succeeded.
func AcquireWithFallback(ctx context.Context, provider Provider, want Constraints) (*Stream, Constraints, error) {
	for {
		stream, err := provider.Acquire(ctx, want)
		if err == nil {
			return stream, want, nil
		}

		weaker, ok := want.Fallback()
		if !ok {
			return nil, Constraints{}, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to acquire local media", err)
		}
		want = weaker
	}
}

// TrackProvider is a Provider over pion sample tracks with no capture
// hardware behind them. Sample writing is the caller's concern; this only
// hands out correctly-shaped tracks, which is all signaling needs.
type TrackProvider struct{}

// Acquire creates Opus and VP8 sample tracks matching the constraints.
func (TrackProvider) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	var audio, video *webrtc.TrackLocalStaticSample
	var err error

	if c.Audio {
		audio, err = webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", "wavelink")
		if err != nil {
			return nil, err
		}
	}

	if c.Video {
		video, err = webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", "wavelink")
		if err != nil {
			return nil, err
		}
	}

	return NewStream(audio, video, nil), nil
}
