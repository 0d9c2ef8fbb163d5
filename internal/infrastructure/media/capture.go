package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"peerline/internal/core/domain"
	"peerline/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// CaptureConfig describes what the local agent is allowed to capture.
// Denied kinds surface as permission errors, mirroring a user rejecting a
// device prompt.
type CaptureConfig struct {
	AllowAudio     bool
	AllowVideo     bool
	VideoFrameRate int
}

// Capture acquires local media streams. Audio is always part of a stream;
// video only when requested at acquire time.
type Capture struct {
	cfg     CaptureConfig
	factory SourceFactory
	logger  *zap.SugaredLogger
}

func NewCapture(cfg CaptureConfig, factory SourceFactory, logger *zap.SugaredLogger) *Capture {
	if factory == nil {
		factory = DefaultSourceFactory(cfg.VideoFrameRate)
	}
	return &Capture{
		cfg:     cfg,
		factory: factory,
		logger:  logger,
	}
}

func (c *Capture) Acquire(ctx context.Context, requestVideo bool) (ports.MediaStream, error) {
	if !c.cfg.AllowAudio {
		return nil, fmt.Errorf("%w: microphone access is not allowed", domain.ErrPermissionDenied)
	}
	if requestVideo && !c.cfg.AllowVideo {
		return nil, fmt.Errorf("%w: camera access is not allowed", domain.ErrPermissionDenied)
	}

	stream := &Stream{
		hasVideo:     requestVideo,
		videoEnabled: requestVideo,
		done:         make(chan struct{}),
		logger:       c.logger,
	}

	if err := c.attach(stream, "audio"); err != nil {
		stream.Release()
		return nil, err
	}
	if requestVideo {
		if err := c.attach(stream, "video"); err != nil {
			stream.Release()
			return nil, err
		}
	}

	c.logger.Infow("acquired local media", "video", requestVideo, "tracks", len(stream.tracks))
	return stream, nil
}

func (c *Capture) attach(stream *Stream, kind string) error {
	source, err := c.factory(kind)
	if err != nil {
		return fmt.Errorf("%w: %s source: %v", domain.ErrDeviceUnavailable, kind, err)
	}

	var capability webrtc.RTPCodecCapability
	if kind == "audio" {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	} else {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
	}

	track, err := webrtc.NewTrackLocalStaticRTP(capability, kind, "peerline-local")
	if err != nil {
		source.Close()
		return fmt.Errorf("%w: failed to create %s track: %v", domain.ErrDeviceUnavailable, kind, err)
	}

	stream.tracks = append(stream.tracks, track)
	stream.sources = append(stream.sources, source)
	stream.wg.Add(1)
	go stream.pump(source, track)
	return nil
}

// Stream is one acquired set of local tracks with their feeding pumps.
// Mute and video-enable act as gates on the pumps: a disabled track keeps
// its source running but drops packets, so re-enabling is instant and
// never renegotiates.
type Stream struct {
	mu           sync.Mutex
	muted        bool
	videoEnabled bool
	hasVideo     bool

	tracks  []*webrtc.TrackLocalStaticRTP
	sources []Source

	releaseOnce sync.Once
	done        chan struct{}
	wg          sync.WaitGroup

	logger *zap.SugaredLogger
}

func (s *Stream) LocalTracks() []webrtc.TrackLocal {
	out := make([]webrtc.TrackLocal, len(s.tracks))
	for i, track := range s.tracks {
		out[i] = track
	}
	return out
}

func (s *Stream) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
}

func (s *Stream) SetVideoEnabled(enabled bool) {
	s.mu.Lock()
	s.videoEnabled = enabled
	s.mu.Unlock()
}

func (s *Stream) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *Stream) VideoEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoEnabled
}

func (s *Stream) HasVideo() bool {
	return s.hasVideo
}

// Release stops the pumps and closes every source. Idempotent.
func (s *Stream) Release() {
	s.releaseOnce.Do(func() {
		close(s.done)
		for _, source := range s.sources {
			if err := source.Close(); err != nil {
				s.logger.Warnw("failed to close media source", "kind", source.Kind(), "error", err)
			}
		}
		s.wg.Wait()
		s.logger.Debugw("released local media")
	})
}

func (s *Stream) gateOpen(kind string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kind == "audio" {
		return !s.muted
	}
	return s.videoEnabled
}

func (s *Stream) pump(source Source, track *webrtc.TrackLocalStaticRTP) {
	defer s.wg.Done()

	for {
		packet, err := source.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warnw("media source failed", "kind", source.Kind(), "error", err)
			}
			return
		}

		select {
		case <-s.done:
			return
		default:
		}

		if !s.gateOpen(source.Kind()) {
			continue
		}

		if err := track.WriteRTP(packet); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			s.logger.Warnw("failed to write RTP packet", "kind", source.Kind(), "error", err)
		}
	}
}
