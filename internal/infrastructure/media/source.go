package media

import (
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/pion/rtp"
)

const (
	opusClockRate = 48000
	vp8ClockRate  = 90000
)

// Source produces timestamped RTP packets for one local track.
type Source interface {
	// Kind reports "audio" or "video".
	Kind() string
	// Next blocks until the next packet is due and returns it. It returns
	// io.EOF after Close.
	Next() (*rtp.Packet, error)
	Close() error
}

// SyntheticSource paces synthetic RTP packets at a fixed frame interval.
// It stands in for a capture device: audio sources emit silence frames,
// video sources emit blank frames. Sequence numbers and timestamps advance
// exactly as a real encoder's would, so the receiving side sees a
// well-formed stream.
type SyntheticSource struct {
	kind      string
	ssrc      uint32
	interval  time.Duration
	tsStep    uint32
	payload   []byte
	seq       uint16
	timestamp uint32
	ticker    *time.Ticker

	closeOnce sync.Once
	done      chan struct{}
}

// NewSyntheticAudioSource emits 20ms silence frames on the Opus clock.
func NewSyntheticAudioSource() *SyntheticSource {
	interval := 20 * time.Millisecond
	return newSyntheticSource("audio", interval, opusClockRate, []byte{0xf8, 0xff, 0xfe})
}

// NewSyntheticVideoSource emits blank frames at the given rate on the VP8
// clock.
func NewSyntheticVideoSource(frameRate int) *SyntheticSource {
	if frameRate <= 0 {
		frameRate = 30
	}
	interval := time.Second / time.Duration(frameRate)
	return newSyntheticSource("video", interval, vp8ClockRate, make([]byte, 64))
}

func newSyntheticSource(kind string, interval time.Duration, clockRate int, payload []byte) *SyntheticSource {
	return &SyntheticSource{
		kind:      kind,
		ssrc:      rand.Uint32(),
		interval:  interval,
		tsStep:    uint32(int64(clockRate) * interval.Milliseconds() / 1000),
		payload:   payload,
		seq:       uint16(rand.Intn(1 << 16)),
		timestamp: rand.Uint32(),
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
	}
}

func (s *SyntheticSource) Kind() string {
	return s.kind
}

func (s *SyntheticSource) Next() (*rtp.Packet, error) {
	select {
	case <-s.done:
		return nil, io.EOF
	case <-s.ticker.C:
	}

	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			SequenceNumber: s.seq,
			Timestamp:      s.timestamp,
			SSRC:           s.ssrc,
		},
		Payload: s.payload,
	}
	s.seq++
	s.timestamp += s.tsStep
	return packet, nil
}

func (s *SyntheticSource) Close() error {
	s.closeOnce.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
	return nil
}

// SourceFactory builds the audio and optional video sources for one call.
// The default factory produces synthetic sources; device-backed factories
// plug in here.
type SourceFactory func(kind string) (Source, error)

// DefaultSourceFactory returns synthetic sources.
func DefaultSourceFactory(videoFrameRate int) SourceFactory {
	return func(kind string) (Source, error) {
		switch kind {
		case "audio":
			return NewSyntheticAudioSource(), nil
		case "video":
			return NewSyntheticVideoSource(videoFrameRate), nil
		default:
			return nil, fmt.Errorf("unknown source kind: %s", kind)
		}
	}
}
